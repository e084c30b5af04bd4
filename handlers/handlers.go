package handlers

import (
	"gorm.io/gorm"

	"netsentry/services"
	"netsentry/storage"
)

type Handler struct {
	DB         *gorm.DB
	Blocker    *services.IPBlocker
	Cache      *storage.Cache
	Store      *storage.EventStore
	Dispatcher *services.Dispatcher

	jwtSecret []byte
}

func NewHandler(db *gorm.DB, blocker *services.IPBlocker, cache *storage.Cache,
	store *storage.EventStore, dispatcher *services.Dispatcher, jwtSecret string) *Handler {
	return &Handler{
		DB:         db,
		Blocker:    blocker,
		Cache:      cache,
		Store:      store,
		Dispatcher: dispatcher,
		jwtSecret:  []byte(jwtSecret),
	}
}
