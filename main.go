package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	"netsentry/config"
	"netsentry/handlers"
	"netsentry/models"
	"netsentry/services"
	"netsentry/storage"
	"netsentry/system"
)

func main() {
	// 0. Configuration
	cfgPath := os.Getenv("NETSENTRY_CONFIG")
	if cfgPath == "" {
		cfgPath = "netsentry.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 1. Logger
	if err := system.InitLogger(cfg.LogDir); err != nil {
		log.Printf("Warning: Could not initialize file logger: %v", err)
	}
	defer system.Close()

	system.Info("NetSentry starting...")

	// 2. Database
	db, err := gorm.Open(sqlite.Open(cfg.Storage.DatabasePath), &gorm.Config{})
	if err != nil {
		system.Error("Failed to connect to database: %v", err)
		log.Fatal("Failed to connect to database:", err)
	}
	system.Info("Database connected: %s", cfg.Storage.DatabasePath)

	// WAL mode avoids "database is locked" errors while the ingest loop
	// writes alerts concurrently with control surface reads
	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		system.Warn("Failed to enable WAL mode: %v", err)
	}

	if err := db.AutoMigrate(
		&models.BlockRecord{},
		&models.CacheEntry{},
		&models.Admin{},
	); err != nil {
		system.Error("Database migration failed: %v", err)
		log.Fatalf("CRITICAL: Database migration failed. Application cannot start: %v", err)
	}
	system.Info("Database migration completed successfully")

	// 3. Storage
	store, err := storage.NewEventStore(cfg.Storage.EventDataDir)
	if err != nil {
		system.Error("Failed to initialize event store: %v", err)
		log.Fatalf("CRITICAL: Event store initialization failed: %v", err)
	}

	cache := storage.NewCache(db)
	cache.StartSweep(cfg.CacheSweepInterval())

	// 4. Services
	executor := system.NewExecutor()
	enforcer := services.NewEnforcer(cfg.Blocking.Firewall, executor)
	system.Info("Firewall enforcement backend: %s", enforcer.Name())

	geoip := services.NewGeoIPService(cfg.GeoIP.DatabasePath)
	defer geoip.Close()

	webhook := services.NewWebhookService()
	if cfg.Alerts.WebhookURL != "" {
		webhook.SetWebhookURL(cfg.Alerts.WebhookURL)
		system.Info("Discord webhook configured")
		go webhook.SendSystemAlert("NetSentry Online",
			"Traffic analysis and automated blocking are running", services.ColorGreen)
	}

	blocker := services.NewIPBlocker(db, cfg.BlockTTL())
	blocker.SetServices(enforcer, webhook)
	blocker.StartSweeper(cfg.BlockSweepInterval())

	// Daily retention pass for inactive block records and old detections
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			blocker.CleanupOldBlocks(cfg.Blocking.RetentionDays)
			store.Cleanup(services.AttackPatternCollection, cfg.Blocking.RetentionDays)
		}
	}()

	profiler := services.NewTrafficProfiler()
	classifier := services.NewPatternClassifier(blocker)
	dispatcher := services.NewDispatcher(profiler, classifier, blocker, cache, store, geoip, cfg.AlertTTL())

	// 5. Ingest listener (websocket, separate from the control surface)
	ingestMux := http.NewServeMux()
	ingestMux.HandleFunc("/ws", dispatcher.ServeWS)
	ingestServer := &http.Server{Addr: cfg.Server.IngestAddr, Handler: ingestMux}
	go func() {
		system.Info("Ingest listener starting on %s", cfg.Server.IngestAddr)
		if err := ingestServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			system.Error("Ingest listener failed: %v", err)
		}
	}()

	// 6. Control surface
	h := handlers.NewHandler(db, blocker, cache, store, dispatcher, cfg.Server.JWTSecret)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stdout,
	}))
	app.Use(cors.New())

	app.Post("/login", h.Login)

	api := app.Group("")
	if cfg.Server.JWTSecret != "" {
		api = app.Group("", h.JWTAuthMiddleware())
	}

	api.Get("/attack-patterns", h.GetAttackPatterns)
	api.Get("/active-threats", h.GetActiveThreats)
	api.Get("/blocked-ips", h.GetBlockedIPs)
	api.Get("/blocked-ips/stats", h.GetBlockingStats)
	api.Post("/block-ip", h.BlockIP)
	api.Post("/unblock-ip", h.UnblockIP)
	api.Get("/is-blocked/:ip", h.IsBlocked)
	api.Get("/status", h.GetStatus)

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		system.Info("Gracefully shutting down...")
		webhook.SendSystemAlert("NetSentry Shutting Down",
			"Service is stopping, active blocks remain persisted", services.ColorOrange)

		blocker.Stop()
		cache.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ingestServer.Shutdown(ctx)
		_ = app.Shutdown()
	}()

	system.Info("Control surface starting on %s (Mode: %s)", cfg.Server.ListenAddr, executor.GetOS())
	if err := app.Listen(cfg.Server.ListenAddr); err != nil {
		log.Fatal(err)
	}
}
