package models

import (
	"time"
)

// BlockRecord is the persisted block state for a single source address.
// One row per IP: blocking again after an unblock overwrites the row.
type BlockRecord struct {
	IP          string     `gorm:"primaryKey" json:"ip"`
	BlockedAt   time.Time  `gorm:"not null" json:"blocked_at"`
	Reason      string     `json:"reason"`
	ThreatLevel float64    `json:"threat_level"`
	AttackType  string     `json:"attack_type"`
	AutoBlocked bool       `gorm:"default:false" json:"auto_blocked"`
	ExpiresAt   *time.Time `gorm:"index" json:"expires_at,omitempty"`
	UnblockedAt *time.Time `json:"unblocked_at,omitempty"`
	IsActive    bool       `gorm:"index;default:true" json:"is_active"`
}

// CacheEntry backs the ephemeral alert cache. Expired rows are treated as
// absent by every read path even before the sweep removes them.
type CacheEntry struct {
	Key       string     `gorm:"primaryKey" json:"key"`
	Value     string     `json:"value"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type Admin struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Username          string     `gorm:"unique;not null" json:"username"`
	Password          string     `gorm:"not null" json:"-"`
	FailedAttempts    int        `gorm:"default:0" json:"-"`
	LastFailedAttempt *time.Time `json:"-"`
	LockedUntil       *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
}

// TrafficEvent is a single ingested request observation. Not persisted.
type TrafficEvent struct {
	IP          string    `json:"ip"`
	BytesSent   int64     `json:"bytes_sent"`
	ArrivalTime time.Time `json:"-"`
}

// GeoLocation is the enrichment attached to broadcast analyses. The core
// tolerates a missing GeoIP database by falling back to UnknownLocation.
type GeoLocation struct {
	Country   string  `json:"country"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func UnknownLocation() GeoLocation {
	return GeoLocation{Country: "Unknown", City: "Unknown"}
}
