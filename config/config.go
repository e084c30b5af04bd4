// Package config handles configuration loading for netsentry.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP control surface and ingest listener settings.
type ServerConfig struct {
	// ListenAddr is the control surface address (default :8080)
	ListenAddr string `yaml:"listen_addr"`
	// IngestAddr is the websocket ingest/broadcast address (default :8000)
	IngestAddr string `yaml:"ingest_addr"`
	// JWTSecret enables JWT auth on the control surface when non-empty
	JWTSecret string `yaml:"jwt_secret"`
}

type StorageConfig struct {
	// DatabasePath is the SQLite file for block records and the cache
	DatabasePath string `yaml:"database_path"`
	// EventDataDir holds one append-only segment file per collection
	EventDataDir string `yaml:"event_data_dir"`
	// CacheSweepSeconds is the interval between expired-entry sweeps
	CacheSweepSeconds int `yaml:"cache_sweep_seconds"`
}

type BlockingConfig struct {
	// BlockTTLSeconds is how long an automatic block stays active
	BlockTTLSeconds int `yaml:"block_ttl_seconds"`
	// SweepSeconds is the interval between block expiry sweeps
	SweepSeconds int `yaml:"sweep_seconds"`
	// RetentionDays controls cleanup of inactive block records
	RetentionDays int `yaml:"retention_days"`
	// Firewall selects the enforcement sink: iptables, ufw or none
	Firewall string `yaml:"firewall"`
}

type AlertsConfig struct {
	// TTLSeconds is the cache lifetime of active-threat alert entries
	TTLSeconds int `yaml:"ttl_seconds"`
	// WebhookURL is an optional Discord webhook for block alerts
	WebhookURL string `yaml:"webhook_url"`
}

type GeoIPConfig struct {
	// DatabasePath points at a GeoLite2-City mmdb file; enrichment is
	// disabled with Unknown defaults when the file is missing
	DatabasePath string `yaml:"database_path"`
}

// Config is the complete netsentry configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Blocking BlockingConfig `yaml:"blocking"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	GeoIP    GeoIPConfig    `yaml:"geoip"`
	LogDir   string         `yaml:"log_dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			IngestAddr: ":8000",
		},
		Storage: StorageConfig{
			DatabasePath:      "netsentry.db",
			EventDataDir:      "./data",
			CacheSweepSeconds: 60,
		},
		Blocking: BlockingConfig{
			BlockTTLSeconds: 3600,
			SweepSeconds:    30,
			RetentionDays:   30,
			Firewall:        "iptables",
		},
		Alerts: AlertsConfig{
			TTLSeconds: 3600,
		},
		GeoIP: GeoIPConfig{
			DatabasePath: "GeoLite2-City.mmdb",
		},
		LogDir: "./logs",
	}
}

// Load reads the YAML config at path, layered over defaults and followed by
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Blocking.BlockTTLSeconds <= 0 {
		cfg.Blocking.BlockTTLSeconds = 3600
	}
	if cfg.Blocking.Firewall == "" {
		cfg.Blocking.Firewall = "none"
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NETSENTRY_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("NETSENTRY_INGEST_ADDR"); v != "" {
		cfg.Server.IngestAddr = v
	}
	if v := os.Getenv("NETSENTRY_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("NETSENTRY_DB_PATH"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv("NETSENTRY_DATA_DIR"); v != "" {
		cfg.Storage.EventDataDir = v
	}
	if v := os.Getenv("NETSENTRY_WEBHOOK_URL"); v != "" {
		cfg.Alerts.WebhookURL = v
	}
	if v := os.Getenv("NETSENTRY_GEOIP_DB"); v != "" {
		cfg.GeoIP.DatabasePath = v
	}
}

func (c *Config) BlockTTL() time.Duration {
	return time.Duration(c.Blocking.BlockTTLSeconds) * time.Second
}

func (c *Config) BlockSweepInterval() time.Duration {
	return time.Duration(c.Blocking.SweepSeconds) * time.Second
}

func (c *Config) CacheSweepInterval() time.Duration {
	return time.Duration(c.Storage.CacheSweepSeconds) * time.Second
}

func (c *Config) AlertTTL() time.Duration {
	return time.Duration(c.Alerts.TTLSeconds) * time.Second
}
