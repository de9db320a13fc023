package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime parameter of the mediation service.
type Config struct {
	DatabaseURL string
	JWTSecret   string
	ListenAddr  string

	MediaDir     string
	MediaBaseURL string

	// Liveness policy and loop intervals. Defaults follow the reference
	// behavior: 3s poll, 30s heartbeat, absence after two missed heartbeats,
	// 10s bound on session bootstrap and blob stores.
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	PresenceStale     time.Duration
	UploadTimeout     time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		ListenAddr:        envOr("LISTEN_ADDR", ":8080"),
		MediaDir:          envOr("MEDIA_DIR", "./media-store"),
		MediaBaseURL:      envOr("MEDIA_BASE_URL", "/media"),
		PollInterval:      envDuration("POLL_INTERVAL", 3*time.Second),
		HeartbeatInterval: envDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		UploadTimeout:     envDuration("UPLOAD_TIMEOUT", 10*time.Second),
	}
	cfg.PresenceStale = envDuration("PRESENCE_STALE_AFTER", 2*cfg.HeartbeatInterval)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = []string{origins}
	} else {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
