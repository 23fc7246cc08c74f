// Package config builds engine configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Engine captures process-level configuration for the sync daemon.
type Engine struct {
	HTTPAddr string

	// Local stores
	PostgresDSN string
	Redis       Redis

	// Poll loop
	PollInterval      time.Duration
	InitialDelay      time.Duration
	BatchSize         int
	RemoteCallTimeout time.Duration

	// Environment-level fallback credential for background work against the
	// master store. Empty means no fallback is configured.
	MasterStoreURL string
	MasterStoreKey string

	// Encryption key for credential secrets at rest (base64, 32 bytes).
	SecretSealKey string

	// Filesystem fallbacks for deployments without Redis. Both files are
	// safe to delete; the engine re-checks everything once.
	StateFilePath        string
	ProcessedSetFilePath string

	Kafka Kafka
}

// Redis captures connection settings for the optional Redis instance.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures settings for the audit event publisher. Empty brokers
// disable publishing.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv builds an Engine config from environment variables.
func FromEnv() Engine {
	return Engine{
		HTTPAddr:             envString("SYNCD_ADDR", ":8090"),
		PostgresDSN:          os.Getenv("SYNCD_POSTGRES_DSN"),
		PollInterval:         envDuration("SYNCD_POLL_INTERVAL", 30*time.Second),
		InitialDelay:         envDuration("SYNCD_INITIAL_DELAY", 5*time.Second),
		BatchSize:            envInt("SYNCD_BATCH_SIZE", 50),
		RemoteCallTimeout:    envDuration("SYNCD_REMOTE_TIMEOUT", 10*time.Second),
		MasterStoreURL:       os.Getenv("SYNCD_MASTER_STORE_URL"),
		MasterStoreKey:       os.Getenv("SYNCD_MASTER_STORE_KEY"),
		SecretSealKey:        os.Getenv("SYNCD_SECRET_SEAL_KEY"),
		StateFilePath:        envString("SYNCD_STATE_FILE", "data/sync_state.json"),
		ProcessedSetFilePath: envString("SYNCD_PROCESSED_FILE", "data/processed_ids.json"),
		Redis: Redis{
			URL:          os.Getenv("SYNCD_REDIS_URL"),
			PoolSize:     envInt("SYNCD_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("SYNCD_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("SYNCD_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("SYNCD_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("SYNCD_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    envList("SYNCD_KAFKA_BROKERS"),
			AuditTopic: envString("SYNCD_KAFKA_AUDIT_TOPIC", "concilia.audit"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
