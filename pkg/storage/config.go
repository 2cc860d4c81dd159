// Package storage holds the shared configuration for the durable stores and
// the cache. Store implementations live in subpackages.
package storage

import "time"

// Config holds storage backend configuration
type Config struct {
	// PostgreSQL
	PostgresURL         string
	PostgresReplicaURLs string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration
	PostgresMaxLifetime time.Duration
	PostgresMaxIdleTime time.Duration

	// Redis
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Node cache
	CacheEnabled bool
	CacheTTL     map[string]time.Duration
	L1CacheSize  int

	// S3 (operation log export)
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		PostgresURL:         "postgres://localhost/warden?sslmode=disable",
		PostgresMaxConns:    25,
		PostgresMinConns:    5,
		PostgresTimeout:     10 * time.Second,
		PostgresMaxLifetime: 30 * time.Minute,
		PostgresMaxIdleTime: 5 * time.Minute,

		RedisURL:        "redis://localhost:6379/0",
		RedisDB:         0,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,

		CacheEnabled: true,
		CacheTTL: map[string]time.Duration{
			"node": 30 * time.Minute,
		},
		L1CacheSize: 4096,

		S3Region: "us-east-1",
	}
}
