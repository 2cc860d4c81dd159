package config

import (
	"os"
	"testing"
	"time"

	"github.com/platinummonkey/warden/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns true for 'true'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns true for '1'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "returns false for 'false'",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
		{
			name:         "returns true for 'TRUE' (case insensitive)",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "TRUE",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns parsed int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "returns default for invalid int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "invalid",
			want:         10,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOT_SET",
			defaultValue: 10,
			envValue:     "",
			want:         10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns parsed duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOT_SET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestParseLogLevel tests the parseLogLevel function
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  observability.LogLevel
	}{
		{
			name:  "debug",
			level: "debug",
			want:  observability.DebugLevel,
		},
		{
			name:  "DEBUG uppercase",
			level: "DEBUG",
			want:  observability.DebugLevel,
		},
		{
			name:  "info",
			level: "info",
			want:  observability.InfoLevel,
		},
		{
			name:  "warn",
			level: "warn",
			want:  observability.WarnLevel,
		},
		{
			name:  "warning",
			level: "warning",
			want:  observability.WarnLevel,
		},
		{
			name:  "error",
			level: "error",
			want:  observability.ErrorLevel,
		},
		{
			name:  "invalid defaults to info",
			level: "invalid",
			want:  observability.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLogLevel(tt.level)
			if got != tt.want {
				t.Errorf("parseLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestLoadServerConfig tests the loadServerConfig function
func TestLoadServerConfig(t *testing.T) {
	// Save current env and restore after test
	originalEnv := map[string]string{
		"WARDEN_HOST":             os.Getenv("WARDEN_HOST"),
		"WARDEN_PORT":             os.Getenv("WARDEN_PORT"),
		"WARDEN_READ_TIMEOUT":     os.Getenv("WARDEN_READ_TIMEOUT"),
		"WARDEN_WRITE_TIMEOUT":    os.Getenv("WARDEN_WRITE_TIMEOUT"),
		"WARDEN_IDLE_TIMEOUT":     os.Getenv("WARDEN_IDLE_TIMEOUT"),
		"WARDEN_SHUTDOWN_TIMEOUT": os.Getenv("WARDEN_SHUTDOWN_TIMEOUT"),
		"WARDEN_HEALTH_PORT":      os.Getenv("WARDEN_HEALTH_PORT"),
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name string
		env  map[string]string
		want ServerConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: ServerConfig{
				Host:            "0.0.0.0",
				Port:            "8080",
				ReadTimeout:     15 * time.Second,
				WriteTimeout:    15 * time.Second,
				IdleTimeout:     60 * time.Second,
				ShutdownTimeout: 30 * time.Second,
				HealthPort:      "9090",
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"WARDEN_HOST":             "localhost",
				"WARDEN_PORT":             "3000",
				"WARDEN_READ_TIMEOUT":     "30s",
				"WARDEN_WRITE_TIMEOUT":    "30s",
				"WARDEN_IDLE_TIMEOUT":     "120s",
				"WARDEN_SHUTDOWN_TIMEOUT": "60s",
				"WARDEN_HEALTH_PORT":      "9091",
			},
			want: ServerConfig{
				Host:            "localhost",
				Port:            "3000",
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 60 * time.Second,
				HealthPort:      "9091",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all env vars
			for k := range originalEnv {
				os.Unsetenv(k)
			}

			// Set test env vars
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			got := loadServerConfig()
			if got != tt.want {
				t.Errorf("loadServerConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestLoadStorageConfig tests the loadStorageConfig function
func TestLoadStorageConfig(t *testing.T) {
	// Save current env and restore after test
	envVars := []string{
		"WARDEN_POSTGRES_URL",
		"WARDEN_POSTGRES_REPLICA_URLS",
		"WARDEN_POSTGRES_MAX_CONNS",
		"WARDEN_POSTGRES_MIN_CONNS",
		"WARDEN_POSTGRES_TIMEOUT",
		"WARDEN_REDIS_URL",
		"WARDEN_REDIS_PASSWORD",
		"WARDEN_REDIS_DB",
		"WARDEN_REDIS_MAX_RETRIES",
		"WARDEN_REDIS_POOL_SIZE",
		"WARDEN_CACHE_ENABLED",
		"WARDEN_CACHE_TTL",
		"WARDEN_L1_CACHE_SIZE",
		"WARDEN_S3_ENDPOINT",
		"WARDEN_S3_REGION",
		"WARDEN_S3_BUCKET",
		"WARDEN_S3_ACCESS_KEY",
		"WARDEN_S3_SECRET_KEY",
		"WARDEN_S3_USE_PATH_STYLE",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads default config", func(t *testing.T) {
		// Clear all env vars
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		cfg := loadStorageConfig()
		if cfg.PostgresURL != "postgres://localhost/warden?sslmode=disable" {
			t.Errorf("PostgresURL = %v, want default", cfg.PostgresURL)
		}
		if cfg.PostgresMaxConns != 25 {
			t.Errorf("PostgresMaxConns = %v, want 25", cfg.PostgresMaxConns)
		}
		if !cfg.CacheEnabled {
			t.Errorf("CacheEnabled = %v, want true", cfg.CacheEnabled)
		}
	})

	t.Run("loads postgres config from env", func(t *testing.T) {
		// Clear all env vars
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("WARDEN_POSTGRES_URL", "postgres://localhost/db")
		os.Setenv("WARDEN_POSTGRES_REPLICA_URLS", "postgres://replica1,postgres://replica2")
		os.Setenv("WARDEN_POSTGRES_MAX_CONNS", "50")
		os.Setenv("WARDEN_POSTGRES_MIN_CONNS", "5")
		os.Setenv("WARDEN_POSTGRES_TIMEOUT", "20s")

		cfg := loadStorageConfig()
		if cfg.PostgresURL != "postgres://localhost/db" {
			t.Errorf("PostgresURL = %v, want postgres://localhost/db", cfg.PostgresURL)
		}
		if cfg.PostgresReplicaURLs != "postgres://replica1,postgres://replica2" {
			t.Errorf("PostgresReplicaURLs = %v, want postgres://replica1,postgres://replica2", cfg.PostgresReplicaURLs)
		}
		if cfg.PostgresMaxConns != 50 {
			t.Errorf("PostgresMaxConns = %v, want 50", cfg.PostgresMaxConns)
		}
		if cfg.PostgresMinConns != 5 {
			t.Errorf("PostgresMinConns = %v, want 5", cfg.PostgresMinConns)
		}
		if cfg.PostgresTimeout != 20*time.Second {
			t.Errorf("PostgresTimeout = %v, want 20s", cfg.PostgresTimeout)
		}
	})

	t.Run("loads redis config from env", func(t *testing.T) {
		// Clear all env vars
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("WARDEN_REDIS_URL", "redis://localhost:6379")
		os.Setenv("WARDEN_REDIS_PASSWORD", "password")
		os.Setenv("WARDEN_REDIS_DB", "1")
		os.Setenv("WARDEN_REDIS_MAX_RETRIES", "5")
		os.Setenv("WARDEN_REDIS_POOL_SIZE", "20")

		cfg := loadStorageConfig()
		if cfg.RedisURL != "redis://localhost:6379" {
			t.Errorf("RedisURL = %v, want redis://localhost:6379", cfg.RedisURL)
		}
		if cfg.RedisPassword != "password" {
			t.Errorf("RedisPassword = %v, want password", cfg.RedisPassword)
		}
		if cfg.RedisDB != 1 {
			t.Errorf("RedisDB = %v, want 1", cfg.RedisDB)
		}
		if cfg.RedisMaxRetries != 5 {
			t.Errorf("RedisMaxRetries = %v, want 5", cfg.RedisMaxRetries)
		}
		if cfg.RedisPoolSize != 20 {
			t.Errorf("RedisPoolSize = %v, want 20", cfg.RedisPoolSize)
		}
	})

	t.Run("loads cache config from env", func(t *testing.T) {
		// Clear all env vars
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("WARDEN_CACHE_ENABLED", "false")
		os.Setenv("WARDEN_CACHE_TTL", "10m")
		os.Setenv("WARDEN_L1_CACHE_SIZE", "8192")

		cfg := loadStorageConfig()
		if cfg.CacheEnabled {
			t.Errorf("CacheEnabled = %v, want false", cfg.CacheEnabled)
		}
		if cfg.CacheTTL["node"] != 10*time.Minute {
			t.Errorf("CacheTTL[node] = %v, want 10m", cfg.CacheTTL["node"])
		}
		if cfg.L1CacheSize != 8192 {
			t.Errorf("L1CacheSize = %v, want 8192", cfg.L1CacheSize)
		}
	})

	t.Run("loads s3 config from env", func(t *testing.T) {
		// Clear all env vars
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("WARDEN_S3_ENDPOINT", "s3.amazonaws.com")
		os.Setenv("WARDEN_S3_REGION", "us-west-2")
		os.Setenv("WARDEN_S3_BUCKET", "my-bucket")
		os.Setenv("WARDEN_S3_ACCESS_KEY", "access")
		os.Setenv("WARDEN_S3_SECRET_KEY", "secret")
		os.Setenv("WARDEN_S3_USE_PATH_STYLE", "true")

		cfg := loadStorageConfig()
		if cfg.S3Endpoint != "s3.amazonaws.com" {
			t.Errorf("S3Endpoint = %v, want s3.amazonaws.com", cfg.S3Endpoint)
		}
		if cfg.S3Region != "us-west-2" {
			t.Errorf("S3Region = %v, want us-west-2", cfg.S3Region)
		}
		if cfg.S3Bucket != "my-bucket" {
			t.Errorf("S3Bucket = %v, want my-bucket", cfg.S3Bucket)
		}
		if cfg.S3AccessKey != "access" {
			t.Errorf("S3AccessKey = %v, want access", cfg.S3AccessKey)
		}
		if cfg.S3SecretKey != "secret" {
			t.Errorf("S3SecretKey = %v, want secret", cfg.S3SecretKey)
		}
		if !cfg.S3UsePathStyle {
			t.Errorf("S3UsePathStyle = %v, want true", cfg.S3UsePathStyle)
		}
	})

	t.Run("ignores invalid postgres max conns", func(t *testing.T) {
		// Clear all env vars
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("WARDEN_POSTGRES_MAX_CONNS", "0")

		cfg := loadStorageConfig()
		// Should keep default value
		if cfg.PostgresMaxConns != 25 {
			t.Errorf("PostgresMaxConns = %v, want 25 (default)", cfg.PostgresMaxConns)
		}
	})
}

// TestLoadArchiveConfig tests the loadArchiveConfig function
func TestLoadArchiveConfig(t *testing.T) {
	// Save current env and restore after test
	envVars := []string{
		"WARDEN_ARCHIVE_RETENTION",
		"WARDEN_PURGE_SCHEDULE",
		"WARDEN_EXPORT_ENABLED",
		"WARDEN_EXPORT_AGE",
		"WARDEN_TRANSLATION_CATALOG",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name string
		env  map[string]string
		want ArchiveConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: ArchiveConfig{
				RetentionWindow:    30 * 24 * time.Hour,
				PurgeSchedule:      "*/5 * * * *",
				ExportEnabled:      false,
				ExportAge:          90 * 24 * time.Hour,
				TranslationCatalog: "",
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"WARDEN_ARCHIVE_RETENTION":   "168h",
				"WARDEN_PURGE_SCHEDULE":      "@every 1h",
				"WARDEN_EXPORT_ENABLED":      "true",
				"WARDEN_EXPORT_AGE":          "720h",
				"WARDEN_TRANSLATION_CATALOG": "/etc/warden/catalog.yaml",
			},
			want: ArchiveConfig{
				RetentionWindow:    168 * time.Hour,
				PurgeSchedule:      "@every 1h",
				ExportEnabled:      true,
				ExportAge:          720 * time.Hour,
				TranslationCatalog: "/etc/warden/catalog.yaml",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all env vars
			for _, k := range envVars {
				os.Unsetenv(k)
			}

			// Set test env vars
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			got := loadArchiveConfig()
			if got != tt.want {
				t.Errorf("loadArchiveConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestConfigValidate tests the Config.Validate method
func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Server: ServerConfig{
				Port:       "8080",
				HealthPort: "9090",
			},
			Archive: ArchiveConfig{
				RetentionWindow: 30 * 24 * time.Hour,
			},
		}
		cfg.Storage.PostgresURL = "postgres://localhost/db"
		cfg.Storage.CacheEnabled = true
		cfg.Storage.RedisURL = "redis://localhost:6379"
		return cfg
	}

	t.Run("valid config", func(t *testing.T) {
		cfg := valid()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})

	t.Run("missing server port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Port = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "server port is required" {
			t.Errorf("Validate() error = %v, want 'server port is required'", err.Error())
		}
	})

	t.Run("missing health port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.HealthPort = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "health port is required" {
			t.Errorf("Validate() error = %v, want 'health port is required'", err.Error())
		}
	})

	t.Run("same server and health port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.HealthPort = cfg.Server.Port
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "server port and health port must be different" {
			t.Errorf("Validate() error = %v, want 'server port and health port must be different'", err.Error())
		}
	})

	t.Run("missing postgres url", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.PostgresURL = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "postgres URL is required" {
			t.Errorf("Validate() error = %v, want 'postgres URL is required'", err.Error())
		}
	})

	t.Run("cache enabled without redis url", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.RedisURL = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "redis URL is required when the cache is enabled" {
			t.Errorf("Validate() error = %v, want 'redis URL is required when the cache is enabled'", err.Error())
		}
	})

	t.Run("cache disabled without redis url", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.CacheEnabled = false
		cfg.Storage.RedisURL = ""
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})

	t.Run("non-positive retention window", func(t *testing.T) {
		cfg := valid()
		cfg.Archive.RetentionWindow = 0
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "archive retention window must be positive" {
			t.Errorf("Validate() error = %v, want 'archive retention window must be positive'", err.Error())
		}
	})

	t.Run("export enabled without bucket", func(t *testing.T) {
		cfg := valid()
		cfg.Archive.ExportEnabled = true
		cfg.Storage.S3Bucket = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "S3 bucket is required when export is enabled" {
			t.Errorf("Validate() error = %v, want 'S3 bucket is required when export is enabled'", err.Error())
		}
	})

	t.Run("export enabled with bucket", func(t *testing.T) {
		cfg := valid()
		cfg.Archive.ExportEnabled = true
		cfg.Storage.S3Bucket = "warden-audit"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})

	t.Run("otel enabled without endpoint", func(t *testing.T) {
		cfg := valid()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelEndpoint = ""
		cfg.Observability.OTelServiceName = "test"
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "OpenTelemetry endpoint is required when OTel is enabled" {
			t.Errorf("Validate() error = %v, want 'OpenTelemetry endpoint is required when OTel is enabled'", err.Error())
		}
	})

	t.Run("otel enabled without service name", func(t *testing.T) {
		cfg := valid()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelEndpoint = "localhost:4317"
		cfg.Observability.OTelServiceName = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "OpenTelemetry service name is required when OTel is enabled" {
			t.Errorf("Validate() error = %v, want 'OpenTelemetry service name is required when OTel is enabled'", err.Error())
		}
	})

	t.Run("valid otel config", func(t *testing.T) {
		cfg := valid()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelEndpoint = "localhost:4317"
		cfg.Observability.OTelServiceName = "test-service"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})
}

// TestLoadConfig tests the LoadConfig function
func TestLoadConfig(t *testing.T) {
	// Save current env and restore after test
	envVars := []string{
		"WARDEN_PORT",
		"WARDEN_HEALTH_PORT",
		"WARDEN_POSTGRES_URL",
		"WARDEN_CACHE_ENABLED",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name: "valid config",
			env: map[string]string{
				"WARDEN_PORT":         "8080",
				"WARDEN_HEALTH_PORT":  "9090",
				"WARDEN_POSTGRES_URL": "postgres://localhost/warden",
			},
			wantErr: false,
		},
		{
			name: "invalid config - same ports",
			env: map[string]string{
				"WARDEN_PORT":        "8080",
				"WARDEN_HEALTH_PORT": "8080",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all env vars
			for _, k := range envVars {
				os.Unsetenv(k)
			}

			// Set test env vars
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && cfg == nil {
				t.Error("LoadConfig() returned nil config without error")
			}
		})
	}
}
