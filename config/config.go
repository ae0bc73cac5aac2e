// Package config provides configuration management for vizgate.
// It handles loading and validating configuration from YAML or JSON files and environment variables.
package config

import "time"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Server  ServerConfig  `koanf:"server"`
	Auth    AuthConfig    `koanf:"auth"`
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Files   FilesConfig   `koanf:"files"`
	Export  ExportConfig  `koanf:"export"`
	Limiter LimiterConfig `koanf:"limiter"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr     string        `koanf:"listen_addr"`
	CertFile       string        `koanf:"cert_file"`
	KeyFile        string        `koanf:"key_file"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	IdleTimeout    time.Duration `koanf:"idle_timeout"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxUploadSize  int64         `koanf:"max_upload_size"`
}

// AuthConfig holds token and platform strategy configuration
type AuthConfig struct {
	TokenSecret     string        `koanf:"token_secret"`
	TokenIssuer     string        `koanf:"token_issuer"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	SignatureWindow time.Duration `koanf:"signature_window"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// Mode controls sanitization of sensitive values: production, development or debug
	Mode string `koanf:"mode"`
}

// StoreConfig selects and configures the credential store
type StoreConfig struct {
	Type           string `koanf:"type"` // "sqlite", "postgres" or "redis"
	DSN            string `koanf:"dsn"`
	SQLitePath     string `koanf:"sqlite_path"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`

	// PlatformCacheTTL caches platform lookups by auth code; zero disables it
	PlatformCacheTTL  time.Duration `koanf:"platform_cache_ttl"`
	PlatformCacheSize int           `koanf:"platform_cache_size"`
}

// FilesConfig holds file helper configuration
type FilesConfig struct {
	BaseDir             string  `koanf:"base_dir"`
	CompressThreshold   int64   `koanf:"compress_threshold"`
	CompressQuality     int     `koanf:"compress_quality"`
	CompressMinDecrease float64 `koanf:"compress_min_decrease"`
}

// ExportConfig holds the optional archive mirror configuration
type ExportConfig struct {
	S3AccessKey            string `koanf:"s3_access_key"`
	S3SecretKey            string `koanf:"s3_secret_key"`
	S3Region               string `koanf:"s3_region"`
	S3BucketName           string `koanf:"s3_bucket_name"`
	S3Endpoint             string `koanf:"s3_endpoint"`               // Custom S3 endpoint (e.g., for MinIO)
	S3ServerSideEncryption string `koanf:"s3_server_side_encryption"` // SSE algorithm (AES256, aws:kms)
	S3ACL                  string `koanf:"s3_acl"`
	S3KMSKeyID             string `koanf:"s3_kms_key_id"`
	KeyPrefix              string `koanf:"key_prefix"`
}

// LimiterConfig holds upload rate limiting configuration
type LimiterConfig struct {
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	CleanupInterval   time.Duration `koanf:"cleanup_interval"`
}
