package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Upload   UploadConfig   `json:"upload"`
	Pipeline PipelineConfig `json:"pipeline"`
	Store    StoreConfig    `json:"store"`
	Database Database       `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	R2       R2Config       `json:"r2"`
	Sentry   SentryConfig   `json:"sentry"`
	Log      LogConfig      `json:"log"`
}

type ServerConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	// PublicOrigin is embedded in blob: handles, e.g. "https://admin.example.com".
	PublicOrigin string `json:"public_origin"`
	// BaseURL resolves server-relative image paths when listings are loaded.
	BaseURL string `json:"base_url"`
}

type UploadConfig struct {
	MaxRequestBodyMB     int64 `json:"max_request_body"`
	MaxMultipartMemoryMB int64 `json:"max_multipart_memory"`
}

type UploadBackend string

const (
	BackendHTTP UploadBackend = "http"
	BackendR2   UploadBackend = "r2"
	BackendNone UploadBackend = "none"
)

type PipelineConfig struct {
	ShortTimeout     time.Duration `json:"short_timeout"`
	LongTimeout      time.Duration `json:"long_timeout"`
	LongTimeoutAbove int64         `json:"long_timeout_above"`
	MaxRetries       int           `json:"max_retries"`
	RetryBaseDelay   time.Duration `json:"retry_base_delay"`
	MaxSourcePixels  int64         `json:"max_source_pixels"`
	Backend          UploadBackend `json:"backend"`
	Endpoint         string        `json:"endpoint"`
}

type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StoreRedis    StoreBackend = "redis"
	StorePostgres StoreBackend = "postgres"
)

type StoreConfig struct {
	Backend StoreBackend `json:"backend"`
}

type Database struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Password            string        `json:"password"`
	DatabaseID          int           `json:"database_id"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	PoolSize            int           `json:"pool_size"`
	Nodes               []RedisNode   `json:"nodes"`
}

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

type R2Config struct {
	AccountID     string `json:"account_id"`
	BucketName    string `json:"bucket_name"`
	AccessKeyID   string `json:"access_key_id"`
	SecretKey     string `json:"secret_key"`
	Endpoint      string `json:"endpoint"`
	PublicBaseURL string `json:"public_base_url"`
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}

type LogConfig struct {
	Level string `json:"level"`
}
