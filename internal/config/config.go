package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Create new config instance
func NewConfig() *Config {
	return &Config{}
}

// Load configuration file in json format. Missing values get defaults.
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	c.applyDefaults()
	return nil
}

// Durations in the file are whole seconds, except RetryBaseDelay which is
// milliseconds.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 60
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60
	}
	if c.Server.PublicOrigin == "" {
		c.Server.PublicOrigin = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}

	if c.Upload.MaxRequestBodyMB == 0 {
		c.Upload.MaxRequestBodyMB = 16
	}
	if c.Upload.MaxMultipartMemoryMB == 0 {
		c.Upload.MaxMultipartMemoryMB = 16
	}

	if c.Pipeline.ShortTimeout == 0 {
		c.Pipeline.ShortTimeout = 15
	}
	if c.Pipeline.LongTimeout == 0 {
		c.Pipeline.LongTimeout = 30
	}
	if c.Pipeline.LongTimeoutAbove == 0 {
		c.Pipeline.LongTimeoutAbove = 2 << 20
	}
	if c.Pipeline.RetryBaseDelay == 0 {
		c.Pipeline.RetryBaseDelay = 300
	}
	if c.Pipeline.MaxSourcePixels == 0 {
		c.Pipeline.MaxSourcePixels = 50_000_000
	}
	if c.Pipeline.Backend == "" {
		c.Pipeline.Backend = BackendHTTP
	}

	if c.Store.Backend == "" {
		c.Store.Backend = StoreMemory
	}

	if c.Redis.HealthCheckInterval == 0 {
		c.Redis.HealthCheckInterval = 30
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
