package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Host     string
	HTTPPort int
	Debug    bool

	MaxWorkers  int
	MaxUploadMB int64
	DataDir     string
	DoclingBin  string

	JobTTL        time.Duration
	SweepInterval time.Duration

	SubmitRPS   float64
	SubmitBurst int
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONVERTD_CONFIG, and finally environment variables. Env vars win.
func Load() (*Config, error) {
	c := &Config{
		Host:          "0.0.0.0",
		HTTPPort:      8000,
		MaxWorkers:    4,
		MaxUploadMB:   50,
		DataDir:       "data",
		DoclingBin:    "docling",
		JobTTL:        time.Hour,
		SweepInterval: time.Minute,
		SubmitRPS:     100,
		SubmitBurst:   200,
	}

	if path := os.Getenv("CONVERTD_CONFIG"); path != "" {
		if err := c.applyFile(path); err != nil {
			return nil, err
		}
	}

	c.Host = getEnv("HOST", c.Host)
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.Debug = getEnvBool("DEBUG", c.Debug)
	c.MaxWorkers = getEnvInt("MAX_WORKERS", c.MaxWorkers)
	c.MaxUploadMB = int64(getEnvInt("MAX_UPLOAD_MB", int(c.MaxUploadMB)))
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.DoclingBin = getEnv("DOCLING_BIN", c.DoclingBin)
	c.JobTTL = getEnvDuration("JOB_TTL", c.JobTTL)
	c.SweepInterval = getEnvDuration("SWEEP_INTERVAL", c.SweepInterval)
	c.SubmitRPS = getEnvFloat("SUBMIT_RPS", c.SubmitRPS)
	c.SubmitBurst = getEnvInt("SUBMIT_BURST", c.SubmitBurst)

	if c.MaxWorkers < 1 {
		return nil, fmt.Errorf("MAX_WORKERS must be at least 1, got %d", c.MaxWorkers)
	}
	if c.MaxUploadMB < 1 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be at least 1, got %d", c.MaxUploadMB)
	}
	return c, nil
}

// fileConfig is the YAML shape; only set fields overlay the defaults.
type fileConfig struct {
	Host          *string        `yaml:"host"`
	HTTPPort      *int           `yaml:"http_port"`
	Debug         *bool          `yaml:"debug"`
	MaxWorkers    *int           `yaml:"max_workers"`
	MaxUploadMB   *int64         `yaml:"max_upload_mb"`
	DataDir       *string        `yaml:"data_dir"`
	DoclingBin    *string        `yaml:"docling_bin"`
	JobTTL        *time.Duration `yaml:"job_ttl"`
	SweepInterval *time.Duration `yaml:"sweep_interval"`
	SubmitRPS     *float64       `yaml:"submit_rps"`
	SubmitBurst   *int           `yaml:"submit_burst"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.Host != nil {
		c.Host = *fc.Host
	}
	if fc.HTTPPort != nil {
		c.HTTPPort = *fc.HTTPPort
	}
	if fc.Debug != nil {
		c.Debug = *fc.Debug
	}
	if fc.MaxWorkers != nil {
		c.MaxWorkers = *fc.MaxWorkers
	}
	if fc.MaxUploadMB != nil {
		c.MaxUploadMB = *fc.MaxUploadMB
	}
	if fc.DataDir != nil {
		c.DataDir = *fc.DataDir
	}
	if fc.DoclingBin != nil {
		c.DoclingBin = *fc.DoclingBin
	}
	if fc.JobTTL != nil {
		c.JobTTL = *fc.JobTTL
	}
	if fc.SweepInterval != nil {
		c.SweepInterval = *fc.SweepInterval
	}
	if fc.SubmitRPS != nil {
		c.SubmitRPS = *fc.SubmitRPS
	}
	if fc.SubmitBurst != nil {
		c.SubmitBurst = *fc.SubmitBurst
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
