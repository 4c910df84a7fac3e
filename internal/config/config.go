// Package config loads the service settings of the employee portal.
//
// Database connection parameters are deliberately not part of this package:
// they are resolved from the raw environment by db.ResolveConfig.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds the service settings.
type Config struct {
	Addr              string
	Version           string
	Commit            string
	Env               string
	LogLevel          string
	LogFormat         string
	StaticDir         string
	Migrate           bool
	PoolCheckInterval time.Duration
	ShutdownTimeout   time.Duration
	PickRateLimit     int
	TrustProxy        bool
	S3                S3Config
}

// S3Config points the image handler at an object store instead of StaticDir.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Enabled reports whether any S3 setting was provided.
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" || c.AccessKey != "" || c.SecretKey != "" || c.Bucket != ""
}

// Load reads EP_* environment variables on top of the defaults. PORT, as
// set by hosting platforms, overrides EP_ADDR.
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("EP")
	v.AutomaticEnv()

	v.SetDefault("addr", ":5000")
	v.SetDefault("version", "dev")
	v.SetDefault("commit", "unknown")
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("static_dir", "public")
	v.SetDefault("migrate", true)
	v.SetDefault("pool_check_interval", 5*time.Second)
	v.SetDefault("shutdown_timeout", 5*time.Second)
	v.SetDefault("pick_rate_limit", 30)
	v.SetDefault("trust_proxy", false)
	_ = v.BindEnv("port", "PORT")

	cfg := &Config{
		Addr:              v.GetString("addr"),
		Version:           v.GetString("version"),
		Commit:            v.GetString("commit"),
		Env:               v.GetString("env"),
		LogLevel:          v.GetString("log_level"),
		LogFormat:         v.GetString("log_format"),
		StaticDir:         v.GetString("static_dir"),
		Migrate:           v.GetBool("migrate"),
		PoolCheckInterval: v.GetDuration("pool_check_interval"),
		ShutdownTimeout:   v.GetDuration("shutdown_timeout"),
		PickRateLimit:     v.GetInt("pick_rate_limit"),
		TrustProxy:        v.GetBool("trust_proxy"),
		S3: S3Config{
			Endpoint:  v.GetString("s3_endpoint"),
			AccessKey: v.GetString("s3_access_key"),
			SecretKey: v.GetString("s3_secret_key"),
			Bucket:    v.GetString("s3_bucket"),
		},
	}

	if port := v.GetString("port"); port != "" {
		cfg.Addr = ":" + port
	}
	return cfg
}
