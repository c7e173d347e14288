package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	EventChannelBase       string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryUploadSecret string
	CloudinaryUploadFolder string
	MaxAttachmentBytes     int64
	AnalyticsCacheTTL      time.Duration
	EnrollRateLimitMax     int
	EnrollRateLimitWindow  time.Duration
	AutoPublishInterval    time.Duration
	CORSAllowOrigins       string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// UploadsEnabled reports whether Cloudinary credentials are configured.
func (c Config) UploadsEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryUploadSecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("app.name", "GEMA Course API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "gema:course")
	v.SetDefault("cloudinary.folder", "gema/submissions")
	v.SetDefault("uploads.max_bytes", 10<<20)
	v.SetDefault("analytics.cache_ttl", "5m")
	v.SetDefault("enroll.rate_limit_max", 10)
	v.SetDefault("enroll.rate_limit_window", "1m")
	v.SetDefault("publisher.interval", "1m")
	v.SetDefault("cors.allow_origins", "*")

	ttl, err := parseDuration(v, "analytics.cache_ttl", "5m")
	if err != nil {
		return Config{}, fmt.Errorf("invalid analytics cache ttl: %w", err)
	}

	window, err := parseDuration(v, "enroll.rate_limit_window", "1m")
	if err != nil {
		return Config{}, fmt.Errorf("invalid enroll rate limit window: %w", err)
	}

	interval, err := parseDuration(v, "publisher.interval", "1m")
	if err != nil {
		return Config{}, fmt.Errorf("invalid publisher interval: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventChannelBase:       v.GetString("events.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryUploadSecret: v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		MaxAttachmentBytes:     v.GetInt64("uploads.max_bytes"),
		AnalyticsCacheTTL:      ttl,
		EnrollRateLimitMax:     v.GetInt("enroll.rate_limit_max"),
		EnrollRateLimitWindow:  window,
		AutoPublishInterval:    interval,
		CORSAllowOrigins:       v.GetString("cors.allow_origins"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.EnrollRateLimitMax <= 0 {
		cfg.EnrollRateLimitMax = 10
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key, fallback string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		raw = fallback
	}
	return time.ParseDuration(raw)
}
