package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is built once at startup and passed into each component's
// constructor. Nothing reads viper after Load returns.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	S3         S3Config
	Media      MediaConfig
	Gemini     GeminiConfig
	Auth       AuthConfig
	Redis      RedisConfig
	Submission SubmissionConfig
}

type ServerConfig struct {
	Addr string
	// BaseURL is used to build absolute URLs for locally stored media.
	BaseURL string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// CustomDomain is the host durable URLs are built from. It must be
	// the bucket endpoint the SDK signs for, e.g.
	// <bucket>.s3.<region>.amazonaws.com. A CDN alias here would break
	// key extraction from presigned URLs.
	CustomDomain string
	// DefaultACL is the canned ACL applied on first upload attempt.
	// Buckets with ownership enforcement reject it; the gateway then
	// retries once without any ACL.
	DefaultACL string
}

type MediaConfig struct {
	// Root is the local directory used when the object store is unavailable.
	Root string
	// URLPrefix is the path under which Root is served, e.g. /media.
	URLPrefix string
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SubmissionConfig struct {
	// PresignTTL bounds how long the comparator can fetch an image.
	PresignTTL time.Duration
	RatePerMin int
	Burst      int
}

// Load reads configs/config.yaml plus environment overrides and freezes
// the values into a Config.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.base_url", "http://localhost:8080")
	viper.SetDefault("media.root", "./media")
	viper.SetDefault("media.url_prefix", "/media")
	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("gemini.timeout_seconds", 60)
	viper.SetDefault("auth.token_ttl_hours", 72)
	viper.SetDefault("submission.presign_ttl_minutes", 15)
	viper.SetDefault("submission.rate_per_minute", 10)
	viper.SetDefault("submission.burst", 3)
	viper.SetDefault("s3.default_acl", "public-read")
	viper.SetDefault("redis.db", 0)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("Could not find config.yaml, using environment variables only.")
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:    viper.GetString("server.addr"),
			BaseURL: strings.TrimRight(viper.GetString("server.base_url"), "/"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("database.host"),
			Port:     viper.GetString("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			Name:     viper.GetString("database.dbname"),
		},
		S3: S3Config{
			Bucket:          viper.GetString("s3.bucket"),
			Region:          viper.GetString("s3.region"),
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
			CustomDomain:    viper.GetString("s3.custom_domain"),
			DefaultACL:      viper.GetString("s3.default_acl"),
		},
		Media: MediaConfig{
			Root:      viper.GetString("media.root"),
			URLPrefix: strings.TrimRight(viper.GetString("media.url_prefix"), "/"),
		},
		Gemini: GeminiConfig{
			APIKey:  viper.GetString("gemini.api_key"),
			Model:   viper.GetString("gemini.model"),
			Timeout: time.Duration(viper.GetInt("gemini.timeout_seconds")) * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret: viper.GetString("auth.jwt_secret"),
			TokenTTL:  time.Duration(viper.GetInt("auth.token_ttl_hours")) * time.Hour,
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Submission: SubmissionConfig{
			PresignTTL: time.Duration(viper.GetInt("submission.presign_ttl_minutes")) * time.Minute,
			RatePerMin: viper.GetInt("submission.rate_per_minute"),
			Burst:      viper.GetInt("submission.burst"),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if cfg.Database.Host == "" || cfg.Database.Port == "" || cfg.Database.User == "" || cfg.Database.Name == "" {
		return nil, errors.New("database configuration is incomplete")
	}

	return cfg, nil
}

// S3Enabled reports whether the object store is configured at all.
// Without it every upload goes straight to local media storage.
func (c *Config) S3Enabled() bool {
	return c.S3.Bucket != ""
}
