// Package config loads service configuration from an optional YAML file with
// COURSEMEDIA_* environment variables taking precedence over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"coursemedia/internal/pipeline"
)

// Config is the complete service configuration.
type Config struct {
	Addr            string        `yaml:"addr"`
	LogLevel        string        `yaml:"logLevel"`
	LogFormat       string        `yaml:"logFormat"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	Limits    Limits                             `yaml:"limits"`
	S3        S3                                 `yaml:"s3"`
	Transcode Transcode                          `yaml:"transcode"`
	Postgres  Postgres                           `yaml:"postgres"`
	Redis     Redis                              `yaml:"redis"`
	Auth      Auth                               `yaml:"auth"`
	Policies  map[string]pipeline.CategoryPolicy `yaml:"policies"`
}

// Limits holds the streaming size ceilings. Sizes accept human-readable
// values like "100MB" in the YAML file and environment.
type Limits struct {
	PerFileMax   int64 `yaml:"-"`
	AggregateMax int64 `yaml:"-"`

	PerFileMaxRaw   string `yaml:"perFileMax"`
	AggregateMaxRaw string `yaml:"aggregateMax"`
}

// S3 configures the object storage backend.
type S3 struct {
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	AccessKey     string `yaml:"accessKey"`
	SecretKey     string `yaml:"secretKey"`
	Endpoint      string `yaml:"endpoint"`
	PublicBaseURL string `yaml:"publicBaseUrl"`
	PartSizeMB    int64  `yaml:"partSizeMb"`
}

// Transcode configures the HLS transcoder.
type Transcode struct {
	Binary         string        `yaml:"binary"`
	SegmentSeconds int           `yaml:"segmentSeconds"`
	Timeout        time.Duration `yaml:"timeout"`
	WorkDir        string        `yaml:"workDir"`
}

// Postgres configures the optional upload registry database. An empty DSN
// selects the in-memory registry.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConnections  int32         `yaml:"maxConnections"`
	MinConnections  int32         `yaml:"minConnections"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime"`
}

// Redis configures the optional lifecycle event stream. An empty address
// disables publishing.
type Redis struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Stream   string `yaml:"stream"`
	DB       int    `yaml:"db"`
}

// Auth lists PBKDF2 digests of accepted bearer tokens. Empty disables
// authentication.
type Auth struct {
	TokenDigests []string `yaml:"tokenDigests"`
}

// Load reads the YAML file at path (skipped when empty or missing) and then
// applies environment overrides and defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		data, err := os.ReadFile(trimmed)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", trimmed, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", trimmed, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := resolveSizes(&cfg.Limits); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Addr, "COURSEMEDIA_ADDR")
	overrideString(&cfg.LogLevel, "COURSEMEDIA_LOG_LEVEL")
	overrideString(&cfg.LogFormat, "COURSEMEDIA_LOG_FORMAT")
	overrideDuration(&cfg.ShutdownTimeout, "COURSEMEDIA_SHUTDOWN_TIMEOUT")

	overrideString(&cfg.Limits.PerFileMaxRaw, "COURSEMEDIA_MAX_FILE_SIZE")
	overrideString(&cfg.Limits.AggregateMaxRaw, "COURSEMEDIA_MAX_REQUEST_SIZE")

	overrideString(&cfg.S3.Region, "COURSEMEDIA_S3_REGION")
	overrideString(&cfg.S3.Bucket, "COURSEMEDIA_S3_BUCKET")
	overrideString(&cfg.S3.AccessKey, "COURSEMEDIA_S3_ACCESS_KEY")
	overrideString(&cfg.S3.SecretKey, "COURSEMEDIA_S3_SECRET_KEY")
	overrideString(&cfg.S3.Endpoint, "COURSEMEDIA_S3_ENDPOINT")
	overrideString(&cfg.S3.PublicBaseURL, "COURSEMEDIA_S3_PUBLIC_BASE_URL")

	overrideString(&cfg.Transcode.Binary, "COURSEMEDIA_FFMPEG_BINARY")
	overrideInt(&cfg.Transcode.SegmentSeconds, "COURSEMEDIA_HLS_SEGMENT_SECONDS")
	overrideDuration(&cfg.Transcode.Timeout, "COURSEMEDIA_TRANSCODE_TIMEOUT")
	overrideString(&cfg.Transcode.WorkDir, "COURSEMEDIA_WORK_DIR")

	overrideString(&cfg.Postgres.DSN, "COURSEMEDIA_POSTGRES_DSN")

	overrideString(&cfg.Redis.Addr, "COURSEMEDIA_REDIS_ADDR")
	overrideString(&cfg.Redis.Username, "COURSEMEDIA_REDIS_USERNAME")
	overrideString(&cfg.Redis.Password, "COURSEMEDIA_REDIS_PASSWORD")
	overrideString(&cfg.Redis.Stream, "COURSEMEDIA_REDIS_STREAM")

	if v := strings.TrimSpace(os.Getenv("COURSEMEDIA_API_TOKEN_DIGESTS")); v != "" {
		digests := make([]string, 0, 4)
		for _, digest := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(digest); trimmed != "" {
				digests = append(digests, trimmed)
			}
		}
		cfg.Auth.TokenDigests = digests
	}
}

func resolveSizes(limits *Limits) error {
	perFile, err := parseSize(limits.PerFileMaxRaw, "perFileMax")
	if err != nil {
		return err
	}
	aggregate, err := parseSize(limits.AggregateMaxRaw, "aggregateMax")
	if err != nil {
		return err
	}
	limits.PerFileMax = perFile
	limits.AggregateMax = aggregate
	return nil
}

func parseSize(raw, name string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	size, err := units.RAMInBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, trimmed, err)
	}
	return size, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Limits.PerFileMax <= 0 {
		cfg.Limits.PerFileMax = pipeline.DefaultPerFileMax
	}
	if cfg.Limits.AggregateMax <= 0 {
		cfg.Limits.AggregateMax = pipeline.DefaultAggregateMax
	}
	if cfg.Transcode.SegmentSeconds <= 0 {
		cfg.Transcode.SegmentSeconds = 10
	}
	if len(cfg.Policies) == 0 {
		cfg.Policies = pipeline.DefaultPolicies()
	}
}

func overrideString(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func overrideInt(target *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if parsed, err := strconv.Atoi(v); err == nil {
		*target = parsed
	}
}

func overrideDuration(target *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if parsed, err := time.ParseDuration(v); err == nil {
		*target = parsed
	}
}
