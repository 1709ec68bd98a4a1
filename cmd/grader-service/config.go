package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"codearena/internal/attempt/service"
	"codearena/internal/auth"
	"codearena/internal/common/cache"
	commonmw "codearena/internal/common/http/middleware"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	"codearena/internal/execution/poller"
	"codearena/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// ExecutionConfig points at the Judge0-compatible execution service.
type ExecutionConfig struct {
	BaseURL  string        `yaml:"baseURL"`
	Timeout  time.Duration `yaml:"timeout"`
	Encoding string        `yaml:"encoding"` // base64 or raw
	AuthMode string        `yaml:"authMode"` // none, bearer, rapidapi
	Token    string        `yaml:"token"`
	APIKey   string        `yaml:"apiKey"`
	APIHost  string        `yaml:"apiHost"`
	Poll     poller.Config `yaml:"poll"`
}

// PlatformConfig points at the challenge and submission API.
type PlatformConfig struct {
	BaseURL       string        `yaml:"baseURL"`
	Timeout       time.Duration `yaml:"timeout"`
	ServiceToken  string        `yaml:"serviceToken"`
	CasesTTL      time.Duration `yaml:"casesTTL"`
	CasesEmptyTTL time.Duration `yaml:"casesEmptyTTL"`
}

// AuthConfig holds team token settings.
type AuthConfig struct {
	Mode      string `yaml:"mode"` // required, optional, public
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
}

// AttemptConfig holds attempt lifecycle settings.
type AttemptConfig struct {
	MaxCodeBytes    int                   `yaml:"maxCodeBytes"`
	RunTimeout      time.Duration         `yaml:"runTimeout"`
	WatchBuffer     int                   `yaml:"watchBuffer"`
	ObservationTTL  time.Duration         `yaml:"observationTTL"`
	EventTopic      string                `yaml:"eventTopic"`
	SourceBucket    string                `yaml:"sourceBucket"`
	SourceKeyPrefix string                `yaml:"sourceKeyPrefix"`
	Timeouts        service.TimeoutConfig `yaml:"timeouts"`
}

// AppConfig holds grader-service configuration.
// Redis, Kafka and MinIO are optional; leaving their address empty disables them.
type AppConfig struct {
	Server    ServerConfig             `yaml:"server"`
	Logger    logger.Config            `yaml:"logger"`
	CORS      commonmw.CORSConfig      `yaml:"cors"`
	RateLimit commonmw.RateLimitPolicy `yaml:"rateLimit"`
	Execution ExecutionConfig          `yaml:"execution"`
	Platform  PlatformConfig           `yaml:"platform"`
	Auth      AuthConfig               `yaml:"auth"`
	Attempt   AttemptConfig            `yaml:"attempt"`
	Redis     cache.RedisConfig        `yaml:"redis"`
	Kafka     mq.KafkaConfig           `yaml:"kafka"`
	MinIO     storage.MinIOConfig      `yaml:"minio"`
}

// loadEnv reads a dotenv file when present. Variables already set win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file failed: %w", err)
	}
	return nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	// Watch streams are long lived; the write deadline is managed per message.
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if len(cfg.CORS.AllowedMethods) == 0 {
		cfg.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.CORS.AllowedHeaders) == 0 {
		cfg.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Trace-Id", "X-Request-Id"}
	}

	if cfg.Execution.Timeout == 0 {
		cfg.Execution.Timeout = 10 * time.Second
	}
	if cfg.Platform.Timeout == 0 {
		cfg.Platform.Timeout = 10 * time.Second
	}
	if cfg.Platform.CasesTTL == 0 {
		cfg.Platform.CasesTTL = 5 * time.Minute
	}
	if cfg.Platform.CasesEmptyTTL == 0 {
		cfg.Platform.CasesEmptyTTL = 30 * time.Second
	}

	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = auth.ModeRequired
	}
	if cfg.Auth.JWTIssuer == "" {
		cfg.Auth.JWTIssuer = "codearena"
	}

	if cfg.Attempt.ObservationTTL == 0 {
		cfg.Attempt.ObservationTTL = 24 * time.Hour
	}
	if cfg.Attempt.EventTopic == "" {
		cfg.Attempt.EventTopic = "attempt.events"
	}
	if cfg.Attempt.SourceBucket == "" {
		cfg.Attempt.SourceBucket = cfg.MinIO.Bucket
	}
	if cfg.Attempt.SourceKeyPrefix == "" {
		cfg.Attempt.SourceKeyPrefix = "attempts"
	}
	if cfg.Attempt.Timeouts.Store == 0 {
		cfg.Attempt.Timeouts.Store = 1 * time.Second
	}
	if cfg.Attempt.Timeouts.Events == 0 {
		cfg.Attempt.Timeouts.Events = 3 * time.Second
	}
	if cfg.Attempt.Timeouts.Archive == 0 {
		cfg.Attempt.Timeouts.Archive = 5 * time.Second
	}

	if cfg.Redis.Addr != "" {
		cfg.Redis.ApplyDefaults()
	}
}

func validate(cfg *AppConfig) error {
	if strings.TrimSpace(cfg.Execution.BaseURL) == "" {
		return fmt.Errorf("execution baseURL is required")
	}
	if strings.TrimSpace(cfg.Platform.BaseURL) == "" {
		return fmt.Errorf("platform baseURL is required")
	}
	switch cfg.Auth.Mode {
	case auth.ModeRequired, auth.ModeOptional:
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth jwtSecret is required in %s mode", cfg.Auth.Mode)
		}
	case auth.ModePublic:
	default:
		return fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
	if cfg.MinIO.Endpoint != "" && cfg.Attempt.SourceBucket == "" {
		return fmt.Errorf("attempt sourceBucket is required when minio is configured")
	}
	return nil
}
