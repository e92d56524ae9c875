package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"acss/pkg/tts"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀，如 ACSS_REGION、ACSS_SESSION_TURN_BUFFER
const EnvPrefix = "ACSS_"

type Config struct {
	// Endpoint 优先于 Region
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Region   string `yaml:"region" env:"REGION"`

	Key string `yaml:"key" env:"KEY"`
	// UseSubscriptionKey 以 Ocp-Apim-Subscription-Key 发送 Key，否则作为 Bearer token
	UseSubscriptionKey bool `yaml:"use_subscription_key" env:"USE_SUBSCRIPTION_KEY"`

	Voice  string `yaml:"voice" env:"VOICE"`
	Format string `yaml:"format" env:"FORMAT"`

	Session SessionConfig `yaml:"session" envPrefix:"SESSION_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
}

type SessionConfig struct {
	DialTimeout                time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	TurnBuffer                 int           `yaml:"turn_buffer" env:"TURN_BUFFER"`
	MaxConsecutiveDecodeErrors int           `yaml:"max_consecutive_decode_errors" env:"MAX_CONSECUTIVE_DECODE_ERRORS"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	// Format text 或 json
	Format string `yaml:"format" env:"FORMAT"`
}

func Default() Config {
	return Config{
		Region:             "eastus",
		UseSubscriptionKey: true,
		Voice:              "jenny",
		Session: SessionConfig{
			DialTimeout:                5 * time.Second,
			TurnBuffer:                 64,
			MaxConsecutiveDecodeErrors: 8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 依次应用默认值、YAML 文件（path 为空时跳过）和环境变量，然后校验
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Endpoint == "" && c.Region == "" {
		errs = append(errs, errors.New("one of endpoint or region must be set"))
	}
	if c.Format != "" {
		if _, err := tts.LookupFormat(c.Format); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Session.TurnBuffer <= 0 {
		errs = append(errs, errors.New("session.turn_buffer must be positive"))
	}
	if c.Session.MaxConsecutiveDecodeErrors <= 0 {
		errs = append(errs, errors.New("session.max_consecutive_decode_errors must be positive"))
	}
	if c.Session.DialTimeout < 0 {
		errs = append(errs, errors.New("session.dial_timeout must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// URL 连接地址
func (c Config) URL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return tts.EndpointForRegion(c.Region)
}

// AudioFormat 配置的格式；未配置时使用音色的默认格式
func (c Config) AudioFormat() (tts.AudioFormat, error) {
	if c.Format != "" {
		return tts.LookupFormat(c.Format)
	}
	if voice, ok := tts.GetVoice(c.Voice); ok {
		return voice.Format(), nil
	}
	return tts.DefaultFormat, nil
}

// NewLogger 按 Log 配置创建 logger
func (c Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// SessionOptions 转换为 tts.Connect 的选项
func (c Config) SessionOptions(logger *logrus.Logger) []tts.Option {
	opts := []tts.Option{
		tts.WithLogger(logger),
		tts.WithTurnBuffer(c.Session.TurnBuffer),
		tts.WithMaxConsecutiveDecodeErrors(c.Session.MaxConsecutiveDecodeErrors),
		tts.WithDialTimeout(c.Session.DialTimeout),
	}
	if c.UseSubscriptionKey {
		opts = append(opts, tts.WithSubscriptionKey())
	}
	return opts
}
