// Package config loads application settings from config.yaml, .env and
// the environment.
package config

import (
	"time"

	"github.com/johnayoung/math-consensus/internal/history"
	"github.com/johnayoung/math-consensus/internal/logger"
	"github.com/johnayoung/math-consensus/internal/ocr"
	"github.com/johnayoung/math-consensus/internal/provider"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig                `mapstructure:"app"`
	Server   ServerConfig             `mapstructure:"server"`
	Runner   RunnerConfig             `mapstructure:"runner"`
	Backends map[string]BackendConfig `mapstructure:"backends"`
	OCR      OCRConfig                `mapstructure:"ocr"`
	History  HistoryConfig            `mapstructure:"history"`
	Logging  LoggingConfig            `mapstructure:"logging"`

	// EnvFile is the .env file that was loaded, if any.
	EnvFile string `mapstructure:"-"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	UploadDir      string `mapstructure:"upload_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type RunnerConfig struct {
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	Workers     int     `mapstructure:"workers"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// BackendConfig holds the credentials and model of one roster backend.
type BackendConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type OCRConfig struct {
	MathpixAppID    string `mapstructure:"mathpix_app_id"`
	MathpixAppKey   string `mapstructure:"mathpix_app_key"`
	MathpixBaseURL  string `mapstructure:"mathpix_base_url"`
	TesseractBinary string `mapstructure:"tesseract_binary"`
	DisableFallback bool   `mapstructure:"disable_fallback"`
}

type HistoryConfig struct {
	Driver   string         `mapstructure:"driver"`
	Dir      string         `mapstructure:"dir"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// AvailableBackends returns the roster backends with a configured API key,
// in roster order.
func (c *Config) AvailableBackends() []string {
	var out []string
	for _, name := range provider.Roster {
		if b, ok := c.Backends[name]; ok && provider.KeyConfigured(b.APIKey) {
			out = append(out, name)
		}
	}
	return out
}

// ProviderSettings maps every configured backend to its client settings.
func (c *Config) ProviderSettings() map[string]provider.Settings {
	out := make(map[string]provider.Settings, len(c.Backends))
	for name, b := range c.Backends {
		out[name] = provider.Settings{
			APIKey:  b.APIKey,
			Model:   b.Model,
			BaseURL: b.BaseURL,
		}
	}
	return out
}

// HistoryOptions returns the store options for history.Open.
func (c *Config) HistoryOptions() history.Options {
	return history.Options{
		Driver: c.History.Driver,
		Dir:    c.History.Dir,
		Redis: history.RedisOptions{
			Addr:     c.History.Redis.Address,
			Password: c.History.Redis.Password,
			DB:       c.History.Redis.DB,
			Prefix:   c.History.Redis.Prefix,
		},
		DSN: c.History.Postgres.DSN,
	}
}

// OCREngines builds the configured engines: Mathpix first when its
// credentials are set, then Tesseract when the binary is installed.
func (c *Config) OCREngines(log logger.Logger) []ocr.Engine {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	var engines []ocr.Engine
	if provider.KeyConfigured(c.OCR.MathpixAppID) && provider.KeyConfigured(c.OCR.MathpixAppKey) {
		var opts []ocr.MathpixOption
		if c.OCR.MathpixBaseURL != "" {
			opts = append(opts, ocr.WithMathpixBaseURL(c.OCR.MathpixBaseURL))
		}
		m, err := ocr.NewMathpix(c.OCR.MathpixAppID, c.OCR.MathpixAppKey, opts...)
		if err != nil {
			log.WithError(err).Warn("mathpix disabled", nil)
		} else {
			engines = append(engines, m)
		}
	}
	if len(engines) > 0 && c.OCR.DisableFallback {
		return engines
	}
	if t := ocr.NewTesseract(c.OCR.TesseractBinary); t != nil {
		engines = append(engines, t)
	}
	return engines
}
