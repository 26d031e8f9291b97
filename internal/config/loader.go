package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/johnayoung/math-consensus/internal/provider"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envKeys binds the provider-style environment variable names to config keys.
var envKeys = map[string]string{
	"backends.chatgpt.api_key":  "OPENAI_API_KEY",
	"backends.claude.api_key":   "ANTHROPIC_API_KEY",
	"backends.deepseek.api_key": "DEEPSEEK_API_KEY",
	"backends.gemini.api_key":   "GOOGLE_API_KEY",
	"ocr.mathpix_app_id":        "MATHPIX_APP_ID",
	"ocr.mathpix_app_key":       "MATHPIX_APP_KEY",
	"history.postgres.dsn":      "DATABASE_URL",
	"history.redis.address":     "REDIS_ADDR",
}

var defaultModels = map[string]string{
	provider.ChatGPT:  "gpt-3.5-turbo",
	provider.Claude:   "claude-3-opus-20240229",
	provider.DeepSeek: "deepseek-chat",
	provider.Gemini:   "gemini-2.0-flash",
}

// Load reads configs/config.yaml (or ./config.yaml), merges
// config.<APP_ENVIRONMENT>.yaml when present and applies environment
// overrides such as HISTORY_DRIVER or OPENAI_API_KEY.
func Load() (*Config, error) {
	envFile := loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName("config." + env)
	_ = v.MergeInConfig() // optional

	return finish(v, envFile)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	envFile := loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v, envFile)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	for key, env := range envKeys {
		_ = v.BindEnv(key, strings.ToUpper(strings.NewReplacer(".", "_").Replace(key)), env)
	}
	return v
}

func finish(v *viper.Viper, envFile string) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.EnvFile = envFile

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "math-consensus")
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.max_upload_bytes", 16<<20)
	v.SetDefault("runner.timeout", 60000)
	v.SetDefault("runner.workers", len(provider.Roster))
	v.SetDefault("runner.temperature", 0.1)
	v.SetDefault("runner.max_tokens", 2000)
	v.SetDefault("history.driver", "file")
	v.SetDefault("history.dir", "history")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	for name, model := range defaultModels {
		v.SetDefault("backends."+name+".model", model)
	}
}

// loadEnvFile loads the first .env found in the working directory, its
// parents, or the module root. It returns the loaded path.
func loadEnvFile() string {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// applyDefaults fills values a config file may have zeroed out.
func applyDefaults(cfg *Config) {
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 16 << 20
	}
	if cfg.Runner.Timeout <= 0 {
		cfg.Runner.Timeout = 60000
	}
	if cfg.Runner.Workers <= 0 {
		cfg.Runner.Workers = len(provider.Roster)
	}
	if cfg.Runner.MaxTokens <= 0 {
		cfg.Runner.MaxTokens = 2000
	}
	if cfg.History.Driver == "" {
		cfg.History.Driver = "file"
	}
	if cfg.Backends == nil {
		cfg.Backends = make(map[string]BackendConfig)
	}
	for name, model := range defaultModels {
		b := cfg.Backends[name]
		if b.Model == "" {
			b.Model = model
			cfg.Backends[name] = b
		}
	}
	for name, b := range cfg.Backends {
		b.APIKey = strings.TrimSpace(b.APIKey)
		cfg.Backends[name] = b
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	for name := range cfg.Backends {
		if _, ok := defaultModels[name]; !ok {
			return fmt.Errorf("backends.%s: %w", name, provider.ErrUnknownBackend)
		}
	}

	switch cfg.History.Driver {
	case "file":
		if cfg.History.Dir == "" {
			return fmt.Errorf("history.dir is required for the file driver")
		}
	case "redis":
		if cfg.History.Redis.Address == "" {
			return fmt.Errorf("history.redis.address is required for the redis driver")
		}
	case "postgres":
		if cfg.History.Postgres.DSN == "" {
			return fmt.Errorf("history.postgres.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("history.driver %q is not one of file, redis, postgres", cfg.History.Driver)
	}

	if cfg.Runner.Temperature < 0 || cfg.Runner.Temperature > 2 {
		return fmt.Errorf("runner.temperature must be between 0 and 2")
	}
	return nil
}
