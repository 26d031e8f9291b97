package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var backendEnv = []string{
	"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "DEEPSEEK_API_KEY", "GOOGLE_API_KEY",
	"MATHPIX_APP_ID", "MATHPIX_APP_KEY", "DATABASE_URL", "REDIS_ADDR",
	"HISTORY_DRIVER", "APP_ENVIRONMENT",
}

// isolate runs the test in an empty directory with no backend credentials
// in the environment.
func isolate(t *testing.T) string {
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range backendEnv {
		t.Setenv(key, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, "uploads", cfg.Server.UploadDir)
	assert.EqualValues(t, 16<<20, cfg.Server.MaxUploadBytes)
	assert.Equal(t, 60000, cfg.Runner.Timeout)
	assert.Equal(t, 4, cfg.Runner.Workers)
	assert.InDelta(t, 0.1, cfg.Runner.Temperature, 1e-9)
	assert.Equal(t, 2000, cfg.Runner.MaxTokens)
	assert.Equal(t, "file", cfg.History.Driver)
	assert.Equal(t, "history", cfg.History.Dir)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Backends["chatgpt"].Model)
	assert.Equal(t, "claude-3-opus-20240229", cfg.Backends["claude"].Model)
	assert.Equal(t, "deepseek-chat", cfg.Backends["deepseek"].Model)
	assert.Equal(t, "gemini-2.0-flash", cfg.Backends["gemini"].Model)
	assert.Empty(t, cfg.AvailableBackends())
	assert.Empty(t, cfg.EnvFile)
}

func TestLoad_BackendKeys(t *testing.T) {
	isolate(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", " sk-test ")
	t.Setenv("DEEPSEEK_API_KEY", "your_deepseek_api_key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"chatgpt", "gemini"}, cfg.AvailableBackends())

	settings := cfg.ProviderSettings()
	assert.Equal(t, "sk-test", settings["chatgpt"].APIKey)
	assert.Equal(t, "gpt-3.5-turbo", settings["chatgpt"].Model)
	assert.Equal(t, "your_deepseek_api_key", settings["deepseek"].APIKey)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := isolate(t)
	t.Setenv("ANTHROPIC_API_KEY", "restored-after-test")
	require.NoError(t, os.Unsetenv("ANTHROPIC_API_KEY"))
	writeFile(t, filepath.Join(dir, ".env"), "ANTHROPIC_API_KEY=from-dotenv\n")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ".env", cfg.EnvFile)
	assert.Equal(t, []string{"claude"}, cfg.AvailableBackends())
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := isolate(t)
	t.Setenv("TEST_REDIS_ADDR", "localhost:6390")
	writeFile(t, filepath.Join(dir, "configs", "config.yaml"), `
server:
  addr: ":8080"
runner:
  timeout: 5000
  workers: 2
history:
  driver: redis
  redis:
    address: ${TEST_REDIS_ADDR}
    prefix: "test:"
backends:
  claude:
    model: claude-3-haiku-20240307
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5000, cfg.Runner.Timeout)
	assert.Equal(t, 2, cfg.Runner.Workers)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.Backends["claude"].Model)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Backends["chatgpt"].Model)

	opts := cfg.HistoryOptions()
	assert.Equal(t, "redis", opts.Driver)
	assert.Equal(t, "localhost:6390", opts.Redis.Addr)
	assert.Equal(t, "test:", opts.Redis.Prefix)
}

func TestLoad_EnvironmentOverlay(t *testing.T) {
	dir := isolate(t)
	t.Setenv("APP_ENVIRONMENT", "test")
	writeFile(t, filepath.Join(dir, "configs", "config.yaml"), "server:\n  addr: \":7000\"\n")
	writeFile(t, filepath.Join(dir, "configs", "config.test.yaml"), "server:\n  addr: \":7001\"\n")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7001", cfg.Server.Addr)
}

func TestLoad_Validation(t *testing.T) {
	t.Run("postgres without dsn", func(t *testing.T) {
		isolate(t)
		t.Setenv("HISTORY_DRIVER", "postgres")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "history.postgres.dsn")
	})

	t.Run("postgres with DATABASE_URL", func(t *testing.T) {
		isolate(t)
		t.Setenv("HISTORY_DRIVER", "postgres")
		t.Setenv("DATABASE_URL", "postgres://localhost/history")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost/history", cfg.HistoryOptions().DSN)
	})

	t.Run("unknown driver", func(t *testing.T) {
		isolate(t)
		t.Setenv("HISTORY_DRIVER", "s3")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		dir := isolate(t)
		writeFile(t, filepath.Join(dir, "config.yaml"), "backends:\n  llama:\n    api_key: x\n")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadFromFile(t *testing.T) {
	dir := isolate(t)

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, "logging:\n  level: debug\n  format: json\n")
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestOCREngines(t *testing.T) {
	cfg := &Config{OCR: OCRConfig{TesseractBinary: "definitely-not-installed-ocr"}}
	assert.Empty(t, cfg.OCREngines(nil))

	cfg.OCR.MathpixAppID = "id"
	cfg.OCR.MathpixAppKey = "your_mathpix_key"
	assert.Empty(t, cfg.OCREngines(nil))

	cfg.OCR.MathpixAppKey = "key"
	cfg.OCR.DisableFallback = true
	engines := cfg.OCREngines(nil)
	require.Len(t, engines, 1)
	assert.Equal(t, "mathpix", engines[0].Name())
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, "1.5s", GetDuration(1500).String())
}
