package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// isolate points every config source at an empty temporary tree.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, ".local", "share"))
	for _, name := range []string{
		"LESSONPIPE_CONFIG", "LESSONPIPE_CONFIG_CONTENT", "LESSONPIPE_CONFIG_DIR",
		"LESSONPIPE_GENERATION_URL", "LESSONPIPE_GENERATION_TOKEN", "LESSONPIPE_STORE",
		"LESSONPIPE_STORE_PATH", "LESSONPIPE_REDIS_ADDR", "LESSONPIPE_MAX_RETRIES",
		"LESSONPIPE_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
	return tmpDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := isolate(t)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.Equal(t, BackendMemory, cfg.Store.Fallback)
	assert.Equal(t, "bounded", cfg.Retry.Strategy)
	assert.Nil(t, cfg.Retry.Max)
	assert.Equal(t, 24*time.Hour, cfg.Session.MaxAge.Std())
	assert.Equal(t, 100, cfg.Session.HistoryLimit)
	assert.Equal(t, 60*time.Second, cfg.Generation.IdleTimeout.Std())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadProjectJSONC(t *testing.T) {
	tmpDir := isolate(t)
	t.Setenv("TEST_LESSON_TOKEN", `tok"en`)

	writeFile(t, filepath.Join(tmpDir, "lessonpipe.jsonc"), `{
		// generation service
		"generation": {
			"endpoint": "https://lessons.example.com/generate",
			"token": "{env:TEST_LESSON_TOKEN}",
			"idleTimeout": "15s",
			"requestsPerMinute": 30
		},
		"retry": { "max": 5, "strategy": "exponential", "initialInterval": 250 },
		"session": { "maxAge": "2h", "historyLimit": 20 }
	}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "https://lessons.example.com/generate", cfg.Generation.Endpoint)
	assert.Equal(t, `tok"en`, cfg.Generation.Token)
	assert.Equal(t, 15*time.Second, cfg.Generation.IdleTimeout.Std())
	assert.Equal(t, 30.0, cfg.Generation.RequestsPerMinute)
	require.NotNil(t, cfg.Retry.Max)
	assert.Equal(t, 5, *cfg.Retry.Max)
	assert.Equal(t, "exponential", cfg.Retry.Strategy)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialInterval.Std())
	assert.Equal(t, 2*time.Hour, cfg.Session.MaxAge.Std())
	assert.Equal(t, 20, cfg.Session.HistoryLimit)

	// Untouched fields keep their defaults.
	assert.Equal(t, 500, cfg.Session.EventLimit)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
}

func TestLoadProjectYAML(t *testing.T) {
	tmpDir := isolate(t)

	writeFile(t, filepath.Join(tmpDir, "lessonpipe.yaml"), `
store:
  backend: sqlite
  path: /var/lib/lessonpipe/sessions.db
server:
  port: 9000
  cors: false
log:
  level: debug
  pretty: true
`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/lessonpipe/sessions.db", cfg.Store.Path)
	assert.Equal(t, 9000, cfg.Server.Port)
	require.NotNil(t, cfg.Server.EnableCORS)
	assert.False(t, *cfg.Server.EnableCORS)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoadPriority(t *testing.T) {
	tmpDir := isolate(t)

	writeFile(t, filepath.Join(tmpDir, ".config", "lessonpipe", "lessonpipe.json"),
		`{"generation": {"endpoint": "https://global", "lessonType": "grammar"}}`)
	writeFile(t, filepath.Join(tmpDir, "lessonpipe.json"),
		`{"generation": {"endpoint": "https://project"}}`)

	override := filepath.Join(tmpDir, "custom", "override.json")
	writeFile(t, override, `{"generation": {"studentLevel": "C1"}}`)
	t.Setenv("LESSONPIPE_CONFIG", override)
	t.Setenv("LESSONPIPE_CONFIG_CONTENT", `{"generation": {"targetLanguage": "fr"}}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "https://project", cfg.Generation.Endpoint)
	assert.Equal(t, "grammar", cfg.Generation.LessonType)
	assert.Equal(t, "C1", cfg.Generation.StudentLevel)
	assert.Equal(t, "fr", cfg.Generation.TargetLanguage)

	t.Setenv("LESSONPIPE_GENERATION_URL", "https://env")
	cfg, err = Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "https://env", cfg.Generation.Endpoint)
}

func TestLoadEnvOverrides(t *testing.T) {
	tmpDir := isolate(t)
	t.Setenv("LESSONPIPE_STORE", "redis")
	t.Setenv("LESSONPIPE_REDIS_ADDR", "localhost:6379")
	t.Setenv("LESSONPIPE_MAX_RETRIES", "0")
	t.Setenv("LESSONPIPE_LOG_LEVEL", "warn")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	require.NotNil(t, cfg.Retry.Max)
	assert.Equal(t, 0, *cfg.Retry.Max)
	assert.Equal(t, "warn", cfg.Log.Level)

	t.Setenv("LESSONPIPE_MAX_RETRIES", "three")
	_, err = Load(tmpDir)
	assert.ErrorContains(t, err, "LESSONPIPE_MAX_RETRIES")
}

func TestLoadDotEnv(t *testing.T) {
	tmpDir := isolate(t)
	writeFile(t, filepath.Join(tmpDir, ".env"), "LESSONPIPE_GENERATION_TOKEN=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("LESSONPIPE_GENERATION_TOKEN") })
	os.Unsetenv("LESSONPIPE_GENERATION_TOKEN")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Generation.Token)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		errMsg  string
	}{
		{"broken json", "lessonpipe.json", `{"generation": `, "lessonpipe.json"},
		{"broken yaml", "lessonpipe.yaml", "store: [", "lessonpipe.yaml"},
		{"unknown backend", "lessonpipe.json", `{"store": {"backend": "cassandra"}}`, "unknown store backend"},
		{"redis without addr", "lessonpipe.json", `{"store": {"backend": "redis"}}`, "redisAddr"},
		{"unknown strategy", "lessonpipe.json", `{"retry": {"strategy": "fibonacci"}}`, "unknown retry strategy"},
		{"negative max", "lessonpipe.json", `{"retry": {"max": -1}}`, "must not be negative"},
		{"bad duration", "lessonpipe.json", `{"session": {"maxAge": "soon"}}`, "invalid duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := isolate(t)
			writeFile(t, filepath.Join(tmpDir, tt.file), tt.content)
			_, err := Load(tmpDir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := isolate(t)
	max := 4
	cfg := Defaults()
	cfg.Generation.Endpoint = "https://lessons.example.com"
	cfg.Retry.Max = &max

	path := filepath.Join(tmpDir, "lessonpipe.json")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestGetPaths(t *testing.T) {
	tmpDir := isolate(t)

	paths := GetPaths()
	assert.Equal(t, filepath.Join(tmpDir, ".config", "lessonpipe"), paths.Config)
	assert.Equal(t, filepath.Join(tmpDir, ".local", "share", "lessonpipe"), paths.Data)
	assert.Equal(t, filepath.Join(paths.Data, "storage"), paths.StoragePath())

	assert.Equal(t, paths.StoragePath(), StorePath(types.StoreConfig{Backend: BackendFile}))
	assert.Equal(t, paths.DatabasePath(), StorePath(types.StoreConfig{Backend: BackendSQLite}))
	assert.Equal(t, "/data/x.db", StorePath(types.StoreConfig{Backend: BackendSQLite, Path: "/data/x.db"}))

	t.Setenv("LESSONPIPE_CONFIG_DIR", filepath.Join(tmpDir, "elsewhere"))
	assert.Equal(t, filepath.Join(tmpDir, "elsewhere"), GetConfigDir())
}
