package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Defaults returns the built-in configuration.
func Defaults() *types.Config {
	return &types.Config{
		Generation: types.GenerationConfig{
			IdleTimeout:    types.Duration(60 * time.Second),
			LessonType:     "discussion",
			StudentLevel:   "B1",
			TargetLanguage: "en",
		},
		Store: types.StoreConfig{
			Backend:     BackendFile,
			RedisPrefix: "lessonpipe",
			Fallback:    BackendMemory,
		},
		Retry: types.RetryConfig{
			Strategy:        "bounded",
			InitialInterval: types.Duration(time.Second),
			MaxInterval:     types.Duration(30 * time.Second),
		},
		Session: types.SessionConfig{
			MaxAge:          types.Duration(24 * time.Hour),
			HistoryLimit:    100,
			EventLimit:      500,
			CleanupInterval: types.Duration(time.Hour),
		},
		Server: types.ServerConfig{
			Port:     8420,
			Hostname: "127.0.0.1",
		},
		Log: types.LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config (~/.config/lessonpipe/)
// 3. Project config (lessonpipe.json, lessonpipe.jsonc, lessonpipe.yaml)
// 4. LESSONPIPE_CONFIG file
// 5. LESSONPIPE_CONFIG_CONTENT inline JSON
// 6. Environment variables, including a project .env file
func Load(directory string) (*types.Config, error) {
	config := Defaults()

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string) error {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		loaded[absPath] = true
		return nil
	}

	var candidates []string

	globalPath := GetConfigDir()
	for _, name := range fileNames {
		candidates = append(candidates, filepath.Join(globalPath, name))
	}
	if directory != "" {
		for _, name := range fileNames {
			candidates = append(candidates, filepath.Join(directory, name))
		}
	}
	if configPath := os.Getenv("LESSONPIPE_CONFIG"); configPath != "" {
		candidates = append(candidates, configPath)
	}

	for _, path := range candidates {
		if err := loadOnce(path); err != nil {
			return nil, err
		}
	}

	if content := os.Getenv("LESSONPIPE_CONFIG_CONTENT"); content != "" {
		var inline types.Config
		if err := json.Unmarshal(interpolate(jsonc.ToJSON([]byte(content))), &inline); err != nil {
			return nil, fmt.Errorf("LESSONPIPE_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, &inline)
	}

	// .env never overrides variables already set in the environment.
	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}
	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

var fileNames = []string{"lessonpipe.json", "lessonpipe.jsonc", "lessonpipe.yaml", "lessonpipe.yml"}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return err
		}
	default:
		data = jsonc.ToJSON(data)
	}

	var fileConfig types.Config
	if err := json.Unmarshal(interpolate(data), &fileConfig); err != nil {
		return err
	}
	mergeConfig(config, &fileConfig)
	return nil
}

// yamlToJSON re-encodes a YAML document so it decodes through the json tags.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate expands {env:VAR_NAME} placeholders.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		value, _ := json.Marshal(os.Getenv(string(name)))
		// Drop the quotes; the placeholder sits inside a JSON string.
		return value[1 : len(value)-1]
	})
}

// mergeConfig merges source config into target. Zero values in source
// leave target unchanged.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}

	g, sg := &target.Generation, source.Generation
	setString(&g.Endpoint, sg.Endpoint)
	setString(&g.Token, sg.Token)
	setDuration(&g.Timeout, sg.Timeout)
	setDuration(&g.IdleTimeout, sg.IdleTimeout)
	if sg.RequestsPerMinute != 0 {
		g.RequestsPerMinute = sg.RequestsPerMinute
	}
	setString(&g.LessonType, sg.LessonType)
	setString(&g.StudentLevel, sg.StudentLevel)
	setString(&g.TargetLanguage, sg.TargetLanguage)

	st, ss := &target.Store, source.Store
	setString(&st.Backend, ss.Backend)
	setString(&st.Path, ss.Path)
	setString(&st.RedisAddr, ss.RedisAddr)
	setString(&st.RedisPrefix, ss.RedisPrefix)
	setString(&st.Fallback, ss.Fallback)

	r, sr := &target.Retry, source.Retry
	if sr.Max != nil {
		max := *sr.Max
		r.Max = &max
	}
	setString(&r.Strategy, sr.Strategy)
	setDuration(&r.InitialInterval, sr.InitialInterval)
	setDuration(&r.MaxInterval, sr.MaxInterval)

	se, sse := &target.Session, source.Session
	setDuration(&se.MaxAge, sse.MaxAge)
	setInt(&se.HistoryLimit, sse.HistoryLimit)
	setInt(&se.EventLimit, sse.EventLimit)
	setDuration(&se.HistoryRetention, sse.HistoryRetention)
	setDuration(&se.CleanupInterval, sse.CleanupInterval)
	setDuration(&se.AnalyticsWindow, sse.AnalyticsWindow)

	sv, ssv := &target.Server, source.Server
	setInt(&sv.Port, ssv.Port)
	setString(&sv.Hostname, ssv.Hostname)
	if ssv.EnableCORS != nil {
		cors := *ssv.EnableCORS
		sv.EnableCORS = &cors
	}

	setString(&target.Log.Level, source.Log.Level)
	if source.Log.Pretty {
		target.Log.Pretty = true
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *types.Duration, v types.Duration) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) error {
	setString(&config.Generation.Endpoint, os.Getenv("LESSONPIPE_GENERATION_URL"))
	setString(&config.Generation.Token, os.Getenv("LESSONPIPE_GENERATION_TOKEN"))
	setString(&config.Store.Backend, os.Getenv("LESSONPIPE_STORE"))
	setString(&config.Store.Path, os.Getenv("LESSONPIPE_STORE_PATH"))
	setString(&config.Store.RedisAddr, os.Getenv("LESSONPIPE_REDIS_ADDR"))
	setString(&config.Log.Level, os.Getenv("LESSONPIPE_LOG_LEVEL"))

	if v := os.Getenv("LESSONPIPE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LESSONPIPE_MAX_RETRIES: %w", err)
		}
		config.Retry.Max = &n
	}
	return nil
}

// Validate rejects configurations the rest of the program cannot use.
func Validate(config *types.Config) error {
	switch config.Store.Backend {
	case BackendFile, BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", config.Store.Backend)
	}
	switch config.Store.Fallback {
	case "", "none", BackendFile, BackendMemory:
	default:
		return fmt.Errorf("unsupported store fallback %q", config.Store.Fallback)
	}
	if config.Store.Backend == BackendRedis && config.Store.RedisAddr == "" {
		return errors.New("store backend redis requires redisAddr")
	}
	switch config.Retry.Strategy {
	case "", "bounded", "exponential":
	default:
		return fmt.Errorf("unknown retry strategy %q", config.Retry.Strategy)
	}
	if config.Retry.Max != nil && *config.Retry.Max < 0 {
		return fmt.Errorf("retry max must not be negative, got %d", *config.Retry.Max)
	}
	if config.Generation.RequestsPerMinute < 0 {
		return errors.New("generation requestsPerMinute must not be negative")
	}
	return nil
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigDir returns the config directory to use.
// Prefers LESSONPIPE_CONFIG_DIR, then ~/.config/lessonpipe.
func GetConfigDir() string {
	if dir := os.Getenv("LESSONPIPE_CONFIG_DIR"); dir != "" {
		return dir
	}
	return GetPaths().Config
}
