package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// Paths contains the standard paths for lessonpipe data.
type Paths struct {
	Data   string // ~/.local/share/lessonpipe
	Config string // ~/.config/lessonpipe
	Cache  string // ~/.cache/lessonpipe
	State  string // ~/.local/state/lessonpipe
}

// GetPaths returns the standard paths for lessonpipe data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "lessonpipe"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "lessonpipe"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "lessonpipe"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "lessonpipe"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath returns the path to the storage directory.
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

// DatabasePath returns the path of the SQLite session database.
func (p *Paths) DatabasePath() string {
	return filepath.Join(p.Data, "lessonpipe.db")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "lessonpipe.json")
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, "lessonpipe.json")
}

// StorePath returns the configured store location, or the default for the
// backend when none is set.
func StorePath(store types.StoreConfig) string {
	if store.Path != "" {
		return store.Path
	}
	if store.Backend == BackendSQLite {
		return GetPaths().DatabasePath()
	}
	return GetPaths().StoragePath()
}
