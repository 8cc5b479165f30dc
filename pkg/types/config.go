package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the lessonpipe configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	Generation GenerationConfig `json:"generation"`
	Store      StoreConfig      `json:"store"`
	Retry      RetryConfig      `json:"retry"`
	Session    SessionConfig    `json:"session"`
	Server     ServerConfig     `json:"server"`
	Log        LogConfig        `json:"log"`
}

// GenerationConfig configures the remote lesson generation service.
type GenerationConfig struct {
	Endpoint          string   `json:"endpoint,omitempty"`
	Token             string   `json:"token,omitempty"`
	Timeout           Duration `json:"timeout,omitempty"`     // whole run, 0 = none
	IdleTimeout       Duration `json:"idleTimeout,omitempty"` // max gap between chunks
	RequestsPerMinute float64  `json:"requestsPerMinute,omitempty"`

	// Defaults applied by the CLI when flags are omitted.
	LessonType     string `json:"lessonType,omitempty"`
	StudentLevel   string `json:"studentLevel,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Backend     string `json:"backend,omitempty"` // "file"|"sqlite"|"redis"|"memory"
	Path        string `json:"path,omitempty"`
	RedisAddr   string `json:"redisAddr,omitempty"`
	RedisPrefix string `json:"redisPrefix,omitempty"`
	Fallback    string `json:"fallback,omitempty"` // "memory"|"file"|"" (none)
}

// RetryConfig configures the retry policy.
type RetryConfig struct {
	Max             *int     `json:"max,omitempty"`
	Strategy        string   `json:"strategy,omitempty"` // "bounded"|"exponential"
	InitialInterval Duration `json:"initialInterval,omitempty"`
	MaxInterval     Duration `json:"maxInterval,omitempty"`
}

// SessionConfig configures session retention.
type SessionConfig struct {
	MaxAge           Duration `json:"maxAge,omitempty"`
	HistoryLimit     int      `json:"historyLimit,omitempty"`
	EventLimit       int      `json:"eventLimit,omitempty"`
	HistoryRetention Duration `json:"historyRetention,omitempty"`
	CleanupInterval  Duration `json:"cleanupInterval,omitempty"`
	AnalyticsWindow  Duration `json:"analyticsWindow,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port       int    `json:"port,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
	EnableCORS *bool  `json:"cors,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty"`
}

// Duration is a time.Duration that reads "30s" style strings or
// millisecond numbers from JSON.
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of milliseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(time.Duration(val) * time.Millisecond)
	case string:
		if val == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration: %s", string(data))
	}
	return nil
}
