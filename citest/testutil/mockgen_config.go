package testutil

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MockGenConfig defines the YAML configuration schema for mock generation scenarios.
type MockGenConfig struct {
	Settings  MockSettings `yaml:"settings"`
	Defaults  MockDefaults `yaml:"defaults"`
	Scenarios []Scenario   `yaml:"scenarios"`
}

// MockSettings configures mock server behavior.
type MockSettings struct {
	LagMS        int `yaml:"lag_ms"`         // Delay before the first record
	ChunkDelayMS int `yaml:"chunk_delay_ms"` // Delay between records
}

// MockDefaults defines fallback behavior.
type MockDefaults struct {
	LessonTitle string `yaml:"lesson_title"` // Title of the lesson returned when nothing matches
}

// Scenario maps a source text to the records replayed for it.
type Scenario struct {
	Name     string      `yaml:"name"`
	Match    MatchConfig `yaml:"match"`
	Priority int         `yaml:"priority"` // Higher priority scenarios are checked first

	// Status other than 0 or 200 answers with Body instead of a stream.
	Status int    `yaml:"status"`
	Body   string `yaml:"body"`

	Records []Record `yaml:"records"`

	// The first FailFirst requests replay FailRecords instead of Records.
	FailFirst   int      `yaml:"fail_first"`
	FailRecords []Record `yaml:"fail_records"`

	// Hang keeps the stream open after the records until the client leaves.
	Hang bool `yaml:"hang"`
}

// Record is one streamed generation record.
type Record struct {
	Type     string         `yaml:"type" json:"type"`
	Step     string         `yaml:"step" json:"step,omitempty"`
	Progress *float64       `yaml:"progress" json:"progress,omitempty"`
	Phase    string         `yaml:"phase" json:"phase,omitempty"`
	Section  string         `yaml:"section" json:"section,omitempty"`
	Lesson   map[string]any `yaml:"lesson" json:"lesson,omitempty"`
	Error    *ErrorRecord   `yaml:"error" json:"error,omitempty"`
}

// ErrorRecord is the payload of an error record.
type ErrorRecord struct {
	Type            string   `yaml:"type" json:"type"`
	Message         string   `yaml:"message" json:"message"`
	ActionableSteps []string `yaml:"actionable_steps" json:"actionableSteps"`
	ErrorID         string   `yaml:"error_id" json:"errorId"`
}

// MatchConfig defines how to match a source text.
type MatchConfig struct {
	// Simple string matching (case-insensitive contains)
	Contains string `yaml:"contains"`

	// All strings must be present (case-insensitive)
	ContainsAll []string `yaml:"contains_all"`

	// Any string must be present (case-insensitive)
	ContainsAny []string `yaml:"contains_any"`

	// Exact match (case-insensitive)
	Exact string `yaml:"exact"`
}

func progress(p float64) *float64 { return &p }

// DefaultMockGenConfig returns the scenarios the e2e suite relies on.
func DefaultMockGenConfig() *MockGenConfig {
	return &MockGenConfig{
		Settings: MockSettings{ChunkDelayMS: 5},
		Defaults: MockDefaults{LessonTitle: "Untitled lesson"},
		Scenarios: []Scenario{
			{
				Name:     "tides",
				Match:    MatchConfig{Contains: "tide"},
				Priority: 10,
				Records: []Record{
					{Type: "progress", Step: "Analyzing content", Progress: progress(20), Phase: "analysis"},
					{Type: "progress", Step: "Writing vocabulary", Progress: progress(60), Section: "vocabulary"},
					{Type: "complete", Step: "Done", Progress: progress(100), Lesson: map[string]any{"title": "Tides"}},
				},
			},
			{
				Name:     "quota",
				Match:    MatchConfig{ContainsAll: []string{"quota", "exceeded"}},
				Priority: 10,
				Records: []Record{
					{Type: "error", Error: &ErrorRecord{
						Type:            "QuotaError",
						Message:         "quota reached",
						ActionableSteps: []string{"Wait for the quota to reset"},
						ErrorID:         "quota-1",
					}},
				},
			},
			{
				Name:      "flaky",
				Match:     MatchConfig{Contains: "flaky"},
				Priority:  10,
				FailFirst: 1,
				FailRecords: []Record{
					{Type: "error", Error: &ErrorRecord{Type: "NetworkError", Message: "upstream dropped"}},
				},
				Records: []Record{
					{Type: "complete", Step: "Done", Progress: progress(100), Lesson: map[string]any{"title": "Recovered"}},
				},
			},
			{
				Name:     "overloaded",
				Match:    MatchConfig{Contains: "overloaded"},
				Priority: 10,
				Status:   503,
				Body:     `{"error":{"type":"Overloaded","message":"try later"}}`,
			},
			{
				Name:     "truncated",
				Match:    MatchConfig{Contains: "truncated"},
				Priority: 5,
				Records: []Record{
					{Type: "progress", Step: "Analyzing content", Progress: progress(10)},
				},
			},
		},
	}
}

// LoadMockGenConfig loads configuration from a YAML file.
func LoadMockGenConfig(path string) (*MockGenConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config MockGenConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadMockGenConfigFromDir looks for mockgen.yaml in the given directory.
func LoadMockGenConfigFromDir(dir string) (*MockGenConfig, error) {
	path := filepath.Join(dir, "mockgen.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Join(dir, "mockgen.yml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, err
		}
	}
	return LoadMockGenConfig(path)
}

// SaveMockGenConfig saves configuration to a YAML file.
func SaveMockGenConfig(config *MockGenConfig, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Matches checks if the text matches this rule.
func (m *MatchConfig) Matches(text string) bool {
	lower := strings.ToLower(text)

	if m.Exact != "" {
		return strings.EqualFold(strings.TrimSpace(text), m.Exact)
	}

	if m.Contains != "" {
		return strings.Contains(lower, strings.ToLower(m.Contains))
	}

	if len(m.ContainsAll) > 0 {
		for _, s := range m.ContainsAll {
			if !strings.Contains(lower, strings.ToLower(s)) {
				return false
			}
		}
		return true
	}

	if len(m.ContainsAny) > 0 {
		for _, s := range m.ContainsAny {
			if strings.Contains(lower, strings.ToLower(s)) {
				return true
			}
		}
		return false
	}

	return false
}

// FindScenario returns the highest priority scenario matching text.
func (c *MockGenConfig) FindScenario(text string) (*Scenario, bool) {
	var best *Scenario
	bestPriority := -1

	for i := range c.Scenarios {
		s := &c.Scenarios[i]
		if s.Match.Matches(text) && s.Priority > bestPriority {
			best = s
			bestPriority = s.Priority
		}
	}
	return best, best != nil
}

// fallbackScenario is replayed when no scenario matches.
func (c *MockGenConfig) fallbackScenario() *Scenario {
	title := c.Defaults.LessonTitle
	if title == "" {
		title = "Untitled lesson"
	}
	return &Scenario{
		Name: "fallback",
		Records: []Record{
			{Type: "progress", Step: "Writing lesson", Progress: progress(50)},
			{Type: "complete", Step: "Done", Progress: progress(100), Lesson: map[string]any{"title": title}},
		},
	}
}
