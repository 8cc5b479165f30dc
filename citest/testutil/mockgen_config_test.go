package testutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMockGenConfig(t *testing.T) {
	configPath := filepath.Join("..", "config", "mockgen.yaml")
	config, err := LoadMockGenConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Settings.ChunkDelayMS != 5 {
		t.Errorf("Expected chunk delay of 5, got: %d", config.Settings.ChunkDelayMS)
	}
	if len(config.Scenarios) == 0 {
		t.Fatal("Expected scenarios to be loaded")
	}

	s, found := config.FindScenario("The tide rises twice a day.")
	if !found {
		t.Fatal("Expected to find the tides scenario")
	}
	if s.Name != "tides" {
		t.Errorf("Unexpected scenario: %s", s.Name)
	}
	if len(s.Records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(s.Records))
	}
	last := s.Records[2]
	if last.Type != "complete" || last.Lesson["title"] != "Tides" {
		t.Errorf("Unexpected terminal record: %+v", last)
	}
	if last.Progress == nil || *last.Progress != 100 {
		t.Errorf("Expected progress 100, got %v", last.Progress)
	}

	quota, found := config.FindScenario("Quota EXCEEDED for today")
	if !found || quota.Records[0].Error == nil {
		t.Fatal("Expected the quota scenario with an error record")
	}
	if quota.Records[0].Error.ErrorID != "quota-1" {
		t.Errorf("Expected error_id quota-1, got %q", quota.Records[0].Error.ErrorID)
	}
}

func TestDefaultMockGenConfig(t *testing.T) {
	config := DefaultMockGenConfig()

	tests := []struct {
		text     string
		expected string
		found    bool
	}{
		{"The tide rises twice a day.", "tides", true},
		{"quota exceeded", "quota", true},
		{"a flaky source", "flaky", true},
		{"servers are overloaded", "overloaded", true},
		{"a truncated stream", "truncated", true},
		{"nothing matches this", "", false},
	}

	for _, tt := range tests {
		s, found := config.FindScenario(tt.text)
		if found != tt.found {
			t.Errorf("FindScenario(%q) found=%v, want %v", tt.text, found, tt.found)
			continue
		}
		if found && s.Name != tt.expected {
			t.Errorf("FindScenario(%q) = %s, want %s", tt.text, s.Name, tt.expected)
		}
	}
}

func TestMatchConfig(t *testing.T) {
	tests := []struct {
		name  string
		match MatchConfig
		text  string
		want  bool
	}{
		{"contains", MatchConfig{Contains: "Tide"}, "low tide", true},
		{"contains miss", MatchConfig{Contains: "moon"}, "low tide", false},
		{"contains all", MatchConfig{ContainsAll: []string{"low", "tide"}}, "Low Tide", true},
		{"contains all miss", MatchConfig{ContainsAll: []string{"low", "moon"}}, "low tide", false},
		{"contains any", MatchConfig{ContainsAny: []string{"moon", "tide"}}, "low tide", true},
		{"exact", MatchConfig{Exact: "low tide"}, " LOW TIDE ", true},
		{"exact miss", MatchConfig{Exact: "low"}, "low tide", false},
		{"empty", MatchConfig{}, "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.match.Matches(tt.text); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestSaveMockGenConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mockgen.yaml")

	if err := SaveMockGenConfig(DefaultMockGenConfig(), path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected config file: %v", err)
	}

	loaded, err := LoadMockGenConfigFromDir(dir)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if len(loaded.Scenarios) != len(DefaultMockGenConfig().Scenarios) {
		t.Errorf("Expected %d scenarios, got %d", len(DefaultMockGenConfig().Scenarios), len(loaded.Scenarios))
	}
}

func postGenerate(t *testing.T, m *MockGenServer, text string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"sourceText":     text,
		"lessonType":     "discussion",
		"studentLevel":   "B1",
		"targetLanguage": "en",
		"sourceUrl":      "https://example.com",
	})
	resp, err := http.Post(m.Endpoint(), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func readRecords(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec); err != nil {
			t.Fatalf("Invalid record %q: %v", line, err)
		}
		records = append(records, rec)
	}
	return records
}

func TestMockGenServer_Stream(t *testing.T) {
	m := NewMockGenServer(nil)
	defer m.Close()

	resp := postGenerate(t, m, "The tide rises twice a day.")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %s", ct)
	}

	records := readRecords(t, resp)
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[2]["type"] != "complete" {
		t.Errorf("Expected complete record, got %v", records[2]["type"])
	}

	reqs := m.GetRequests()
	if len(reqs) != 1 || reqs[0].Scenario != "tides" || reqs[0].Body.StudentLevel != "B1" {
		t.Errorf("Unexpected recorded requests: %+v", reqs)
	}
}

func TestMockGenServer_FailFirst(t *testing.T) {
	m := NewMockGenServer(nil)
	defer m.Close()

	first := readRecords(t, postGenerate(t, m, "flaky source"))
	if len(first) != 1 || first[0]["type"] != "error" {
		t.Fatalf("Expected an error record first, got %v", first)
	}

	second := readRecords(t, postGenerate(t, m, "flaky source"))
	if len(second) != 1 || second[0]["type"] != "complete" {
		t.Fatalf("Expected a complete record second, got %v", second)
	}
	if m.Hits("flaky") != 2 {
		t.Errorf("Expected 2 hits, got %d", m.Hits("flaky"))
	}

	m.Reset()
	if m.Hits("flaky") != 0 || len(m.GetRequests()) != 0 {
		t.Error("Expected reset to clear hits and requests")
	}
}

func TestMockGenServer_Status(t *testing.T) {
	m := NewMockGenServer(nil)
	defer m.Close()

	resp := postGenerate(t, m, "overloaded")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", resp.StatusCode)
	}
}

func TestMockGenServer_Fallback(t *testing.T) {
	m := NewMockGenServer(nil)
	defer m.Close()

	records := readRecords(t, postGenerate(t, m, "nothing matches this"))
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	lesson, _ := records[1]["lesson"].(map[string]any)
	if lesson["title"] != "Untitled lesson" {
		t.Errorf("Unexpected fallback lesson: %v", records[1])
	}
}
