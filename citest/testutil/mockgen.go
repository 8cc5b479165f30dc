package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// MockGenServer is a streaming lesson generation endpoint that replays
// scenarios from a MockGenConfig.
type MockGenServer struct {
	server *httptest.Server
	config *MockGenConfig

	mu       sync.Mutex
	requests []MockRequest
	hits     map[string]int
}

// MockRequest records an incoming generation request.
type MockRequest struct {
	Timestamp time.Time
	Scenario  string
	Body      types.GenerationRequest
}

// NewMockGenServer starts a mock generation server. A nil config uses
// DefaultMockGenConfig.
func NewMockGenServer(config *MockGenConfig) *MockGenServer {
	if config == nil {
		config = DefaultMockGenConfig()
	}
	m := &MockGenServer{
		config: config,
		hits:   make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/generate", m.handleGenerate)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the mock server's base URL.
func (m *MockGenServer) URL() string {
	return m.server.URL
}

// Endpoint returns the generation endpoint URL.
func (m *MockGenServer) Endpoint() string {
	return m.server.URL + "/generate"
}

// Close shuts down the mock server.
func (m *MockGenServer) Close() {
	m.server.CloseClientConnections()
	m.server.Close()
}

// GetRequests returns all recorded requests.
func (m *MockGenServer) GetRequests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Hits returns how many requests the named scenario served.
func (m *MockGenServer) Hits(scenario string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[scenario]
}

// Reset clears recorded requests and scenario hit counts.
func (m *MockGenServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.hits = make(map[string]int)
}

func (m *MockGenServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	scenario, ok := m.config.FindScenario(req.SourceText)
	if !ok {
		scenario = m.config.fallbackScenario()
	}

	m.mu.Lock()
	m.hits[scenario.Name]++
	hit := m.hits[scenario.Name]
	m.requests = append(m.requests, MockRequest{
		Timestamp: time.Now(),
		Scenario:  scenario.Name,
		Body:      req,
	})
	m.mu.Unlock()

	if scenario.Status != 0 && scenario.Status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(scenario.Status)
		w.Write([]byte(scenario.Body))
		return
	}

	records := scenario.Records
	if hit <= scenario.FailFirst {
		records = scenario.FailRecords
	}
	m.writeStream(w, r, records, scenario.Hang)
}

func (m *MockGenServer) writeStream(w http.ResponseWriter, r *http.Request, records []Record, hang bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}
	flusher.Flush()

	if m.config.Settings.LagMS > 0 {
		time.Sleep(time.Duration(m.config.Settings.LagMS) * time.Millisecond)
	}

	for i, rec := range records {
		if i > 0 && m.config.Settings.ChunkDelayMS > 0 {
			time.Sleep(time.Duration(m.config.Settings.ChunkDelayMS) * time.Millisecond)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	if hang {
		<-r.Context().Done()
	}
}
