package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/app"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/config"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/server"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// TestServer wraps a running lessonpipe server for testing.
type TestServer struct {
	Server  *server.Server
	App     *app.App
	MockGen *MockGenServer
	BaseURL string
	Config  *types.Config
	TempDir string
	port    int
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	envFile    string
	backend    string
	mockConfig *MockGenConfig
	endpoint   string
	maxRetries *int
}

// WithEnvFile sets the .env file to load
func WithEnvFile(path string) TestServerOption {
	return func(c *testServerConfig) {
		c.envFile = path
	}
}

// WithStoreBackend selects the store backend. The default is memory.
func WithStoreBackend(backend string) TestServerOption {
	return func(c *testServerConfig) {
		c.backend = backend
	}
}

// WithMockGenConfig replaces the mock generation scenarios.
func WithMockGenConfig(cfg *MockGenConfig) TestServerOption {
	return func(c *testServerConfig) {
		c.mockConfig = cfg
	}
}

// WithMaxRetries sets the retry cap.
func WithMaxRetries(n int) TestServerOption {
	return func(c *testServerConfig) {
		c.maxRetries = &n
	}
}

// StartTestServer creates and starts a test server backed by a mock
// generation endpoint. LESSONPIPE_TEST_ENDPOINT points it at a real one.
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{backend: config.BackendMemory}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.envFile != "" {
		_ = godotenv.Load(cfg.envFile)
	} else {
		_ = godotenv.Load("../../.env")
		_ = godotenv.Load("../.env")
		_ = godotenv.Load(".env")
	}
	cfg.endpoint = os.Getenv("LESSONPIPE_TEST_ENDPOINT")

	tempDir, err := os.MkdirTemp("", "lessonpipe-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	port, err := findAvailablePort()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	var mock *MockGenServer
	if cfg.endpoint == "" {
		mock = NewMockGenServer(cfg.mockConfig)
		cfg.endpoint = mock.Endpoint()
	}

	appConfig := buildTestConfig(cfg, tempDir, port)

	ctx := context.Background()
	a, err := app.New(ctx, appConfig)
	if err != nil {
		if mock != nil {
			mock.Close()
		}
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	srv := a.Server()
	go func() {
		_ = srv.Start()
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		srv.Shutdown(ctx)
		a.Close()
		if mock != nil {
			mock.Close()
		}
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return &TestServer{
		Server:  srv,
		App:     a,
		MockGen: mock,
		BaseURL: baseURL,
		Config:  appConfig,
		TempDir: tempDir,
		port:    port,
	}, nil
}

// Stop shuts down the test server and cleans up
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if ts.Server != nil {
		err = ts.Server.Shutdown(ctx)
	}
	if ts.App != nil {
		ts.App.Close()
	}
	if ts.MockGen != nil {
		ts.MockGen.Close()
	}
	if ts.TempDir != "" {
		os.RemoveAll(ts.TempDir)
	}
	return err
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// buildTestConfig creates a configuration that keeps all state under tempDir.
func buildTestConfig(c *testServerConfig, tempDir string, port int) *types.Config {
	cfg := config.Defaults()
	cfg.Server.Port = port
	cfg.Server.Hostname = "127.0.0.1"
	cfg.Store.Backend = c.backend
	cfg.Store.Path = tempDir
	if c.backend == config.BackendSQLite {
		cfg.Store.Path = filepath.Join(tempDir, "sessions.db")
	}
	cfg.Store.Fallback = "none"
	cfg.Retry.Strategy = "bounded"
	if c.maxRetries != nil {
		cfg.Retry.Max = c.maxRetries
	}
	cfg.Session.CleanupInterval = 0
	cfg.Generation.Endpoint = c.endpoint
	cfg.Generation.Token = os.Getenv("LESSONPIPE_TEST_TOKEN")
	cfg.Generation.Timeout = types.Duration(30 * time.Second)
	return cfg
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/health")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
