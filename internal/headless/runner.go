package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/content"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/event"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/generation"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/retry"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/session"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// Runner extracts one source and generates a lesson from it without a server.
type Runner struct {
	config  *Config
	printer *Printer

	manager *session.Manager
	orch    *generation.Orchestrator
	retrier *generation.Runner
	bus     *event.Bus
	fetcher *content.Fetcher
	stdin   io.Reader
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStdin replaces os.Stdin as the source for ReadStdin.
func WithStdin(r io.Reader) RunnerOption {
	return func(rn *Runner) { rn.stdin = r }
}

// WithFetcher replaces the default page fetcher.
func WithFetcher(f *content.Fetcher) RunnerOption {
	return func(rn *Runner) { rn.fetcher = f }
}

// NewRunner creates a new headless runner. bus must be the bus the manager
// and orchestrator publish to.
func NewRunner(cfg *Config, manager *session.Manager, orch *generation.Orchestrator, bus *event.Bus, opts ...RunnerOption) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if bus == nil {
		bus = event.Default()
	}
	r := &Runner{
		config:  cfg,
		manager: manager,
		orch:    orch,
		retrier: generation.NewRunner(orch, manager),
		bus:     bus,
		fetcher: content.NewFetcher(0),
		stdin:   os.Stdin,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the headless generation and returns the result.
func (r *Runner) Run(ctx context.Context, writer io.Writer) (*Result, error) {
	r.printer = NewPrinter(writer, r.config.OutputFormat, r.config.Quiet, r.config.Verbose)
	r.printer.Subscribe(r.bus)
	defer r.printer.Unsubscribe()

	req, err := r.buildRequest(ctx)
	if err != nil {
		r.printer.SetResult("error", ExitInvalidInput, nil, err)
		return r.printer.GetResult(), err
	}
	quality := content.Analyze(req.SourceText)
	r.printer.SetSource(req.SourceURL, &quality)

	sessionID, err := r.getOrCreateSession(ctx, req.SourceURL)
	if err != nil {
		status, code := classify(err)
		if errors.Is(err, session.ErrNotFound) {
			code = ExitSessionNotFound
		}
		r.printer.SetResult(status, code, nil, err)
		return r.printer.GetResult(), err
	}
	r.printer.SetSessionID(sessionID)

	runCtx := ctx
	var cancel context.CancelFunc
	if r.config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	var lesson *types.Lesson
	if r.config.Retry {
		lesson, err = r.retrier.RunWithRetry(runCtx, sessionID, req)
	} else {
		lesson, err = r.orch.Run(runCtx, sessionID, req)
	}

	if err != nil {
		status, code := classify(err)
		r.printer.SetResult(status, code, nil, err)
		r.printer.PrintFinalResult()
		return r.printer.GetResult(), err
	}

	r.printer.SetResult("success", ExitSuccess, lesson, nil)
	r.printer.PrintFinalResult()

	return r.printer.GetResult(), nil
}

// classify maps a generation error to a result status and exit code.
func classify(err error) (string, ExitCode) {
	switch {
	// Exhaustion wraps the last attempt's error, which may be a timeout.
	case errors.Is(err, retry.ErrRetryExhausted):
		return "error", ExitUpstreamError
	case errors.Is(err, generation.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout", ExitTimeout
	case errors.Is(err, generation.ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled", ExitCancelled
	case errors.Is(err, generation.ErrUpstream),
		errors.Is(err, generation.ErrNoTerminalEvent),
		errors.Is(err, generation.ErrTransport):
		return "error", ExitUpstreamError
	case errors.Is(err, session.ErrInvalidInput):
		return "error", ExitInvalidInput
	default:
		return "error", ExitError
	}
}

// buildRequest gathers the source content into a generation request.
func (r *Runner) buildRequest(ctx context.Context) (*types.GenerationRequest, error) {
	cfg := r.config

	if cfg.Fetch {
		if cfg.SourceURL == "" {
			return nil, errors.New("a source URL is required with --fetch")
		}
		doc, err := r.fetcher.Fetch(ctx, cfg.SourceURL)
		if err != nil {
			return nil, err
		}
		return r.finish(doc.Request(cfg.LessonType, cfg.StudentLevel, cfg.TargetLanguage))
	}

	var text string
	switch {
	case cfg.InputFile != "":
		data, err := os.ReadFile(cfg.InputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", cfg.InputFile, err)
		}
		if ext := strings.ToLower(filepath.Ext(cfg.InputFile)); ext == ".html" || ext == ".htm" {
			doc, err := content.FromHTML(cfg.SourceURL, string(data))
			if err != nil {
				return nil, err
			}
			return r.finish(doc.Request(cfg.LessonType, cfg.StudentLevel, cfg.TargetLanguage))
		}
		text = string(data)
	case cfg.ReadStdin:
		data, err := io.ReadAll(r.stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}

	text = content.Sanitize(text)
	if text == "" {
		return nil, errors.New("source text is required")
	}

	quality := content.Analyze(text)
	return r.finish(&types.GenerationRequest{
		SourceText:     text,
		LessonType:     cfg.LessonType,
		StudentLevel:   cfg.StudentLevel,
		TargetLanguage: cfg.TargetLanguage,
		SourceURL:      cfg.SourceURL,
		WordCount:      &quality.WordCount,
		ReadingTime:    &quality.ReadingTime,
	})
}

func (r *Runner) finish(req *types.GenerationRequest) (*types.GenerationRequest, error) {
	if req.SourceURL == "" {
		req.SourceURL = r.config.SourceURL
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// getOrCreateSession continues an existing session or creates a new one.
// A failed session is retried first so the policy's cap still applies.
func (r *Runner) getOrCreateSession(ctx context.Context, sourceURL string) (string, error) {
	if r.config.SessionID == "" {
		s, err := r.manager.CreateSession(ctx, sourceURL, r.config.Mode)
		if err != nil {
			return "", err
		}
		return s.ID, nil
	}

	s, err := r.manager.GetSession(ctx, r.config.SessionID)
	if err != nil {
		return "", err
	}
	if s.Status != types.StatusFailed {
		return s.ID, nil
	}

	ok, err := r.manager.RetryExtraction(ctx, s.ID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: session %s failed %d times", retry.ErrRetryExhausted, s.ID, s.RetryCount+1)
	}
	return s.ID, nil
}
