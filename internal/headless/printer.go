package headless

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/event"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// Printer handles event output in various formats for headless mode.
type Printer struct {
	mu          sync.Mutex
	writer      io.Writer
	format      OutputFormat
	quiet       bool
	verbose     bool
	unsubscribe func()
	sessionID   string
	startTime   time.Time
	result      *Result
	lastStep    string
}

// NewPrinter creates a new event printer.
func NewPrinter(writer io.Writer, format OutputFormat, quiet, verbose bool) *Printer {
	return &Printer{
		writer:    writer,
		format:    format,
		quiet:     quiet,
		verbose:   verbose,
		startTime: time.Now(),
		result: &Result{
			Status:   "running",
			ExitCode: ExitSuccess,
		},
	}
}

// Subscribe starts listening to events on bus.
func (p *Printer) Subscribe(bus *event.Bus) {
	p.unsubscribe = bus.SubscribeAll(p.handleEvent)
}

// Unsubscribe stops listening to events.
func (p *Printer) Unsubscribe() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

// SetSessionID restricts output to one session.
func (p *Printer) SetSessionID(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = sessionID
	p.result.SessionID = sessionID
}

// SetSource records the source URL and its measured quality.
func (p *Printer) SetSource(url string, quality *types.ContentQuality) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.SourceURL = url
	p.result.Quality = quality
}

// GetResult returns the current result.
func (p *Printer) GetResult() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
	return p.result
}

// SetResult updates the result with final values.
func (p *Printer) SetResult(status string, exitCode ExitCode, lesson *types.Lesson, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result.Status = status
	p.result.ExitCode = exitCode
	if lesson != nil {
		p.result.Lesson = *lesson
	}
	if err != nil {
		p.result.Error = err.Error()
	}
	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
}

// PrintFinalResult prints the final JSON result (for json format) or the
// lesson document (for text format).
func (p *Printer) PrintFinalResult() {
	result := p.GetResult()

	switch p.format {
	case OutputJSON:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return
		}
		fmt.Fprintln(p.writer, string(data))
	case OutputText:
		if len(result.Lesson) == 0 {
			return
		}
		data, err := json.MarshalIndent(result.Lesson, "", "  ")
		if err != nil {
			return
		}
		fmt.Fprintln(p.writer, string(data))
	}
}

// handleEvent processes incoming events and outputs them according to format.
func (p *Printer) handleEvent(e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sessionID != "" && sessionOf(e) != p.sessionID {
		return
	}

	switch p.format {
	case OutputText:
		p.trackEvent(e)
		p.handleTextEvent(e)
	case OutputJSON:
		// JSON format only outputs final result, but we still track events
		p.trackEvent(e)
	case OutputJSONL:
		p.handleJSONLEvent(e)
	}
}

// handleTextEvent outputs events in human-readable text format.
func (p *Printer) handleTextEvent(e event.Event) {
	if p.quiet {
		return
	}

	switch e.Type {
	case event.SessionCreated:
		if data, ok := e.Data.(event.SessionData); ok && data.Info != nil {
			fmt.Fprintf(p.writer, "[session:%s] Extracting %s\n", truncateID(data.Info.ID), data.Info.SourceURL)
		}

	case event.GenerationProgress:
		if data, ok := e.Data.(event.GenerationProgressData); ok {
			// Repeated steps only show in verbose mode.
			if data.Step == p.lastStep && !p.verbose {
				return
			}
			p.lastStep = data.Step
			fmt.Fprintf(p.writer, "[%3.0f%%] %s\n", data.Progress, data.Step)
		}

	case event.SessionRetried:
		if data, ok := e.Data.(event.SessionData); ok && data.Info != nil {
			fmt.Fprintf(p.writer, "[retry] Attempt %d\n", data.Info.RetryCount+1)
			p.lastStep = ""
		}

	case event.SessionUpdated:
		if data, ok := e.Data.(event.SessionData); ok && data.Info != nil && p.verbose {
			fmt.Fprintf(p.writer, "[session:%s] %s\n", truncateID(data.Info.ID), data.Info.Status)
		}

	case event.SessionCompleted:
		duration := time.Since(p.startTime)
		fmt.Fprintf(p.writer, "[done] Lesson generated in %s\n", formatDuration(duration))

	case event.SessionFailed:
		if data, ok := e.Data.(event.SessionData); ok && data.Info != nil {
			fmt.Fprintf(p.writer, "[error] %s\n", data.Info.Error)
		}
	}
}

// handleJSONLEvent outputs events in JSONL format.
func (p *Printer) handleJSONLEvent(e event.Event) {
	p.trackEvent(e)

	// Filter events if not verbose
	if !p.verbose && !isImportantEvent(e.Type) {
		return
	}

	data, err := json.Marshal(NewEvent(string(e.Type), e.Data))
	if err != nil {
		return
	}
	fmt.Fprintln(p.writer, string(data))
}

// trackEvent tracks events for the final result.
func (p *Printer) trackEvent(e event.Event) {
	switch e.Type {
	case event.GenerationProgress:
		p.result.Steps++
	case event.SessionRetried, event.SessionFailed, event.SessionCompleted:
		if data, ok := e.Data.(event.SessionData); ok && data.Info != nil {
			p.result.RetryCount = data.Info.RetryCount
		}
	}
}

// sessionOf returns the session an in-process event belongs to.
func sessionOf(e event.Event) string {
	switch data := e.Data.(type) {
	case event.SessionData:
		if data.Info != nil {
			return data.Info.ID
		}
	case event.GenerationProgressData:
		return data.SessionID
	case event.SessionExpiredData:
		return data.SessionID
	case event.InteractionRecordedData:
		if data.Event != nil {
			return data.Event.SessionID
		}
	}
	return ""
}

// Helper functions

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func isImportantEvent(eventType event.EventType) bool {
	switch eventType {
	case event.SessionCreated,
		event.SessionCompleted,
		event.SessionFailed,
		event.SessionRetried,
		event.GenerationProgress:
		return true
	default:
		return false
	}
}
