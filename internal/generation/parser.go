package generation

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/logging"
)

// Parser reassembles "data: <json>\n\n" records from arbitrarily split
// chunks. A line holding only whitespace ends a record. It is not safe for
// concurrent use.
type Parser struct {
	buf   []byte
	lines []string
	log   zerolog.Logger

	// Dropped counts malformed records skipped so far.
	Dropped int
}

// NewParser creates a parser with an empty buffer.
func NewParser() *Parser {
	return &Parser{log: logging.Component("generation")}
}

// Feed appends chunk and returns the events of every record it completes,
// in order. A trailing partial line and the lines of an unfinished record
// stay buffered.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := p.buf[:i]
		p.buf = p.buf[i+1:]

		// CRLF and whitespace-only separator lines both end up here.
		if len(bytes.TrimSpace(line)) == 0 {
			if ev := p.endRecord(); ev != nil {
				events = append(events, ev)
			}
			continue
		}
		p.lines = append(p.lines, string(line))
	}

	// Release the backing array once it has been fully consumed.
	if len(p.buf) == 0 {
		p.buf = nil
	}
	return events
}

// Flush parses a final record left without a terminating blank line.
func (p *Parser) Flush() []Event {
	if len(bytes.TrimSpace(p.buf)) > 0 {
		p.lines = append(p.lines, string(p.buf))
	}
	p.buf = nil
	if ev := p.endRecord(); ev != nil {
		return []Event{ev}
	}
	return nil
}

// Buffered returns the number of bytes held for an incomplete record.
func (p *Parser) Buffered() int {
	n := len(p.buf)
	for _, l := range p.lines {
		n += len(l) + 1
	}
	return n
}

func (p *Parser) endRecord() Event {
	if len(p.lines) == 0 {
		return nil
	}
	ev := p.parseRecord(p.lines)
	p.lines = nil
	return ev
}

func (p *Parser) parseRecord(lines []string) Event {
	var data []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case line == "", strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, "event:"), strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
		default:
			p.log.Debug().Str("line", truncate(line, 80)).Msg("ignoring unknown stream field")
		}
	}
	if len(data) == 0 {
		return nil
	}

	payload := strings.Join(data, "\n")
	ev, err := decodeEvent([]byte(payload))
	if err != nil {
		p.Dropped++
		p.log.Warn().Err(err).Str("payload", truncate(payload, 200)).Msg("dropping malformed stream record")
		return nil
	}
	return ev
}

// Decode runs a parser over r and calls fn for each event in order. It
// stops at the first error from fn or r; io.EOF is not an error.
func Decode(r io.Reader, fn func(Event) error) error {
	p := NewParser()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range p.Feed(buf[:n]) {
				if ferr := fn(ev); ferr != nil {
					return ferr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	for _, ev := range p.Flush() {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
