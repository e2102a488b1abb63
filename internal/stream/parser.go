package stream

import (
	"bytes"
	"log/slog"
	"strings"
)

// framePrefix is the framing marker of the wire protocol. Every event line
// looks like `data: {...json...}`. The optional space after the colon and a
// trailing \r are both tolerated.
const framePrefix = "data:"

// Parser converts a raw byte stream into decoded events. It is push based:
// the transport feeds it chunks as they arrive and a single frame may span
// any number of chunks, so a partial line is buffered across Feed calls.
//
// A line that fails to decode is dropped and logged; it never terminates the
// stream or corrupts later frames, because the buffer resynchronizes at the
// next newline. Lines without the framing marker (blank keepalive lines,
// `event:` fields, comments) are skipped silently.
type Parser struct {
	buf bytes.Buffer
}

// NewParser returns a Parser ready to consume a fresh stream.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends a chunk to the internal buffer and returns every event whose
// frame completed with this chunk, in arrival order.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf.Write(chunk)

	var events []Event
	for {
		raw := p.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			return events
		}
		line := string(raw[:idx])
		p.buf.Next(idx + 1)

		if ev, ok := parseLine(line); ok {
			events = append(events, ev)
		}
	}
}

// Close flushes the buffer when the transport ends. A final frame without a
// terminating newline is still delivered.
func (p *Parser) Close() []Event {
	line := p.buf.String()
	p.buf.Reset()
	if ev, ok := parseLine(line); ok {
		return []Event{ev}
	}
	return nil
}

func parseLine(line string) (Event, bool) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return Event{}, false
	}
	if !strings.HasPrefix(line, framePrefix) {
		slog.Debug("Skipping unframed stream line", "line", line)
		return Event{}, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, framePrefix))
	if payload == "" {
		return Event{}, false
	}

	ev, err := decodeEvent([]byte(payload))
	if err != nil {
		slog.Warn("Dropping malformed stream frame", "error", err)
		return Event{}, false
	}
	return ev, true
}
