package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mantis/reportd/internal/protocol"
)

// StdioTransport implements Transport using stdin/stdout.
// Uses NDJSON (newline-delimited JSON) format.
type StdioTransport struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
}

// NewStdioTransport creates a new StdioTransport.
func NewStdioTransport(reader io.Reader, writer io.Writer) *StdioTransport {
	return &StdioTransport{
		reader: bufio.NewReader(reader),
		writer: writer,
	}
}

// UTF-8 BOM bytes
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Read reads the next request from stdin. Blank lines are skipped. A final
// line without a trailing newline is still read.
func (t *StdioTransport) Read(ctx context.Context) (*protocol.RequestEnvelope, error) {
	var line []byte
	for {
		// Read a line (NDJSON format)
		l, err := t.reader.ReadBytes('\n')
		if err != nil && !(errors.Is(err, io.EOF) && len(bytes.TrimSpace(l)) > 0) {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read request: %w", err)
		}
		// Strip UTF-8 BOM if present (common when input comes from Windows)
		l = bytes.TrimPrefix(l, utf8BOM)
		if len(bytes.TrimSpace(l)) > 0 {
			line = l
			break
		}
	}

	// Parse JSON
	var req protocol.RequestEnvelope
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, &RequestError{Err: fmt.Errorf("failed to parse request: %w", err)}
	}

	// Validate required fields
	if req.ID == "" {
		return nil, &RequestError{Err: errors.New("request missing required 'id' field")}
	}
	if req.Method == "" {
		return nil, &RequestError{ID: req.ID, Err: errors.New("request missing required 'method' field")}
	}

	return &req, nil
}

// Write writes a response to stdout.
func (t *StdioTransport) Write(ctx context.Context, response *protocol.ResponseEnvelope) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	// Write JSON followed by newline (NDJSON format) in a single call
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// Close is a no-op for stdio transport.
func (t *StdioTransport) Close() error {
	return nil
}
