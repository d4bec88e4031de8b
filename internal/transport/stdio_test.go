package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mantis/reportd/internal/protocol"
)

func TestStdioTransport_Read(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantID    string
		wantMet   string
		wantErr   bool
		wantErrID string
	}{
		{
			name:    "valid request",
			input:   `{"id":"req-001","method":"report.list"}` + "\n",
			wantID:  "req-001",
			wantMet: "report.list",
		},
		{
			name:    "request with params",
			input:   `{"id":"req-002","method":"report.parameters","params":{"report":"mssql-test"}}` + "\n",
			wantID:  "req-002",
			wantMet: "report.parameters",
		},
		{
			name:    "last line without newline",
			input:   `{"id":"req-003","method":"pool.stats"}`,
			wantID:  "req-003",
			wantMet: "pool.stats",
		},
		{
			name:    "blank lines skipped",
			input:   "\n  \n" + `{"id":"req-004","method":"report.list"}` + "\n",
			wantID:  "req-004",
			wantMet: "report.list",
		},
		{
			name:    "missing id",
			input:   `{"method":"report.list"}` + "\n",
			wantErr: true,
		},
		{
			name:      "missing method",
			input:     `{"id":"req-001"}` + "\n",
			wantErr:   true,
			wantErrID: "req-001",
		},
		{
			name:    "invalid json",
			input:   `{invalid json}` + "\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := strings.NewReader(tt.input)
			trans := NewStdioTransport(reader, io.Discard)

			req, err := trans.Read(context.Background())
			if tt.wantErr {
				var reqErr *RequestError
				if !errors.As(err, &reqErr) {
					t.Fatalf("Read() error = %v, want *RequestError", err)
				}
				if reqErr.ID != tt.wantErrID {
					t.Errorf("RequestError.ID = %q, want %q", reqErr.ID, tt.wantErrID)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read() error: %v", err)
			}
			if req.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", req.ID, tt.wantID)
			}
			if req.Method != tt.wantMet {
				t.Errorf("Method = %q, want %q", req.Method, tt.wantMet)
			}
		})
	}
}

func TestStdioTransport_Read_WithBOM(t *testing.T) {
	// Test that UTF-8 BOM is stripped from input (common Windows issue)
	bom := "\xEF\xBB\xBF"
	input := bom + `{"id":"req-001","method":"report.list"}` + "\n"

	reader := strings.NewReader(input)
	trans := NewStdioTransport(reader, io.Discard)

	req, err := trans.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if req.ID != "req-001" {
		t.Errorf("ID = %q, want %q", req.ID, "req-001")
	}
}

func TestStdioTransport_ReadMultiple(t *testing.T) {
	input := `{"id":"req-001","method":"report.list"}
{"id":"req-002","method":"report.run"}
{"id":"req-003","method":"report.suggest"}
`
	reader := strings.NewReader(input)
	trans := NewStdioTransport(reader, io.Discard)

	for _, want := range []string{"req-001", "req-002", "req-003"} {
		req, err := trans.Read(context.Background())
		if err != nil {
			t.Fatalf("Read %s error: %v", want, err)
		}
		if req.ID != want {
			t.Errorf("ID = %q, want %q", req.ID, want)
		}
	}

	// Read EOF
	_, err := trans.Read(context.Background())
	if err != io.EOF {
		t.Errorf("Read 4 should return io.EOF, got %v", err)
	}
}

func TestStdioTransport_Write(t *testing.T) {
	tests := []struct {
		name     string
		response *protocol.ResponseEnvelope
	}{
		{
			name: "success response",
			response: &protocol.ResponseEnvelope{
				ID:      "req-001",
				Success: true,
				Result:  json.RawMessage(`{"reports":[]}`),
			},
		},
		{
			name: "error response",
			response: &protocol.ResponseEnvelope{
				ID:      "req-002",
				Success: false,
				Error: &protocol.ErrorResponse{
					Code:    protocol.ErrCodeConnectionFailed,
					Message: "connection failed",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			trans := NewStdioTransport(strings.NewReader(""), &buf)

			err := trans.Write(context.Background(), tt.response)
			if err != nil {
				t.Fatalf("Write() error: %v", err)
			}

			// Verify output
			output := buf.String()
			if !strings.HasSuffix(output, "\n") {
				t.Error("Output should end with newline")
			}

			// Parse output
			var resp protocol.ResponseEnvelope
			if err := json.Unmarshal([]byte(strings.TrimSuffix(output, "\n")), &resp); err != nil {
				t.Fatalf("Output parse error: %v", err)
			}

			if resp.ID != tt.response.ID {
				t.Errorf("ID = %q, want %q", resp.ID, tt.response.ID)
			}
			if resp.Success != tt.response.Success {
				t.Errorf("Success = %v, want %v", resp.Success, tt.response.Success)
			}
		})
	}
}

func TestStdioTransport_WriteConcurrent(t *testing.T) {
	var buf bytes.Buffer
	trans := NewStdioTransport(strings.NewReader(""), &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := &protocol.ResponseEnvelope{ID: "req", Success: true, Result: json.RawMessage(`{"suggestions":["AB1001"]}`)}
			if err := trans.Write(context.Background(), resp); err != nil {
				t.Errorf("Write() error: %v", err)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 20 {
		t.Fatalf("len(lines) = %d, want 20", len(lines))
	}
	for _, line := range lines {
		var resp protocol.ResponseEnvelope
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Errorf("interleaved output %q: %v", line, err)
		}
	}
}

func TestStdioTransport_RoundTrip(t *testing.T) {
	// Simulate a full round-trip
	requestJSON := `{"id":"test-001","method":"report.suggest","params":{"report":"mssql-barcode-test","param":"BIDNR","input":"AB"}}` + "\n"
	var outputBuf bytes.Buffer

	trans := NewStdioTransport(strings.NewReader(requestJSON), &outputBuf)

	// Read request
	req, err := trans.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	// Verify request
	if req.ID != "test-001" {
		t.Errorf("req.ID = %q, want %q", req.ID, "test-001")
	}

	// Create and write response
	resp, _ := protocol.NewSuccessResponse(req.ID, protocol.SuggestResponse{
		Suggestions: []string{"AB1001", "AB1002"},
	})

	if err := trans.Write(context.Background(), resp); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	// Parse and verify response
	var parsedResp protocol.ResponseEnvelope
	if err := json.Unmarshal(bytes.TrimSuffix(outputBuf.Bytes(), []byte("\n")), &parsedResp); err != nil {
		t.Fatalf("Response parse error: %v", err)
	}

	if parsedResp.ID != "test-001" {
		t.Errorf("resp.ID = %q, want %q", parsedResp.ID, "test-001")
	}
	if !parsedResp.Success {
		t.Error("resp.Success should be true")
	}

	var suggestions protocol.SuggestResponse
	if err := parsedResp.UnmarshalResult(&suggestions); err != nil {
		t.Fatalf("UnmarshalResult error: %v", err)
	}
	if len(suggestions.Suggestions) != 2 {
		t.Errorf("Suggestions = %v", suggestions.Suggestions)
	}
}

func TestStdioTransport_Close(t *testing.T) {
	trans := NewStdioTransport(strings.NewReader(""), io.Discard)

	err := trans.Close()
	if err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

// echoHandler answers every request with its method name.
type echoHandler struct{}

func (echoHandler) Handle(ctx context.Context, req *protocol.RequestEnvelope) *protocol.ResponseEnvelope {
	resp, _ := protocol.NewSuccessResponse(req.ID, map[string]string{"method": req.Method})
	return resp
}

// barrierHandler answers only once every expected request is in flight.
type barrierHandler struct {
	wg sync.WaitGroup
}

func (h *barrierHandler) Handle(ctx context.Context, req *protocol.RequestEnvelope) *protocol.ResponseEnvelope {
	h.wg.Done()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return &protocol.ResponseEnvelope{ID: req.ID, Success: true, Result: json.RawMessage(`{}`)}
	case <-time.After(5 * time.Second):
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInternal, "requests were not handled concurrently", nil)
	}
}

// deadlineHandler waits for the request context to end.
type deadlineHandler struct{}

func (deadlineHandler) Handle(ctx context.Context, req *protocol.RequestEnvelope) *protocol.ResponseEnvelope {
	select {
	case <-ctx.Done():
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeTimeout, ctx.Err().Error(), nil)
	case <-time.After(5 * time.Second):
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInternal, "request timeout not applied", nil)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func readResponses(t *testing.T, output string) map[string]protocol.ResponseEnvelope {
	t.Helper()
	out := map[string]protocol.ResponseEnvelope{}
	for _, line := range strings.Split(strings.TrimSuffix(output, "\n"), "\n") {
		var resp protocol.ResponseEnvelope
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("Response parse error: %v (%q)", err, line)
		}
		out[resp.ID] = resp
	}
	return out
}

func TestServe(t *testing.T) {
	input := `{"id":"req-001","method":"report.list"}
{"id":"req-002","method":"pool.stats"}
`
	var outputBuf bytes.Buffer

	trans := NewStdioTransport(strings.NewReader(input), &outputBuf)

	err := Serve(context.Background(), trans, echoHandler{}, Options{})
	if err != nil {
		t.Errorf("Serve() = %v, want nil at end of input", err)
	}

	// Sequential handling keeps request order
	lines := strings.Split(strings.TrimSuffix(outputBuf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"req-001"`) || !strings.Contains(lines[1], `"req-002"`) {
		t.Errorf("lines = %v, want req-001 then req-002", lines)
	}
}

func TestServe_Concurrent(t *testing.T) {
	input := `{"id":"req-001","method":"report.run"}
{"id":"req-002","method":"report.run"}
{"id":"req-003","method":"report.run"}
`
	var outputBuf bytes.Buffer
	trans := NewStdioTransport(strings.NewReader(input), &outputBuf)

	handler := &barrierHandler{}
	handler.wg.Add(3)

	if err := Serve(context.Background(), trans, handler, Options{MaxConcurrency: 3}); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}

	responses := readResponses(t, outputBuf.String())
	ids := make([]string, 0, len(responses))
	for id, resp := range responses {
		ids = append(ids, id)
		if !resp.Success {
			t.Errorf("%s failed: %v", id, resp.Error)
		}
	}
	sort.Strings(ids)
	if strings.Join(ids, ",") != "req-001,req-002,req-003" {
		t.Errorf("ids = %v", ids)
	}
}

func TestServe_MalformedRequest(t *testing.T) {
	input := `{"id":"req-001","method":"report.list"}
{invalid json}
{"id":"req-002"}
{"id":"req-003","method":"report.list"}
`
	var outputBuf bytes.Buffer
	trans := NewStdioTransport(strings.NewReader(input), &outputBuf)

	if err := Serve(context.Background(), trans, echoHandler{}, Options{}); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}

	responses := readResponses(t, outputBuf.String())
	if len(responses) != 4 {
		t.Fatalf("len(responses) = %d, want 4", len(responses))
	}
	for _, id := range []string{"", "req-002"} {
		resp := responses[id]
		if resp.Success || resp.Error == nil || resp.Error.Code != protocol.ErrCodeInvalidRequest {
			t.Errorf("response %q = %+v, want INVALID_REQUEST", id, resp)
		}
	}
	if !responses["req-003"].Success {
		t.Error("request after malformed lines should still be served")
	}
}

func TestServe_RequestTimeout(t *testing.T) {
	input := `{"id":"req-001","method":"report.run"}` + "\n"
	var outputBuf bytes.Buffer
	trans := NewStdioTransport(strings.NewReader(input), &outputBuf)

	err := Serve(context.Background(), trans, deadlineHandler{}, Options{RequestTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Serve() error: %v", err)
	}

	resp := readResponses(t, outputBuf.String())["req-001"]
	if resp.Error == nil || resp.Error.Code != protocol.ErrCodeTimeout {
		t.Errorf("response = %+v, want TIMEOUT", resp)
	}
}

func TestServe_WriteError(t *testing.T) {
	input := `{"id":"req-001","method":"report.list"}` + "\n"
	trans := NewStdioTransport(strings.NewReader(input), failingWriter{})

	err := Serve(context.Background(), trans, echoHandler{}, Options{})
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("Serve() = %v, want write error", err)
	}
}

func TestServe_ContextCanceled(t *testing.T) {
	// Test that Serve returns when context is canceled before reading
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	input := `{"id":"req-001","method":"report.list"}
`
	trans := NewStdioTransport(strings.NewReader(input), io.Discard)

	err := Serve(ctx, trans, echoHandler{}, Options{})
	if err != context.Canceled {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestServe_ContextCanceledWhileReading(t *testing.T) {
	// stdin stays open and silent
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	trans := NewStdioTransport(pr, io.Discard)

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, trans, echoHandler{}, Options{}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel while blocked on read")
	}
}

func TestServe_WriteErrorWithOpenInput(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	go func() {
		_, _ = io.WriteString(pw, `{"id":"req-001","method":"report.list"}`+"\n")
	}()

	trans := NewStdioTransport(pr, failingWriter{})

	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), trans, echoHandler{}, Options{}) }()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "broken pipe") {
			t.Errorf("Serve() = %v, want write error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after a failed write while input stayed open")
	}
}
