// Package transport provides the communication channel of reportd and the
// request loop that drives the handler.
//
// Transports handle reading requests and writing responses. Currently
// supports Stdio: NDJSON over stdin/stdout.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mantis/reportd/internal/protocol"
)

// Transport defines the interface for communication channels.
type Transport interface {
	// Read reads the next request from the transport.
	// Returns io.EOF when there are no more requests and a *RequestError
	// for a line that is not a valid request.
	Read(ctx context.Context) (*protocol.RequestEnvelope, error)

	// Write writes a response to the transport. It must be safe for
	// concurrent use.
	Write(ctx context.Context, response *protocol.ResponseEnvelope) error

	// Close closes the transport and releases resources.
	Close() error
}

// Handler processes requests and returns responses.
type Handler interface {
	// Handle processes a request and returns a response.
	Handle(ctx context.Context, request *protocol.RequestEnvelope) *protocol.ResponseEnvelope
}

// RequestError reports a malformed request. ID is set when the request
// could be parsed far enough to read it.
type RequestError struct {
	ID  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Options tune Serve.
type Options struct {
	// MaxConcurrency is the number of requests handled in parallel. Zero or
	// one handles requests one at a time, in order.
	MaxConcurrency int

	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration

	// Logger receives per-request logs. Nil discards them.
	Logger *slog.Logger
}

// Serve runs the request/response loop using the given transport and handler.
// Requests are handled concurrently up to opts.MaxConcurrency; responses are
// written as they complete and correlate to requests by ID. Malformed
// requests are answered with INVALID_REQUEST and do not stop the loop.
//
// Serve returns nil once the transport is exhausted and every in-flight
// request has been answered, the context error when ctx is canceled, or the
// first read or write error.
func Serve(ctx context.Context, t Transport, h Handler, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limit := opts.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	readErr := func() error {
		for {
			req, err := readRequest(gctx, t)
			if err != nil {
				var reqErr *RequestError
				if !errors.As(err, &reqErr) {
					return err
				}
				logger.Warn("rejecting malformed request", "id", reqErr.ID, "error", reqErr.Err)
				resp := protocol.NewErrorResponse(reqErr.ID, protocol.ErrCodeInvalidRequest, reqErr.Error(), nil)
				if err := t.Write(gctx, resp); err != nil {
					return err
				}
				continue
			}

			g.Go(func() error {
				return serveOne(gctx, t, h, req, opts.RequestTimeout, logger)
			})
		}
	}()

	if err := g.Wait(); err != nil {
		return err
	}
	if errors.Is(readErr, io.EOF) {
		return nil
	}
	return readErr
}

type readResult struct {
	req *protocol.RequestEnvelope
	err error
}

// readRequest reads the next request but returns as soon as ctx is done.
// A blocked Read is left behind and ends with the next line or with the
// transport's EOF; at most one such read is outstanding.
func readRequest(ctx context.Context, t Transport) (*protocol.RequestEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan readResult, 1)
	go func() {
		req, err := t.Read(ctx)
		ch <- readResult{req: req, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.req, r.err
	}
}

// serveOne handles one request and writes its response.
func serveOne(ctx context.Context, t Transport, h Handler, req *protocol.RequestEnvelope, timeout time.Duration, logger *slog.Logger) error {
	hctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp := h.Handle(hctx, req)
	logger.Debug("request handled",
		"id", req.ID, "method", req.Method, "success", resp.Success, "duration", time.Since(start))

	if err := t.Write(ctx, resp); err != nil {
		return fmt.Errorf("write response %s: %w", req.ID, err)
	}
	return nil
}
