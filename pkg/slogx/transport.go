package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/busfare/pkg/idx"
)

// RequestIDHeader carries the correlation ID of an outbound call.
const RequestIDHeader = "X-Request-ID"

// Transport logs every outbound request and stamps it with a request ID. A
// caller-supplied ID is kept when it is a valid ULID and replaced otherwise.
// It never logs headers, so bearer tokens stay out of the logs.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := req.Header.Get(RequestIDHeader)
	if _, err := idx.Parse(reqID); err != nil {
		reqID = idx.New().String()
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, reqID)
	}

	logger := t.Logger.With(
		"req_id", reqID,
		"method", req.Method,
		"path", req.URL.Path,
	)

	resp, err := t.Base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_request_failed", "error", err, "duration_ms", duration)
		return nil, err
	}

	logger.Debug("http_request", "status", resp.StatusCode, "duration_ms", duration)
	return resp, nil
}
