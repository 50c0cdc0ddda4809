package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Exit codes carried by SendError, surfaced as the process exit status
// when delivery fails.
const (
	// SendErrNetwork: the collector could not be reached at all.
	SendErrNetwork = 2
	// SendErrRejected: the collector answered with a non-2xx status.
	SendErrRejected = 3
)

// SendError is a delivery failure with the transport's own failure code.
type SendError struct {
	Code int
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("report delivery failed (code %d): %v", e.Code, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Transport delivers a serialized report to the collector.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
}

// HTTPTransport posts reports to a collector URL as JSON.
type HTTPTransport struct {
	URL    string
	Client *http.Client
}

// NewHTTPTransport returns a transport for url with a bounded request
// timeout.
func NewHTTPTransport(url string) *HTTPTransport {
	return &HTTPTransport{
		URL:    url,
		Client: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Send posts the payload. Failures are returned as *SendError carrying
// the code the process should exit with.
func (t *HTTPTransport) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		return &SendError{Code: SendErrNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return &SendError{Code: SendErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &SendError{
			Code: SendErrRejected,
			Err:  fmt.Errorf("collector returned %s: %s", resp.Status, bytes.TrimSpace(body)),
		}
	}
	return nil
}
