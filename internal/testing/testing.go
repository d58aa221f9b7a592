// package testing contains shared testing utilities
package testing

import (
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// FWriter simulates a failing output stream
type FWriter struct{}

func (f *FWriter) Write(p []byte) (int, error) {
	return 0, errors.New("write failed")
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if s, ok := v.(string); ok {
		w.Write([]byte(s))
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode fixture: %v", err)
	}
}

// RequestLog records requests received by a fixture server.
type RequestLog struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
}

// Record stores r and its already-read body.
func (l *RequestLog) Record(r *http.Request, body string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, r)
	l.bodies = append(l.bodies, body)
}

// Len returns the number of recorded requests.
func (l *RequestLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// Last returns the most recent request and body, failing the test if none was recorded.
func (l *RequestLog) Last(t *testing.T) (*http.Request, string) {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.requests) == 0 {
		t.Fatal("expected at least one request")
	}
	i := len(l.requests) - 1
	return l.requests[i], l.bodies[i]
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{now: now} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
