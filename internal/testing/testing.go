// package testing contains shared testing utilities
package testing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
)

// MemoryTokenStore is an in-memory services.TokenStore.
type MemoryTokenStore struct {
	mu      sync.Mutex
	tokens  map[string]models.StoredToken
	Saves   int
	SaveErr error
}

func NewMemoryTokenStore(tokens ...models.StoredToken) *MemoryTokenStore {
	m := &MemoryTokenStore{tokens: make(map[string]models.StoredToken)}
	for _, t := range tokens {
		m.tokens[t.Service] = t
	}
	return m
}

func (m *MemoryTokenStore) Load(ctx context.Context, service string) (*models.StoredToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrTokenNotFound, service)
	}
	return &t, nil
}

func (m *MemoryTokenStore) Save(ctx context.Context, token models.StoredToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Saves++
	m.tokens[token.Service] = token
	return nil
}

func (m *MemoryTokenStore) Delete(ctx context.Context, service string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[service]; !ok {
		return fmt.Errorf("%w: %s", shared.ErrTokenNotFound, service)
	}
	delete(m.tokens, service)
	return nil
}

// Get returns the stored token for service without the error plumbing.
func (m *MemoryTokenStore) Get(service string) (models.StoredToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[service]
	return t, ok
}

// CountingHandler wraps a handler and counts requests per path.
type CountingHandler struct {
	mu      sync.Mutex
	counts  map[string]int
	handler http.Handler
}

func NewCountingHandler(h http.Handler) *CountingHandler {
	return &CountingHandler{counts: make(map[string]int), handler: h}
}

func (c *CountingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.counts[r.URL.Path]++
	c.mu.Unlock()
	c.handler.ServeHTTP(w, r)
}

// Count returns how many requests hit path.
func (c *CountingHandler) Count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[path]
}

// Total returns the number of requests across all paths.
func (c *CountingHandler) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}

// WriteJSON writes v with the given status and a JSON content type.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

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

var _ io.ReadCloser = (*FCloser)(nil)

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

// MustReadFile reads path or fails the test.
func MustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return data
}
