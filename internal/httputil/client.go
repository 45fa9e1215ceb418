// Package httputil provides the HTTP client abstraction used for pushing
// corridor decisions to external gateways, plus a recording mock for tests.
package httputil

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPClient is the client surface gateway notifications need. StandardClient
// covers production; MockHTTPClient records traffic for tests.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)

	// Post issues a POST to the given URL with the given body.
	Post(url, contentType string, body io.Reader) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	client *http.Client
}

// NewStandardClient wraps client, falling back to http.DefaultClient when nil.
func NewStandardClient(client *http.Client) *StandardClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &StandardClient{client: client}
}

// Do sends an HTTP request using the underlying client.
func (s *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return s.client.Do(req)
}

// Post issues a POST request using the underlying client.
func (s *StandardClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	return s.client.Post(url, contentType, body)
}

// MockResponse is one canned reply in a MockHTTPClient queue.
type MockResponse struct {
	StatusCode int
	Body       string
	Err        error
}

// MockHTTPClient records every request and replays queued responses in
// order. Once the queue drains it answers 200 with an empty body, so tests
// that only care about the request side need no setup.
type MockHTTPClient struct {
	mu        sync.Mutex
	requests  []*http.Request
	responses []*MockResponse
	next      int
}

// NewMockHTTPClient creates an empty mock client.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a response with the given status and body. Returns the
// mock so queue setup can chain.
func (m *MockHTTPClient) AddResponse(statusCode int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, &MockResponse{StatusCode: statusCode, Body: body})
	return m
}

// AddErrorResponse queues a transport-level error.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, &MockResponse{Err: err})
	return m
}

// Do records the request and returns the next queued response.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.next < len(m.responses) {
		resp := m.responses[m.next]
		m.next++
		if resp.Err != nil {
			return nil, resp.Err
		}
		return &http.Response{
			StatusCode: resp.StatusCode,
			Body:       io.NopCloser(strings.NewReader(resp.Body)),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}

	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Post builds a POST request and passes it through Do.
func (m *MockHTTPClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return m.Do(req)
}

// GetRequest returns the i-th recorded request, or nil if out of range.
func (m *MockHTTPClient) GetRequest(i int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.requests) {
		return nil
	}
	return m.requests[i]
}

// RequestCount returns the number of recorded requests.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Reset clears recorded requests and queued responses.
func (m *MockHTTPClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.responses = nil
	m.next = 0
}
