package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStandardClient_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("accepted"))
	}))
	defer server.Close()

	client := NewStandardClient(nil)
	req, err := http.NewRequest(http.MethodPut, server.URL+"/resource", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "accepted" {
		t.Errorf("got body %q, want 'accepted'", string(body))
	}
}

func TestStandardClient_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"phase": "green"}` {
			t.Errorf("got body %s", string(body))
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewStandardClient(nil)
	resp, err := client.Post(server.URL+"/commands", "application/json", strings.NewReader(`{"phase": "green"}`))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusCreated)
	}
}

func TestStandardClient_WithCustomClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewStandardClient(&http.Client{})
	resp, err := client.Post(server.URL, "text/plain", strings.NewReader("ping"))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestMockHTTPClient_Post(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusCreated, `{"id": 123}`)

	resp, err := mock.Post("http://gateway/commands", "application/json", strings.NewReader(`{"phase": "green"}`))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	req := mock.GetRequest(0)
	if req == nil {
		t.Fatal("expected request to be recorded")
	}
	if req.Method != http.MethodPost {
		t.Errorf("got method %s, want POST", req.Method)
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("got Content-Type %q", req.Header.Get("Content-Type"))
	}
}

func TestMockHTTPClient_ResponsesDrainInOrder(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "first").
		AddResponse(http.StatusAccepted, "second")

	resp1, _ := mock.Post("http://gateway/1", "text/plain", nil)
	body1, _ := io.ReadAll(resp1.Body)
	resp1.Body.Close()
	if string(body1) != "first" {
		t.Errorf("first response: got %q, want 'first'", string(body1))
	}

	resp2, _ := mock.Post("http://gateway/2", "text/plain", nil)
	body2, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusAccepted || string(body2) != "second" {
		t.Errorf("second response: got %d %q", resp2.StatusCode, string(body2))
	}

	// Queue drained, falls back to an empty 200.
	resp3, err := mock.Post("http://gateway/3", "text/plain", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("drained queue: got status %d, want %d", resp3.StatusCode, http.StatusOK)
	}
}

func TestMockHTTPClient_AddErrorResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	wantErr := errors.New("connection refused")
	mock.AddErrorResponse(wantErr)

	_, err := mock.Post("http://gateway/commands", "application/json", nil)
	if err != wantErr {
		t.Errorf("got error %v, want %v", err, wantErr)
	}
}

func TestMockHTTPClient_GetRequest(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.Post("http://gateway/first", "text/plain", nil)
	mock.Post("http://gateway/second", "text/plain", nil)

	if mock.RequestCount() != 2 {
		t.Fatalf("got %d requests, want 2", mock.RequestCount())
	}

	req0 := mock.GetRequest(0)
	if req0 == nil || !strings.Contains(req0.URL.String(), "first") {
		t.Error("GetRequest(0) should return first request")
	}

	req1 := mock.GetRequest(1)
	if req1 == nil || !strings.Contains(req1.URL.String(), "second") {
		t.Error("GetRequest(1) should return second request")
	}

	if mock.GetRequest(99) != nil {
		t.Error("GetRequest with out of bounds index should return nil")
	}
	if mock.GetRequest(-1) != nil {
		t.Error("GetRequest with negative index should return nil")
	}
}

func TestMockHTTPClient_Reset(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "test")
	mock.Post("http://gateway/commands", "text/plain", nil)
	mock.Reset()

	if mock.RequestCount() != 0 {
		t.Error("Reset should clear recorded requests")
	}

	// A fresh request after Reset gets the default response, not "test".
	resp, err := mock.Post("http://gateway/commands", "text/plain", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "" {
		t.Errorf("got body %q, want empty default", string(body))
	}
}
