package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fetchRecord struct {
	mode       string
	statusCode int
}

type recordingRecorder struct {
	mu      sync.Mutex
	records []fetchRecord
}

func (r *recordingRecorder) RecordFetch(mode string, statusCode int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, fetchRecord{mode: mode, statusCode: statusCode})
}

func TestClient_RelayURL(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		target   string
		expected string
	}{
		{
			name:     "Relay origin prefixes target",
			origin:   "https://warp-co.rs",
			target:   "https://soundcloud.com",
			expected: "https://warp-co.rs/https://soundcloud.com",
		},
		{
			name:     "Trailing slash on origin is trimmed",
			origin:   "https://warp-co.rs/",
			target:   "https://api-v2.soundcloud.com/resolve?url=x",
			expected: "https://warp-co.rs/https://api-v2.soundcloud.com/resolve?url=x",
		},
		{
			name:     "Empty origin disables relaying",
			origin:   "",
			target:   "https://soundcloud.com",
			expected: "https://soundcloud.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.origin)
			if got := c.RelayURL(tt.target); got != tt.expected {
				t.Errorf("RelayURL() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestClient_FetchThroughRelay(t *testing.T) {
	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.RequestURI
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://cdn.example.com/a.m3u8"}`))
	}))
	defer srv.Close()

	rec := &recordingRecorder{}
	c := NewClient(srv.URL, WithRecorder(rec))

	resp, err := c.Fetch(context.Background(), "https://api.example.com/media/1?client_id=abc")
	if err != nil {
		t.Fatalf("Fetch() unexpected error: %v", err)
	}

	if gotURI != "/https://api.example.com/media/1?client_id=abc" {
		t.Errorf("relay received %q, want target appended to origin", gotURI)
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.URL != "https://cdn.example.com/a.m3u8" {
		t.Errorf("body url = %q", body.URL)
	}

	if len(rec.records) != 1 || rec.records[0].mode != ModeRelay || rec.records[0].statusCode != http.StatusOK {
		t.Errorf("recorder records = %+v, want one relay 200", rec.records)
	}
}

func TestClient_FetchDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assets/app.js" {
			t.Errorf("direct fetch path = %q", r.URL.Path)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("direct fetch sent no User-Agent")
		}
		_, _ = w.Write([]byte("console.log(1)"))
	}))
	defer srv.Close()

	rec := &recordingRecorder{}
	c := NewClient("https://relay.invalid", WithRecorder(rec))

	resp, err := c.FetchDirect(context.Background(), srv.URL+"/assets/app.js")
	if err != nil {
		t.Fatalf("FetchDirect() unexpected error: %v", err)
	}
	if resp.Text() != "console.log(1)" {
		t.Errorf("Text() = %q", resp.Text())
	}
	if len(rec.records) != 1 || rec.records[0].mode != ModeDirect {
		t.Errorf("recorder records = %+v, want one direct fetch", rec.records)
	}
}

func TestClient_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "Not found", status: http.StatusNotFound},
		{name: "Unauthorized", status: http.StatusUnauthorized},
		{name: "Server error", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient(srv.URL)
			resp, err := c.Fetch(context.Background(), "https://api.example.com/x")
			if err == nil {
				t.Fatalf("Fetch() expected error, got response %+v", resp)
			}

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Fetch() error = %v, want *StatusError", err)
			}
			if statusErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, tt.status)
			}
			if statusErr.Target != "https://api.example.com/x" {
				t.Errorf("Target = %q, want the unrelayed target", statusErr.Target)
			}
		})
	}
}

func TestClient_MaxBodySize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := NewClient("", WithMaxBodySize(4))
	resp, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() unexpected error: %v", err)
	}
	if resp.Text() != "0123" {
		t.Errorf("Text() = %q, want body truncated to 4 bytes", resp.Text())
	}
}

func TestNewClient_Options(t *testing.T) {
	tests := []struct {
		name        string
		opts        []Option
		timeout     time.Duration
		maxBodySize int64
	}{
		{name: "Defaults", timeout: DefaultTimeout, maxBodySize: defaultMaxBodySize},
		{name: "Timeout", opts: []Option{WithTimeout(2 * time.Second)}, timeout: 2 * time.Second, maxBodySize: defaultMaxBodySize},
		{name: "Body size", opts: []Option{WithMaxBodySize(1024)}, timeout: DefaultTimeout, maxBodySize: 1024},
		{name: "Non-positive body size", opts: []Option{WithMaxBodySize(0)}, timeout: DefaultTimeout, maxBodySize: defaultMaxBodySize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient("https://relay.example/", tt.opts...)
			if c.httpClient.Timeout != tt.timeout {
				t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, tt.timeout)
			}
			if c.maxBodySize != tt.maxBodySize {
				t.Errorf("maxBodySize = %d, want %d", c.maxBodySize, tt.maxBodySize)
			}
			if c.RelayURL("https://a.example/x") != "https://relay.example/https://a.example/x" {
				t.Errorf("RelayURL() = %q", c.RelayURL("https://a.example/x"))
			}
		})
	}
}

func TestNewClient_SeparateHTTPClients(t *testing.T) {
	a := NewClient("", WithTimeout(time.Second))
	b := NewClient("")
	if a.httpClient == b.httpClient {
		t.Fatal("clients share an http.Client")
	}
	if b.httpClient.Timeout != DefaultTimeout {
		t.Errorf("second client Timeout = %v, want %v", b.httpClient.Timeout, DefaultTimeout)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	addr := srv.URL
	srv.Close()

	rec := &recordingRecorder{}
	c := NewClient(addr, WithRecorder(rec), WithTimeout(time.Second))
	if _, err := c.Fetch(context.Background(), "https://api.example.com/x"); err == nil {
		t.Fatal("Fetch() expected transport error")
	}
	if len(rec.records) != 1 || rec.records[0].statusCode != 0 {
		t.Errorf("recorder records = %+v, want status 0 for transport failure", rec.records)
	}
}
