package streamlink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"audiolink/pkg/relay"
)

// memoryStore is an in-memory CredentialStore that counts writes.
type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	sets   int
	getErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: make(map[string]string)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.sets++
	return nil
}

// setLedger is a map-backed ScriptLedger.
type setLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (l *setLedger) Has(src string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[src]
}

func (l *setLedger) Add(src string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	l.seen[src] = true
}

// upstream fakes the CORS relay, the SoundCloud API and landing page, script bundles, and an
// Invidious mirror behind one httptest server. Requests whose URI starts with "/http" are relayed
// targets; anything else is a direct fetch addressed to the server itself.
type upstream struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	relayed     []string
	direct      []string
	landingHTML string
	scripts     map[string]string
	resolveBody string
	rejected    map[string]bool
	streams     map[string]string
	failStreams map[string]int
	videos      map[string]string
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{
		t:           t,
		scripts:     make(map[string]string),
		rejected:    make(map[string]bool),
		streams:     make(map[string]string),
		failStreams: make(map[string]int),
		videos:      make(map[string]string),
	}
	u.srv = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) fetcher() *relay.Client {
	return relay.NewClient(u.srv.URL)
}

func (u *upstream) scriptURL(path string) string {
	return u.srv.URL + path
}

func (u *upstream) relayCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.relayed)
}

func (u *upstream) directCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.direct)
}

func (u *upstream) relayedTargets() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.relayed...)
}

func (u *upstream) serve(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !strings.HasPrefix(r.RequestURI, "/http") {
		u.direct = append(u.direct, r.URL.Path)
		u.serveDirect(w, r)
		return
	}

	target := strings.TrimPrefix(r.RequestURI, "/")
	u.relayed = append(u.relayed, target)

	tu, err := url.Parse(target)
	if err != nil {
		http.Error(w, "bad target", http.StatusBadRequest)
		return
	}

	switch {
	case tu.Host == "soundcloud.com" && (tu.Path == "" || tu.Path == "/"):
		_, _ = w.Write([]byte(u.landingHTML))
	case tu.Path == "/resolve":
		if u.rejected[tu.Query().Get("client_id")] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if u.resolveBody == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(u.resolveBody))
	case strings.HasPrefix(tu.Path, "/media/"):
		if status, ok := u.failStreams[tu.Path]; ok {
			w.WriteHeader(status)
			return
		}
		body, ok := u.streams[tu.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (u *upstream) serveDirect(w http.ResponseWriter, r *http.Request) {
	if body, ok := u.scripts[r.URL.Path]; ok {
		_, _ = w.Write([]byte(body))
		return
	}
	if id, ok := strings.CutPrefix(r.URL.Path, "/api/v1/videos/"); ok {
		if r.URL.Query().Get("fields") != "adaptiveFormats,title,videoThumbnails" {
			u.t.Errorf("mirror fields = %q", r.URL.Query().Get("fields"))
		}
		if body, ok := u.videos[id]; ok {
			_, _ = w.Write([]byte(body))
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func assertResolutionFailed(t *testing.T, err error, cause error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got none")
	}
	if !errors.Is(err, ErrResolutionFailed) {
		t.Errorf("error = %v, want ErrResolutionFailed", err)
	}
	if cause != nil && !errors.Is(err, cause) {
		t.Errorf("error = %v, want cause %v", err, cause)
	}
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Errorf("error = %v, want *ResolutionError", err)
	}
}
