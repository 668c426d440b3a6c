package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"workflowd/internal/ollama"
)

// fakeRuntime is an in-memory ModelRuntime.
type fakeRuntime struct {
	mu       sync.Mutex
	models   []string
	pulls    []string
	lists    int
	failPull map[string]error
	listErr  error
}

func (f *fakeRuntime) Models(ctx context.Context) (ollama.Inventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return ollama.NewInventory(f.models...), nil
}

func (f *fakeRuntime) Pull(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, name)
	if err := f.failPull[name]; err != nil {
		return err
	}
	f.models = append(f.models, name)
	return nil
}

// sleepRecorder counts sleeps without waiting.
type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// execRecorder captures the handoff instead of replacing the test binary.
type execRecorder struct {
	called bool
	path   string
	argv   []string
	env    []string
	err    error
}

func (e *execRecorder) Exec(path string, argv []string, env []string) error {
	e.called = true
	e.path, e.argv, e.env = path, argv, env
	return e.err
}

// stubRuntimeServer serves /api/tags and /api/pull and counts requests.
type stubRuntimeServer struct {
	mu     sync.Mutex
	models []string
	tags   int
	pulls  []string
	srv    *httptest.Server
}

func newStubRuntimeServer(t *testing.T, models ...string) *stubRuntimeServer {
	t.Helper()
	s := &stubRuntimeServer{models: models}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.tags++
		type m struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		}
		out := struct {
			Models []m `json:"models"`
		}{}
		for _, n := range s.models {
			out.Models = append(out.Models, m{Name: n, Model: n})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.pulls = append(s.pulls, body.Model)
		s.models = append(s.models, body.Model)
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"status":"success"}` + "\n"))
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

var errBoom = errors.New("boom")
