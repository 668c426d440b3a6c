package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflowd/internal/bootstrap"
	"workflowd/internal/journal"
	"workflowd/internal/ollama"
	"workflowd/pkg/types"
)

// stubRuntime serves /api/tags with a fixed inventory and counts pulls.
type stubRuntime struct {
	*httptest.Server
	models []string
	pulls  atomic.Int32
}

func newStubRuntime(t *testing.T, models ...string) *stubRuntime {
	t.Helper()
	s := &stubRuntime{models: models}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			list := []map[string]string{}
			for _, m := range s.models {
				list = append(list, map[string]string{"name": m, "model": m})
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"models": list})
		case "/api/pull":
			s.pulls.Add(1)
			w.Header().Set("Content-Type", "application/x-ndjson")
			_, _ = w.Write([]byte(`{"status":"success"}` + "\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

// stubWorkflow answers register and next; next never has work and
// rejects requests without a real key.
type stubWorkflow struct {
	*httptest.Server
	registers atomic.Int32
	nexts     atomic.Int32
	mu        sync.Mutex
	tokens    []string
}

func newStubWorkflow(t *testing.T, key string) *stubWorkflow {
	t.Helper()
	s := &stubWorkflow{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/workflow/register":
			s.registers.Add(1)
			if key == "" {
				http.Error(w, `{"message":"down"}`, http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"server":{"id":7,"server_key":"` + key + `"},"message":"ok"}`))
		case "/workflow/next":
			s.nexts.Add(1)
			s.mu.Lock()
			tok := r.Header.Get("x-server-token")
			s.tokens = append(s.tokens, tok)
			s.mu.Unlock()
			if tok == "" || tok == "your_server_key_here" {
				http.Error(w, `{"message":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"message":"no tasks","data":null}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

type execCall struct {
	path string
	argv []string
	env  []string
}

// testApp isolates configuration from the host environment and returns
// the app with its captured stdout.
func testApp(t *testing.T, env map[string]string) (*app, *bytes.Buffer) {
	t.Helper()
	base := map[string]string{
		"CONFIG_FILE":     "",
		"ENV_FILE":        filepath.Join(t.TempDir(), ".env"),
		"SERVER_CMD":      "",
		"SERVER_KEY":      "",
		"REQUIRED_MODELS": "",
		"LOG_FILE":        "",
		"LOG_LEVEL":       "error",
		"JOURNAL_PATH":    "",
		"CORS_ORIGINS":    "",
	}
	for k, v := range env {
		base[k] = v
	}
	for k, v := range base {
		t.Setenv(k, v)
	}
	out := &bytes.Buffer{}
	a := newApp()
	a.out = out
	a.errOut = io.Discard
	a.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	a.launch = func(ollama.ProcessConfig, zerolog.Logger) (bootstrap.Background, error) {
		return nil, errors.New("runtime launch not expected in this test")
	}
	return a, out
}

func run(a *app, args ...string) error {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestVersion(t *testing.T) {
	a, out := testApp(t, nil)
	require.NoError(t, run(a, "version"))
	assert.Equal(t, "workflowd dev\n", out.String())
}

func TestModelsRequiresSubcommand(t *testing.T) {
	a, _ := testApp(t, nil)
	assert.ErrorContains(t, run(a, "models"), "ensure|list")
}

func TestInvalidConfigFails(t *testing.T) {
	a, _ := testApp(t, map[string]string{"API_URL": "not a url"})
	assert.ErrorContains(t, run(a, "models", "list"), "invalid api_url")
}

func TestModelsList(t *testing.T) {
	rt := newStubRuntime(t, "llava:7b", "gemma2:9b")
	a, out := testApp(t, map[string]string{"OLLAMA_BASE_URL": rt.URL})

	require.NoError(t, run(a, "models", "list"))
	assert.Equal(t, "gemma2:9b\nllava:7b\nnomic-embed-text (missing)\n", out.String())
}

func TestExplicitZeroRetriesKept(t *testing.T) {
	rt := newStubRuntime(t, "llava:7b", "gemma2:9b", "nomic-embed-text")
	a, _ := testApp(t, map[string]string{"OLLAMA_BASE_URL": rt.URL, "MAX_RETRIES": "0"})

	require.NoError(t, run(a, "models", "list"))
	assert.Equal(t, 0, a.cfg.MaxRetries)
}

func TestModelsEnsurePullsMissing(t *testing.T) {
	rt := newStubRuntime(t, "llava:7b", "gemma2:9b")
	a, out := testApp(t, map[string]string{"OLLAMA_BASE_URL": rt.URL})

	require.NoError(t, run(a, "models", "ensure"))
	assert.Equal(t, int32(1), rt.pulls.Load())
	assert.Contains(t, out.String(), "1 pulled")
}

func TestRegisterPersistsKey(t *testing.T) {
	wf := newStubWorkflow(t, "sk-new")
	envFile := filepath.Join(t.TempDir(), "worker.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SLUG=mvml\n"), 0o600))
	a, out := testApp(t, map[string]string{"API_URL": wf.URL, "ENV_FILE": envFile})

	require.NoError(t, run(a, "register"))
	assert.Equal(t, "SERVER_KEY=sk-new\n", out.String())

	vals, err := godotenv.Read(envFile)
	require.NoError(t, err)
	assert.Equal(t, "sk-new", vals["SERVER_KEY"])
	assert.Equal(t, "mvml", vals["SLUG"])
}

func TestRegisterNoPersist(t *testing.T) {
	wf := newStubWorkflow(t, "sk-tmp")
	envFile := filepath.Join(t.TempDir(), "none.env")
	a, _ := testApp(t, map[string]string{"API_URL": wf.URL, "ENV_FILE": envFile})

	require.NoError(t, run(a, "register", "--no-persist"))
	_, err := os.Stat(envFile)
	assert.True(t, os.IsNotExist(err))
}

func TestStartHandsOffWithoutPullOrRegistration(t *testing.T) {
	rt := newStubRuntime(t, "llava:7b", "gemma2:9b", "nomic-embed-text:latest")
	wf := newStubWorkflow(t, "sk-unused")
	a, _ := testApp(t, map[string]string{
		"OLLAMA_BASE_URL": rt.URL,
		"API_URL":         wf.URL,
		"SERVER_KEY":      "sk-real",
	})
	var got execCall
	a.exec = func(path string, argv, env []string) error {
		got = execCall{path, argv, env}
		return nil
	}

	require.NoError(t, run(a, "start", "--no-runtime"))
	assert.Zero(t, rt.pulls.Load())
	assert.Zero(t, wf.registers.Load())
	require.Len(t, got.argv, 2)
	assert.Equal(t, "serve", got.argv[1])
	assert.True(t, filepath.IsAbs(got.path))
}

func TestStartRegistersPlaceholderKey(t *testing.T) {
	rt := newStubRuntime(t, "llava:7b", "gemma2:9b", "nomic-embed-text")
	wf := newStubWorkflow(t, "sk-fresh")
	a, _ := testApp(t, map[string]string{
		"OLLAMA_BASE_URL": rt.URL,
		"API_URL":         wf.URL,
		"SERVER_KEY":      "your_server_key_here",
	})
	var got execCall
	a.exec = func(path string, argv, env []string) error {
		got = execCall{path, argv, env}
		return nil
	}

	require.NoError(t, run(a, "--config", "", "start", "--no-runtime"))
	assert.Equal(t, int32(1), wf.registers.Load())
	assert.Contains(t, got.env, "SERVER_KEY=sk-fresh")

	vals, err := godotenv.Read(os.Getenv("ENV_FILE"))
	require.NoError(t, err)
	assert.Equal(t, "sk-fresh", vals["SERVER_KEY"])
}

func TestStartRegistrationFailureStillHandsOff(t *testing.T) {
	rt := newStubRuntime(t, "llava:7b", "gemma2:9b", "nomic-embed-text")
	wf := newStubWorkflow(t, "")
	a, _ := testApp(t, map[string]string{"OLLAMA_BASE_URL": rt.URL, "API_URL": wf.URL})
	handedOff := false
	a.exec = func(string, []string, []string) error { handedOff = true; return nil }

	require.NoError(t, run(a, "start", "--no-runtime"))
	assert.Equal(t, int32(1), wf.registers.Load())
	assert.True(t, handedOff)
}

func TestStartNeverReadyFails(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	a, _ := testApp(t, map[string]string{"OLLAMA_BASE_URL": down.URL, "READY_MAX_ATTEMPTS": "3", "SERVER_KEY": "k"})
	a.exec = func(string, []string, []string) error {
		t.Fatal("must not hand off")
		return nil
	}

	err := run(a, "start", "--no-runtime")
	require.Error(t, err)
	assert.True(t, bootstrap.IsReadinessTimeout(err))
}

type fakeBackground struct {
	done    chan struct{}
	stopped atomic.Bool
}

func (f *fakeBackground) Exited() <-chan struct{} { return f.done }
func (f *fakeBackground) Err() error              { return nil }
func (f *fakeBackground) StderrTail() string      { return "" }
func (f *fakeBackground) Stop() error {
	f.stopped.Store(true)
	return nil
}

func TestStartLaunchesRuntimeAndStopsItOnFailure(t *testing.T) {
	rt := newStubRuntime(t, "llava:7b")
	rt.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/pull" {
			http.Error(w, `{"error":"pull model manifest: file does not exist"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []map[string]string{{"name": "llava:7b"}}})
	})
	a, _ := testApp(t, map[string]string{"OLLAMA_BASE_URL": rt.URL, "OLLAMA_BIN": "/opt/ollama/bin/ollama", "SERVER_KEY": "k"})
	bg := &fakeBackground{done: make(chan struct{})}
	var launched ollama.ProcessConfig
	a.launch = func(pc ollama.ProcessConfig, _ zerolog.Logger) (bootstrap.Background, error) {
		launched = pc
		return bg, nil
	}

	err := run(a, "start")
	require.Error(t, err)
	assert.True(t, bootstrap.IsModelFetchFailed(err))
	assert.Equal(t, "gemma2:9b", bootstrap.FailedModel(err))
	assert.Equal(t, "/opt/ollama/bin/ollama", launched.Bin)
	assert.Equal(t, []string{"serve"}, launched.Args)
	assert.True(t, bg.stopped.Load())
}

// serveInBackground runs `serve` with args until the returned stop func is called.
func serveInBackground(t *testing.T, a *app, args ...string) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		cmd := newRootCmd(a)
		cmd.SetArgs(args)
		done <- cmd.ExecuteContext(ctx)
	}()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not stop")
			return nil
		}
	}
}

func TestServeRunsUnregistered(t *testing.T) {
	for _, key := range []string{"your_server_key_here", ""} {
		t.Run("key="+key, func(t *testing.T) {
			wf := newStubWorkflow(t, "")
			a, _ := testApp(t, map[string]string{
				"API_URL":             wf.URL,
				"SERVER_KEY":          key,
				"STATUS_ADDR":         "127.0.0.1:0",
				"RETRY_DELAY_SECONDS": "1",
			})
			a.sleep = nil

			stop := serveInBackground(t, a, "serve")
			require.Eventually(t, func() bool { return wf.nexts.Load() > 0 }, 3*time.Second, 10*time.Millisecond)
			require.NoError(t, stop())
			wf.mu.Lock()
			defer wf.mu.Unlock()
			assert.Equal(t, key, wf.tokens[0])
		})
	}
}

func TestStartRegistrationFailureThenServeKeepsPolling(t *testing.T) {
	rt := newStubRuntime(t, "llava:7b", "gemma2:9b", "nomic-embed-text")
	wf := newStubWorkflow(t, "")
	a, _ := testApp(t, map[string]string{
		"OLLAMA_BASE_URL":     rt.URL,
		"API_URL":             wf.URL,
		"SERVER_KEY":          "your_server_key_here",
		"STATUS_ADDR":         "127.0.0.1:0",
		"RETRY_DELAY_SECONDS": "1",
	})
	var got execCall
	a.exec = func(path string, argv, env []string) error {
		got = execCall{path, argv, env}
		return nil
	}
	require.NoError(t, run(a, "start", "--no-runtime"))
	require.Equal(t, int32(1), wf.registers.Load())
	require.Len(t, got.argv, 2)
	assert.Contains(t, got.env, "SERVER_KEY=your_server_key_here")

	// Same environment, so the handed-off command sees the placeholder key.
	next := newApp()
	next.out, next.errOut = io.Discard, io.Discard
	stop := serveInBackground(t, next, got.argv[1:]...)
	require.Eventually(t, func() bool { return wf.nexts.Load() > 0 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
}

func TestServePollsUntilCanceled(t *testing.T) {
	wf := newStubWorkflow(t, "")
	rt := newStubRuntime(t)
	a, _ := testApp(t, map[string]string{
		"API_URL":                  wf.URL,
		"OLLAMA_BASE_URL":          rt.URL,
		"SERVER_KEY":               "sk-live",
		"STATUS_ADDR":              "127.0.0.1:0",
		"POLLING_INTERVAL_SECONDS": "1",
		"JOURNAL_PATH":             filepath.Join(t.TempDir(), "journal.db"),
	})
	a.sleep = nil

	stop := serveInBackground(t, a, "serve")
	require.Eventually(t, func() bool { return wf.nexts.Load() > 0 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
	wf.mu.Lock()
	defer wf.mu.Unlock()
	assert.Equal(t, "sk-live", wf.tokens[0])
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().String()
}

func TestServeExposesJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	for i, ok := range []bool{true, false, true} {
		require.NoError(t, j.Record(context.Background(), types.TaskRecord{TaskID: fmt.Sprint("t", i), Action: "prompt", Success: ok}))
	}
	require.NoError(t, j.Close())

	wf := newStubWorkflow(t, "")
	addr := freeAddr(t)
	a, _ := testApp(t, map[string]string{
		"API_URL":         wf.URL,
		"SERVER_KEY":      "sk-live",
		"STATUS_ADDR":     addr,
		"JOURNAL_PATH":    dbPath,
		"TASKS_MAX_LIMIT": "2",
	})
	a.sleep = nil
	stop := serveInBackground(t, a, "serve")
	defer func() { require.NoError(t, stop()) }()

	getJSON := func(path string, v any) {
		require.Eventually(t, func() bool {
			resp, err := http.Get("http://" + addr + path)
			if err != nil {
				return false
			}
			defer resp.Body.Close()
			return resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(v) == nil
		}, 3*time.Second, 20*time.Millisecond)
	}

	var tasks types.TasksResponse
	getJSON("/tasks?limit=50", &tasks)
	assert.Len(t, tasks.Tasks, 2)

	var st types.StatusResponse
	getJSON("/status", &st)
	require.NotNil(t, st.History)
	assert.Equal(t, types.TaskTotals{Succeeded: 2, Failed: 1}, *st.History)
}

func TestNewLogger(t *testing.T) {
	cfg := testConfig()
	var buf bytes.Buffer

	cfg.LogFormat = "json"
	log, closer, err := newLogger(cfg, &buf)
	require.NoError(t, err)
	log.Info().Msg("hello")
	log.Debug().Msg("hidden")
	require.NoError(t, closer())
	assert.Contains(t, buf.String(), `"message":"hello"`)
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	cfg.LogFormat = "console"
	cfg.LogFile = filepath.Join(t.TempDir(), "logs", "worker.log")
	log, closer, err = newLogger(cfg, &buf)
	require.NoError(t, err)
	log.Warn().Str("k", "v").Msg("tee")
	require.NoError(t, closer())
	assert.Contains(t, buf.String(), "WRN")
	b, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "{"))
	assert.Contains(t, string(b), `"message":"tee"`)

	cfg.LogFile = ""
	cfg.LogLevel = "loud"
	_, _, err = newLogger(cfg, &buf)
	assert.ErrorContains(t, err, "invalid log level")

	cfg.LogLevel = "info"
	cfg.LogFormat = "xml"
	_, _, err = newLogger(cfg, &buf)
	assert.ErrorContains(t, err, "invalid log format")
}
