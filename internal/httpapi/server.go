package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"workflowd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Status(ctx context.Context) types.StatusResponse
	Ready() bool
	RecentTasks(ctx context.Context, limit int) ([]types.TaskRecord, error)
}

const defaultTasksLimit = 50

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status(r.Context()))
	})

	r.Get("/tasks", func(w http.ResponseWriter, r *http.Request) {
		limit := defaultTasksLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				IncrementRejected("bad_limit")
				writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxTasksLimit)
		}
		// Join server base context with request context so shutdown cancels the query too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		tasks, err := svc.RecentTasks(ctx, limit)
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		if tasks == nil {
			tasks = []types.TaskRecord{}
		}
		writeJSON(w, types.TasksResponse{Tasks: tasks})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// ListenAndServe serves h on addr until ctx is canceled, then shuts down
// gracefully within grace.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
