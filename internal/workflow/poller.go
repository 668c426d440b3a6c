package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"workflowd/pkg/types"
)

// Poller states.
const (
	StateStarting   = "starting"
	StatePolling    = "polling"
	StateProcessing = "processing"
	StateStopped    = "stopped"
)

// API is the part of Client the poller drives.
type API interface {
	Next(ctx context.Context) (*Task, error)
	Respond(ctx context.Context, r Response) error
}

// Handler processes one task action.
type Handler interface {
	Handle(ctx context.Context, t *Task) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t *Task) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, t *Task) (Result, error) { return f(ctx, t) }

// TaskRecorder persists processed tasks.
type TaskRecorder interface {
	Record(ctx context.Context, rec types.TaskRecord) error
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	PollInterval time.Duration
	RetryDelay   time.Duration
	Sleep        func(ctx context.Context, d time.Duration) error
	Recorder     TaskRecorder
	Log          zerolog.Logger
	Now          func() time.Time
}

// Stats is a point-in-time view of the poller.
type Stats struct {
	State       string
	Succeeded   uint64
	Failed      uint64
	PollErrors  uint64
	LastError   string
	CurrentTask string
	// Healthy is true once a poll succeeded and no poll has failed since.
	Healthy bool
	Started time.Time
}

// Poller fetches tasks, dispatches them by action and answers the API.
type Poller struct {
	api      API
	cfg      PollerConfig
	handlers map[string]Handler

	mu    sync.Mutex
	stats Stats
}

// NewPoller constructs a Poller; defaults: 5s poll interval, 10s retry delay.
func NewPoller(api API, cfg PollerConfig) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{
		api:      api,
		cfg:      cfg,
		handlers: make(map[string]Handler),
		stats:    Stats{State: StateStarting, Started: cfg.Now()},
	}
}

// Handle registers h for action, replacing any previous handler.
func (p *Poller) Handle(action string, h Handler) {
	p.mu.Lock()
	p.handlers[action] = h
	p.mu.Unlock()
}

// Actions lists the actions with a registered handler.
func (p *Poller) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.handlers))
	for a := range p.handlers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Stats returns a snapshot of the poller counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Run polls until ctx is done. It never returns a poll error.
func (p *Poller) Run(ctx context.Context) error {
	p.cfg.Log.Info().Strs("actions", p.Actions()).Dur("poll_interval", p.cfg.PollInterval).Msg("worker polling started")
	defer func() {
		p.setState(StateStopped)
		p.cfg.Log.Info().Msg("worker polling stopped")
	}()
	for {
		if ctx.Err() != nil {
			return nil
		}
		wait := p.Once(ctx)
		if wait <= 0 {
			continue
		}
		if err := p.cfg.Sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// Once runs one poll cycle and returns how long to wait before the next.
func (p *Poller) Once(ctx context.Context) time.Duration {
	p.setState(StatePolling)
	task, err := p.api.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		p.pollFailed(err)
		return p.cfg.RetryDelay
	}
	p.mu.Lock()
	p.stats.Healthy = true
	p.mu.Unlock()
	if task == nil {
		p.cfg.Log.Debug().Msg("no task available")
		return p.cfg.PollInterval
	}
	p.process(ctx, task)
	return 0
}

func (p *Poller) pollFailed(err error) {
	reason := "transport"
	ev := p.cfg.Log.Error()
	switch {
	case IsUnauthorized(err):
		reason = "unauthorized"
	case IsAPIError(err):
		reason = "api"
		ev = p.cfg.Log.Warn()
	case StatusCode(err) == 404 || StatusCode(err) == 500:
		reason = "status"
		ev = p.cfg.Log.Warn()
	case StatusCode(err) != 0:
		reason = "status"
	}
	pollErrors.WithLabelValues(reason).Inc()
	ev.Err(err).Str("reason", reason).Msg("poll failed")
	p.mu.Lock()
	p.stats.PollErrors++
	p.stats.LastError = err.Error()
	p.stats.Healthy = false
	p.mu.Unlock()
}

func (p *Poller) process(ctx context.Context, t *Task) {
	log := p.cfg.Log.With().Str("task_id", t.TaskID).Str("action", t.Action).Logger()
	p.mu.Lock()
	p.stats.State = StateProcessing
	p.stats.CurrentTask = t.TaskID
	h := p.handlers[t.Action]
	p.mu.Unlock()

	log.Info().Msg("processing task")
	start := p.cfg.Now()
	var (
		res Result
		err error
	)
	if h == nil {
		err = fmt.Errorf("%w: %s", errUnknownAction, t.Action)
	} else {
		res, err = p.invoke(ctx, h, t)
	}
	finished := p.cfg.Now()
	taskDuration.WithLabelValues(t.Action).Observe(finished.Sub(start).Seconds())

	var resp Response
	if err != nil {
		log.Error().Err(err).Msg("task failed")
		tasksTotal.WithLabelValues(t.Action, "failure").Inc()
		resp = FailureResponse(t, err)
	} else {
		log.Info().Dur("took", finished.Sub(start)).Msg("task completed")
		tasksTotal.WithLabelValues(t.Action, "success").Inc()
		resp = SuccessResponse(t, res)
	}

	derr := p.api.Respond(ctx, resp)
	if derr != nil {
		deliveryErrors.Inc()
		log.Error().Err(derr).Msg("response delivery failed")
	} else {
		log.Debug().Msg("response delivered")
	}

	p.mu.Lock()
	if err != nil {
		p.stats.Failed++
		p.stats.LastError = err.Error()
	} else {
		p.stats.Succeeded++
	}
	if derr != nil {
		p.stats.LastError = derr.Error()
	}
	p.stats.CurrentTask = ""
	p.mu.Unlock()

	if p.cfg.Recorder != nil {
		rec := types.TaskRecord{
			TaskID:     t.TaskID,
			Action:     t.Action,
			Success:    err == nil,
			Delivered:  derr == nil,
			StartedAt:  start,
			FinishedAt: finished,
			DurationMS: finished.Sub(start).Milliseconds(),
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if rerr := p.cfg.Recorder.Record(ctx, rec); rerr != nil {
			log.Warn().Err(rerr).Msg("journal record failed")
		}
	}
}

// invoke runs h, converting a panic into a task failure.
func (p *Poller) invoke(ctx context.Context, h Handler, t *Task) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return h.Handle(ctx, t)
}

func (p *Poller) setState(s string) {
	p.mu.Lock()
	p.stats.State = s
	p.mu.Unlock()
}
