package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultReadyAttempts  = 30
	defaultReadyInterval  = 2 * time.Second
	defaultAttemptTimeout = 5 * time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Gate blocks until a dependency answers a GET with a status below 400.
// Connection errors and error statuses count the same; there is no backoff.
type Gate struct {
	Client         *http.Client
	Attempts       int
	Interval       time.Duration
	AttemptTimeout time.Duration
	Sleep          SleepFunc
	Publisher      EventPublisher
	Log            zerolog.Logger
}

// Wait polls url until it is reachable or the attempt budget runs out.
// No sleep follows the final attempt.
func (g *Gate) Wait(ctx context.Context, name, url string) error {
	attempts := g.Attempts
	if attempts <= 0 {
		attempts = defaultReadyAttempts
	}
	interval := g.Interval
	if interval <= 0 {
		interval = defaultReadyInterval
	}
	sleep := g.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	pub := publisherOrNoop(g.Publisher)

	g.Log.Info().Str("service", name).Str("url", url).Int("attempts", attempts).Dur("interval", interval).Msg("waiting for service")
	var last error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = g.probe(ctx, url)
		if last == nil {
			readinessAttempts.WithLabelValues(name, "ready").Inc()
			g.Log.Info().Str("service", name).Int("attempt", i).Msg("service ready")
			pub.Publish(Event{Name: "ready", Subject: name, Fields: map[string]any{"attempt": i}})
			return nil
		}
		readinessAttempts.WithLabelValues(name, "not_ready").Inc()
		g.Log.Debug().Str("service", name).Int("attempt", i).Err(last).Msg("service not ready")
		pub.Publish(Event{Name: "not_ready", Subject: name, Fields: map[string]any{"attempt": i, "error": last.Error()}})
		if i == attempts {
			break
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
	g.Log.Error().Str("service", name).Int("attempts", attempts).Err(last).Msg("service never became ready")
	pub.Publish(Event{Name: "ready_timeout", Subject: name, Fields: map[string]any{"attempts": attempts}})
	return readinessTimeoutError{name: name, url: url, attempts: attempts, last: last}
}

func (g *Gate) probe(ctx context.Context, url string) error {
	timeout := g.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	cli := g.Client
	if cli == nil {
		cli = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := cli.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
