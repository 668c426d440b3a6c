package cli

import (
	"context"
	"net/http"
	"time"

	"workflowd/internal/httpapi"
	"workflowd/internal/journal"
	"workflowd/internal/processors"
	"workflowd/internal/workflow"
)

const shutdownGrace = 5 * time.Second

func (a *app) runServe(ctx context.Context) error {
	// An unregistered worker keeps polling; the API answers 401 and the
	// poller backs off by RETRY_DELAY_SECONDS until a key is configured.
	if !a.cfg.HasServerKey() {
		a.log.Warn().Msg("SERVER_KEY is not configured; running unregistered (run `workflowd register` to obtain one)")
	}
	if !processors.FFmpegAvailable() {
		a.log.Warn().Msg("ffmpeg not found on PATH; audio transcription will fail")
	}
	rt, err := a.runtimeClient()
	if err != nil {
		return err
	}

	var (
		j   *journal.Journal
		rec workflow.TaskRecorder
	)
	if a.cfg.JournalPath != "" {
		j, err = journal.Open(a.cfg.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		rec = j
		a.log.Info().Str("path", a.cfg.JournalPath).Msg("task journal enabled")
	}

	poller := workflow.NewPoller(a.workflowClient(), workflow.PollerConfig{
		PollInterval: a.cfg.PollingInterval(),
		RetryDelay:   a.cfg.RetryDelay(),
		Sleep:        a.sleep,
		Recorder:     rec,
		Log:          a.log.With().Str("component", "poller").Logger(),
	})
	processors.Register(poller, rt, a.cfg, a.log.With().Str("component", "processors").Logger())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpapi.SetLogger(a.log.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxTasksLimit(a.cfg.TasksMaxLimit)
	httpapi.SetCORSOptions(len(a.cfg.CORSOrigins) > 0, a.cfg.CORSOrigins,
		[]string{http.MethodGet, http.MethodOptions}, []string{"Accept", "Content-Type"})
	svc := newStatusService(a.cfg, poller, j)

	srvErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.StatusAddr).Msg("status server listening")
		err := httpapi.ListenAndServe(ctx, a.cfg.StatusAddr, httpapi.NewMux(svc), shutdownGrace)
		if err != nil {
			a.log.Error().Err(err).Msg("status server failed")
			cancel()
		}
		srvErr <- err
	}()

	_ = poller.Run(ctx)
	cancel()
	return <-srvErr
}
