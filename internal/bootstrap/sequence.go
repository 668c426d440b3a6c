package bootstrap

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"
)

// Background is a launched runtime process.
type Background interface {
	Exited() <-chan struct{}
	Err() error
	StderrTail() string
	Stop() error
}

// Sequence is the startup order: launch runtime, wait for it, reconcile
// models, register, hand off. Any fatal step stops the runtime and returns.
type Sequence struct {
	// Launch starts the runtime; nil means it is managed elsewhere.
	Launch       func() (Background, error)
	Gate         *Gate
	ReadyName    string
	ReadyURL     string
	Reconciler   *Reconciler
	Models       []string
	Registration *RegistrationGate
	ServerKey    string
	Handoff      Handoff
	Log          zerolog.Logger
}

// Run executes the sequence. With a real exec handoff it does not return on success.
func (s *Sequence) Run(ctx context.Context) (err error) {
	var bg Background
	if s.Launch != nil {
		bg, err = s.Launch()
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				if serr := bg.Stop(); serr != nil {
					s.Log.Warn().Err(serr).Msg("stop runtime")
				}
			}
		}()
		var cancel context.CancelCauseFunc
		ctx, cancel = context.WithCancelCause(ctx)
		defer cancel(nil)
		go func() {
			select {
			case <-bg.Exited():
				cancel(runtimeExitedError{err: bg.Err(), tail: bg.StderrTail()})
			case <-ctx.Done():
			}
		}()
	}
	fail := func(err error) error {
		if cause := context.Cause(ctx); cause != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return cause
		}
		return err
	}

	if s.Gate != nil {
		if err := s.Gate.Wait(ctx, s.ReadyName, s.ReadyURL); err != nil {
			return fail(err)
		}
	}
	if s.Reconciler != nil && len(s.Models) > 0 {
		if _, err := s.Reconciler.Ensure(ctx, s.Models); err != nil {
			return fail(err)
		}
	}
	key := s.ServerKey
	if s.Registration != nil {
		var registered bool
		key, registered = s.Registration.Run(ctx, key)
		if registered {
			base := s.Handoff.Env
			if base == nil {
				base = os.Environ()
			}
			s.Handoff.Env = WithEnv(base, map[string]string{"SERVER_KEY": key})
		}
	}
	if ctx.Err() != nil {
		return fail(ctx.Err())
	}
	s.Log.Info().Strs("argv", s.Handoff.Argv).Msg("handing off to server")
	return s.Handoff.Run()
}
