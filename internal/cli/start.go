package cli

import (
	"context"
	"fmt"
	"time"

	"workflowd/internal/bootstrap"
	"workflowd/internal/config"
	"workflowd/internal/ollama"
	"workflowd/internal/registry"
	"workflowd/internal/workflow"
)

const runtimeStopGrace = 2 * time.Second

func (a *app) runtimeClient() (*ollama.Client, error) {
	return ollama.NewClient(a.cfg.OllamaBaseURL, nil, a.log.With().Str("component", "ollama").Logger())
}

func (a *app) gate() *bootstrap.Gate {
	return &bootstrap.Gate{
		Attempts: a.cfg.ReadyMaxAttempts,
		Interval: a.cfg.ReadyInterval(),
		Sleep:    a.sleep,
		Log:      a.log.With().Str("component", "readiness").Logger(),
	}
}

func (a *app) workflowClient() *workflow.Client {
	return workflow.NewClient(workflow.ClientConfig{
		BaseURL:    a.cfg.APIURL,
		ServerKey:  a.cfg.ServerKey,
		Slug:       a.cfg.Slug,
		ServerName: a.cfg.ServerName,
		MaxRetries: a.cfg.MaxRetries,
		RetryDelay: a.cfg.RetryDelay(),
		Sleep:      a.sleep,
		Log:        a.log.With().Str("component", "workflow").Logger(),
	})
}

// serverCommand is SERVER_CMD when set, otherwise this binary's serve
// subcommand with the same --config.
func (a *app) serverCommand() ([]string, error) {
	if a.cfg.ServerCmd != "" {
		argv := bootstrap.ParseCommand(a.cfg.ServerCmd)
		if len(argv) == 0 {
			return nil, fmt.Errorf("SERVER_CMD is blank")
		}
		return argv, nil
	}
	argv, err := bootstrap.DefaultCommand()
	if err != nil {
		return nil, err
	}
	if a.cfgPath != "" {
		argv = append(argv, "--config", a.cfgPath)
	}
	return argv, nil
}

func (a *app) runStart(ctx context.Context, noRuntime bool) error {
	rt, err := a.runtimeClient()
	if err != nil {
		return err
	}
	argv, err := a.serverCommand()
	if err != nil {
		return err
	}
	wf := a.workflowClient()

	seq := &bootstrap.Sequence{
		Gate:       a.gate(),
		ReadyName:  "ollama",
		ReadyURL:   rt.TagsURL(),
		Reconciler: &bootstrap.Reconciler{Runtime: rt, Log: a.log.With().Str("component", "models").Logger()},
		Models:     registry.Required(a.cfg),
		Registration: &bootstrap.RegistrationGate{
			Registrar: bootstrap.RegistrarFunc(func(ctx context.Context) (string, error) {
				reg, err := wf.Register(ctx)
				return reg.ServerKey, err
			}),
			Placeholder: a.cfg.ServerKeyPlaceholder,
			EnvFile:     a.cfg.EnvFile,
			Persist:     config.SetEnvFileKey,
			Log:         a.log.With().Str("component", "registration").Logger(),
		},
		ServerKey: a.cfg.ServerKey,
		Handoff:   bootstrap.Handoff{Argv: argv, Exec: a.exec},
		Log:       a.log,
	}
	if !noRuntime {
		pc := ollama.Serve(a.cfg.OllamaBin)
		pc.StopGrace = runtimeStopGrace
		seq.Launch = func() (bootstrap.Background, error) {
			return a.launch(pc, a.log.With().Str("component", "runtime").Logger())
		}
	}
	a.log.Info().Str("version", Version).Strs("models", seq.Models).Msg("starting")
	return seq.Run(ctx)
}

func (a *app) runModelsEnsure(ctx context.Context) error {
	rt, err := a.runtimeClient()
	if err != nil {
		return err
	}
	if err := a.gate().Wait(ctx, "ollama", rt.TagsURL()); err != nil {
		return err
	}
	rec := &bootstrap.Reconciler{Runtime: rt, Log: a.log.With().Str("component", "models").Logger()}
	pulled, err := rec.Ensure(ctx, registry.Required(a.cfg))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "models ready (%d pulled)\n", len(pulled))
	return nil
}

func (a *app) runModelsList(ctx context.Context) error {
	rt, err := a.runtimeClient()
	if err != nil {
		return err
	}
	inv, err := rt.Models(ctx)
	if err != nil {
		return err
	}
	required := registry.Required(a.cfg)
	for _, name := range inv.Names() {
		fmt.Fprintln(a.out, name)
	}
	for _, name := range required {
		if !inv.Has(name) {
			fmt.Fprintf(a.out, "%s (missing)\n", name)
		}
	}
	return nil
}

func (a *app) runRegister(ctx context.Context, persist bool) error {
	reg, err := a.workflowClient().Register(ctx)
	if err != nil {
		return err
	}
	if persist {
		if err := config.SetEnvFileKey(a.cfg.EnvFile, "SERVER_KEY", reg.ServerKey); err != nil {
			return err
		}
		a.log.Info().Str("env_file", a.cfg.EnvFile).Msg("server key stored")
	}
	fmt.Fprintf(a.out, "SERVER_KEY=%s\n", reg.ServerKey)
	return nil
}
