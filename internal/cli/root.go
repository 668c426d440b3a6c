// Package cli wires the workflowd command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"workflowd/internal/bootstrap"
	"workflowd/internal/config"
	"workflowd/internal/ollama"
)

// Version is stamped at build time with -ldflags "-X workflowd/internal/cli.Version=...".
var Version = "dev"

// app carries the resolved configuration and the seams tests replace.
type app struct {
	cfgPath   string
	logLevel  string
	logFormat string

	cfg      config.Config
	log      zerolog.Logger
	closeLog func() error

	out    io.Writer
	errOut io.Writer

	exec   bootstrap.ExecFunc
	launch func(pc ollama.ProcessConfig, log zerolog.Logger) (bootstrap.Background, error)
	sleep  bootstrap.SleepFunc
}

func newApp() *app {
	return &app{
		out:    os.Stdout,
		errOut: os.Stderr,
		launch: func(pc ollama.ProcessConfig, log zerolog.Logger) (bootstrap.Background, error) {
			p, err := ollama.Start(pc, log)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

// Execute runs the command tree against os.Args and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a := newApp()
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(a.errOut, "error:", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "workflowd",
		Short:         "Local inference worker: runtime bootstrap, registration and task polling",
		SilenceUsage:  true,
		SilenceErrors: true,
		// No subcommand behaves like start, which is what the container runs.
		RunE: func(cmd *cobra.Command, args []string) error { return a.runStart(cmd.Context(), false) },
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Config file (.yaml, .json, .toml); defaults to CONFIG_FILE")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: console|json (defaults LOG_FORMAT or console)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return a.setup()
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if a.closeLog != nil {
			return a.closeLog()
		}
		return nil
	}

	var noRuntime bool
	start := &cobra.Command{
		Use:   "start",
		Short: "Start the runtime, ensure models, register if needed, then exec the server",
		Example: "  workflowd start\n" +
			"  SERVER_CMD='workflowd serve --log-format json' workflowd start",
		RunE: func(cmd *cobra.Command, args []string) error { return a.runStart(cmd.Context(), noRuntime) },
	}
	start.Flags().BoolVar(&noRuntime, "no-runtime", false, "Do not launch the runtime; wait for an external one")
	root.AddCommand(start)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Poll the workflow API and process tasks",
		RunE:  func(cmd *cobra.Command, args []string) error { return a.runServe(cmd.Context()) },
	})

	var noPersist bool
	register := &cobra.Command{
		Use:   "register",
		Short: "Register this server with the workflow API and store the issued key",
		RunE:  func(cmd *cobra.Command, args []string) error { return a.runRegister(cmd.Context(), !noPersist) },
	}
	register.Flags().BoolVar(&noPersist, "no-persist", false, "Print the key without writing it to the env file")
	root.AddCommand(register)

	models := &cobra.Command{
		Use:   "models",
		Short: "Inspect and reconcile the runtime model inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("models requires a subcommand: ensure|list")
		},
	}
	models.AddCommand(
		&cobra.Command{
			Use:   "ensure",
			Short: "Wait for the runtime and pull every missing required model",
			RunE:  func(cmd *cobra.Command, args []string) error { return a.runModelsEnsure(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the models the runtime has locally",
			RunE:  func(cmd *cobra.Command, args []string) error { return a.runModelsList(cmd.Context()) },
		},
	)
	root.AddCommand(models)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run:   func(cmd *cobra.Command, args []string) { fmt.Fprintln(cmd.OutOrStdout(), "workflowd", Version) },
	})
	return root
}

// setup resolves configuration and installs the logger. Flags beat the environment.
func (a *app) setup() error {
	cfg, err := config.Resolve(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	log, closer, err := newLogger(cfg, a.errOut)
	if err != nil {
		return err
	}
	a.cfg, a.log, a.closeLog = cfg, log, closer
	return nil
}
