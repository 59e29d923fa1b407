// Package cli implements the irishnsw command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sanonone/irishnsw/pkg/config"
	"github.com/sanonone/irishnsw/pkg/engine"
	"github.com/sanonone/irishnsw/pkg/logging"
	"github.com/spf13/cobra"
)

// app holds the state shared by every subcommand.
type app struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
	dataDir    string
	fast       bool

	cfg    config.Config
	logger *slog.Logger
	out    io.Writer
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(os.Stdout).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree writing results to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "irishnsw",
		Short: "HNSW index for iris biometric templates",
		Long: `irishnsw builds and queries a hierarchical navigable small world graph
over bit-packed iris templates compared by masked fractional Hamming distance,
minimized over column rotations.

Configuration is read from a YAML file, then a .env file and IRISHNSW_*
environment variables, then command line flags.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before IRISHNSW_* overrides")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&a.dataDir, "data-dir", "", "directory holding the snapshot and journal")
	pf.BoolVar(&a.fast, "fast", false, "use the reduced 2x16x50 template shape")

	root.AddCommand(
		a.generateCmd(),
		a.searchCmd(),
		a.experimentCmd(),
		a.statsCmd(),
		a.serveCmd(),
	)
	return root
}

// setup loads the configuration, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(&cfg, a.envFile); err != nil {
		return err
	}

	if a.fast {
		cfg.UseFastIris()
	}
	if a.dataDir != "" {
		cfg.Storage.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), logging.Format(cfg.Log.Format), level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	return nil
}

// openEngine opens the configured database. Short-lived commands pass
// background=false to skip the auto-save loop.
func (a *app) openEngine(background bool) (*engine.Engine, error) {
	opts, err := engine.OptionsFromConfig(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	if !background {
		opts.AutoSaveInterval = 0
	}
	return engine.Open(opts)
}
