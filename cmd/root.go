// ABOUTME: Root cobra command and shared CLI state
// ABOUTME: Loads settings, configures logging and runs commands alongside the metrics endpoint
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-engine/internal/config"
	"github.com/Resonate-Protocol/resonate-engine/internal/metrics"
	"github.com/Resonate-Protocol/resonate-engine/internal/version"
	"github.com/Resonate-Protocol/resonate-engine/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// app is the state shared by all subcommands
type app struct {
	v          *viper.Viper
	configFile string
	settings   *config.Settings
	registry   *prometheus.Registry
	logCloser  io.Closer
}

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	a := &app{v: config.New(), registry: prometheus.NewRegistry()}

	rootCmd := &cobra.Command{
		Use:           "resonate-engine",
		Short:         "Low-latency audio streaming engine",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate(version.String() + "\n")

	if err := setupFlags(rootCmd, a); err != nil {
		// flag names are static, so this only fires on a programming error
		panic(err)
	}

	rootCmd.AddCommand(
		toneCommand(a),
		playCommand(a),
		recordCommand(a),
		formatsCommand(a),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.initialize(cmd.ErrOrStderr())
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if a.logCloser != nil {
			return a.logCloser.Close()
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, a *app) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Settings file (default ./resonate-engine.yaml)")
	flags.String("backend", "sim", "Device backend (sim, oss, malgo, oto)")
	flags.String("device", "default", "Device id passed to the backend")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.String("log-file", "", "Append logs to this file instead of stderr")
	flags.String("metrics-listen", "", "Serve Prometheus metrics on this address, e.g. :9100")
	flags.Bool("exclusive", false, "Open streams in exclusive mode")
	flags.Duration("buffer", 0, "Stream buffer duration (default from settings, 100ms)")

	bindings := map[string]string{
		"backend":          "backend",
		"device":           "device",
		"log.level":        "log-level",
		"log.format":       "log-format",
		"log.file":         "log-file",
		"metrics.listen":   "metrics-listen",
		"engine.exclusive": "exclusive",
		"engine.buffer":    "buffer",
	}
	for key, name := range bindings {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// initialize loads settings and configures logging before any subcommand runs
func (a *app) initialize(stderr io.Writer) error {
	settings, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.settings = settings

	out, closer, err := settings.LogOutput(stderr)
	if err != nil {
		return err
	}
	a.logCloser = closer
	if err := settings.ConfigureLogging(out); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"version": version.Version,
		"backend": settings.Backend,
		"device":  settings.Device,
	}).Debug("Settings loaded")
	return nil
}

// manager creates the audio subsystem for the configured backend
func (a *app) manager() (*client.Manager, error) {
	opener, err := a.settings.Opener()
	if err != nil {
		return nil, err
	}
	return client.NewManager(a.settings.ClientConfig(a.registry), opener)
}

// run executes fn alongside the optional metrics endpoint. The endpoint is
// shut down once fn returns; a cancelled context is a normal exit.
func (a *app) run(ctx context.Context, fn func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if listen := a.settings.Metrics.Listen; listen != "" {
		g.Go(func() error {
			return metrics.Serve(runCtx, listen, a.registry)
		})
	}
	g.Go(func() error {
		defer cancel()
		return fn(runCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Execute runs the root command with ctx, printing any error
func Execute(ctx context.Context) int {
	root := RootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
