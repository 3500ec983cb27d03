// Package cmd defines the lakeingest command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/api"
	"github.com/JakeFAU/lakeingest/internal/app"
	"github.com/JakeFAU/lakeingest/internal/config"
	"github.com/JakeFAU/lakeingest/internal/logging"
	"github.com/JakeFAU/lakeingest/internal/metrics"
)

// runtimeKeyType is the key for storing the runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime is what every subcommand gets from PersistentPreRunE.
type runtime struct {
	app        *app.App
	stopServer context.CancelFunc
	serverDone chan error
}

// newApp is the application factory. It's a variable so tests can inject
// in-memory dependencies.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "lakeingest",
		Short: "Stage API extracts in a data lake and rebuild curated Parquet partitions.",
		Long: `lakeingest pulls incremental extracts from configured HTTP APIs into an
immutable raw zone, then rebuilds one normalized Parquet partition per source
and process date in the curated zone. The two steps run independently.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			metrics.Init()

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			rt := &runtime{app: appInstance}
			if cfg.Metrics.ListenAddr != "" {
				rt.startServer(cmd.Context(), cfg.Metrics.ListenAddr)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, rt))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newTransformCmd())
	return cmd
}

func (rt *runtime) startServer(ctx context.Context, addr string) {
	srvCtx, cancel := context.WithCancel(ctx)
	rt.stopServer = cancel
	rt.serverDone = make(chan error, 1)
	var opts []api.Option
	if h := rt.app.History(); h != nil {
		opts = append(opts, api.WithRunHistory(h))
	}
	server := api.NewServer(rt.app.Ready, rt.app.Logger().Named("api"), opts...)
	go func() {
		rt.serverDone <- server.ListenAndServe(srvCtx, addr)
	}()
}

func (rt *runtime) close() {
	if rt.stopServer != nil {
		rt.stopServer()
		if err := <-rt.serverDone; err != nil {
			rt.app.Logger().Warn("Metrics server stopped with error", zap.Error(err))
		}
	}
	rt.app.Close()
}

// withRuntime hands run the runtime built by PersistentPreRunE and closes
// it afterwards. Cobra skips post-run hooks when RunE fails, so cleanup
// lives here.
func withRuntime(run func(cmd *cobra.Command, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		rt, ok := cmd.Context().Value(runtimeKey).(*runtime)
		if !ok || rt == nil {
			return errors.New("application services not initialized")
		}
		defer rt.close()
		return run(cmd, rt)
	}
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lakeingest: %v\n", err)
		os.Exit(1)
	}
}
