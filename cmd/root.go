package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/officer-crawler/internal/aggregate"
	"github.com/JakeFAU/officer-crawler/internal/app"
	"github.com/JakeFAU/officer-crawler/internal/config"
	"github.com/JakeFAU/officer-crawler/internal/crawler"
	"github.com/JakeFAU/officer-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the services the commands use. Tests inject a fake through
// newApp.
type App interface {
	Logger() *zap.Logger
	Config() config.Config
	Plan(ctx context.Context) ([]crawler.SearchUnit, crawler.Partition, error)
	Crawl(ctx context.Context, opts app.CrawlOptions) (app.CrawlReport, error)
	Aggregate(ctx context.Context) (aggregate.Report, error)
	Close(ctx context.Context)
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// appHolder keeps the App built for the running command so it is closed even
// when the command fails and cobra skips the post-run hooks.
type appHolder struct {
	app App
}

func (h *appHolder) close(ctx context.Context) {
	if h.app == nil {
		return
	}
	h.app.Close(ctx)
	// Sync fails on non-file stderr; nothing left to report it to.
	_ = h.app.Logger().Sync()
	h.app = nil
}

// newRootCmd creates and configures the root command.
func newRootCmd(holder *appHolder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "officer-crawler",
		Short: "Collects company officer appointments from the public registry.",
		Long: `officer-crawler searches the company registry for officers matching a list
of given names, records every appointment it finds as one checkpoint per
search term, and publishes the combined officer and appointment tables.

Interrupted runs resume where they left off: search terms with a checkpoint
are never crawled again unless named with --redo.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfgFile, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := applyFlagOverrides(cmd, &cfg); err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			holder.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			holder.close(cmd.Context())
		},
	}

	cmd.PersistentFlags().String("config", "", "path to the config file")

	cmd.AddCommand(newCrawlCmd(), newAggregateCmd(), newUnitsCmd())
	return cmd
}

// applyFlagOverrides copies explicitly set command flags onto cfg and
// re-validates it.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		v, err := flags.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Crawler.Concurrency = v
	}
	if flags.Changed("max-pages") {
		v, err := flags.GetInt("max-pages")
		if err != nil {
			return err
		}
		cfg.Crawler.MaxPages = v
	}
	if flags.Changed("names-file") {
		v, err := flags.GetString("names-file")
		if err != nil {
			return err
		}
		cfg.Units.NamesFile = v
	}
	return cfg.Validate()
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	var holder appHolder
	root := newRootCmd(&holder)
	root.SetArgs(args)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	holder.close(ctx)
	return err
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
