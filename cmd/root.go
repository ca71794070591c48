package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/app"
	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/logging"
)

const closeTimeout = 10 * time.Second

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the services the commands use. Tests inject a fake through
// newApp.
type App interface {
	Logger() *zap.Logger
	Store() catalog.Store
	Crawl(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog-crawler",
		Short: "Crawls the paginated movie catalog into a document store.",
		Long: `catalog-crawler walks the site's listing pages from the stored checkpoint
down to page 1, upserting one record per item and the download variants found
on its detail page. Progress is checkpointed after every page so an
interrupted crawl resumes where it stopped.`,
		SilenceUsage: true,

		// Builds the application and stores it in the context for subcommands.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newCheckpointCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp resolves the App and closes it once fn returns. Cobra skips
// post-run hooks when RunE fails, so the close happens here.
func withApp(fn func(cmd *cobra.Command, a App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if cerr := a.Close(ctx); cerr != nil {
				a.Logger().Warn("failed to close application", zap.Error(cerr))
			}
		}()
		return fn(cmd, a, args)
	}
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		_ = zap.L().Sync()
		os.Exit(1)
	}
	_ = zap.L().Sync()
}
