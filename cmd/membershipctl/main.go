// Command membershipctl runs membership metric operations from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/app"
	"github.com/wekeepgrowing/semo-membership/internal/config"
	"github.com/wekeepgrowing/semo-membership/pkg/logger"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "membershipctl",
		Short:         "Membership lifecycle and revenue metrics tooling",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configPath != "" {
				os.Setenv("CONFIG_PATH", configPath)
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or ./configs/membership.yaml)")

	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(migrateCmd())

	return rootCmd
}

// withApp loads configuration, builds the application and runs fn with it.
func withApp(fn func(a *app.App) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	zapLogger, err := logger.NewZapLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer zapLogger.Sync()

	a, err := app.New(cfg, zapLogger.With(zap.String("service", cfg.Service.Name+"-ctl")))
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}
