package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xArchitect/ludo-backend/internal/app"
	"github.com/0xArchitect/ludo-backend/internal/chain"
	"github.com/0xArchitect/ludo-backend/internal/config"
	"github.com/0xArchitect/ludo-backend/internal/db"
	"github.com/0xArchitect/ludo-backend/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "ledgerd",
	Short:         "Ludo balance ledger and on-chain reconciliation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run reconciler, reaper and monitoring loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
			if err := runMigrations(ctx, cfg, logger); err != nil {
				return err
			}
		}

		container, err := app.NewServiceContainer(ctx, cfg, logger, app.ModeServe)
		if err != nil {
			return err
		}
		defer container.Close()
		return container.Run(ctx)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconcile pass over deposit and withdraw events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		kinds, err := parseKinds(cmd)
		if err != nil {
			return err
		}

		container, err := app.NewServiceContainer(cmd.Context(), cfg, logger, app.ModeWorker)
		if err != nil {
			return err
		}
		defer container.Close()

		for _, kind := range kinds {
			result, err := container.Reconciler.ReconcileOnce(cmd.Context(), kind)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", kind, err)
			}
			fmt.Printf("%-8s blocks [%d, %d) applied=%d skipped=%d failed=%d\n",
				kind, result.From, result.To, result.Applied, result.Skipped, result.Failed)
		}
		return nil
	},
}

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Resolve pending withdrawals older than the pending timeout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		container, err := app.NewServiceContainer(cmd.Context(), cfg, logger, app.ModeWorker)
		if err != nil {
			return err
		}
		defer container.Close()

		result, err := container.Reaper.ReapOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("scanned=%d confirmed=%d reversed=%d skipped=%d stuck=%d\n",
			result.Scanned, result.Confirmed, result.Reversed, result.Skipped, result.Stuck)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger tables and apply data migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		return runMigrations(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default config.yaml, or config.local.yaml when present)")
	serveCmd.Flags().Bool("migrate", false, "run migrations before serving")
	reconcileCmd.Flags().String("kind", "all", "event stream: deposit, withdraw or all")

	rootCmd.AddCommand(serveCmd, reconcileCmd, reapCmd, migrateCmd)
}

func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format), nil
}

func runMigrations(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	gdb, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	return db.Migrate(ctx, gdb, logger)
}

func parseKinds(cmd *cobra.Command) ([]chain.EventKind, error) {
	kind, _ := cmd.Flags().GetString("kind")
	switch kind {
	case "all":
		return []chain.EventKind{chain.EventKindDeposit, chain.EventKindWithdrawal}, nil
	case string(chain.EventKindDeposit):
		return []chain.EventKind{chain.EventKindDeposit}, nil
	case string(chain.EventKindWithdrawal):
		return []chain.EventKind{chain.EventKindWithdrawal}, nil
	default:
		return nil, fmt.Errorf("unknown --kind %q", kind)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		stop()
		os.Exit(1)
	}
}
