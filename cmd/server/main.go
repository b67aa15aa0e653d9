package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/simaogato/cardguard-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/cardguard-backend/internal/config"
	"github.com/simaogato/cardguard-backend/internal/logging"
	"github.com/simaogato/cardguard-backend/internal/usecase/seeder"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "cardguard",
		Short:         "Card control validation and instrument lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (default: ./config.yaml if present)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the gRPC API and the admin HTTP server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, logger, err := bootstrap(configPath)
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck

				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				return serve(ctx, cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, logger, err := bootstrap(configPath)
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck

				return migrate(cmd.Context(), cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Create the demo cards in the database and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, logger, err := bootstrap(configPath)
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck

				return seed(cmd.Context(), cfg, logger)
			},
		},
	)

	return root
}

func bootstrap(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Environment, cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	return cfg, logger, nil
}

func migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires database.driver %q, got %q", config.DriverPostgres, cfg.Database.Driver)
	}

	db, err := postgres.NewDB(ctx, cfg.Database.ConnectionString(), cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	logger.Info("migrations applied")
	return nil
}

func seed(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("seed requires database.driver %q, got %q", config.DriverPostgres, cfg.Database.Driver)
	}

	db, err := postgres.NewDB(ctx, cfg.Database.ConnectionString(), cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()

	created, err := seeder.NewDemoSeeder(postgres.NewCardRepository(db), postgres.NewUnitOfWork(db)).Seed(ctx)
	if err != nil {
		return err
	}

	logger.Info("demo cards seeded", zap.Int("created", created))
	return nil
}
