// Command admin is the operator CLI: schema migrations and admin accounts.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"taskmanager/api/internal/config"
	"taskmanager/api/internal/database"
	"taskmanager/api/internal/log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Operator tasks for the task manager API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newPromoteCommand())
	root.AddCommand(newCreateAdminCommand())
	return root
}

// env is what every subcommand needs once config has loaded.
type env struct {
	cfg    *config.AppConfig
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:    cfg,
		pool:   pool,
		logger: log.New(cfg.Environment, cfg.LogLevel).With().Str("component", "admin-cli").Logger(),
	}, nil
}

func (e *env) Close() {
	e.pool.Close()
}
