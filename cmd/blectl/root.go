package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hbl-templ/bakerloo-line-extension/internal/config"
	"github.com/hbl-templ/bakerloo-line-extension/internal/db"
	"github.com/hbl-templ/bakerloo-line-extension/internal/logging"
	"github.com/hbl-templ/bakerloo-line-extension/internal/migrate"
)

const appName = "blectl"

var version = "dev"

// env is filled by the root command before any subcommand runs.
type env struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Bakerloo Line Extension dashboard tooling",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = logging.NewTo(cmd.ErrOrStderr(), cfg, version, appName)
			return nil
		},
	}

	rootCmd.AddCommand(migrateCmd(e))
	rootCmd.AddCommand(stationsCmd(e))
	rootCmd.AddCommand(tableCmd(e))
	rootCmd.AddCommand(importCmd(e))
	rootCmd.AddCommand(invalidateCmd(e))
	return rootCmd
}

// openStore opens the database with the schema brought up to date.
func (e *env) openStore(ctx context.Context) (*sql.DB, error) {
	conn, err := db.Open(e.cfg, e.logger)
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Run(conn)
	for _, m := range applied {
		e.logger.Info("migration applied", "version", m.Version, "name", m.Name)
	}
	if err != nil {
		_ = db.Close(conn)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = db.Close(conn)
		return nil, err
	}
	return conn, nil
}

func (e *env) closeStore(conn *sql.DB) {
	if err := db.Close(conn); err != nil {
		e.logger.Error("db close", "error", err)
	}
}
