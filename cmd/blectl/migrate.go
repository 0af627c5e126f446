package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hbl-templ/bakerloo-line-extension/internal/db"
	"github.com/hbl-templ/bakerloo-line-extension/internal/migrate"
)

func migrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := db.Open(e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer e.closeStore(conn)

			applied, err := migrate.Run(conn)
			for _, m := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s_%s\n", m.Version, m.Name)
			}
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations not yet applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := db.Open(e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer e.closeStore(conn)

			todo, err := migrate.Pending(conn)
			if err != nil {
				return err
			}
			if len(todo) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}
			for _, m := range todo {
				fmt.Fprintf(cmd.OutOrStdout(), "pending %s_%s\n", m.Version, m.Name)
			}
			return nil
		},
	})
	return cmd
}
