package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shorts_pipeline/internal/config"
	"shorts_pipeline/internal/storage/sqldb"
)

func newShowCommand(load func() (*config.Config, error)) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show <table>",
		Short: "Print stored rows of a table",
		Long:  "Print stored rows of one of: " + strings.Join(sqldb.Tables(), ", "),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			db, err := sqldb.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			rows, err := sqldb.NewStore(db).ReadTable(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRows(rows))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of rows, 0 for all")
	return cmd
}
