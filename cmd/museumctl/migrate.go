package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"museum-ticketing-platform/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.NewMigrator(e.db.DB, e.logger).RunMigrations(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("All migrations applied")
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which migrations have been applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := database.NewMigrator(e.db.DB, e.logger).Status(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			for _, s := range status {
				fmt.Fprintf(w, "%03d\t%s\t%t\n", s.Version, s.Name, s.Applied)
			}
			return w.Flush()
		},
	})

	return cmd
}
