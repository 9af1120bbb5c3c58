package main

import (
	"context"
	"fmt"
	"os"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/database"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var Version = "dev"

// env is built once per command invocation by the root's PersistentPreRunE
type env struct {
	cfg    *config.Config
	db     *database.DB
	logger *logrus.Logger
}

func (e *env) close() {
	if e.db != nil {
		e.db.Close()
	}
}

func main() {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "museumctl",
		Short:         "Operator tooling for the museum ticketing service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		e.cfg = cfg

		e.logger = logrus.New()
		e.logger.SetOutput(os.Stderr)
		e.logger.SetLevel(logrus.WarnLevel)
		if verbose {
			e.logger.SetLevel(logrus.DebugLevel)
		}

		if cmd.Annotations["db"] == "none" {
			return nil
		}

		db, err := database.NewConnection(cmd.Context(), cfg.Database.ConnectionString(), database.PoolConfig{
			MaxOpenConns: 4,
			MaxIdleConns: 1,
		})
		if err != nil {
			return err
		}
		e.db = db
		return nil
	}

	rootCmd.AddCommand(migrateCmd(e))
	rootCmd.AddCommand(sweepCmd(e))
	rootCmd.AddCommand(reconcileCmd(e))
	rootCmd.AddCommand(ticketsCmd(e))
	rootCmd.AddCommand(webhooksCmd(e))
	rootCmd.AddCommand(tokenCmd(e))
	rootCmd.AddCommand(storageCmd(e))

	err := rootCmd.ExecuteContext(context.Background())
	e.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
