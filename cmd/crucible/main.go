// Command crucible is a CLI for inspecting and reconciling crucible
// key-value stores: read, write, search, merge two files together, and
// erase version history before handing a file to someone outside your
// replica set.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crucible-db/crucible/internal/appversion"
	"github.com/crucible-db/crucible/internal/config"
	"github.com/crucible-db/crucible/internal/engine"
)

var (
	dbPath     string
	scopeFlag  string
	jsonOutput bool

	cfg    config.Config
	rootCtx context.Context
	cancel  context.CancelFunc
)

const appID = "crucible-cli"

func expectedAppVersion() appversion.Expected {
	return appversion.Expected{
		ID:          appID,
		Major:       cfg.AppMajor,
		Minor:       cfg.AppMinor,
		Description: "crucible CLI",
	}
}

var rootCmd = &cobra.Command{
	Use:   "crucible",
	Short: "Inspect and reconcile crucible CRDT key-value stores",
	Long: `crucible opens, queries, and merges the embedded SQLite files this
module's engine package produces. Every subcommand opens the file named by
--db (or the configured default), does its work in one short-lived Store,
and closes it again — there is no long-running daemon.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		resolved, v, err := config.Load()
		if err != nil {
			return err
		}
		cfg = resolved

		if !cmd.Flags().Changed("db") && v.IsSet("database_path") {
			dbPath = v.GetString("database_path")
		}
		if dbPath == "" {
			dbPath = cfg.DatabasePath
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cancel()
	},
}

func openStore() (*engine.Store, error) {
	return engine.Open(rootCtx, engine.Options{
		Path:       dbPath,
		AppID:      expectedAppVersion(),
		AuthorName: cfg.AuthorName,
		Logger:     slog.Default(),
	})
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "crucible: "+format+"\n", args...)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the crucible database file")
	rootCmd.PersistentFlags().StringVar(&scopeFlag, "scope", "", "restrict the operation to one scope")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")

	rootCmd.AddCommand(statsCmd, listCmd, getCmd, putCmd, deleteCmd, searchCmd, eraseVersionHistoryCmd, mergeCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
