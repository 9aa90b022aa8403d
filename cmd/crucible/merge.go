package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/crucible-db/crucible/internal/engine"
	"github.com/crucible-db/crucible/internal/record"
)

var dryRunFlag bool

var mergeCmd = &cobra.Command{
	Use:   "merge <source-db>",
	Short: "Pull every record --db needs from source-db",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = dest.Close() }()

		source, err := engine.Open(rootCtx, engine.Options{
			Path:       args[0],
			AppID:      expectedAppVersion(),
			AuthorName: cfg.AuthorName,
			Logger:     slog.Default(),
		})
		if err != nil {
			return fmt.Errorf("open merge source %q: %w", args[0], err)
		}
		defer func() { _ = source.Close() }()

		if dryRunFlag {
			result, err := dest.MergeDryRun(rootCtx, source)
			if err != nil {
				return err
			}
			return printMergeResult(result, true)
		}

		result, err := dest.Merge(rootCtx, source)
		if err != nil {
			return err
		}
		return printMergeResult(result, false)
	},
}

func init() {
	mergeCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "report what would change without writing anything")
}

func printMergeResult(changed []record.Key, dryRun bool) error {
	if jsonOutput {
		outputJSON(struct {
			DryRun  bool          `json:"dry_run"`
			Changed []record.Key `json:"changed"`
		}{DryRun: dryRun, Changed: changed})
		return nil
	}

	verb := "changed"
	if dryRun {
		verb = "would change"
	}
	if len(changed) == 0 {
		fmt.Printf("nothing %s\n", verb)
		return nil
	}
	for _, k := range changed {
		fmt.Printf("%s\t%s\n", k.Scope, k.Name)
	}
	fmt.Printf("%d key(s) %s\n", len(changed), verb)
	return nil
}
