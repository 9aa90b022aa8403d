package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print entry, tombstone, and author counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		stats, err := store.Statistics(rootCtx)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(stats)
			return nil
		}
		fmt.Printf("entries:    %d\n", stats.EntryCount)
		fmt.Printf("tombstones: %d\n", stats.TombstoneCount)
		fmt.Printf("authors:    %d\n", stats.AuthorCount)
		if !stats.Consistent {
			fmt.Println("warning: author table is inconsistent (an author's recorded usn is behind an entry it owns)")
		}
		return nil
	},
}
