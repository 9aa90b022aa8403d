package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var eraseVersionHistoryCmd = &cobra.Command{
	Use:   "erase-version-history",
	Short: "Collapse every author onto this session, discarding all version history",
	Long: `Rewrites every entry onto the current session's author and drops every
other author row and every tombstone. The resulting file reads as if a
single author had always written it. This is irreversible and should only
be run on a file you are about to hand to a party you don't want learning
who wrote what.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.EraseVersionHistory(rootCtx); err != nil {
			return err
		}
		fmt.Println("version history erased")
		return nil
	},
}
