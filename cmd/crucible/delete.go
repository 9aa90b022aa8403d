package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Write a null-typed tombstoning entry at --scope/<key>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		version, err := store.Delete(rootCtx, scopeFlag, args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(version)
			return nil
		}
		fmt.Printf("deleted %s/%s as author %s\n", scopeFlag, args[0], version.AuthorID)
		return nil
	},
}
