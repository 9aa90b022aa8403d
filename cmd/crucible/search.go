package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a full-text query over text entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		keys, err := store.SearchText(rootCtx, args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(keys)
			return nil
		}
		for _, k := range keys {
			fmt.Printf("%s\t%s\n", k.Scope, k.Name)
		}
		return nil
	},
}
