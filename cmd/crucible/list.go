package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crucible-db/crucible/internal/sqlitestore"
)

var keyPrefixFlag string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every live key, optionally narrowed by --scope and --prefix",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		filter := sqlitestore.KeyFilter{}
		if scopeFlag != "" {
			filter.Scope = &scopeFlag
		}
		if keyPrefixFlag != "" {
			filter.KeyPrefix = &keyPrefixFlag
		}

		keys, err := store.Keys(rootCtx, filter)
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

func init() {
	listCmd.Flags().StringVar(&keyPrefixFlag, "prefix", "", "only list keys with this prefix")
}
