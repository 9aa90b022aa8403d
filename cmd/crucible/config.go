package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get or set per-file settings that live outside the CRDT data model",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value of a per-file setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		value, ok, err := store.LocalSetting(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(struct {
				Key   string `json:"key"`
				Value string `json:"value"`
				Found bool   `json:"found"`
			}{Key: args[0], Value: value, Found: ok})
			return nil
		}
		if !ok {
			fmt.Println("(unset)")
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a per-file setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.SetLocalSetting(rootCtx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("set %s\n", args[0])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every per-file setting",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		settings, err := store.LocalSettings(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(settings)
			return nil
		}
		for k, v := range settings {
			fmt.Printf("%s=%s\n", k, v)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd)
}
