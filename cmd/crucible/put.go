package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crucible-db/crucible/internal/record"
)

var (
	putJSONFlag bool
	putMIMEFlag string
)

var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Write a value to --scope/<key> as the current session's author",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		key, raw := args[0], args[1]
		var value record.Value
		switch {
		case putJSONFlag:
			value = record.NewJSONValue(raw)
		case putMIMEFlag != "":
			value = record.NewBlobValue(putMIMEFlag, []byte(raw))
		default:
			value = record.NewTextValue(raw)
		}

		version, err := store.Write(rootCtx, scopeFlag, key, value)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(version)
			return nil
		}
		fmt.Printf("wrote %s/%s as author %s\n", scopeFlag, key, version.AuthorID)
		return nil
	},
}

func init() {
	putCmd.Flags().BoolVar(&putJSONFlag, "json-value", false, "store the value as type json (validated before writing)")
	putCmd.Flags().StringVar(&putMIMEFlag, "mime", "", "store the value as type blob with this MIME type")
}
