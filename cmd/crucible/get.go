package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crucible-db/crucible/internal/crucibleerr"
	"github.com/crucible-db/crucible/internal/record"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read the multi-value register at --scope/<key>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		versions, err := store.Read(rootCtx, scopeFlag, args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(versions)
			return nil
		}

		if len(versions) == 0 {
			fmt.Println("(no such key)")
			return nil
		}
		if len(versions) > 1 {
			fmt.Printf("conflict: %d concurrent versions (%v)\n", len(versions), crucibleerr.ErrVersionConflict)
		}
		for _, v := range versions {
			fmt.Printf("author=%s type=%s\n", v.AuthorID, v.Value.Type)
			switch v.Value.Type {
			case record.TypeText:
				fmt.Println(v.Value.Text)
			case record.TypeJSON:
				var buf bytes.Buffer
				if err := json.Indent(&buf, []byte(v.Value.JSON), "", "  "); err != nil {
					fmt.Println(v.Value.JSON)
					break
				}
				fmt.Println(buf.String())
			case record.TypeBlob:
				fmt.Printf("<%d bytes, %s>\n", len(v.Value.Blob), v.Value.BlobMIME)
			case record.TypeNull:
				fmt.Println("DELETED")
			}
		}
		return nil
	},
}
