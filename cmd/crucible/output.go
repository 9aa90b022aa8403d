package main

import (
	"encoding/json"
	"fmt"
	"os"
)

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("encode JSON output: %v", err)
	}
}
