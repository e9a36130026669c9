package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// stdin is replaceable in tests.
var stdin io.Reader = os.Stdin

// readInput returns the contents of path, or stdin when path is empty or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func inputArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// printJSON writes v as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
