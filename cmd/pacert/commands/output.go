package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// writeStructured renders v as json or yaml. It reports false for any
// other format so the caller can fall back to a table.
func writeStructured(w io.Writer, format string, v interface{}) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return true, enc.Encode(v)
	case "table", "":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q (use table, json or yaml)", format)
	}
}
