// Package output renders CLI results as tables, JSON, or YAML.
package output

import "fmt"

// Format selects how results are rendered.
type Format string

const (
	// FormatTable renders a human-readable aligned table.
	FormatTable Format = "table"
	// FormatJSON renders indented JSON.
	FormatJSON Format = "json"
	// FormatYAML renders YAML.
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format string from a CLI flag.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}
