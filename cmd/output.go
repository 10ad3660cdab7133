package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func validOutput(f string) error {
	switch f {
	case outputTable, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", f)
}

// render writes v as JSON or YAML, or calls table for the table format.
func render(w io.Writer, format string, v any, table func(tw *tabwriter.Writer)) error {
	switch format {
	case outputJSON:
		return printJSON(w, v)
	case outputYAML:
		return printYAML(w, v)
	case outputTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}
	return validOutput(format)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML renders v through its JSON form, so keys and omitempty match
// the JSON output and field order is kept.
func printYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles a JSON document parses with.
// Strings that would change type when unquoted keep their quotes.
func blockStyle(n *yaml.Node) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!str" {
			n.Style = yaml.DoubleQuotedStyle
			if plainSafe(n.Value) {
				n.Style = 0
			}
		} else {
			n.Style = 0
		}
	default:
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// plainSafe reports whether s round-trips as a plain YAML string.
func plainSafe(s string) bool {
	if s == "" || strings.ContainsAny(s, "\n:#{}[]&*!|>'\"%@`,") {
		return false
	}
	if strings.TrimSpace(s) != s || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "?") {
		return false
	}
	var parsed any
	if err := yaml.Unmarshal([]byte(s), &parsed); err != nil {
		return false
	}
	str, ok := parsed.(string)
	return ok && str == s
}

// cell truncates s to width terminal columns and flattens newlines.
func cell(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "…")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// shortTS trims an ISO-8601 timestamp to minutes.
func shortTS(ts string) string {
	ts = strings.Replace(ts, "T", " ", 1)
	if len(ts) > 16 {
		return ts[:16]
	}
	return ts
}
