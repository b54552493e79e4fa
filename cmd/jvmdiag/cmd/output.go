package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// maxCellWidth truncates nested values rendered inside table cells.
const maxCellWidth = 80

// render writes v in the requested format. Records are rendered through
// their JSON form so every format shows the same field names.
func render(w io.Writer, format string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	switch format {
	case "", "json":
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err = w.Write(buf.Bytes())
		return err
	case "yaml":
		return renderYAML(w, data)
	case "table":
		return renderTable(w, data)
	default:
		return fmt.Errorf("unknown output format %q (want json, yaml or table)", format)
	}
}

// renderYAML re-reads the JSON as a YAML node tree, which keeps field order,
// and resets the JSON flow and quoting styles so the encoder picks plain
// block YAML.
func renderYAML(w io.Writer, data []byte) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func renderTable(w io.Writer, data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}

	switch val := v.(type) {
	case []any:
		writeListTable(w, "", val)
	case map[string]any:
		writeObjectTables(w, val)
	default:
		fmt.Fprintln(w, cell(val))
	}
	return nil
}

// writeObjectTables prints scalar fields as one KEY/VALUE table, then one
// table per list or object field.
func writeObjectTables(w io.Writer, obj map[string]any) {
	keys := orderedKeys(obj)

	t := newTable(w, "")
	t.AppendHeader(table.Row{"KEY", "VALUE"})
	for _, k := range keys {
		switch obj[k].(type) {
		case []any, map[string]any:
			continue
		}
		t.AppendRow(table.Row{k, cell(obj[k])})
	}
	t.Render()

	for _, k := range keys {
		switch val := obj[k].(type) {
		case []any:
			if len(val) > 0 {
				fmt.Fprintln(w)
				writeListTable(w, k, val)
			}
		case map[string]any:
			if len(val) > 0 {
				fmt.Fprintln(w)
				writeMapTable(w, k, val)
			}
		}
	}
}

func writeListTable(w io.Writer, title string, list []any) {
	t := newTable(w, title)

	columns := listColumns(list)
	if len(columns) == 0 {
		t.AppendHeader(table.Row{"VALUE"})
		for _, item := range list {
			t.AppendRow(table.Row{cell(item)})
		}
		t.Render()
		return
	}

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = strings.ToUpper(c)
	}
	t.AppendHeader(header)
	for _, item := range list {
		obj, _ := item.(map[string]any)
		row := make(table.Row, len(columns))
		for i, c := range columns {
			if v, ok := obj[c]; ok {
				row[i] = cell(v)
			}
		}
		t.AppendRow(row)
	}
	t.Render()
}

func writeMapTable(w io.Writer, title string, m map[string]any) {
	t := newTable(w, title)
	t.AppendHeader(table.Row{"KEY", "VALUE"})
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.AppendRow(table.Row{k, cell(m[k])})
	}
	t.Render()
}

// listColumns returns the union of object keys in a list, or nil when the
// list holds scalars.
func listColumns(list []any) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		for _, k := range orderedKeys(obj) {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// orderedKeys sorts keys with the status fields first.
func orderedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	rank := func(k string) int {
		switch k {
		case "success":
			return 0
		case "error":
			return 1
		default:
			return 2
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any, map[string]any:
		data, _ := json.Marshal(val)
		return text.Trim(string(data), maxCellWidth)
	default:
		return fmt.Sprint(val)
	}
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}
