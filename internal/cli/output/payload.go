package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// decodePayload decodes an operation payload keeping numbers as written.
func decodePayload(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return v, nil
}

// payloadPairs renders an object as sorted key/value rows. An object whose
// only member is an array of objects is rendered as rows instead.
func payloadPairs(v any) ([][2]string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if len(obj) == 1 {
		for _, inner := range obj {
			if _, isRows := payloadRows(inner); isRows {
				return nil, false
			}
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, cell(obj[k])})
	}
	return pairs, true
}

// payloadRows renders an array of objects, or an object wrapping exactly
// one, with the union of their keys as columns.
func payloadRows(v any) (*TableData, bool) {
	if obj, ok := v.(map[string]any); ok && len(obj) == 1 {
		for _, inner := range obj {
			v = inner
		}
	}

	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}

	seen := map[string]bool{}
	var columns []string
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		for k := range obj {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)

	table := NewTableData(columns...)
	for _, item := range items {
		obj := item.(map[string]any)
		row := make([]string, len(columns))
		for i, col := range columns {
			if val, ok := obj[col]; ok {
				row[i] = cell(val)
			}
		}
		table.AddRow(row...)
	}
	return table, true
}

// cell formats a decoded value for a table cell.
func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return strings.TrimSpace(string(data))
	}
}
