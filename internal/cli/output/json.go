package output

import (
	"bytes"
	"encoding/json"
	"io"
)

// PrintJSON writes data as formatted JSON to the writer. Raw payloads are
// re-indented without being decoded, so key order and number precision
// survive.
func PrintJSON(w io.Writer, data any) error {
	if raw, ok := data.(json.RawMessage); ok {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err := w.Write(buf.Bytes())
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// PrintJSONCompact writes data as compact JSON to the writer.
func PrintJSONCompact(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(data)
}
