package output

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// PrintYAML writes data as YAML to the writer. Raw payloads are decoded
// first so they render as YAML mappings rather than byte lists.
func PrintYAML(w io.Writer, data any) error {
	if raw, ok := data.(json.RawMessage); ok {
		value, err := decodePayload(raw)
		if err != nil {
			return err
		}
		data = value
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer func() { _ = encoder.Close() }()
	return encoder.Encode(data)
}
