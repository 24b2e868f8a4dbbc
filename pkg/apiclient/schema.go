package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Schema is the part of the service's OpenAPI document the dispatcher
// needs: the advertised version and every operation with its binding.
type Schema struct {
	Version    string
	Operations []OperationSpec
}

// OperationSpec binds an operation identifier to a method and path.
type OperationSpec struct {
	ID     string
	Method string
	Path   string
}

type schemaDocument struct {
	Info struct {
		Version string `json:"version"`
	} `json:"info"`
	Paths map[string]map[string]json.RawMessage `json:"paths"`
}

type schemaOperation struct {
	OperationID string `json:"operationId"`
}

// ParseSchema decodes a schema document. Operations are ordered by path,
// then method. Entries without an operationId are skipped.
func ParseSchema(data []byte) (*Schema, error) {
	var doc schemaDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode schema document: %w", err)
	}
	if doc.Paths == nil {
		return nil, fmt.Errorf("schema document has no paths")
	}

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	s := &Schema{Version: doc.Info.Version}
	for _, p := range paths {
		methods := make([]string, 0, len(doc.Paths[p]))
		for m := range doc.Paths[p] {
			methods = append(methods, m)
		}
		sort.Strings(methods)

		for _, m := range methods {
			// Path items may also hold parameters, summaries and the like.
			var op schemaOperation
			if err := json.Unmarshal(doc.Paths[p][m], &op); err != nil || op.OperationID == "" {
				continue
			}
			s.Operations = append(s.Operations, OperationSpec{
				ID:     op.OperationID,
				Method: strings.ToUpper(m),
				Path:   p,
			})
		}
	}
	return s, nil
}

// Callable returns the operations bound to method.
func (s *Schema) Callable(method string) []OperationSpec {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodPost
	}
	out := make([]OperationSpec, 0, len(s.Operations))
	for _, op := range s.Operations {
		if op.Method == method {
			out = append(out, op)
		}
	}
	return out
}
