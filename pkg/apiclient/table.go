package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Operation is a callable leaf of the operation table. It is bound to the
// dispatcher's request envelope and safe for concurrent use.
type Operation struct {
	id     string
	method string
	path   string
	env    *envelope
}

// ID returns the dotted operation identifier, e.g. "session.issueToken".
func (o *Operation) ID() string { return o.id }

// Method returns the HTTP method the operation is bound to.
func (o *Operation) Method() string { return o.method }

// Path returns the request path the operation is bound to.
func (o *Operation) Path() string { return o.path }

// Call invokes the operation with args as JSON body and returns the raw
// payload of a successful response.
func (o *Operation) Call(ctx context.Context, args any, opts ...CallOption) (json.RawMessage, error) {
	return o.env.do(ctx, o.id, o.method, o.path, args, opts...)
}

// Invoke calls the operation and decodes the payload into out. A nil out
// discards the payload.
func (o *Operation) Invoke(ctx context.Context, args, out any, opts ...CallOption) error {
	payload, err := o.Call(ctx, args, opts...)
	if err != nil {
		return err
	}
	return decodePayload(o.id, payload, out)
}

func decodePayload(id string, payload json.RawMessage, out any) error {
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", id, err)
	}
	return nil
}

// Namespace is an interior node of the operation table.
type Namespace struct {
	name       string
	namespaces map[string]*Namespace
	operations map[string]*Operation
}

func newNamespace(name string) *Namespace {
	return &Namespace{
		name:       name,
		namespaces: make(map[string]*Namespace),
		operations: make(map[string]*Operation),
	}
}

// Name returns the dotted path of the namespace; empty for the root.
func (n *Namespace) Name() string {
	if n == nil {
		return ""
	}
	return n.name
}

// Namespace returns the child namespace called name, or nil. Calling it on
// a nil namespace returns nil, so lookups can be chained.
func (n *Namespace) Namespace(name string) *Namespace {
	if n == nil {
		return nil
	}
	return n.namespaces[name]
}

// Operation returns the leaf called name, or nil.
func (n *Namespace) Operation(name string) *Operation {
	if n == nil {
		return nil
	}
	return n.operations[name]
}

// Names lists child namespaces and operations in lexical order.
func (n *Namespace) Names() []string {
	if n == nil {
		return nil
	}
	names := make([]string, 0, len(n.namespaces)+len(n.operations))
	for k := range n.namespaces {
		names = append(names, k)
	}
	for k := range n.operations {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// OperationTable is the immutable call tree built from a schema. It is
// shared read-only by every caller of the dispatcher that built it.
type OperationTable struct {
	version string
	root    *Namespace
	byID    map[string]*Operation
	ordered []*Operation
}

// buildTable materializes namespaces for every dotted identifier and binds
// the leaves to env. Duplicate identifiers and identifiers that are both a
// leaf and a namespace are rejected.
func buildTable(version string, specs []OperationSpec, env *envelope) (*OperationTable, error) {
	t := &OperationTable{
		version: version,
		root:    newNamespace(""),
		byID:    make(map[string]*Operation, len(specs)),
		ordered: make([]*Operation, 0, len(specs)),
	}

	for _, spec := range specs {
		segments := strings.Split(spec.ID, ".")
		for _, seg := range segments {
			if seg == "" {
				return nil, fmt.Errorf("invalid operation identifier %q", spec.ID)
			}
		}
		if _, dup := t.byID[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate operation identifier %q", spec.ID)
		}

		node := t.root
		for i, seg := range segments[:len(segments)-1] {
			if _, leaf := node.operations[seg]; leaf {
				return nil, fmt.Errorf("operation %q conflicts with namespace %q",
					strings.Join(segments[:i+1], "."), spec.ID)
			}
			child, ok := node.namespaces[seg]
			if !ok {
				child = newNamespace(strings.Join(segments[:i+1], "."))
				node.namespaces[seg] = child
			}
			node = child
		}

		leaf := segments[len(segments)-1]
		if _, ns := node.namespaces[leaf]; ns {
			return nil, fmt.Errorf("operation %q conflicts with an existing namespace", spec.ID)
		}

		op := &Operation{id: spec.ID, method: spec.Method, path: spec.Path, env: env}
		node.operations[leaf] = op
		t.byID[spec.ID] = op
		t.ordered = append(t.ordered, op)
	}

	return t, nil
}

// Version returns the schema version the table was built from.
func (t *OperationTable) Version() string { return t.version }

// Len returns the number of operations.
func (t *OperationTable) Len() int { return len(t.ordered) }

// Operation looks up a leaf by dotted identifier.
func (t *OperationTable) Operation(id string) (*Operation, bool) {
	op, ok := t.byID[id]
	return op, ok
}

// Namespace returns a top-level namespace, or nil.
func (t *OperationTable) Namespace(name string) *Namespace {
	return t.root.Namespace(name)
}

// Root returns the root namespace.
func (t *OperationTable) Root() *Namespace { return t.root }

// Operations lists every operation in schema order.
func (t *OperationTable) Operations() []*Operation {
	return append([]*Operation(nil), t.ordered...)
}
