package apiclient

import (
	"context"
	"encoding/json"
)

// Caller dispatches an operation by identifier. *Dispatcher implements it;
// the session strategies depend on this interface only.
type Caller interface {
	Call(ctx context.Context, id string, args any, opts ...CallOption) (json.RawMessage, error)
}

// Invoke calls the operation id and decodes its payload into a value of
// type T. Returns a pointer to the decoded value.
//
// Example:
//
//	info, err := apiclient.Invoke[WidgetInfo](ctx, d, "widget.info", nil)
func Invoke[T any](ctx context.Context, c Caller, id string, args any, opts ...CallOption) (*T, error) {
	payload, err := c.Call(ctx, id, args, opts...)
	if err != nil {
		return nil, err
	}
	var result T
	if err := decodePayload(id, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Exec calls the operation id and discards its payload.
func Exec(ctx context.Context, c Caller, id string, args any, opts ...CallOption) error {
	_, err := c.Call(ctx, id, args, opts...)
	return err
}
