package apiclient

import (
	"context"
	"fmt"
	"sync"
)

// CancelRegistry tracks at most one in-flight request per logical key.
// Issuing a handle for a busy key cancels the previous request first.
type CancelRegistry struct {
	mu      sync.Mutex
	entries map[string]*cancelEntry
}

type cancelEntry struct {
	cancel context.CancelCauseFunc
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		entries: make(map[string]*cancelEntry),
	}
}

// Issue derives a cancellable context for key. Any request previously
// issued under key is canceled before Issue returns. The returned release
// func must be called once the request completes.
func (r *CancelRegistry) Issue(ctx context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	entry := &cancelEntry{cancel: cancel}

	r.mu.Lock()
	if prev, ok := r.entries[key]; ok {
		prev.cancel(fmt.Errorf("%w: superseded by a newer request for key %q", ErrCanceled, key))
	}
	r.entries[key] = entry
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if r.entries[key] == entry {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		cancel(nil)
	}
	return ctx, release
}

// Cancel aborts the request registered under key. It reports whether a
// request was pending.
func (r *CancelRegistry) Cancel(key string) bool {
	r.mu.Lock()
	entry, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if ok {
		entry.cancel(fmt.Errorf("%w: key %q canceled", ErrCanceled, key))
	}
	return ok
}

// CancelAll aborts every pending request.
func (r *CancelRegistry) CancelAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*cancelEntry)
	r.mu.Unlock()

	for key, entry := range entries {
		entry.cancel(fmt.Errorf("%w: key %q canceled", ErrCanceled, key))
	}
}

// Pending returns the number of keys with an in-flight request.
func (r *CancelRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
