package credentials

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigDir, ConfigFileName)
	other := filepath.Join(filepath.Dir(path), "other.json")

	var changes atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func() { changes.Add(1) })
	}()

	// Writes to other files in the directory are ignored. The watcher may
	// not be armed yet, so keep writing until a change is seen.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(other, []byte("{}"), FilePermissions)
		store, err := NewStoreAt(path)
		if err != nil {
			return false
		}
		_ = store.SetContext("default", &Context{ServerURL: "http://localhost:8080"})
		return changes.Load() > 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	var changes atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	go func() {
		for i := 0; i < 10; i++ {
			_ = os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), FilePermissions)
			time.Sleep(20 * time.Millisecond)
		}
	}()

	require.NoError(t, Watch(ctx, path, func() { changes.Add(1) }))
	assert.Zero(t, changes.Load())
}
