package state

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/lock"
	"git.home.luguber.info/inful/statekeep/internal/notify"
)

func newTestWriter(t *testing.T, opts ...WriterOption) (*Writer, string) {
	t.Helper()
	root := t.TempDir()
	return NewWriter(lock.NewManager(filepath.Join(root, ".locks")), opts...), root
}

func TestSaveAtomic_PublishesCommit(t *testing.T) {
	bus := notify.NewMemory()
	var events []notify.Event
	require.NoError(t, bus.Subscribe(context.Background(), func(ev notify.Event) { events = append(events, ev) }))

	w, root := newTestWriter(t, WithNotifier(bus))
	path := filepath.Join(root, "settings.json")

	require.NoError(t, w.SaveAtomic(context.Background(), lock.ResourceSettings, path, []byte("v1")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindStateCommitted, events[0].Kind)
	assert.Equal(t, lock.ResourceSettings, events[0].Resource)
	assert.Equal(t, path, events[0].Path)
}

func TestSaveAtomic_LockTimeoutLeavesTargetUntouched(t *testing.T) {
	w, root := newTestWriter(t, WithLockTimeout(100*time.Millisecond))
	path := filepath.Join(root, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o600))

	held, err := w.Locks().Acquire(context.Background(), lock.ResourceSettings, time.Second)
	require.NoError(t, err)
	defer func() { _ = held.Release() }()

	err = w.SaveAtomic(context.Background(), lock.ResourceSettings, path, []byte("replacement"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryLockTimeout))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

// Readers racing with concurrent writers must only ever observe one complete
// document, never a blend or a truncated file.
func TestSaveAtomic_ConcurrentVisibility(t *testing.T) {
	w, root := newTestWriter(t)
	path := filepath.Join(root, "profiles.json")

	const (
		writers = 8
		rounds  = 5
		size    = 64 * 1024
	)
	docs := make([][]byte, writers)
	for i := range docs {
		docs[i] = bytes.Repeat([]byte{byte('a' + i)}, size)
	}
	require.NoError(t, w.SaveAtomic(context.Background(), lock.ResourceProfiles, path, docs[0]))

	valid := func(b []byte) bool {
		for _, d := range docs {
			if bytes.Equal(b, d) {
				return true
			}
		}
		return false
	}

	stop := make(chan struct{})
	var torn atomic.Int32
	var readers sync.WaitGroup
	for range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				b, err := os.ReadFile(path)
				if err != nil || !valid(b) {
					torn.Add(1)
				}
			}
		}()
	}

	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				assert.NoError(t, w.SaveAtomic(context.Background(), lock.ResourceProfiles, path, docs[i]))
			}
		}()
	}
	wg.Wait()
	close(stop)
	readers.Wait()

	assert.Zero(t, torn.Load(), "a reader observed a partial or mixed document")
	final, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, valid(final))
	assert.Empty(t, leftoverTemps(t, root))
}

func TestUpdate_NoLostUpdates(t *testing.T) {
	w, root := newTestWriter(t)
	path := filepath.Join(root, "counter")

	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Update(context.Background(), "counter", path, func(current []byte, exists bool) ([]byte, error) {
				v := 0
				if exists {
					parsed, err := strconv.Atoi(string(current))
					if err != nil {
						return nil, err
					}
					v = parsed
				}
				return []byte(strconv.Itoa(v + 1)), nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(n), string(got))
}

func TestUpdate_ErrorAndNoChangeSkipWrite(t *testing.T) {
	bus := notify.NewMemory()
	var events int
	require.NoError(t, bus.Subscribe(context.Background(), func(notify.Event) { events++ }))

	w, root := newTestWriter(t, WithNotifier(bus))
	path := filepath.Join(root, "doc")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o600))

	boom := stderrors.New("validation failed")
	err := w.Update(context.Background(), "doc", path, func([]byte, bool) ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	err = w.Update(context.Background(), "doc", path, func(cur []byte, exists bool) ([]byte, error) {
		assert.True(t, exists)
		assert.Equal(t, "keep", string(cur))
		return nil, ErrNoChange
	})
	require.NoError(t, err)

	got, _ := os.ReadFile(path)
	assert.Equal(t, "keep", string(got))
	assert.Zero(t, events)

	h, err := w.Locks().TryAcquire("doc")
	require.NoError(t, err)
	require.NotNil(t, h, "lock released after failed update")
	require.NoError(t, h.Release())
}

func TestUpdate_MissingFile(t *testing.T) {
	w, root := newTestWriter(t)
	path := filepath.Join(root, "fresh.json")

	err := w.Update(context.Background(), "fresh", path, func(cur []byte, exists bool) ([]byte, error) {
		assert.False(t, exists)
		assert.Nil(t, cur)
		return json.Marshal(map[string]int{"n": 1})
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(got))
}

func ExampleWriter_SaveAtomic() {
	dir, _ := os.MkdirTemp("", "statekeep-example")
	defer os.RemoveAll(dir)

	w := NewWriter(lock.NewManager(filepath.Join(dir, ".locks")))
	path := filepath.Join(dir, "settings.json")
	if err := w.SaveAtomic(context.Background(), lock.ResourceSettings, path, []byte(`{"model":"default"}`)); err != nil {
		fmt.Println(err)
		return
	}
	data, _ := os.ReadFile(path)
	fmt.Println(string(data))
	// Output: {"model":"default"}
}
