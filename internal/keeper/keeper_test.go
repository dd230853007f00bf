package keeper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/statekeep/internal/config"
	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/history"
	"git.home.luguber.info/inful/statekeep/internal/lock"
	"git.home.luguber.info/inful/statekeep/internal/notify"
)

type env struct {
	keeper   *Keeper
	root     string
	settings string
}

func newTestKeeper(t *testing.T, extra string, opts ...Option) *env {
	t.Helper()
	t.Setenv(config.EnvRoot, "")
	t.Setenv(config.EnvLockDir, "")
	t.Setenv(config.EnvHistoryFile, "")

	root := t.TempDir()
	settings := filepath.Join(root, "live", "settings.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(settings), 0o755))

	raw := fmt.Sprintf(`version: "1"
root: %q
backup:
  sources:
    - name: settings
      path: %q
%s`, root, settings, extra)
	cfg, err := config.Parse([]byte(raw))
	require.NoError(t, err)

	k, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return &env{keeper: k, root: root, settings: settings}
}

func TestCommit_NewFile(t *testing.T) {
	e := newTestKeeper(t, "")

	res, err := e.keeper.Commit(context.Background(), CommitRequest{
		Resource:  lock.ResourceSettings,
		Path:      e.settings,
		Data:      []byte(`{"env":{}}`),
		Operation: history.OpSwitch,
		Details:   history.Details{ToProfile: "work"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.SnapshotPath)
	assert.NotEmpty(t, res.EntryID)

	data, err := os.ReadFile(e.settings)
	require.NoError(t, err)
	assert.Equal(t, `{"env":{}}`, string(data))

	entries := e.keeper.History().GetRecent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, res.EntryID, entries[0].ID)
	assert.Equal(t, history.OpSwitch, entries[0].Operation)
	assert.True(t, entries[0].Result.IsSuccess())
}

func TestCommit_SnapshotsAndMasksEnv(t *testing.T) {
	e := newTestKeeper(t, "")
	require.NoError(t, os.WriteFile(e.settings, []byte("v1"), 0o600))

	secret := "sk-ant-REDACTED"
	res, err := e.keeper.Commit(context.Background(), CommitRequest{
		Resource:  lock.ResourceSettings,
		Path:      e.settings,
		Data:      []byte("v2"),
		Operation: history.OpSwitch,
		EnvBefore: map[string]string{"ANTHROPIC_BASE_URL": "https://a.example"},
		EnvAfter:  map[string]string{"ANTHROPIC_BASE_URL": "https://b.example", "ANTHROPIC_AUTH_TOKEN": secret},
		Tag:       "work",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.SnapshotPath)

	snap, err := os.ReadFile(res.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(snap))
	assert.Contains(t, filepath.Base(res.SnapshotPath), "settings.json.work_")

	raw, err := os.ReadFile(e.keeper.History().Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), secret)
	assert.Contains(t, string(raw), "https://b.example")

	entries := e.keeper.History().GetRecent(1)
	require.Len(t, entries, 1)
	assert.Equal(t, res.SnapshotPath, entries[0].Details.BackupPath)
	assert.Len(t, entries[0].EnvChanges, 2)
}

func TestCommit_LockTimeoutIsRecorded(t *testing.T) {
	e := newTestKeeper(t, "lock:\n  timeout: 100ms\n")
	require.NoError(t, os.WriteFile(e.settings, []byte("original"), 0o600))

	held, err := e.keeper.Locks().Acquire(context.Background(), lock.ResourceSettings, time.Second)
	require.NoError(t, err)
	defer func() { _ = held.Release() }()

	_, err = e.keeper.Commit(context.Background(), CommitRequest{
		Resource: lock.ResourceSettings,
		Path:     e.settings,
		Data:     []byte("replacement"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryLockTimeout))

	data, err := os.ReadFile(e.settings)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	entries := e.keeper.History().GetRecent(0)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Result.IsFailure())
	assert.Equal(t, history.OpUpdate, entries[0].Operation)
}

func TestCommit_Validation(t *testing.T) {
	e := newTestKeeper(t, "")
	tests := []CommitRequest{
		{Resource: "", Path: e.settings},
		{Resource: "../escape", Path: e.settings},
		{Resource: lock.ResourceSettings},
		{Resource: lock.ResourceSettings, Path: e.settings, Operation: "launch"},
	}
	for _, req := range tests {
		_, err := e.keeper.Commit(context.Background(), req)
		require.Error(t, err)
	}
	assert.Empty(t, e.keeper.History().GetRecent(0))
}

func TestRestore(t *testing.T) {
	e := newTestKeeper(t, "")
	ctx := context.Background()
	require.NoError(t, os.WriteFile(e.settings, []byte("v1"), 0o600))

	res, err := e.keeper.Commit(ctx, CommitRequest{Resource: lock.ResourceSettings, Path: e.settings, Data: []byte("v2")})
	require.NoError(t, err)

	_, err = e.keeper.Restore(ctx, lock.ResourceSettings, e.settings, res.SnapshotPath)
	require.NoError(t, err)

	data, err := os.ReadFile(e.settings)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	restores := e.keeper.History().FilterByKind(history.OpRestore)
	require.Len(t, restores, 1)

	_, err = e.keeper.Restore(ctx, lock.ResourceSettings, e.settings, filepath.Join(e.root, "missing.bak"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestBackup_RecordsHistory(t *testing.T) {
	e := newTestKeeper(t, "")
	require.NoError(t, os.WriteFile(e.settings, []byte("v1"), 0o600))

	summary, err := e.keeper.Backup(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)
	assert.True(t, summary.Items[0].Changed)

	summary, err = e.keeper.Backup(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.Items[0].Changed)

	backups := e.keeper.History().FilterByKind(history.OpBackup)
	require.Len(t, backups, 2)
	assert.Equal(t, "0 of 1 sources changed", backups[0].Details.Extra)
}

func TestDocument_InvalidatePath(t *testing.T) {
	e := newTestKeeper(t, "state:\n  cache_ttl: 1h\n")
	ctx := context.Background()
	require.NoError(t, os.WriteFile(e.settings, []byte(`{"v":1}`), 0o600))

	doc := e.keeper.Document(lock.ResourceSettings, e.settings)
	assert.Same(t, doc, e.keeper.Document(lock.ResourceSettings, e.settings))

	v, err := doc.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(v))

	require.NoError(t, os.WriteFile(e.settings, []byte(`{"v":2}`), 0o600))
	v, err = doc.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(v))

	assert.True(t, e.keeper.InvalidatePath(e.settings))
	assert.False(t, e.keeper.InvalidatePath(filepath.Join(e.root, "other.json")))
	v, err = doc.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(v))
}

func TestNew_SharedNotifier(t *testing.T) {
	bus := notify.NewMemory()
	var kinds []string
	require.NoError(t, bus.Subscribe(context.Background(), func(ev notify.Event) { kinds = append(kinds, ev.Kind) }))

	e := newTestKeeper(t, "", WithNotifier(bus))
	_, err := e.keeper.Commit(context.Background(), CommitRequest{Resource: lock.ResourceSettings, Path: e.settings, Data: []byte("x")})
	require.NoError(t, err)

	assert.Contains(t, kinds, notify.KindStateCommitted)
	assert.Contains(t, kinds, notify.KindHistoryRecorded)
}

func TestCommit_EnvOfReadsCurrentContentUnderLock(t *testing.T) {
	e := newTestKeeper(t, "")
	ctx := context.Background()
	require.NoError(t, os.WriteFile(e.settings, []byte(`{"env":{"MODEL":"a"}}`), 0o600))
	stale, err := os.ReadFile(e.settings)
	require.NoError(t, err)

	// Another writer lands after the caller looked at the file.
	_, err = e.keeper.Commit(ctx, CommitRequest{
		Resource: lock.ResourceSettings,
		Path:     e.settings,
		Data:     []byte(`{"env":{"MODEL":"b"}}`),
	})
	require.NoError(t, err)

	_, err = e.keeper.Commit(ctx, CommitRequest{
		Resource:  lock.ResourceSettings,
		Path:      e.settings,
		Data:      []byte(`{"env":{"MODEL":"c"}}`),
		EnvBefore: ExtractEnv(stale),
		EnvOf:     ExtractEnv,
	})
	require.NoError(t, err)

	latest := e.keeper.History().GetRecent(1)
	require.Len(t, latest, 1)
	require.Len(t, latest[0].EnvChanges, 1)
	change := latest[0].EnvChanges[0]
	assert.Equal(t, "MODEL", change.VarName)
	require.NotNil(t, change.OldValue)
	require.NotNil(t, change.NewValue)
	assert.Equal(t, "b", *change.OldValue)
	assert.Equal(t, "c", *change.NewValue)
}

func TestRestore_RecordsEnvChanges(t *testing.T) {
	e := newTestKeeper(t, "")
	ctx := context.Background()
	require.NoError(t, os.WriteFile(e.settings, []byte(`{"env":{"MODEL":"a"}}`), 0o600))

	res, err := e.keeper.Commit(ctx, CommitRequest{
		Resource: lock.ResourceSettings,
		Path:     e.settings,
		Data:     []byte(`{"env":{"MODEL":"b"}}`),
	})
	require.NoError(t, err)
	_, err = e.keeper.Restore(ctx, lock.ResourceSettings, e.settings, res.SnapshotPath)
	require.NoError(t, err)

	restores := e.keeper.History().FilterByKind(history.OpRestore)
	require.Len(t, restores, 1)
	require.Len(t, restores[0].EnvChanges, 1)
	assert.Equal(t, "b", *restores[0].EnvChanges[0].OldValue)
	assert.Equal(t, "a", *restores[0].EnvChanges[0].NewValue)
}
