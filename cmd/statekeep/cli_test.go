package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/statekeep/internal/config"
	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/history"
)

// run executes the CLI in-process with stdin and returns what it printed.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	var out bytes.Buffer
	g := &Global{Out: &out, In: strings.NewReader(stdin)}

	parser, err := kong.New(&cli,
		kong.Name("statekeep"),
		kong.Exit(func(int) { t.Fatalf("unexpected exit for %v", args) }),
		kong.Vars{"version": "test", "config_path": "config.yaml"},
	)
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	err = ctx.Run(g, &cli)
	return out.String(), err
}

// setup writes a config whose root and sources live below a temp dir.
func setup(t *testing.T) (cfgPath, settings string) {
	t.Helper()
	t.Setenv(config.EnvRoot, "")
	t.Setenv(config.EnvLockDir, "")
	t.Setenv(config.EnvHistoryFile, "")

	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	settings = filepath.Join(dir, "live", "settings.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(settings), 0o755))

	cfg := config.Example()
	cfg.Root = filepath.Join(dir, "state")
	cfg.Backup.Sources = []config.SourceConfig{{Name: "settings", Path: settings}}
	data, err := config.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o600))
	return cfgPath, settings
}

func TestInit(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvRoot, "")
	cfgPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := run(t, "", "-c", cfgPath, "init")
	require.NoError(t, err)
	assert.Contains(t, out, cfgPath)

	_, err = config.Load(cfgPath)
	require.NoError(t, err)

	_, err = run(t, "", "-c", cfgPath, "init")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	_, err = run(t, "", "-c", cfgPath, "init", "--force")
	require.NoError(t, err)
}

func TestCommitShowAndHistory(t *testing.T) {
	cfgPath, settings := setup(t)
	require.NoError(t, os.WriteFile(settings, []byte(`{"env":{"ANTHROPIC_AUTH_TOKEN":"sk-ant-old-0123456789"}}`), 0o600))

	secret := "sk-ant-new-9876543210"
	out, err := run(t, `{"env":{"ANTHROPIC_AUTH_TOKEN":"`+secret+`"}}`,
		"-c", cfgPath, "commit", "--path", settings, "--op", "switch", "--from", "home", "--to", "work", "--tag", "work")
	require.NoError(t, err)
	assert.Contains(t, out, "Committed "+settings)
	assert.Contains(t, out, "Previous content saved to")

	out, err = run(t, "", "-c", cfgPath, "show", "--path", settings)
	require.NoError(t, err)
	assert.Contains(t, out, secret)

	out, err = run(t, "", "-c", cfgPath, "history", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, secret)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, history.OpSwitch, entries[0].Operation)
	assert.Equal(t, "work", entries[0].Details.ToProfile)
	require.Len(t, entries[0].EnvChanges, 1)
	assert.Equal(t, "sk-a...3210", *entries[0].EnvChanges[0].NewValue)

	out, err = run(t, "", "-c", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "home -> work")

	out, err = run(t, "", "-c", cfgPath, "history", "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total")

	_, err = run(t, "", "-c", cfgPath, "history", "--kind", "launch")
	require.Error(t, err)
}

func TestCommitFromFileAndRestore(t *testing.T) {
	cfgPath, settings := setup(t)
	require.NoError(t, os.WriteFile(settings, []byte(`{"v":1}`), 0o600))
	input := filepath.Join(t.TempDir(), "next.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"v":2}`), 0o600))

	_, err := run(t, "", "-c", cfgPath, "commit", "--path", settings, "-f", input)
	require.NoError(t, err)

	out, err := run(t, "", "-c", cfgPath, "snapshots", "--path", settings)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	fields := strings.Fields(lines[1])
	snapshot := fields[len(fields)-1]

	_, err = run(t, "", "-c", cfgPath, "restore", "--path", settings, "--snapshot", snapshot)
	require.NoError(t, err)
	data, err := os.ReadFile(settings)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(data))

	_, err = run(t, "", "-c", cfgPath, "commit", "--path", settings, "-f", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestBackupAndLocks(t *testing.T) {
	cfgPath, settings := setup(t)
	require.NoError(t, os.WriteFile(settings, []byte(`{"v":1}`), 0o600))

	out, err := run(t, "", "-c", cfgPath, "backup")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 1 sources changed")

	out, err = run(t, "", "-c", cfgPath, "backup", "--json")
	require.NoError(t, err)
	var summary struct {
		Items []struct {
			Name    string `json:"name"`
			Changed bool   `json:"changed"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Len(t, summary.Items, 1)
	assert.False(t, summary.Items[0].Changed)

	out, err = run(t, "", "-c", cfgPath, "locks")
	require.NoError(t, err)
	assert.Contains(t, out, "backup")
	assert.Contains(t, out, "history")
	assert.Contains(t, out, "false")
}

func TestMissingConfig(t *testing.T) {
	t.Setenv(config.EnvRoot, "")
	_, err := run(t, "", "-c", filepath.Join(t.TempDir(), "absent.yaml"), "locks")
	require.Error(t, err)
	assert.Equal(t, 7, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}
