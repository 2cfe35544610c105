package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nholik/hlfb-sentinel/internal/config"
	"github.com/nholik/hlfb-sentinel/internal/notify"
	"github.com/nholik/hlfb-sentinel/internal/source"
	"github.com/nholik/hlfb-sentinel/internal/state"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommandPrintsAxisMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
axes:
  - axis: x
    kind: discrete_input
    address: 4
  - axis: a
    kind: input_register
    address: 12
`), 0o600))
	t.Setenv("HS_AXIS_MAP", path)
	t.Setenv("HS_MACHINE_NAME", "gantry")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate"})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "machine gantry")
	assert.Contains(t, text, "X  discrete_input @ 4")
	assert.Contains(t, text, "A  input_register @ 12")
	assert.Contains(t, text, "XP unmapped")
	assert.Equal(t, 3, strings.Count(text, "unmapped"))
}

func TestValidateCommandRejectsBadAxisMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("axes:\n  - axis: w\n    kind: coil\n"), 0o600))
	t.Setenv("HS_AXIS_MAP", path)

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate"})
	assert.Error(t, cmd.Execute())
}

func TestBuildSourceWithoutEndpointSimulates(t *testing.T) {
	src, closeSource, err := buildSource(config.Config{}, config.DefaultAxisMap(), zerolog.Nop())
	require.NoError(t, err)
	defer closeSource()
	assert.IsType(t, &source.Static{}, src)
}

func TestBuildNotifierDryRunWraps(t *testing.T) {
	n, closeNotifier, err := buildNotifier(config.Config{DryRun: true}, zerolog.Nop())
	require.NoError(t, err)
	defer closeNotifier()
	assert.IsType(t, &notify.DryRunNotifier{}, n)
}

func TestBuildNotifierRejectsBadTemplate(t *testing.T) {
	_, _, err := buildNotifier(config.Config{WebhookURL: "http://example.com/hook", WebhookTemplate: "{{"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestBuildStateStoreBackends(t *testing.T) {
	store, closeStore, err := buildStateStore(config.Config{}, zerolog.Nop())
	require.NoError(t, err)
	closeStore()
	assert.Nil(t, store)

	store, closeStore, err = buildStateStore(config.Config{StatePath: filepath.Join(t.TempDir(), "state.json"), StateBackend: config.StateBackendFile}, zerolog.Nop())
	require.NoError(t, err)
	closeStore()
	assert.IsType(t, &state.FileStore{}, store)

	store, closeStore, err = buildStateStore(config.Config{StatePath: t.TempDir(), StateBackend: config.StateBackendBadger}, zerolog.Nop())
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &state.BadgerStore{}, store)
}
