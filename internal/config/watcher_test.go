package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

func startWatcher(t *testing.T, dir string) <-chan *types.Config {
	t.Helper()
	changes := make(chan *types.Config, 4)
	w, err := NewWatcher(dir, func(cfg *types.Config) { changes <- cfg })
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)
	w.Start()
	t.Cleanup(func() { assert.NoError(t, w.Stop()) })
	return changes
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	changes := startWatcher(t, dir)

	writeFile(t, filepath.Join(dir, "lessonpipe.json"), `{"log": {"level": "debug"}}`)

	select {
	case cfg := <-changes:
		assert.Equal(t, "debug", cfg.Log.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	changes := startWatcher(t, dir)

	writeFile(t, filepath.Join(dir, "notes.txt"), "not config")

	select {
	case <-changes:
		t.Fatal("unexpected reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_KeepsPreviousOnInvalid(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	changes := startWatcher(t, dir)

	writeFile(t, filepath.Join(dir, "lessonpipe.json"), `{"log": `)

	select {
	case <-changes:
		t.Fatal("invalid config must not be applied")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), nil)
	require.NoError(t, err)
	assert.NoError(t, w.Stop())
}

func TestIsConfigFile(t *testing.T) {
	assert.True(t, isConfigFile("/a/lessonpipe.yaml"))
	assert.True(t, isConfigFile("lessonpipe.jsonc"))
	assert.False(t, isConfigFile("/a/lessonpipe.json.swp"))
	assert.False(t, isConfigFile("/a/other.json"))
}
