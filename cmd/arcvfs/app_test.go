package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/desertwitch/arcvfs/internal/configuration"
	"github.com/desertwitch/arcvfs/vfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	fs    afero.Fs
	out   *bytes.Buffer
	local afero.Fs
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	ta := &testApp{
		fs:    afero.NewMemMapFs(),
		out:   &bytes.Buffer{},
		local: afero.NewMemMapFs(),
	}
	require.NoError(t, ta.fs.MkdirAll("/data", 0o755))

	return ta
}

// run runs a command against a new file system over the same storage, the
// way every command line invocation does.
func (ta *testApp) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	config := configuration.Default()
	config.TempDir = "/tmp"

	fsys, err := vfs.New(ta.fs, "/data", config)
	require.NoError(t, err)

	ta.out.Reset()
	err = NewApp(fsys, ta.local, ta.out, config).Launch(context.Background(), args)

	return ta.out.String(), err
}

// TestApp_Success tests a session of commands.
func TestApp_Success(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	require.NoError(t, afero.WriteFile(ta.local, "/local.txt", []byte("hello archive"), 0o644))

	_, err := ta.run(t, "put", "/local.txt", "a.zip/docs/b.tar.gz/hello.txt")
	require.NoError(t, err)

	exists, err := afero.Exists(ta.fs, "/data/a.zip")
	require.NoError(t, err)
	assert.True(t, exists)

	out, err := ta.run(t, "cat", "a.zip/docs/b.tar.gz/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello archive", out)

	_, err = ta.run(t, "cp", "a.zip/docs/b.tar.gz/hello.txt", "c.tar.lz4/copy.txt")
	require.NoError(t, err)

	out, err = ta.run(t, "ls", "")
	require.NoError(t, err)
	assert.Contains(t, out, "a.zip")
	assert.Contains(t, out, "c.tar.lz4")
	assert.Contains(t, out, "archive")

	out, err = ta.run(t, "ls", "-R", "a.zip")
	require.NoError(t, err)
	assert.Contains(t, out, "a.zip/docs/b.tar.gz/hello.txt")
	assert.Contains(t, out, "13 B")

	_, err = ta.run(t, "get", "c.tar.lz4/copy.txt", "/copy.txt")
	require.NoError(t, err)

	content, err := afero.ReadFile(ta.local, "/copy.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello archive", string(content))

	_, err = ta.run(t, "rm", "c.tar.lz4/copy.txt", "c.tar.lz4")
	require.NoError(t, err)

	exists, err = afero.Exists(ta.fs, "/data/c.tar.lz4")
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestApp_Success_Stats tests printing the counters.
func TestApp_Success_Stats(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)

	_, err := ta.run(t, "mkdir", "x.zip/dir")
	require.NoError(t, err)

	out, err := ta.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "evictions:")
	assert.Contains(t, out, "1.0 MiB")

	out, err = ta.run(t, "suffixes")
	require.NoError(t, err)
	assert.Contains(t, out, ".tar.zst")
	assert.Contains(t, out, ".zip")
}

// TestApp_Fail tests invalid commands.
func TestApp_Fail(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)

	_, err := ta.run(t)
	require.ErrorIs(t, err, ErrUsage)

	_, err = ta.run(t, "frobnicate")
	require.ErrorIs(t, err, ErrUnknownCommand)

	_, err = ta.run(t, "cp", "only-one")
	require.ErrorIs(t, err, ErrUsage)

	_, err = ta.run(t, "cat", "missing.zip/x.txt")
	require.Error(t, err)

	_, err = ta.run(t, "put", "/missing.txt", "a.zip/x.txt")
	require.Error(t, err)
}

// TestParseFlags_Success tests parsing the global flags.
func TestParseFlags_Success(t *testing.T) {
	t.Parallel()

	f, args, err := parseFlags([]string{"-r", "/srv", "--config", "a.env", "-c", "b.yaml", "-d", "ls", "-R", "x.zip"})
	require.NoError(t, err)

	assert.Equal(t, "/srv", f.root)
	assert.Equal(t, []string{"a.env", "b.yaml"}, f.configs)
	assert.True(t, f.debug)
	assert.Equal(t, []string{"ls", "-R", "x.zip"}, args)
}

// TestSlogManager_Success tests fanning out records to handlers of
// different levels.
func TestSlogManager_Success(t *testing.T) {
	t.Parallel()

	var info, debug bytes.Buffer

	m := NewSlogManager()
	m.AddHandler("info", slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}))
	m.AddHandler("debug", slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger := slog.New(m).With("mount", "a.zip")
	logger.Debug("Mounted archive.")
	logger.Info("Committed archive.")

	assert.NotContains(t, info.String(), "Mounted archive.")
	assert.Contains(t, info.String(), "Committed archive.")
	assert.Contains(t, debug.String(), "Mounted archive.")
	assert.Contains(t, debug.String(), "mount=a.zip")

	m.RemoveHandler("debug")
	assert.False(t, m.Enabled(context.Background(), slog.LevelDebug))
}

// TestMemoryObserver_Success tests that the heap is sampled from the start
// and that stopping waits for the sampling to end.
func TestMemoryObserver_Success(t *testing.T) {
	t.Parallel()

	obs := newMemoryObserver(context.Background(), 1<<20)

	peak, samples := obs.Peak()
	assert.Positive(t, peak)
	assert.GreaterOrEqual(t, samples, 1)

	obs.Stop()

	_, stopped := obs.Peak()
	time.Sleep(2 * heapSampleInterval)

	_, after := obs.Peak()
	assert.Equal(t, stopped, after)
}
