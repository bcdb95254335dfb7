package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostrly/pkg/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestThreadCommand_Offline(t *testing.T) {
	db := t.TempDir()
	out, err := run(t, "thread", "r1", "--db", db, "--opener", "c1")
	require.NoError(t, err)

	var td models.ThreadData
	require.NoError(t, json.Unmarshal([]byte(out), &td))
	assert.Equal(t, "r1", td.RootID)
	assert.Equal(t, "c1", td.OpenerID)
	assert.Empty(t, td.Items)
}

func TestEventCommand_NotFound(t *testing.T) {
	_, err := run(t, "event", "missing", "--db", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMaintenanceCommands(t *testing.T) {
	db := t.TempDir()

	out, err := run(t, "sweep", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "swept 0 events and 0 threads")

	out, err = run(t, "purge", "--yes", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "events:")

	out, err = run(t, "inspect", db)
	require.NoError(t, err)
	assert.Contains(t, out, "thread_expiry:")
}

func TestConfigErrorsSurface(t *testing.T) {
	_, err := run(t, "sweep", "--db", t.TempDir(), "--relay", "http://not-a-relay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay")
}

func TestBenchTargets(t *testing.T) {
	b := benchConfig{Host: "http://h:1/", Roots: []string{"a", "b"}, Endpoint: "ensure", Opener: "o", RPS: 1, Duration: 1}
	targets, err := b.targets()
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "POST", targets[0].Method)
	assert.Equal(t, "http://h:1/v1/threads/a/ensure?opener=o", targets[0].URL)

	b.Endpoint = "get"
	targets, err = b.targets()
	require.NoError(t, err)
	assert.Equal(t, "http://h:1/v1/threads/b", targets[1].URL)

	b.Endpoint = "delete"
	_, err = b.targets()
	require.Error(t, err)

	_, err = benchConfig{Endpoint: "get", RPS: 1, Duration: 1}.targets()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "--root"))
}
