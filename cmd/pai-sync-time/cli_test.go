package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/danmuck/paisync/internal/protocol/frame"
	"github.com/danmuck/paisync/internal/protocol/schema"
	"github.com/danmuck/paisync/internal/testutil/panelsim"
	"github.com/danmuck/paisync/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCLI(t *testing.T, deps wireDeps, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmdWith(deps)
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writePanelConfig(t *testing.T, addr, extra string) string {
	t.Helper()
	host, portRaw, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portRaw)
	require.NoError(t, err)
	body := fmt.Sprintf(`
[panel]
host = %q
port = %d
password = "4321"
connect_timeout = "500ms"

[sync_time]
timezone = "Europe/Lisbon"
reply_timeout = "200ms"

[interfaces]
enabled = ["log"]
%s`, host, port, extra)
	path := filepath.Join(t.TempDir(), "pai.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSyncSuccessExitsZero(t *testing.T) {
	testlog.Start(t)
	panel := panelsim.Start(t, panelsim.Config{Password: 0x4321, OnCommand: panelsim.Echo})
	prom := filepath.Join(t.TempDir(), "pai.prom")
	path := writePanelConfig(t, panel.Addr(), fmt.Sprintf("\n[metrics]\ntextfile = %q\n", prom))

	now := time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)
	_, err := executeCLI(t, wireDeps{now: func() time.Time { return now }}, "-c", path)
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode(&bytes.Buffer{}, err))

	var sent frame.Frame
	for _, f := range panel.Received() {
		if f.Body[0] == 0x30 {
			sent = f
		}
	}
	fields, err := schema.Decode(schema.MsgSetTimeDate, sent)
	require.NoError(t, err)
	assert.Equal(t, 12, fields[schema.FieldHour])
	assert.Equal(t, 15, fields[schema.FieldDay])

	body, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(body), `paisync_sync_time_attempts_total{result="success"} 1`)
}

func TestSyncNoReplyExitsOne(t *testing.T) {
	testlog.Start(t)
	panel := panelsim.Start(t, panelsim.Config{Password: 0x4321, OnCommand: panelsim.Silent})
	path := writePanelConfig(t, panel.Addr(), "")

	_, err := executeCLI(t, wireDeps{}, "--config", path)
	require.ErrorIs(t, err, ErrSyncFailed)

	var stderr bytes.Buffer
	assert.Equal(t, 1, exitCode(&stderr, err))
	assert.Contains(t, stderr.String(), "time sync failed")
	require.Eventually(t, func() bool { return panel.Count(0x70) == 1 }, time.Second, 10*time.Millisecond)
}

func TestSyncConnectFailureExitsOne(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	path := writePanelConfig(t, addr, "")

	_, err = executeCLI(t, wireDeps{}, "-c", path)
	require.ErrorIs(t, err, ErrSyncFailed)
	assert.Equal(t, 1, exitCode(&bytes.Buffer{}, err))
}

func TestSyncMissingConfigIsStartupError(t *testing.T) {
	testlog.Start(t)
	_, err := executeCLI(t, wireDeps{}, "-c", filepath.Join(t.TempDir(), "none.toml"))
	require.Error(t, err)

	var se *StartupError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "config", se.Stage)
	assert.Equal(t, 2, exitCode(&bytes.Buffer{}, err))
}

func TestSyncUnknownInterfaceIsStartupError(t *testing.T) {
	testlog.Start(t)
	path := writePanelConfig(t, "127.0.0.1:1", "")
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	body = bytes.Replace(body, []byte(`enabled = ["log"]`), []byte(`enabled = ["mqtt"]`), 1)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	_, err = executeCLI(t, wireDeps{}, "-c", path)
	var se *StartupError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "interfaces", se.Stage)
}

func TestConfigInitThenValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "pai.toml")

	out, err := executeCLI(t, wireDeps{}, "config", "init", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote config template")

	_, err = executeCLI(t, wireDeps{}, "config", "init", "-c", path)
	assert.ErrorContains(t, err, "config already exists")

	_, err = executeCLI(t, wireDeps{}, "config", "init", "--force", "-c", path)
	require.NoError(t, err)

	out, err = executeCLI(t, wireDeps{}, "config", "validate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok: panel=192.168.1.50:10000")
}

func TestRootRejectsArgs(t *testing.T) {
	testlog.Start(t)
	_, err := executeCLI(t, wireDeps{}, "extra")
	assert.Error(t, err)
}
