package kernel

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/require"
)

func TestCommandHelpAndSynopsis(t *testing.T) {
	cmd := New(context.Background(), cli.NewMockUi(), &bytes.Buffer{})
	require.NotEmpty(t, cmd.Help())
	require.NotEmpty(t, cmd.Synopsis())
}

func TestCommandRequiresKernelID(t *testing.T) {
	var out bytes.Buffer
	cmd := New(context.Background(), cli.NewMockUi(), &out)

	code := cmd.Run([]string{"-listen", "/tmp/whatever.sock", "-psk-file", writeTempPSK(t)})
	require.Equal(t, 1, code)
}

func TestCommandRequiresPSKFile(t *testing.T) {
	var out bytes.Buffer
	cmd := New(context.Background(), cli.NewMockUi(), &out)

	code := cmd.Run([]string{"-kernel-id", "kernel-1", "-listen", "/tmp/whatever.sock"})
	require.Equal(t, 1, code)
}

func TestCommandRequiresListen(t *testing.T) {
	var out bytes.Buffer
	cmd := New(context.Background(), cli.NewMockUi(), &out)

	code := cmd.Run([]string{"-kernel-id", "kernel-1", "-psk-file", writeTempPSK(t)})
	require.Equal(t, 1, code)
}

func TestCommandRejectsMissingPSKFile(t *testing.T) {
	var out bytes.Buffer
	cmd := New(context.Background(), cli.NewMockUi(), &out)

	code := cmd.Run([]string{
		"-kernel-id", "kernel-1",
		"-listen", "/tmp/whatever.sock",
		"-psk-file", filepath.Join(t.TempDir(), "does-not-exist"),
	})
	require.Equal(t, 1, code)
}

func writeTempPSK(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kernel.psk")
	require.NoError(t, os.WriteFile(path, []byte("test-psk"), 0o600))
	return path
}
