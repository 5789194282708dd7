package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDepositAndBalance(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	env := "DB_PATH=" + filepath.Join(dir, "db") + "\nDB_SYNC=false\nLOG_LEVEL=error\n"
	require.NoError(t, os.WriteFile(envFile, []byte(env), 0o644))
	t.Setenv("DB_PATH", filepath.Join(dir, "db"))

	out, err := run(t, "--env", envFile, "deposit", "7", "2.5")
	require.NoError(t, err)
	require.Equal(t, "user 7 balance 2.500 g\n", out)

	out, err = run(t, "--env", envFile, "deposit", "7", "0.25")
	require.NoError(t, err)
	require.Equal(t, "user 7 balance 2.750 g\n", out)

	out, err = run(t, "--env", envFile, "balance", "7")
	require.NoError(t, err)
	require.Equal(t, "user 7 balance 2.750 g\n", out)

	_, err = run(t, "--env", envFile, "deposit", "7", "1.0001")
	require.Error(t, err)

	_, err = run(t, "--env", envFile, "balance", "seven")
	require.Error(t, err)
}
