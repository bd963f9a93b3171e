package store

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReadStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "read.json")

	rs := Load(path, discard())
	rs.Add("42")
	rs.AddAll([]string{"welfare_7", "13"})

	reloaded := Load(path, discard())
	require.True(t, reloaded.Contains("42"))
	require.True(t, reloaded.Contains("welfare_7"))
	require.True(t, reloaded.Contains("13"))
	require.False(t, reloaded.Contains("99"))
	require.Equal(t, []string{"13", "42", "welfare_7"}, reloaded.IDs())
}

func TestReadStateMissingFileStartsEmpty(t *testing.T) {
	rs := Load(filepath.Join(t.TempDir(), "absent.json"), discard())
	require.Zero(t, rs.Len())
}

func TestReadStateCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "read.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	rs := Load(path, discard())
	require.Zero(t, rs.Len())

	// The corrupt file is recoverable: the next mutation overwrites it.
	rs.Add("1")
	require.Equal(t, []string{"1"}, Load(path, discard()).IDs())
}

func TestReadStatePrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "read.json")
	rs := Load(path, discard())
	rs.AddAll([]string{"a", "b", "c"})

	rs.Prune(map[string]struct{}{"b": {}})
	require.Equal(t, []string{"b"}, rs.IDs())

	// Pruned result is persisted, not just in-memory.
	require.Equal(t, []string{"b"}, Load(path, discard()).IDs())
}

func TestReadStatePersistFailureKeepsMemory(t *testing.T) {
	// Point the state file into a directory that does not exist: every persist
	// fails, in-memory state must survive regardless.
	rs := Load(filepath.Join(t.TempDir(), "no-such-dir", "read.json"), discard())
	rs.Add("kept")
	require.True(t, rs.Contains("kept"))
}
