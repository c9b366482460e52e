package syncer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveContent(t *testing.T) {
	local := fileState{exists: true, mtime: 100, content: []byte("L")}
	remote := fileState{exists: true, mtime: 200, content: []byte("R")}

	content, reason, remoteWon := resolveContent(RemoteWins, local, remote)
	assert.Equal(t, []byte("R"), content)
	assert.Equal(t, "remote_wins", reason)
	assert.True(t, remoteWon)

	content, reason, remoteWon = resolveContent(LocalWins, local, remote)
	assert.Equal(t, []byte("L"), content)
	assert.Equal(t, "local_wins", reason)
	assert.False(t, remoteWon)

	content, _, remoteWon = resolveContent(NewestWins, local, remote)
	assert.Equal(t, []byte("R"), content)
	assert.True(t, remoteWon)

	newerLocal := fileState{exists: true, mtime: 300, content: []byte("L")}
	content, _, remoteWon = resolveContent(NewestWins, newerLocal, remote)
	assert.Equal(t, []byte("L"), content)
	assert.False(t, remoteWon)

	// Equal or missing mtimes fall back to remote.
	equal := fileState{exists: true, mtime: 200, content: []byte("L")}
	content, reason, remoteWon = resolveContent(NewestWins, equal, remote)
	assert.Equal(t, []byte("R"), content)
	assert.Equal(t, "newest_wins_fallback_remote", reason)
	assert.True(t, remoteWon)

	content, reason, remoteWon = resolveContent(BackupBoth, local, remote)
	assert.Equal(t, []byte("R"), content)
	assert.Equal(t, "backup_both", reason)
	assert.True(t, remoteWon)
}

func TestBackupSuffix(t *testing.T) {
	assert.Equal(t, "conflict", backupSuffix(BackupBoth))
	assert.Contains(t, backupSuffix(NewestWins), "backup_")
}

func TestCreateBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.html")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	backupPath, err := createBackup(path, "conflict")
	require.NoError(t, err)
	assert.Equal(t, path+".conflict", backupPath)

	content, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), content)
}

func TestContentHashDiffers(t *testing.T) {
	a := contentHash([]byte("a"))
	b := contentHash([]byte("b"))
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 128, "BLAKE2b-512 hex digest")
	assert.Equal(t, a, contentHash([]byte("a")))
}

func TestLocalStateMissingFile(t *testing.T) {
	state, err := localState(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.False(t, state.exists)
}

func TestStrategyDefaults(t *testing.T) {
	s := DefaultStrategy()
	assert.Equal(t, Bidirectional, s.Direction)
	assert.Equal(t, NewestWins, s.Conflict)
	assert.Equal(t, 5, s.MaxConcurrent)
	assert.True(t, s.BackupOnConflict)

	zero := Strategy{}.withDefaults()
	assert.Equal(t, 5, zero.MaxConcurrent)
	assert.NotZero(t, zero.Timeout)
}

func TestDirectionAndConflictStrings(t *testing.T) {
	assert.Equal(t, "pull", Pull.String())
	assert.Equal(t, "push", Push.String())
	assert.Equal(t, "bidirectional", Bidirectional.String())
	assert.Equal(t, "newest_wins", NewestWins.String())
	assert.Equal(t, "backup_both", BackupBoth.String())
}

func TestResultAccounting(t *testing.T) {
	r := &Result{
		SyncedItems: []string{"a"},
		Skipped:     []string{"b", "c"},
		Conflicts:   []Conflict{{Path: "d"}},
	}
	assert.Equal(t, 4, r.TotalProcessed())
	assert.Equal(t, 1, r.SuccessCount())
	assert.True(t, r.HasConflicts())
	assert.False(t, r.HasErrors())
	assert.False(t, r.IsSuccess())
}
