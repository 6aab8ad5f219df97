package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, baseDir string) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		BaseDir:       baseDir,
		Log:           log.New(),
		RemoveBackoff: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return m
}

// writeStubGit creates a fake git binary so clone behavior can be exercised
// without network access. The script mimics `git clone <url> <path>`.
func writeStubGit(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "git")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base directory")
}

func TestNewManagerCreatesRoot(t *testing.T) {
	base := filepath.Join(t.TempDir(), "repos")
	m := newTestManager(t, base)

	info, err := os.Stat(m.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureCleanMissingWorkspace(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	assert.True(t, m.EnsureClean(context.Background(), "never-cloned"))
}

func TestEnsureCleanRemovesWorkspace(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)

	repoDir := m.Path("my-repo")
	require.NoError(t, os.MkdirAll(filepath.Join(repoDir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "src", "main.py"), []byte("print()"), 0644))

	assert.True(t, m.EnsureClean(context.Background(), "my-repo"))
	_, err := os.Stat(repoDir)
	assert.True(t, os.IsNotExist(err), "workspace should be gone")
}

func TestEnsureCleanRemovesReadOnlyFiles(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)

	repoDir := m.Path("my-repo")
	objDir := filepath.Join(repoDir, ".git", "objects", "pack")
	require.NoError(t, os.MkdirAll(objDir, 0755))

	packFile := filepath.Join(objDir, "pack-abc123.pack")
	require.NoError(t, os.WriteFile(packFile, []byte("data"), 0644))
	require.NoError(t, os.Chmod(packFile, 0444))
	// A read-only directory is the case that actually blocks removal on
	// Unix; git leaves these behind in .git/objects.
	require.NoError(t, os.Chmod(objDir, 0555))
	t.Cleanup(func() {
		_ = os.Chmod(objDir, 0755)
	})

	assert.True(t, m.EnsureClean(context.Background(), "my-repo"))
	_, err := os.Stat(repoDir)
	assert.True(t, os.IsNotExist(err), "workspace should be gone despite read-only entries")
}

func TestEnsureCleanGivesUpAfterBoundedRetries(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)

	repoDir := m.Path("stuck-repo")
	require.NoError(t, os.MkdirAll(repoDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "file"), []byte("x"), 0644))

	// Making the workspace root read-only blocks deletion of the repo
	// directory itself; the permission walk only touches the workspace
	// contents, so every attempt fails the same way.
	require.NoError(t, os.Chmod(base, 0555))
	t.Cleanup(func() {
		_ = os.Chmod(base, 0755)
	})

	start := time.Now()
	ok := m.EnsureClean(context.Background(), "stuck-repo")
	elapsed := time.Since(start)

	assert.False(t, ok, "EnsureClean must report failure, not raise")
	assert.Less(t, elapsed, 2*time.Second, "retries must be bounded")
	_, err := os.Stat(repoDir)
	assert.NoError(t, err, "workspace still present after failed removal")
}

func TestCloneSuccess(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)
	m.gitBinary = writeStubGit(t, "#!/bin/sh\nmkdir -p \"$3\"\ntouch \"$3/README.md\"\nexit 0\n")

	ok := m.Clone(context.Background(), "https://github.com/acme/widgets.git", "widgets")
	require.True(t, ok)

	_, err := os.Stat(filepath.Join(m.Path("widgets"), "README.md"))
	assert.NoError(t, err)
}

func TestCloneFailureReturnsFalse(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)
	m.gitBinary = writeStubGit(t, "#!/bin/sh\necho 'fatal: repository not found' >&2\nexit 128\n")

	ok := m.Clone(context.Background(), "https://github.com/acme/missing.git", "missing")
	assert.False(t, ok, "clone failure is reported, never raised")
}

func TestCloneMissingBinaryReturnsFalse(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)
	m.gitBinary = filepath.Join(t.TempDir(), "no-such-git")

	ok := m.Clone(context.Background(), "https://github.com/acme/widgets.git", "widgets")
	assert.False(t, ok)
}

func TestCloneReplacesExistingWorkspace(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)
	m.gitBinary = writeStubGit(t, "#!/bin/sh\nmkdir -p \"$3\"\ntouch \"$3/fresh\"\nexit 0\n")

	stale := filepath.Join(m.Path("widgets"), "stale")
	require.NoError(t, os.MkdirAll(m.Path("widgets"), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	require.True(t, m.Clone(context.Background(), "https://github.com/acme/widgets.git", "widgets"))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale content must not survive a re-clone")
	_, err = os.Stat(filepath.Join(m.Path("widgets"), "fresh"))
	assert.NoError(t, err)
}

func TestCloneAbortsWhenWorkspaceCannotBeCleaned(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)

	marker := filepath.Join(t.TempDir(), "git-invoked")
	m.gitBinary = writeStubGit(t, "#!/bin/sh\ntouch \""+marker+"\"\nexit 0\n")

	repoDir := m.Path("dirty")
	require.NoError(t, os.MkdirAll(repoDir, 0755))
	require.NoError(t, os.Chmod(base, 0555))
	t.Cleanup(func() {
		_ = os.Chmod(base, 0755)
	})

	ok := m.Clone(context.Background(), "https://github.com/acme/dirty.git", "dirty")
	assert.False(t, ok)
	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err), "git must not run over a dirty workspace")
}

func TestRemoveAll(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)

	for _, name := range []string{"repo-a", "repo-b", "repo-c"} {
		require.NoError(t, os.MkdirAll(filepath.Join(m.Path(name), "src"), 0755))
	}
	strayFile := filepath.Join(base, "notes.txt")
	require.NoError(t, os.WriteFile(strayFile, []byte("keep"), 0644))

	require.NoError(t, m.RemoveAll(context.Background()))

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the stray non-directory entry survives")
	assert.Equal(t, "notes.txt", entries[0].Name())
}

func TestRemoveAllMissingRoot(t *testing.T) {
	base := filepath.Join(t.TempDir(), "repos")
	m := newTestManager(t, base)
	require.NoError(t, os.RemoveAll(base))

	assert.NoError(t, m.RemoveAll(context.Background()))
}
