package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

func TestCreateMergeRemove_RoundTrips(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := initRepo(t)
	m := &Manager{ProjectDir: dir}
	ctx := context.Background()

	wt, err := m.Create(ctx, "t1")
	require.NoError(t, err)
	require.DirExists(t, wt.Path)

	require.NoError(t, os.WriteFile(filepath.Join(wt.Path, "t1.txt"), []byte("work\n"), 0o644))

	require.NoError(t, m.Merge(ctx, wt))
	require.FileExists(t, filepath.Join(dir, "t1.txt"))

	require.NoError(t, m.Remove(ctx, wt))
	require.NoDirExists(t, wt.Path)
}
