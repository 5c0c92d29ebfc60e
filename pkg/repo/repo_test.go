package repo

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindRoot(t *testing.T) {
	appFs = afero.NewMemMapFs()
	defer func() { appFs = afero.NewOsFs() }()

	require.NoError(t, appFs.MkdirAll("/work/project/.git", 0o700))
	require.NoError(t, appFs.MkdirAll("/work/project/src/pkg/deep", 0o700))
	require.NoError(t, appFs.MkdirAll("/work/other/src", 0o700))
	require.NoError(t, appFs.MkdirAll("/work/worktree", 0o700))
	require.NoError(t, afero.WriteFile(appFs, "/work/worktree/.git", []byte("gitdir: /x"), 0o600))

	cases := []struct {
		start string
		want  string
	}{
		{"/work/project", "/work/project"},
		{"/work/project/src/pkg/deep", "/work/project"},
		{"/work/worktree", "/work/worktree"},
	}

	for _, tc := range cases {
		got, err := FindRoot(tc.start)
		assert.NoError(t, err, tc.start)
		assert.Equal(t, filepath.FromSlash(tc.want), got, tc.start)
	}

	_, err := FindRoot("/work/other/src")
	assert.True(t, errors.Is(err, ErrNotARepository), "expected ErrNotARepository, got %v", err)
}

func TestFindRootIsCaseSensitive(t *testing.T) {
	appFs = afero.NewMemMapFs()
	defer func() { appFs = afero.NewOsFs() }()

	require.NoError(t, appFs.MkdirAll("/work/upper/.GIT", 0o700))
	require.NoError(t, appFs.MkdirAll("/work/upper/src", 0o700))

	_, err := FindRoot("/work/upper/src")
	assert.ErrorIs(t, err, ErrNotARepository)
}

func TestFindRootOnDisk(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, appFs.MkdirAll(filepath.Join(dir, ".git"), 0o700))
	require.NoError(t, appFs.MkdirAll(sub, 0o700))

	got, err := FindRoot(sub)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestGitDir(t *testing.T) {
	appFs = afero.NewMemMapFs()
	defer func() { appFs = afero.NewOsFs() }()

	require.NoError(t, appFs.MkdirAll("/work/project/.git", 0o700))
	require.NoError(t, appFs.MkdirAll("/work/linked", 0o700))
	require.NoError(t, afero.WriteFile(appFs, "/work/linked/.git",
		[]byte("gitdir: /work/project/.git/worktrees/linked\n"), 0o600))
	require.NoError(t, appFs.MkdirAll("/work/project/lib", 0o700))
	require.NoError(t, afero.WriteFile(appFs, "/work/project/lib/.git",
		[]byte("gitdir: ../.git/modules/lib"), 0o600))
	require.NoError(t, appFs.MkdirAll("/work/broken", 0o700))
	require.NoError(t, afero.WriteFile(appFs, "/work/broken/.git", []byte("garbage"), 0o600))

	cases := []struct {
		root string
		want string
	}{
		{"/work/project", "/work/project/.git"},
		{"/work/linked", "/work/project/.git/worktrees/linked"},
		{"/work/project/lib", "/work/project/.git/modules/lib"},
	}

	for _, tc := range cases {
		got, err := GitDir(filepath.FromSlash(tc.root))
		assert.NoError(t, err, tc.root)
		assert.Equal(t, filepath.FromSlash(tc.want), got, tc.root)
	}

	_, err := GitDir("/work/broken")
	assert.ErrorIs(t, err, ErrNotARepository)

	_, err = GitDir("/work/missing")
	assert.ErrorIs(t, err, ErrNotARepository)
}
