package shares

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T) (*Table, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("world"), 0o644))

	tbl := New()
	require.NoError(t, tbl.Replace([]string{"docs"}, []string{root}))
	return tbl, root
}

func TestResolveTopLevelListsShareNames(t *testing.T) {
	tbl, _ := newTestTable(t)
	listing, err := Resolve(tbl, "/")
	require.NoError(t, err)
	require.Len(t, listing.Entries, 1)
	assert.Equal(t, "docs", listing.Entries[0].Name)
	assert.True(t, listing.Entries[0].IsDir)
}

func TestResolveShareRootListsFiles(t *testing.T) {
	tbl, _ := newTestTable(t)
	listing, err := Resolve(tbl, "/docs")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range listing.Entries {
		names[e.Name] = true
	}
	assert.True(t, names["a.txt"])
	assert.True(t, names["sub"])
}

func TestResolveUnknownShareName(t *testing.T) {
	tbl, _ := newTestTable(t)
	_, err := Resolve(tbl, "/nope")
	require.Error(t, err)
	var nf *ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestResolveCollapsesDotDotBeforeShareLookup(t *testing.T) {
	// filepath.Clean collapses ".." against the root before the share name
	// is ever extracted, so an attempt to walk above a declared share via
	// shareDir lands on an unknown share name rather than an escaped path.
	tbl, _ := newTestTable(t)
	_, err := Resolve(tbl, "/docs/../../etc")
	require.Error(t, err)
	var nf *ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestResolveFileWithinShare(t *testing.T) {
	tbl, root := newTestTable(t)
	path, err := ResolveFile(tbl, "/docs/sub", "b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "b.txt"), path)
}

func TestResolveFileRejectsTraversal(t *testing.T) {
	tbl, _ := newTestTable(t)
	_, err := ResolveFile(tbl, "/docs", "../../../etc/passwd")
	require.Error(t, err)
}

func TestTableNamesPreservesDeclarationOrder(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Replace([]string{"b", "a", "c"}, []string{"/b", "/a", "/c"}))
	assert.Equal(t, []string{"b", "a", "c"}, tbl.Names())
}
