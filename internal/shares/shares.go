// Package shares implements the share declaration table and on-demand
// directory listing described in spec.md §3 ("Share declaration",
// "Directory-listing cache") and §4.4's share-listing semantics. Grounded
// on taco/shares.py's Shares class (ordered name→path table with a
// resolve-and-guard helper) and the teacher's orderedmap usage elsewhere
// for deterministic iteration order.
package shares

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/elliotchance/orderedmap"
)

// MaxListingEntries bounds a single listing reply, matching the original
// program's SHARE_LISTING_MAX_ENTRIES constant.
const MaxListingEntries = 2000

// Entry is one item in a directory listing.
type Entry struct {
	Name        string
	VirtualPath string
	IsDir       bool
}

// Listing is the result of resolving a share-dir request.
type Listing struct {
	Entries   []Entry
	Truncated bool
}

// ErrNotFound is returned when shareDir's leading segment does not name a
// declared share.
type ErrNotFound struct{ ShareDir string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("share not found: %q", e.ShareDir) }

// ErrTraversal is returned when the resolved local path would escape the
// declared share root, per spec.md §4.4 and the path-traversal-rejection
// property (spec.md §8.6).
type ErrTraversal struct{ ShareDir string }

func (e *ErrTraversal) Error() string { return fmt.Sprintf("path escapes share root: %q", e.ShareDir) }

// Table is the ordered (name -> local path) share declaration table.
// Share-name is the only thing ever exposed to peers; local paths never
// are, per spec.md §3.
type Table struct {
	mu   sync.RWMutex
	byID *orderedmap.OrderedMap
}

func New() *Table {
	return &Table{byID: orderedmap.NewOrderedMap()}
}

// Replace atomically sets the declared shares, in order, from pairs of
// (name, localPath). Mirrors save_shares() from spec.md §6.
func (t *Table) Replace(names, paths []string) error {
	if len(names) != len(paths) {
		return fmt.Errorf("shares: names/paths length mismatch")
	}
	m := orderedmap.NewOrderedMap()
	for i, name := range names {
		m.Set(name, paths[i])
	}
	t.mu.Lock()
	t.byID = m
	t.mu.Unlock()
	return nil
}

// Names returns the declared share names in declaration order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for el := t.byID.Front(); el != nil; el = el.Next() {
		out = append(out, el.Key.(string))
	}
	return out
}

func (t *Table) localRoot(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.byID.Get(name)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Resolve implements the share-listing semantics of spec.md §4.4: a
// top-level request (shareDir == "/" or "") lists declared share names;
// otherwise the first path segment selects a share and the remainder is
// joined to its local root, guarded against escaping that root.
func Resolve(t *Table, shareDir string) (Listing, error) {
	clean := cleanPath(shareDir)
	if clean == "" || clean == "." || clean == "/" {
		var entries []Entry
		for _, name := range t.Names() {
			entries = append(entries, Entry{Name: name, VirtualPath: "/" + name, IsDir: true})
		}
		return Listing{Entries: entries}, nil
	}

	segments := strings.Split(strings.Trim(clean, "/"), "/")
	shareName := segments[0]
	root, ok := t.localRoot(shareName)
	if !ok {
		return Listing{}, &ErrNotFound{ShareDir: shareDir}
	}

	rel := filepath.Join(segments[1:]...)
	target := filepath.Join(root, rel)
	if !withinRoot(root, target) {
		return Listing{}, &ErrTraversal{ShareDir: shareDir}
	}

	dirEntries, err := os.ReadDir(target)
	if err != nil {
		return Listing{}, err
	}
	sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })

	listing := Listing{}
	for _, de := range dirEntries {
		if len(listing.Entries) >= MaxListingEntries {
			listing.Truncated = true
			break
		}
		virtual := "/" + shareName
		if rel != "." && rel != "" {
			virtual += "/" + filepath.ToSlash(rel)
		}
		virtual += "/" + de.Name()
		listing.Entries = append(listing.Entries, Entry{
			Name:        de.Name(),
			VirtualPath: virtual,
			IsDir:       de.IsDir(),
		})
	}
	return listing, nil
}

// ResolveFile resolves shareDir/fileName to a local path, for opening a
// chunk read (spec.md §4.4's "Outgoing chunk service"). Returns
// ErrNotFound / ErrTraversal on the same terms as Resolve.
func ResolveFile(t *Table, shareDir, fileName string) (string, error) {
	clean := cleanPath(shareDir)
	segments := strings.Split(strings.Trim(clean, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", &ErrNotFound{ShareDir: shareDir}
	}
	shareName := segments[0]
	root, ok := t.localRoot(shareName)
	if !ok {
		return "", &ErrNotFound{ShareDir: shareDir}
	}

	rel := filepath.Join(append(segments[1:], fileName)...)
	target := filepath.Join(root, rel)
	if !withinRoot(root, target) {
		return "", &ErrTraversal{ShareDir: shareDir}
	}
	return target, nil
}

func withinRoot(root, target string) bool {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return filepath.ToSlash(filepath.Clean(p))
}
