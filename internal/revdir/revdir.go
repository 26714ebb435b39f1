// Package revdir packs the set of file tips live at one changeset
// into a directory tree, interning structurally identical subtrees so
// that changesets touching only a handful of files share almost all
// of their tree storage with their neighbours, per §4.5.3 (the
// treepack strategy chosen over the flatter dirpack alternative — see
// the Open Question resolution in SPEC_FULL.md §9).
package revdir

import (
	"sort"
	"strings"
	"sync"
	"unsafe"

	"github.com/rcowham/gitp4transfer/internal/revdag"
)

// Node is one directory in a packed tree: its immediate subdirectories
// (sorted by name) and the commits of files living directly in it.
// Two Nodes built from identical content are always the same pointer,
// the way Table.intern enforces it.
type Node struct {
	Name  string
	Dirs  []*Node
	Files []*revdag.CvsCommit
	hash  uint64
}

// Entry is one file's export path and the commit currently live there.
type Entry struct {
	Path   string
	Commit *revdag.CvsCommit
}

// Table interns directory nodes across every changeset of a run, the
// way rev_pack_dir's hash-bucketed lookup avoids reallocating a
// directory's storage when it reappears unchanged in a later
// changeset.
type Table struct {
	mu      sync.Mutex
	buckets map[uint64][]*Node
}

// NewTable returns an empty interning table, scoped to one conversion
// run (it is shared across every changeset so repeated subtrees
// collapse to one allocation).
func NewTable() *Table {
	return &Table{buckets: make(map[uint64][]*Node)}
}

// PackFiles builds the directory tree for one changeset's file set.
// entries need not be pre-sorted; PackFiles imposes the directory-path
// order itself so that repeated calls with the same file set produce
// byte-identical trees regardless of caller ordering.
func (t *Table) PackFiles(entries []Entry) *Node {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return pathDeepLess(sorted[i].Path, sorted[j].Path)
	})
	return t.packDir("", sorted)
}

// packDir builds (and interns) the node for one directory level, given
// entries whose paths all share the directory prefix already stripped
// by the caller, recursing into each distinct top-level subdirectory.
func (t *Table) packDir(name string, entries []Entry) *Node {
	var files []*revdag.CvsCommit
	var dirs []*Node

	i := 0
	for i < len(entries) {
		rest := entries[i].Path
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			sub := rest[:slash]
			j := i
			var children []Entry
			for j < len(entries) {
				slash2 := strings.IndexByte(entries[j].Path, '/')
				if slash2 < 0 || entries[j].Path[:slash2] != sub {
					break
				}
				children = append(children, Entry{Path: entries[j].Path[slash2+1:], Commit: entries[j].Commit})
				j++
			}
			dirs = append(dirs, t.packDir(sub, children))
			i = j
			continue
		}
		files = append(files, entries[i].Commit)
		i++
	}

	return t.intern(name, dirs, files)
}

// intern returns the canonical Node for this (name, dirs, files)
// combination, allocating it only the first time this exact content
// is seen anywhere in the run.
func (t *Table) intern(name string, dirs []*Node, files []*revdag.CvsCommit) *Node {
	h := fnvMix(name, dirs, files)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, cand := range t.buckets[h] {
		if cand.Name == name && sameDirs(cand.Dirs, dirs) && sameFiles(cand.Files, files) {
			return cand
		}
	}
	node := &Node{Name: name, Dirs: dirs, Files: files, hash: h}
	t.buckets[h] = append(t.buckets[h], node)
	return node
}

func sameDirs(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameFiles(a, b []*revdag.CvsCommit) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fnvMix combines a directory's name and the addresses of its child
// nodes and file commits into one hash, the Go analogue of treepack's
// "xor pointer, multiply by the FNV1a prime" combinator: cheap, and
// sufficient since it's only used to shortlist candidates before the
// exact equality check above runs.
func fnvMix(name string, dirs []*Node, files []*revdag.CvsCommit) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(name); i++ {
		h = (h ^ uint64(name[i])) * 1099511628211
	}
	for _, d := range dirs {
		h = (h ^ uint64(uintptr(unsafe.Pointer(d)))) * 1099511628211
	}
	for _, f := range files {
		h = (h ^ uint64(uintptr(unsafe.Pointer(f)))) * 1099511628211
	}
	return h
}

// Iterator walks a packed tree in post order (every subdirectory
// before the files that live in it, mirroring revdir_iter_next's
// traversal).
type Iterator struct {
	stack []frame
}

type frame struct {
	node     *Node
	dirIdx   int
	fileIdx  int
	descended bool
}

// NewIterator starts a post-order walk of root.
func NewIterator(root *Node) *Iterator {
	it := &Iterator{stack: []frame{{node: root}}}
	it.descend()
	return it
}

// descend pushes frames down the current leftmost unvisited subdirectory
// chain, so the top of the stack is always the next directory whose
// own files should be yielded.
func (it *Iterator) descend() {
	for {
		top := &it.stack[len(it.stack)-1]
		if top.descended {
			return
		}
		if top.dirIdx < len(top.node.Dirs) {
			child := top.node.Dirs[top.dirIdx]
			it.stack = append(it.stack, frame{node: child})
			continue
		}
		top.descended = true
		return
	}
}

// Next returns the next file commit in post-order, or (nil, false)
// once the tree is exhausted.
func (it *Iterator) Next() (*revdag.CvsCommit, bool) {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.fileIdx < len(top.node.Files) {
			c := top.node.Files[top.fileIdx]
			top.fileIdx++
			return c, true
		}
		// this directory (and all its subdirs) is exhausted; pop and
		// resume descent into the parent's next sibling subdirectory.
		it.stack = it.stack[:len(it.stack)-1]
		if len(it.stack) == 0 {
			return nil, false
		}
		parent := &it.stack[len(it.stack)-1]
		parent.dirIdx++
		parent.descended = false
		it.descend()
	}
	return nil, false
}

// NextDir skips every remaining file in the current directory,
// resuming the walk from the next directory in post-order (mirrors
// revdir_iter_next_dir). Nothing in this module calls it.
func (it *Iterator) NextDir() (*revdag.CvsCommit, bool) {
	if len(it.stack) == 0 {
		return nil, false
	}
	it.stack = it.stack[:len(it.stack)-1]
	if len(it.stack) == 0 {
		return nil, false
	}
	parent := &it.stack[len(it.stack)-1]
	parent.dirIdx++
	parent.descended = false
	it.descend()
	return it.Next()
}

// SameDir reports whether both iterators currently sit on the same
// directory node. Nothing in this module calls it.
func (it *Iterator) SameDir(other *Iterator) bool {
	if len(it.stack) == 0 || len(other.stack) == 0 {
		return len(it.stack) == len(other.stack)
	}
	return it.stack[len(it.stack)-1].node == other.stack[len(other.stack)-1].node
}

// NFiles counts every file commit reachable under node, recursively.
func NFiles(node *Node) int {
	n := len(node.Files)
	for _, d := range node.Dirs {
		n += NFiles(d)
	}
	return n
}

// pathDeepLess orders two export paths so that files sharing a
// directory prefix sort contiguously and subdirectories sort after
// the files directly in their parent, maximising the run-length of
// shared prefixes PackFiles can fold into one interned subtree.
func pathDeepLess(a, b string) bool {
	as := strings.Split(a, "/")
	bs := strings.Split(b, "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] != bs[i] {
			// A component present only as a directory in one path sorts
			// after a same-named leaf file in the other, so files in a
			// directory precede that directory's own subdirectories.
			aIsLeaf := i == len(as)-1
			bIsLeaf := i == len(bs)-1
			if aIsLeaf != bIsLeaf {
				return aIsLeaf
			}
			return as[i] < bs[i]
		}
	}
	return len(as) < len(bs)
}
