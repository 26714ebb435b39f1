// Package export walks the merged gitspace changeset DAG (package
// merge) and writes it out as a git fast-import stream, component
// E.6 of the specification. Canonical ordering, mark assignment, and
// the fileop diff between a changeset and its parent are grounded in
// export_commit and export_commits in the ancestor codebase's
// export.c.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rcowham/gitp4transfer/internal/authormap"
	"github.com/rcowham/gitp4transfer/internal/blobstore"
	"github.com/rcowham/gitp4transfer/internal/merge"
	"github.com/rcowham/gitp4transfer/internal/revdag"
	"github.com/rcowham/gitp4transfer/internal/revdir"
)

// Order selects how changesets are enumerated onto the stream.
type Order int

const (
	// Canonical reproduces the reference tool's byte-for-byte order:
	// collect every branch's span, reverse each into oldest-first,
	// concatenate, then (if parent dates never exceed child dates)
	// stable-sort the whole thing by date.
	Canonical Order = iota
	// Branchorder emits each branch in full before the next, simpler
	// and faster but not directly comparable to reference output.
	Branchorder
)

// Options configures one emission run.
type Options struct {
	Order             Order
	Remote            string // non-empty: emit refs/remotes/<Remote>/<branch> instead of refs/heads/<branch>
	Reposurgeon       bool   // emit "property cvs-revision" extension lines
	IncrementalCutoff int64  // changesets with Date <= this emit no body, per §4.5.6
	MaxCommits        int    // 0 means unlimited
	Authors           *authormap.Table
	Warn              func(format string, args ...interface{})
}

// Emitter writes one merged DAG to w as a fast-import stream.
type Emitter struct {
	w        io.Writer
	blobs    *blobstore.Store
	opts     Options
	marks    map[*merge.GitCommit]int
	blobMark map[int64]int
	staged   map[int64]bool
	nextMark int
}

// New creates an Emitter writing to w, reading staged blob bodies
// from blobs.
func New(w io.Writer, blobs *blobstore.Store, opts Options) *Emitter {
	return &Emitter{
		w:        w,
		blobs:    blobs,
		opts:     opts,
		marks:    map[*merge.GitCommit]int{},
		blobMark: map[int64]int{},
		staged:   map[int64]bool{},
	}
}

// fileop is one path's modify-or-delete operation between a changeset
// and its parent, the Go analogue of export.c's "struct fileop".
type fileop struct {
	op     byte // 'M' or 'D'
	mode   uint32
	serial int64 // blobstore serial, only meaningful for 'M'
	path   string
}

// fileopSort orders fileops the way git fast-export does: compared
// component by component, a directory component sorts ahead of a leaf
// name at the same level, so paths inside directories come before
// plain files ("a/x" < "b/y" < "a" < "b"), and a longer path sorts
// ahead of its own prefix; otherwise components compare lexically.
func fileopSort(ops []fileop) {
	sort.Slice(ops, func(i, j int) bool {
		a := strings.Split(ops[i].path, "/")
		b := strings.Split(ops[j].path, "/")
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				if aLeaf, bLeaf := k == len(a)-1, k == len(b)-1; aLeaf != bLeaf {
					return bLeaf
				}
				return a[k] < b[k]
			}
		}
		return len(a) > len(b)
	})
}

// Run emits every branch's changesets in the configured order, every
// tag (as recorded on each changeset's Tags by the merger), one
// "reset" per branch head, and a terminating "done".
func (e *Emitter) Run(branches []*merge.Branch) error {
	var sequence []*merge.GitCommit
	if e.opts.Order == Branchorder {
		sequence = e.branchOrder(branches)
	} else {
		sequence = e.canonicalOrder(branches)
	}

	if e.opts.MaxCommits > 0 && len(sequence) > e.opts.MaxCommits {
		sequence = sequence[:e.opts.MaxCommits]
	}

	for _, c := range sequence {
		if err := e.emitCommit(c); err != nil {
			return err
		}
		for _, name := range c.Tags {
			if err := e.writeResetLine(fmt.Sprintf("refs/tags/%s", name), e.marks[c]); err != nil {
				return err
			}
		}
	}

	for _, b := range branches {
		if b.Tip == nil {
			continue
		}
		mark, ok := e.marks[b.Tip]
		if !ok {
			continue
		}
		if err := e.writeResetLine(e.refName(b.Name), mark); err != nil {
			return err
		}
	}

	_, err := fmt.Fprint(e.w, "done\n")
	return err
}

// branchOrder walks each branch's own chain from tip to root (the
// chain coalesce built for it; it never crosses into a parent
// branch's commits, those are reached only via ParentCommit/"from")
// and reverses it into oldest-first, per export.c's branchorder path.
func (e *Emitter) branchOrder(branches []*merge.Branch) []*merge.GitCommit {
	var out []*merge.GitCommit
	for _, b := range branches {
		var span []*merge.GitCommit
		for c := b.Tip; c != nil; c = c.Parent {
			span = append(span, c)
		}
		for i := len(span) - 1; i >= 0; i-- {
			out = append(out, span[i])
		}
	}
	return out
}

// canonicalOrder implements §4.5.6's default path: build each
// branch's oldest-first span, concatenate in branch order, then
// stable-sort by date if the topology is consistent with date order.
func (e *Emitter) canonicalOrder(branches []*merge.Branch) []*merge.GitCommit {
	out := e.branchOrder(branches)

	sortable := true
	for _, c := range out {
		if parent := effectiveParent(c); parent != nil && parent.Date > c.Date {
			sortable = false
			break
		}
	}
	if sortable {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Date < out[j].Date
		})
	}
	return out
}

func (e *Emitter) commitMark(c *merge.GitCommit) int {
	if mark, ok := e.marks[c]; ok {
		return mark
	}
	e.nextMark++
	e.marks[c] = e.nextMark
	return e.nextMark
}

// CommitMark returns the fast-import mark Run assigned to c, or 0 if
// c was never emitted (e.g. Run hasn't been called yet). Exposed for
// callers that need to cross-reference marks after the fact, such as
// writing a --revision-map file of CVS revision to git mark.
func (e *Emitter) CommitMark(c *merge.GitCommit) int {
	return e.marks[c]
}

func (e *Emitter) refName(branch string) string {
	if e.opts.Remote != "" {
		return fmt.Sprintf("refs/remotes/%s/%s", e.opts.Remote, branch)
	}
	return fmt.Sprintf("refs/heads/%s", branch)
}

func (e *Emitter) writeResetLine(ref string, mark int) error {
	_, err := fmt.Fprintf(e.w, "reset %s\nfrom :%d\n\n", ref, mark)
	return err
}

// emitCommit writes one changeset: blob bodies for any file modified
// since its parent, the commit header, and its fileops.
//
// Incremental mode (IncrementalCutoff > 0): changesets at or before
// the cutoff still get a mark, but no body is written to the stream;
// a written commit whose parent is such a changeset starts from
// "<branch ref>^0" instead of from the parent's mark.
func (e *Emitter) emitCommit(c *merge.GitCommit) error {
	body := c.Date > e.opts.IncrementalCutoff

	ops := e.diffAgainstParent(c)
	fileopSort(ops)

	if body {
		for _, op := range ops {
			if op.op != 'M' || e.staged[op.serial] {
				continue
			}
			if err := e.emitBlob(op.serial); err != nil {
				return err
			}
		}
	}

	mark := e.commitMark(c)
	if !body {
		return nil
	}

	full, email, tz := e.author(c)
	if _, err := fmt.Fprintf(e.w, "commit %s\n", e.refName(c.Branch.Name)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "mark :%d\n", mark); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "committer %s <%s> %d %s\n", full, email, c.Date, tz); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "data %d\n%s\n", len(c.Log), c.Log); err != nil {
		return err
	}
	if parent := effectiveParent(c); parent != nil {
		from := fmt.Sprintf(":%d", e.commitMark(parent))
		if e.opts.IncrementalCutoff > 0 && parent.Date <= e.opts.IncrementalCutoff {
			from = e.refName(c.Branch.Name) + "^0"
		}
		if _, err := fmt.Fprintf(e.w, "from %s\n", from); err != nil {
			return err
		}
	}

	for _, op := range ops {
		switch op.op {
		case 'M':
			mode := uint32(0100644)
			if op.mode&0100 != 0 {
				mode = 0100755
			}
			if _, err := fmt.Fprintf(e.w, "M %o :%d %s\n", mode, e.blobMark[op.serial], op.path); err != nil {
				return err
			}
		case 'D':
			if _, err := fmt.Fprintf(e.w, "D %s\n", op.path); err != nil {
				return err
			}
		}
	}

	if e.opts.Reposurgeon {
		var sb strings.Builder
		for _, m := range c.Members() {
			fmt.Fprintf(&sb, "%s %s\n", m.Path, m.Number.String())
		}
		if _, err := fmt.Fprintf(e.w, "property cvs-revision %d %s", sb.Len(), sb.String()); err != nil {
			return err
		}
	}

	_, err := fmt.Fprint(e.w, "\n")
	return err
}

// effectiveParent returns the commit c's fileop diff and "from" line
// should be computed against: its own predecessor on this branch if
// it has one, otherwise (the branch's first commit) the parent
// branch's fork-point commit.
func effectiveParent(c *merge.GitCommit) *merge.GitCommit {
	if c.Parent != nil {
		return c.Parent
	}
	if c.Branch != nil {
		return c.Branch.ParentCommit
	}
	return nil
}

// diffAgainstParent compares c's packed tree to its effective
// parent's, producing the fileops export_commit needs; no parent at
// all means every file in c is a fresh 'M'.
func (e *Emitter) diffAgainstParent(c *merge.GitCommit) []fileop {
	parentBlobs := map[string]int64{}
	if parent := effectiveParent(c); parent != nil {
		it := revdir.NewIterator(parent.Tree)
		for {
			commit, ok := it.Next()
			if !ok {
				break
			}
			parentBlobs[commit.Path] = commit.BlobID
		}
	}

	var ops []fileop
	seen := map[string]bool{}
	it := revdir.NewIterator(c.Tree)
	for {
		commit, ok := it.Next()
		if !ok {
			break
		}
		seen[commit.Path] = true
		prior, existed := parentBlobs[commit.Path]
		if !existed || prior != commit.BlobID {
			ops = append(ops, fileop{op: 'M', serial: commit.BlobID, mode: commitMode(commit), path: commit.Path})
		}
	}
	for path := range parentBlobs {
		if !seen[path] {
			ops = append(ops, fileop{op: 'D', path: path})
		}
	}
	return ops
}

func commitMode(c *revdag.CvsCommit) uint32 {
	if c.Master != nil {
		return c.Master.Mode
	}
	return 0644
}

func (e *Emitter) emitBlob(serial int64) error {
	data, err := e.blobs.Read(serial)
	if err != nil {
		return fmt.Errorf("export: reading staged blob %d: %w", serial, err)
	}
	e.nextMark++
	e.blobMark[serial] = e.nextMark
	e.staged[serial] = true
	if _, err := fmt.Fprintf(e.w, "blob\nmark :%d\ndata %d\n%s\n", e.nextMark, len(data), data); err != nil {
		return err
	}
	return e.blobs.Release(serial)
}

func (e *Emitter) author(c *merge.GitCommit) (full, email, tz string) {
	if e.opts.Authors != nil {
		if a, ok := e.opts.Authors.Lookup(string(c.Author)); ok {
			return a.FullName, a.Email, a.Timezone
		}
		if e.opts.Authors.WarnOnce(string(c.Author)) {
			e.warnf("export: no author-map entry for %q, defaulting to bare username", c.Author)
		}
	}
	return string(c.Author), string(c.Author), "+0000"
}

func (e *Emitter) warnf(format string, args ...interface{}) {
	if e.opts.Warn != nil {
		e.opts.Warn(format, args...)
	}
}
