// Package revdag builds one master's single-file branch DAG out of its
// delta tree, per §4.4 of the specification (component D): trunk and
// branch commit chains, date repair, vendor-branch grafting, and
// symbol resolution into branch heads and tags.
package revdag

import (
	"fmt"
	"sort"

	"github.com/rcowham/gitp4transfer/internal/atom"
	"github.com/rcowham/gitp4transfer/internal/cvsnumber"
	"github.com/rcowham/gitp4transfer/internal/rcsmaster"
)

// CvsCommit is the analysed form of one file's revision. It is its
// own Go type, never punned with the cross-master GitCommit type
// (see SPEC_FULL.md §9's struct-layout-punning redesign note); the
// back-link to the gitspace commit that eventually absorbs it is
// filled in by the merger and lives on GitspaceRef.
type CvsCommit struct {
	Log      atom.Atom
	Author   atom.Atom
	CommitID atom.Atom
	Date     int64
	Dead     bool

	Master *rcsmaster.Master
	Number *cvsnumber.Number
	Parent *CvsCommit // older revision on this same single-file chain

	Path string // export path this commit's file lives at

	BlobID int64 // staged blob serial in the blobstore.Store this run used, 0 if none staged yet

	GitspaceRef GitspaceCommit // filled by the merger; nil (interface) until then
}

// GitspaceCommit is satisfied by the merge package's changeset type.
// Declaring it here (rather than importing merge, which would create
// an import cycle since merge consumes revdag's output) keeps the
// back-link typed without coupling the packages' build order.
type GitspaceCommit interface {
	Absorb(*CvsCommit)
}

// BranchHead is a named reference into one master's branch structure:
// a clique member before merge, exactly as rev_ref describes in §3.
type BranchHead struct {
	Name         string
	Tip          *CvsCommit
	Parent       *BranchHead
	Depth        int
	OriginalForm *cvsnumber.Number
	Tail         bool
}

// Tag names one CVS commit a symbol resolved to.
type Tag struct {
	Name   string
	Commit *CvsCommit
}

// Result is the per-master output of the DAG builder: one branch head
// per branch (trunk included, at depth 1), plus tags.
type Result struct {
	Branches []*BranchHead
	Tags     []*Tag
}

// Warnf receives one recoverable-inconsistency message, per §7; nil
// means "discard".
type Warnf func(format string, args ...interface{})

// Build converts master's delta tree (already node-hashed and
// branch-linked by rcsmaster.NodeHash.BuildBranches) into a Result.
// numbers must be the same table used to intern master's revision
// numbers, needed to derive a branch-sticky tag's plain branch number.
func Build(master *rcsmaster.Master, numbers *cvsnumber.Table, warn Warnf) (*Result, error) {
	if warn == nil {
		warn = func(string, ...interface{}) {}
	}
	if master.Hash == nil || master.Hash.HeadNode == nil {
		return &Result{}, nil
	}

	res := &Result{}

	trunkHead := buildChain(master.Hash.HeadNode, master, nil, warn)
	trunkBranch := &BranchHead{Name: "master", Tip: trunkHead, Depth: 1}
	res.Branches = append(res.Branches, trunkBranch)

	// allCommits accumulates every commit allocated on every branch, so
	// resolveSymbols can find a tag's target no matter which branch it
	// sits on; trunkNumber is scoped to the trunk chain and used only to
	// resolve branch-root attachment points while walking.
	allCommits := map[*cvsnumber.Number]*CvsCommit{}
	trunkNumber := map[*cvsnumber.Number]*CvsCommit{}
	for c := trunkHead; c != nil; c = c.Parent {
		trunkNumber[c.Number] = c
		allCommits[c.Number] = c
	}

	var branchChains []*BranchHead
	walkBranches(master.Hash.HeadNode, master, trunkNumber, allCommits, trunkBranch, warn, &branchChains, 2)
	res.Branches = append(res.Branches, branchChains...)

	graftVendorBranch(res, warn)

	resolveSymbols(master, res, allCommits, numbers, warn)

	sortBranchHeads(res.Branches)

	return res, nil
}

// buildChain allocates one CvsCommit per live node reachable from
// newest by following To (newest to oldest), links each to the next
// older commit as its Parent, and attaches branchParent below the
// oldest one. It returns the newest commit, the chain's head.
func buildChain(newest *rcsmaster.Node, master *rcsmaster.Master, branchParent *CvsCommit, warn Warnf) *CvsCommit {
	var nodes []*rcsmaster.Node // newest first, oldest last
	for n := newest; n != nil; n = n.To {
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return branchParent
	}

	commits := make([]*CvsCommit, len(nodes))
	for i, n := range nodes {
		commits[i] = newCvsCommit(n, master)
	}
	for i := 0; i < len(commits)-1; i++ {
		commits[i].Parent = commits[i+1]
	}
	commits[len(commits)-1].Parent = branchParent

	oldestFirst := make([]*CvsCommit, len(commits))
	for i, c := range commits {
		oldestFirst[len(commits)-1-i] = c
	}
	repairDates(oldestFirst, warn)

	return commits[0]
}

func newCvsCommit(n *rcsmaster.Node, master *rcsmaster.Master) *CvsCommit {
	c := &CvsCommit{Master: master, Number: n.Number, Path: master.ExportPath}
	if n.Version != nil {
		c.Author = n.Version.Author
		c.CommitID = n.Version.CommitID
		c.Date = n.Version.Date
		c.Dead = n.Version.Dead
	}
	if n.Patch != nil {
		c.Log = n.Patch.Log
	}
	return c
}

// repairDates enforces "parent date <= child date" per §4.4 step 3:
// commits here is oldest-first; c.Parent points the other direction
// (newest -> oldest), so repair walks the slice in increasing index
// (== increasing age) comparing each to its predecessor in time.
func repairDates(commits []*CvsCommit, warn Warnf) {
	for i := 1; i < len(commits); i++ {
		parent, child := commits[i-1], commits[i]
		if parent.Date > child.Date {
			warn("date-order violation: %s (%d) newer than child %s (%d); repairing",
				parent.Number, parent.Date, child.Number, child.Date)
			// Pull the child forward to the parent's date, unless the
			// grandchild is also older than the parent: then push the
			// parent back to the child's date instead.
			if i+1 < len(commits) && commits[i+1].Date < parent.Date {
				parent.Date = child.Date
			} else {
				child.Date = parent.Date
			}
		}
	}
}

// walkBranches recurses the delta tree's Down/Sib structure, building
// one BranchHead per branch encountered (skipping the trunk, already
// built by the caller).
func walkBranches(node *rcsmaster.Node, master *rcsmaster.Master, byNumber, allCommits map[*cvsnumber.Number]*CvsCommit, owner *BranchHead, warn Warnf, out *[]*BranchHead, depth int) {
	for n := node; n != nil; n = n.To {
		for branch := n.Down; branch != nil; branch = branch.Sib {
			parentCommit := byNumber[n.Number]
			tip := buildChainFromRoot(branch, master, parentCommit, warn)
			name := branchName(branch.Number)
			bh := &BranchHead{Name: name, Tip: tip, Depth: depth, OriginalForm: branch.Number, Parent: owner}
			*out = append(*out, bh)

			subNumber := map[*cvsnumber.Number]*CvsCommit{}
			for c := tip; c != nil && c != parentCommit; c = c.Parent {
				subNumber[c.Number] = c
				allCommits[c.Number] = c
			}
			walkBranches(branch, master, subNumber, allCommits, bh, warn, out, depth+1)
		}
	}
}

// buildChainFromRoot walks a branch's own Next chain (oldest to
// newest, since on a branch Next links each revision to the next
// newer one) into CvsCommits parented eventually at parentCommit.
func buildChainFromRoot(root *rcsmaster.Node, master *rcsmaster.Master, parentCommit *CvsCommit, warn Warnf) *CvsCommit {
	var nodes []*rcsmaster.Node
	for n := root; n != nil; n = n.Next {
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return parentCommit
	}
	commits := make([]*CvsCommit, len(nodes))
	for i, n := range nodes {
		commits[i] = newCvsCommit(n, master)
	}
	commits[0].Parent = parentCommit
	for i := 1; i < len(commits); i++ {
		commits[i].Parent = commits[i-1]
	}
	repairDates(prepend(parentCommit, commits), warn)
	return commits[len(commits)-1]
}

func prepend(parent *CvsCommit, commits []*CvsCommit) []*CvsCommit {
	if parent == nil {
		return commits
	}
	return append([]*CvsCommit{parent}, commits...)
}

// branchName synthesises a placeholder name for a branch whose symbol
// hasn't been resolved yet; resolveSymbols renames it if a real
// symbol names this branch number.
func branchName(n *cvsnumber.Number) string {
	return fmt.Sprintf("unnamed-%s", n.String())
}

// graftVendorBranch implements §4.4 step 4: if a branch's root number
// is a vendor branch (1.1.x, x odd) and a newer trunk commit exists,
// splice the vendor chain into the trunk chain by date, then drop the
// vendor branch head (its commits now live on the trunk chain).
func graftVendorBranch(res *Result, warn Warnf) {
	var trunk *BranchHead
	for _, b := range res.Branches {
		if b.Depth == 1 {
			trunk = b
			break
		}
	}
	if trunk == nil {
		return
	}

	kept := res.Branches[:0]
	for _, b := range res.Branches {
		if b.Depth == 2 && b.OriginalForm != nil && b.OriginalForm.IsVendorBranch() {
			if graftOntoTrunk(trunk, b, warn) {
				continue // absorbed into trunk; drop the vendor head
			}
			renamed := fmt.Sprintf("import-%s", b.OriginalForm.String())
			b.Name = renamed
		}
		kept = append(kept, b)
	}
	res.Branches = kept
}

// graftOntoTrunk date-interleaves a vendor chain into the trunk chain
// when a newer trunk commit exists; returns true if the graft
// happened (vendor head should then be dropped).
func graftOntoTrunk(trunk, vendor *BranchHead, warn Warnf) bool {
	if vendor.Tip == nil {
		return false
	}
	vendorTipDate := vendorChainOldestDate(vendor)
	hasNewerTrunk := false
	for c := trunk.Tip; c != nil; c = c.Parent {
		if c.Date > vendorTipDate {
			hasNewerTrunk = true
			break
		}
	}
	if !hasNewerTrunk {
		return false
	}

	// Collect both chains oldest-first, merge by date, relink Parent.
	vendorCommits := collectOldestFirst(vendor.Tip)
	trunkCommits := collectOldestFirst(trunk.Tip)
	merged := mergeByDate(trunkCommits, vendorCommits)

	for i := 1; i < len(merged); i++ {
		merged[i].Parent = merged[i-1]
	}
	if len(merged) > 0 {
		trunk.Tip = merged[len(merged)-1]
	}
	warn("grafted vendor branch %s onto trunk (%d commits)", vendor.OriginalForm, len(vendorCommits))
	return true
}

func vendorChainOldestDate(b *BranchHead) int64 {
	if b.Tip == nil {
		return 0
	}
	oldest := b.Tip
	for oldest.Parent != nil {
		oldest = oldest.Parent
	}
	return oldest.Date
}

func collectOldestFirst(tip *CvsCommit) []*CvsCommit {
	var rev []*CvsCommit
	for c := tip; c != nil; c = c.Parent {
		rev = append(rev, c)
	}
	out := make([]*CvsCommit, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out
}

func mergeByDate(a, b []*CvsCommit) []*CvsCommit {
	out := make([]*CvsCommit, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Date <= b[j].Date {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// resolveSymbols implements §4.4 step 5: attach tags, and name
// branches, from the master's symbol table.
func resolveSymbols(master *rcsmaster.Master, res *Result, byNumber map[*cvsnumber.Number]*CvsCommit, numbers *cvsnumber.Table, warn Warnf) {
	byBranchNumber := map[*cvsnumber.Number]*BranchHead{}
	for _, b := range res.Branches {
		if b.OriginalForm != nil {
			byBranchNumber[b.OriginalForm.Parent(numbers, 1)] = b
		}
	}

	for symbol, number := range master.Symbols {
		if number.IsBranchStickyTag() {
			if branch, ok := byBranchNumber[number.BranchNumber(numbers)]; ok {
				branch.Name = symbol
			} else {
				warn("branch tag %s points at no known branch (%s)", symbol, number)
			}
			continue
		}
		commit, ok := byNumber[number]
		if !ok {
			warn("tag %s points at no commit (revision %s not found)", symbol, number)
			continue
		}
		res.Tags = append(res.Tags, &Tag{Name: symbol, Commit: commit})
	}
}

// sortBranchHeads performs §4.4 step 6: a stable topological sort by
// parent depth, trunk first.
func sortBranchHeads(heads []*BranchHead) {
	sort.SliceStable(heads, func(i, j int) bool {
		return heads[i].Depth < heads[j].Depth
	})
}

// AttachBlobIDs maps every commit in res onto the blob serial staged
// for its revision, once materialisation (component C) has finished
// streaming that master's revision bodies to the blobstore. ids is
// keyed by the same *cvsnumber.Number pointers materialize.Generate's
// hook received, which are identical to the ones CvsCommit.Number
// already carries (both trace back to the one rcsmaster.NodeHash).
func AttachBlobIDs(res *Result, ids map[*cvsnumber.Number]int64) {
	for _, b := range res.Branches {
		for c := b.Tip; c != nil; c = c.Parent {
			if id, ok := ids[c.Number]; ok {
				c.BlobID = id
			}
		}
	}
}
