// Package merge synthesises the cross-master changeset DAG that CVS
// never recorded: it identifies branch-name cliques across every
// master's per-file branch structure, walks each clique in parallel
// by date to coalesce individually committed file revisions into
// gitspace changesets, grafts child branches onto their parents, and
// places tags. This is component E.1-E.5 of the specification
// (package `merge`; canonical emission itself lives in `export`).
package merge

import (
	"fmt"
	"sort"

	"github.com/rcowham/gitp4transfer/internal/atom"
	"github.com/rcowham/gitp4transfer/internal/cvsnumber"
	"github.com/rcowham/gitp4transfer/internal/revdag"
	"github.com/rcowham/gitp4transfer/internal/revdir"
)

// DefaultCommitTimeWindow is the coalescence window two commitid-less
// revisions must fall within (same author, same log) to be treated as
// one CVS "commit", per §4.5.2.
const DefaultCommitTimeWindow = 300 // seconds

// GitCommit is one synthesised gitspace changeset: a coalesced group
// of single-file CVS commits sharing an author, log message, and
// (approximately) a moment in time.
type GitCommit struct {
	Log      atom.Atom
	Author   atom.Atom
	CommitID atom.Atom
	Date     int64
	Branch   *Branch
	Parent   *GitCommit
	Tree     *revdir.Node
	Tags     []string
	Tail     bool

	members []*revdag.CvsCommit // the per-file commits this changeset absorbed
}

// Absorb records that cvsCommit's content is now represented by this
// gitspace changeset, satisfying revdag.GitspaceCommit.
func (g *GitCommit) Absorb(c *revdag.CvsCommit) {
	c.GitspaceRef = g
	g.members = append(g.members, c)
}

// Members returns every per-file CVS commit this changeset absorbed,
// used by the emitter's reposurgeon "property cvs-revision" lines.
func (g *GitCommit) Members() []*revdag.CvsCommit {
	return g.members
}

// Branch is one gitspace branch: the coalesced chain built from one
// clique's per-master branch heads.
type Branch struct {
	Name   string
	Tip    *GitCommit // newest; nil if the clique produced no commits
	Parent *Branch
	// ParentCommit is the exact changeset on Parent this branch forked
	// from, resolved once Parent has itself been fully merged.
	ParentCommit *GitCommit
}

// member tracks one clique participant's walk state: the file-export
// path it contributes, and the current CVS commit pointer R[i] per
// §4.5.2 (nil once dead or tailed).
type member struct {
	path    string
	current *revdag.CvsCommit
	tailed  bool
	joinsTo *revdag.CvsCommit // set when tailed: the parent-branch commit to join
}

// Warnf receives one recoverable-inconsistency message, per §7.
type Warnf func(format string, args ...interface{})

// Run merges every master's per-master revdag.Result into the
// complete gitspace changeset DAG, processing branches in an order
// that guarantees each branch's parent is fully merged first. window
// overrides DefaultCommitTimeWindow; pass 0 to use the default.
func Run(results map[string]*revdag.Result, window int64, warn Warnf) ([]*Branch, []*revdag.Tag, error) {
	if warn == nil {
		warn = func(string, ...interface{}) {}
	}
	if window <= 0 {
		window = DefaultCommitTimeWindow
	}

	cliques, parentName := identifyCliques(results)
	order, err := topoOrder(cliques, parentName)
	if err != nil {
		return nil, nil, err
	}

	branchesByName := map[string]*Branch{}
	tree := revdir.NewTable()

	var out []*Branch
	for _, name := range order {
		members := buildMembers(cliques[name])
		b := &Branch{Name: name}
		if parent, ok := branchesByName[parentName[name]]; ok {
			b.Parent = parent
		}
		coalesce(b, members, tree, window, warn)
		if b.Parent != nil {
			joinBranch(b, members, warn)
		}
		branchesByName[name] = b
		out = append(out, b)
	}

	allTags := placeTags(results, warn)
	computeTails(out)

	return out, allTags, nil
}

// identifyCliques groups every master's branch heads by name and
// records, for each name, the deepest CVS-branch parent name any
// member reports, per §4.5.1.
func identifyCliques(results map[string]*revdag.Result) (map[string][]cliqueMember, map[string]string) {
	cliques := map[string][]cliqueMember{}
	parentName := map[string]string{}

	for masterPath, res := range results {
		for _, bh := range res.Branches {
			cliques[bh.Name] = append(cliques[bh.Name], cliqueMember{masterPath: masterPath, head: bh})
			if bh.Parent != nil {
				// Prefer the deepest (most specific) parent any clique
				// member reports, per §4.5.1.
				if existing, ok := parentName[bh.Name]; !ok || cliqueDepth(cliques, existing) < bh.Parent.Depth {
					parentName[bh.Name] = bh.Parent.Name
				}
			}
		}
	}
	return cliques, parentName
}

type cliqueMember struct {
	masterPath string
	head       *revdag.BranchHead
}

// cliqueDepth reports the branch depth of name's clique (every member
// shares the same name but masters can place it at different depths
// if the ancestor history is irregular; the first member is
// representative enough to compare candidate parents against).
func cliqueDepth(cliques map[string][]cliqueMember, name string) int {
	members := cliques[name]
	if len(members) == 0 {
		return -1
	}
	return members[0].head.Depth
}

// topoOrder returns every branch name with "master" first and every
// other name after its parent. A cycle in the branch parentage (a
// malformed input CVS tree) is reported as an error instead of hanging
// the merger.
func topoOrder(cliques map[string][]cliqueMember, parentName map[string]string) ([]string, error) {
	visited := map[string]bool{}
	var order []string

	var visit func(name string, stack map[string]bool) error
	visit = func(name string, stack map[string]bool) error {
		if visited[name] {
			return nil
		}
		if stack[name] {
			return fmt.Errorf("merge: cycle detected in branch parentage at %q", name)
		}
		stack[name] = true
		if p, ok := parentName[name]; ok && p != name {
			if _, exists := cliques[p]; exists {
				if err := visit(p, stack); err != nil {
					return err
				}
			}
		}
		visited[name] = true
		order = append(order, name)
		return nil
	}

	names := make([]string, 0, len(cliques))
	for name := range cliques {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic base order before topological dependencies reorder it

	for _, name := range names {
		if err := visit(name, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// buildMembers seeds the walk state for one clique: one member per
// master contributing a branch head of this name, positioned at its
// tip commit.
func buildMembers(participants []cliqueMember) []*member {
	out := make([]*member, 0, len(participants))
	for _, p := range participants {
		if p.head.Tip == nil {
			continue
		}
		out = append(out, &member{path: p.head.Tip.Path, current: p.head.Tip})
	}
	return out
}

// coalesce runs the parallel-walk algorithm of §4.5.2 over members,
// building one GitCommit per coalesced group, newest first: the first
// one built becomes Branch.Tip, and each later (older) one becomes the
// Parent of the commit built just before it.
func coalesce(branch *Branch, members []*member, tree *revdir.Table, window int64, warn Warnf) {
	var last *GitCommit

	for {
		leaderIdx := -1
		for i, m := range members {
			if m.current == nil || m.tailed {
				continue
			}
			if leaderIdx == -1 || m.current.Date > members[leaderIdx].current.Date {
				leaderIdx = i
			}
		}
		if leaderIdx == -1 {
			break
		}
		leader := members[leaderIdx]

		groupIdx := []int{leaderIdx}
		for i, m := range members {
			if i == leaderIdx || m.current == nil || m.tailed {
				continue
			}
			if coalesces(leader.current, m.current, window) {
				groupIdx = append(groupIdx, i)
			}
		}

		entries := make([]revdir.Entry, 0, len(members))
		for _, m := range members {
			if m.current == nil {
				continue
			}
			entries = append(entries, revdir.Entry{Path: m.path, Commit: m.current})
		}

		gc := &GitCommit{
			Log:      leader.current.Log,
			Author:   leader.current.Author,
			CommitID: leader.current.CommitID,
			Date:     leader.current.Date,
			Branch:   branch,
			Tree:     tree.PackFiles(entries),
		}

		for _, idx := range groupIdx {
			m := members[idx]
			c := m.current
			gc.Absorb(c)
			advanceMember(m, c, warn)
		}

		if last != nil {
			last.Parent = gc
		} else {
			branch.Tip = gc
		}
		last = gc
	}
}

// advanceMember steps one clique member past the commit it just
// contributed: onto its own predecessor if that predecessor is still
// on the same branch, into tailed state if the predecessor belongs to
// a parent branch, or dead if there is no predecessor at all.
func advanceMember(m *member, c *revdag.CvsCommit, warn Warnf) {
	parent := c.Parent
	if parent == nil {
		m.current = nil
		return
	}
	if cvsnumber.SameBranch(c.Number, parent.Number) {
		m.current = parent
		return
	}
	m.tailed = true
	m.joinsTo = parent
	m.current = nil
}

// coalesces implements the two-way coalescence test of §4.5.2: equal
// non-empty commitid, or (no commitid on either side, dates within the
// window, matching author and log).
func coalesces(a, b *revdag.CvsCommit, window int64) bool {
	if a.CommitID != "" && b.CommitID != "" {
		return a.CommitID == b.CommitID
	}
	if a.CommitID != "" || b.CommitID != "" {
		return false
	}
	delta := a.Date - b.Date
	if delta < 0 {
		delta = -delta
	}
	if delta > window {
		return false
	}
	return a.Author == b.Author && a.Log == b.Log
}

// joinBranch resolves the tailed members left over from coalesce:
// each should point, via its joinsTo commit's already-set GitspaceRef
// (the parent branch was merged first), at the parent changeset this
// branch forked from. The deepest (latest-dated) resolved join wins.
func joinBranch(branch *Branch, members []*member, warn Warnf) {
	var best *GitCommit
	var bestDate int64
	for _, m := range members {
		if !m.tailed || m.joinsTo == nil {
			continue
		}
		ref, ok := m.joinsTo.GitspaceRef.(*GitCommit)
		if !ok || ref == nil {
			warn("merge: branch %q has no resolvable parent commit for join at revision %s", branch.Name, m.joinsTo.Number)
			continue
		}
		if best == nil || m.joinsTo.Date > bestDate {
			best = ref
			bestDate = m.joinsTo.Date
		}
	}
	branch.ParentCommit = best
}

// placeTags implements §4.5.4: for each tag name (possibly reported by
// several masters), follow the latest-dated tagged commit's gitspace
// back-link to find the changeset the tag should target.
func placeTags(results map[string]*revdag.Result, warn Warnf) []*revdag.Tag {
	byName := map[string][]*revdag.Tag{}
	for _, res := range results {
		for _, tag := range res.Tags {
			byName[tag.Name] = append(byName[tag.Name], tag)
		}
	}

	var placed []*revdag.Tag
	for name, candidates := range byName {
		var latest *revdag.Tag
		for _, t := range candidates {
			if latest == nil || t.Commit.Date > latest.Commit.Date {
				latest = t
			}
		}
		gc, ok := latest.Commit.GitspaceRef.(*GitCommit)
		if !ok || gc == nil {
			warn("merge: tag %q has no resolvable target changeset", name)
			continue
		}
		gc.Tags = append(gc.Tags, name)
		placed = append(placed, latest)
	}
	return placed
}

// computeTails marks, on each parent branch, the changeset a child
// branch forked from, per §4.5.5: this lets export walk every branch
// exactly once and recognise where a child's history rejoins.
func computeTails(branches []*Branch) {
	for _, b := range branches {
		if b.ParentCommit != nil {
			b.ParentCommit.Tail = true
		}
	}
}
