package rcsmaster

import (
	"fmt"
	"sort"

	"github.com/rcowham/gitp4transfer/internal/cvsnumber"
)

// NodeHash is the per-master node table keyed by interned revision
// number. It is scoped to one Master; nothing about it is shared
// across masters, so no locking is needed even when a worker pool
// runs many masters' analyses concurrently (each gets its own NodeHash).
type NodeHash struct {
	table    map[*cvsnumber.Number]*Node
	HeadNode *Node
	Warnf    func(format string, args ...interface{}) // optional; nil means silent
}

// NewNodeHash creates an empty node hash for one master.
func NewNodeHash() *NodeHash {
	return &NodeHash{table: make(map[*cvsnumber.Number]*Node)}
}

func (h *NodeHash) warn(format string, args ...interface{}) {
	if h.Warnf != nil {
		h.Warnf(format, args...)
	}
}

// nodeFor returns (allocating if needed) the node for a revision
// number. Numbers are required to have already passed through a
// cvsnumber.Table, so identical numbers are identical pointers and a
// plain map keyed by *cvsnumber.Number is sound and fast.
func (h *NodeHash) nodeFor(n *cvsnumber.Number) *Node {
	if node, ok := h.table[n]; ok {
		return node
	}
	node := &Node{Number: n}
	h.table[n] = node
	return node
}

// HashVersion interns a version's delta metadata onto its node.
func (h *NodeHash) HashVersion(v *Version) {
	node := h.nodeFor(v.Number)
	if node.Version != nil {
		h.warn("more than one delta with number %s", v.Number)
	} else {
		node.Version = v
		v.node = node
	}
	if node.Number.Len()%2 == 1 {
		h.warn("revision with odd depth (%s)", v.Number)
	}
}

// HashPatch interns a patch's delta body location onto its node.
func (h *NodeHash) HashPatch(p *Patch) {
	node := h.nodeFor(p.Number)
	if node.Patch != nil {
		h.warn("more than one delta with number %s", p.Number)
	} else {
		node.Patch = p
		p.node = node
	}
	if node.Number.Len()%2 == 1 {
		h.warn("patch with odd depth (%s)", p.Number)
	}
}

// Nodes returns every node currently hashed, in no particular order;
// BuildBranches sorts its own working copy.
func (h *NodeHash) Nodes() []*Node {
	out := make([]*Node, 0, len(h.table))
	for _, n := range h.table {
		out = append(out, n)
	}
	return out
}

// findParent locates the node whose number is n minus its trailing
// `depth` components, used to resolve a branch-root's attachment point.
func (h *NodeHash) findParent(n *cvsnumber.Number, depth int, numbers *cvsnumber.Table) *Node {
	parts := make([]int, n.Len()-depth)
	for i := range parts {
		parts[i] = n.Component(i)
	}
	key := numbers.Intern(parts)
	return h.table[key]
}

// BuildBranches constructs the Next/To/Down/Sib structural links over
// every hashed node, per §4.2 of the specification: sort by revision
// number, pair adjacent nodes back-to-front to link same-branch
// chains, then a second back-to-front pass to attach branch roots to
// their parents.
func (h *NodeHash) BuildBranches(numbers *cvsnumber.Table) error {
	if len(h.table) == 0 {
		return nil
	}

	v := h.Nodes()
	sort.Slice(v, func(i, j int) bool {
		return cvsnumber.Compare(v[i].Number, v[j].Number) < 0
	})

	if v[len(v)-1].Number.IsTrunk() {
		h.HeadNode = v[len(v)-1]
	}

	for i := len(v) - 2; i >= 0; i-- {
		h.tryPair(v[i], v[i+1], numbers)
	}

	for i := len(v) - 1; i >= 0; i-- {
		a := v[i]
		if !a.starts {
			continue
		}
		b := h.findParent(a.Number, 2, numbers)
		if b == nil {
			h.warn("no parent for %s", a.Number)
			continue
		}
		a.Sib = b.Down
		b.Down = a
	}
	return nil
}

// tryPair mirrors the original's try_pair: decide whether a and b
// (adjacent in sorted order) lie on the same branch chain, and if so
// link them; otherwise mark the branch-root flag so the second pass
// can find its parent.
func (h *NodeHash) tryPair(a, b *Node, numbers *cvsnumber.Table) {
	n := a.Number.Len()

	if n == b.Number.Len() {
		if n == 2 {
			a.Next = b
			b.To = a
			return
		}
		i := n - 2
		for ; i >= 0; i-- {
			if a.Number.Component(i) != b.Number.Component(i) {
				break
			}
		}
		if i < 0 {
			a.Next = b
			a.To = b
			return
		}
	} else if n == 2 {
		h.HeadNode = a
	}

	if b.Number.Len()%2 == 0 {
		b.starts = true
		if p := h.findParent(b.Number, 1, numbers); p != nil {
			p.Next = b
		}
	}
}

// Validate reports gross structural errors fatal per §7: a node with
// no version and no patch at all (an empty delta chain entry). It does
// not check for branch roots whose parent could never be found.
func (h *NodeHash) Validate() error {
	for _, n := range h.table {
		if n.Version == nil && n.Patch == nil {
			return fmt.Errorf("rcsmaster: node %s has neither version nor patch metadata", n.Number)
		}
	}
	return nil
}
