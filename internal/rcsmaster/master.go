// Package rcsmaster holds the data model for one parsed RCS/CVS master
// file: its versions, patches, and the delta-tree node graph built over
// them. The RCS grammar itself lives outside this package, behind the
// Reader interface; this package only consumes the parsed structures.
package rcsmaster

import (
	"github.com/rcowham/gitp4transfer/internal/atom"
	"github.com/rcowham/gitp4transfer/internal/cvsnumber"
)

// ExpandMode controls RCS keyword expansion, mirroring the six modes
// a master's "expand" header may name.
type ExpandMode int

const (
	ExpandKV ExpandMode = iota
	ExpandKVL
	ExpandK
	ExpandV
	ExpandO
	ExpandB
)

// ParseExpandMode maps an RCS expand-mode name to its enum value,
// defaulting to ExpandK (matching the original's "kk" default).
func ParseExpandMode(s string) ExpandMode {
	switch s {
	case "kv":
		return ExpandKV
	case "kvl":
		return ExpandKVL
	case "k":
		return ExpandK
	case "v":
		return ExpandV
	case "o":
		return ExpandO
	case "b":
		return ExpandB
	default:
		return ExpandK
	}
}

// Text locates one delta body inside its master file: the body is
// stored between byte offset and offset+length, quoted with '@'.
type Text struct {
	Filename string
	Offset   int64
	Length   int64
}

// Version is the per-revision delta metadata taken from a master's
// "deltatext"-adjacent header block.
type Version struct {
	Number    *cvsnumber.Number
	Date      int64 // seconds since the Unix epoch
	Author    atom.Atom
	State     atom.Atom
	CommitID  atom.Atom
	Dead      bool
	Branches  []*cvsnumber.Number // branch-attachment numbers listed on this version
	node      *Node
}

// Patch is the per-revision delta body: a log message plus the
// location of its diff text in the master file.
type Patch struct {
	Number *cvsnumber.Number
	Log    atom.Atom
	Text   Text
	node   *Node
}

// Node is one entry in the delta tree (cvs.h's node_t), keyed by
// interned revision number, with the four structural links the
// analyser threads through it.
type Node struct {
	Number  *cvsnumber.Number
	Version *Version
	Patch   *Patch

	Next *Node // next revision along the same branch, older to newer
	To   *Node // successor in rendering order: next older revision on the trunk, next newer one on a branch
	Down *Node // first child branch rooted here
	Sib  *Node // next sibling branch at the same attachment point

	starts bool // even-length number: marks a branch root
}

// File reports whether this node has patch text to materialise
// (every node in a well-formed master does; kept for parity with the
// original's "node->file" test used during traversal).
func (n *Node) File() bool { return n.Patch != nil }

// Master is one parsed CVS/RCS file: its pathname, mode bits, the
// ordered versions and patches the grammar produced, and the head
// revision.
type Master struct {
	Path       string // master pathname, e.g. "RCS/foo.c,v"
	ExportPath string // de-Attic'd, mode-stripped export pathname
	Mode       uint32
	Expand     ExpandMode

	Versions []*Version
	Patches  []*Patch

	Head           *cvsnumber.Number
	DefaultBranch  *cvsnumber.Number
	Symbols        map[string]*cvsnumber.Number // symbol atom -> revision number

	Hash *NodeHash
}

// Reader is the boundary to the RCS grammar: anything that can parse a
// ",v" file into a Master satisfies this, letting the analyser stay
// agnostic of the concrete grammar implementation (see internal/rcsparse
// for a reference implementation).
type Reader interface {
	ReadMaster(path string) (*Master, error)
}
