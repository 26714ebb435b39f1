// Package cvsnumber implements RCS/CVS dotted revision numbers: parsing,
// comparison, branch-relationship tests, and interning so that equal
// numbers compare pointer-equal the way the analyser's invariants require.
package cvsnumber

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// MaxDepth bounds the number of dotted components any revision number
// may carry; real CVS trees never approach it, but a corrupt master
// file could otherwise drive unbounded allocation.
const MaxDepth = 22

// Number is a parsed, interned CVS revision number such as 1.2.3.4.
// Equal numbers (by content) are always the same *Number, so callers
// may compare with ==.
type Number struct {
	n    [MaxDepth]int
	c    int // number of valid components in n
	text string
}

// Len reports the number of dotted components.
func (num *Number) Len() int { return num.c }

// Component returns the i'th dotted component (0-origin).
func (num *Number) Component(i int) int { return num.n[i] }

// String renders the canonical dotted form.
func (num *Number) String() string { return num.text }

// IsTrunk reports whether this is a two-component trunk revision (1.n).
func (num *Number) IsTrunk() bool { return num.c == 2 }

// IsBranchRoot reports whether this number has even length, meaning it
// names a branch point rather than a committed revision on some branch.
func (num *Number) IsBranchRoot() bool { return num.c%2 == 0 }

// IsVendorBranch reports whether this is a 1.1.x vendor/import branch
// number, with x odd, per the historical CVS "vendor branch" rule.
func (num *Number) IsVendorBranch() bool {
	return num.c == 3 && num.n[0] == 1 && num.n[1] == 1 && num.n[2]%2 == 1
}

// IsBranchStickyTag reports whether this number has the even length >= 4,
// zero-in-penultimate-position shape that denotes "branch N, not revision N".
func (num *Number) IsBranchStickyTag() bool {
	return num.c >= 4 && num.c%2 == 0 && num.n[num.c-2] == 0
}

// BranchNumber returns the branch number a branch-sticky-tag number
// denotes, e.g. 1.2.0.4 -> 1.2.4. Only valid when IsBranchStickyTag.
func (num *Number) BranchNumber(t *Table) *Number {
	parts := make([]int, num.c-1)
	copy(parts, num.n[:num.c-2])
	parts[num.c-2] = num.n[num.c-1]
	return t.Intern(parts)
}

// SameBranch reports whether a and b share the same odd-length prefix,
// i.e. live on the same branch.
func SameBranch(a, b *Number) bool {
	prefixLen := a.c - 1
	if b.c-1 < prefixLen {
		prefixLen = b.c - 1
	}
	if a.c != b.c {
		return false
	}
	for i := 0; i < a.c-1; i++ {
		if a.n[i] != b.n[i] {
			return false
		}
	}
	return true
}

// Parent returns the number obtained by dropping the trailing depth
// components, as used when resolving a branch-root's attachment point.
func (num *Number) Parent(t *Table, depth int) *Number {
	parts := make([]int, num.c-depth)
	copy(parts, num.n[:num.c-depth])
	return t.Intern(parts)
}

// Compare orders two numbers by component count first (fewer is
// less), then numerically component by component.
func Compare(a, b *Number) int {
	if a.c != b.c {
		if a.c < b.c {
			return -1
		}
		return 1
	}
	for i := 0; i < a.c; i++ {
		if a.n[i] != b.n[i] {
			if a.n[i] < b.n[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Table interns Numbers so that equal revision numbers are the same
// pointer, per the analyser's core invariants.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Number
}

// NewTable builds an empty revision-number interning table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*Number)}
}

// Parse parses a dotted revision-number string such as "1.2.3" and
// returns its interned Number.
func (t *Table) Parse(s string) (*Number, error) {
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts) > MaxDepth {
		return nil, fmt.Errorf("cvsnumber: %q has unsupported depth %d", s, len(parts))
	}
	ints := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("cvsnumber: %q is not a valid revision number", s)
		}
		ints[i] = v
	}
	return t.Intern(ints), nil
}

// Intern returns the canonical Number for a sequence of components,
// allocating it the first time it is seen.
func (t *Table) Intern(components []int) *Number {
	key := keyFor(components)

	t.mu.Lock()
	defer t.mu.Unlock()

	if n, ok := t.entries[key]; ok {
		return n
	}
	num := &Number{c: len(components), text: key}
	copy(num.n[:], components)
	t.entries[key] = num
	return num
}

func keyFor(components []int) string {
	var b strings.Builder
	for i, c := range components {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(c))
	}
	return b.String()
}
