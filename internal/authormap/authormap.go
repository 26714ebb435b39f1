// Package authormap parses the optional author-map file that remaps
// a CVS commit's bare username into a full git identity, the Go
// analogue of the ancestor codebase's load_author_map/fullname pair
// in main.c.
package authormap

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Author is one CVS username's resolved git identity.
type Author struct {
	FullName string
	Email    string
	Timezone string // e.g. "+0000"; defaults to UTC when unspecified
}

// Table is a parsed author map, safe for concurrent lookups (the
// worker pool in §5 may resolve authors from several masters at
// once).
type Table struct {
	mu      sync.Mutex
	entries map[string]Author
	warned  map[string]bool
}

// NewTable returns an empty author map; Lookup on it always misses.
func NewTable() *Table {
	return &Table{entries: map[string]Author{}, warned: map[string]bool{}}
}

// Parse reads an author-map file: one mapping per line, in the form
//
//	cvsname = Full Name <email> [timezone]
//
// Blank lines and lines starting with '#' are ignored, matching the
// ancestor's own tolerant author-map grammar.
func Parse(r io.Reader) (*Table, error) {
	t := NewTable()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cvsname, author, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("authormap: line %d: %w", lineNo, err)
		}
		t.entries[cvsname] = author
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("authormap: %w", err)
	}
	return t, nil
}

func parseLine(line string) (string, Author, error) {
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return "", Author{}, fmt.Errorf("missing '=' in %q", line)
	}
	cvsname := strings.TrimSpace(line[:eq])
	rest := strings.TrimSpace(line[eq+1:])
	if cvsname == "" || rest == "" {
		return "", Author{}, fmt.Errorf("empty username or identity in %q", line)
	}

	open := strings.IndexByte(rest, '<')
	close := strings.IndexByte(rest, '>')
	if open < 0 || close < 0 || close < open {
		return "", Author{}, fmt.Errorf("missing <email> in %q", line)
	}

	full := strings.TrimSpace(rest[:open])
	email := strings.TrimSpace(rest[open+1 : close])
	tz := strings.TrimSpace(rest[close+1:])
	if tz == "" {
		tz = "+0000"
	}
	return cvsname, Author{FullName: full, Email: email, Timezone: tz}, nil
}

// Lookup returns cvsname's mapped identity, or false if the author
// map has no entry for it. Lookup itself does not warn; WarnOnce
// tracks the at-most-once warning per unmapped name.
func (t *Table) Lookup(cvsname string) (Author, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.entries[cvsname]
	return a, ok
}

// WarnOnce returns true the first time it is called with cvsname this
// run and false on every later call; the caller logs an
// unmapped-author warning only on a true return.
func (t *Table) WarnOnce(cvsname string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.warned[cvsname] {
		return false
	}
	t.warned[cvsname] = true
	return true
}
