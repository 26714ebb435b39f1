// Package rcsparse implements the RCS/CVS master-file grammar
// (rcsfile(5)) that component A needs: admin header, delta headers, the
// description block, and deltatext bodies. It satisfies
// rcsmaster.Reader, the boundary the rest of the analyser is written
// against, so the data-model packages never need to know the grammar.
package rcsparse

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rcowham/gitp4transfer/internal/atom"
	"github.com/rcowham/gitp4transfer/internal/cvsnumber"
	"github.com/rcowham/gitp4transfer/internal/rcsmaster"
)

// Parser reads ",v" master files, interning every revision number and
// atom (author/state/commitid/log text) through the shared tables
// given to New, so equal values compare == across every master a run
// processes.
type Parser struct {
	Numbers *cvsnumber.Table
	Atoms   *atom.Table
}

// New creates a Parser sharing the given interning tables; pass the
// same tables to every Parser used within one run.
func New(numbers *cvsnumber.Table, atoms *atom.Table) *Parser {
	return &Parser{Numbers: numbers, Atoms: atoms}
}

// ReadMaster parses path (an RCS/CVS ",v" file) into a rcsmaster.Master.
// Delta bodies are not loaded here; each Patch.Text records the file
// offset and length materialize.TextLoader later reads lazily.
func (p *Parser) ReadMaster(path string) (*rcsmaster.Master, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rcsparse: reading %s: %w", path, err)
	}

	m := &rcsmaster.Master{
		Path:       path,
		ExportPath: exportPath(path),
		Expand:     rcsmaster.ExpandK,
		Symbols:    map[string]*cvsnumber.Number{},
	}
	if fi, statErr := os.Stat(path); statErr == nil {
		m.Mode = uint32(fi.Mode().Perm())
	}

	sc := &scanner{data: data}
	if err := p.parseAdmin(sc, m); err != nil {
		return nil, fmt.Errorf("rcsparse: %s: %w", path, err)
	}

	for {
		sc.skipWS()
		if sc.atEOF() || sc.peekWord() == "desc" {
			break
		}
		v, err := p.parseDelta(sc)
		if err != nil {
			return nil, fmt.Errorf("rcsparse: %s: %w", path, err)
		}
		m.Versions = append(m.Versions, v)
	}

	if err := sc.expectWord("desc"); err != nil {
		return nil, fmt.Errorf("rcsparse: %s: %w", path, err)
	}
	if _, _, err := sc.atString(); err != nil {
		return nil, fmt.Errorf("rcsparse: %s: description: %w", path, err)
	}

	for !sc.atEOF() {
		sc.skipWS()
		if sc.atEOF() {
			break
		}
		patch, err := p.parseDeltatext(sc, path)
		if err != nil {
			return nil, fmt.Errorf("rcsparse: %s: %w", path, err)
		}
		m.Patches = append(m.Patches, patch)
	}

	return m, nil
}

// parseAdmin consumes the admin block: head, optional branch, access,
// symbols, locks (with optional strict), optional comment, optional
// expand, and any trailing newphrases, stopping once the first delta's
// bare revision number is seen.
func (p *Parser) parseAdmin(sc *scanner, m *rcsmaster.Master) error {
	if err := sc.expectWord("head"); err != nil {
		return err
	}
	if head := sc.word(); head != "" {
		n, err := p.Numbers.Parse(head)
		if err != nil {
			return err
		}
		m.Head = n
	}
	if err := sc.expectByte(';'); err != nil {
		return err
	}

	for {
		sc.skipWS()
		switch sc.peekWord() {
		case "branch":
			sc.word()
			if b := sc.word(); b != "" {
				n, err := p.Numbers.Parse(b)
				if err != nil {
					return err
				}
				m.DefaultBranch = n
			}
			if err := sc.expectByte(';'); err != nil {
				return err
			}
		case "access":
			sc.word()
			for sc.peekByte() != ';' {
				sc.word()
			}
			if err := sc.expectByte(';'); err != nil {
				return err
			}
		case "symbols":
			sc.word()
			for sc.peekByte() != ';' {
				tag := sc.word()
				if err := sc.expectByte(':'); err != nil {
					return err
				}
				rev := sc.word()
				n, err := p.Numbers.Parse(rev)
				if err != nil {
					return err
				}
				m.Symbols[p.Atoms.Intern(tag)] = n
			}
			if err := sc.expectByte(';'); err != nil {
				return err
			}
		case "locks":
			sc.word()
			for sc.peekByte() != ';' {
				sc.word()
				if err := sc.expectByte(':'); err != nil {
					return err
				}
				sc.word()
			}
			if err := sc.expectByte(';'); err != nil {
				return err
			}
			sc.skipWS()
			if sc.peekWord() == "strict" {
				sc.word()
				if err := sc.expectByte(';'); err != nil {
					return err
				}
			}
		case "comment":
			sc.word()
			if sc.peekByte() == '@' {
				if _, _, err := sc.atString(); err != nil {
					return err
				}
			}
			if err := sc.expectByte(';'); err != nil {
				return err
			}
		case "expand":
			sc.word()
			if sc.peekByte() == '@' {
				offset, length, err := sc.atString()
				if err != nil {
					return err
				}
				m.Expand = rcsmaster.ParseExpandMode(strings.ToLower(sc.slice(offset, length)))
			}
			if err := sc.expectByte(';'); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// parseDelta consumes one delta block: a bare revision number followed
// by date/author/state/branches/next and any newphrases (e.g.
// commitid), stopping at the next delta or the "desc" keyword.
func (p *Parser) parseDelta(sc *scanner) (*rcsmaster.Version, error) {
	numStr := sc.word()
	number, err := p.Numbers.Parse(numStr)
	if err != nil {
		return nil, err
	}
	v := &rcsmaster.Version{Number: number}

	if err := sc.expectWord("date"); err != nil {
		return nil, err
	}
	dateStr := sc.word()
	date, err := parseRCSDate(dateStr)
	if err != nil {
		return nil, err
	}
	v.Date = date
	if err := sc.expectByte(';'); err != nil {
		return nil, err
	}

	if err := sc.expectWord("author"); err != nil {
		return nil, err
	}
	v.Author = p.Atoms.Intern(sc.word())
	if err := sc.expectByte(';'); err != nil {
		return nil, err
	}

	if err := sc.expectWord("state"); err != nil {
		return nil, err
	}
	if sc.peekByte() != ';' {
		v.State = p.Atoms.Intern(sc.word())
	}
	v.Dead = v.State == "dead"
	if err := sc.expectByte(';'); err != nil {
		return nil, err
	}

	if err := sc.expectWord("branches"); err != nil {
		return nil, err
	}
	for sc.peekByte() != ';' {
		b := sc.word()
		if b == "" {
			break
		}
		n, err := p.Numbers.Parse(b)
		if err != nil {
			return nil, err
		}
		v.Branches = append(v.Branches, n)
	}
	if err := sc.expectByte(';'); err != nil {
		return nil, err
	}

	if err := sc.expectWord("next"); err != nil {
		return nil, err
	}
	_ = sc.word() // the "next" pointer is redundant with BuildBranches' own sort/pair pass
	if err := sc.expectByte(';'); err != nil {
		return nil, err
	}

	for {
		sc.skipWS()
		word := sc.peekWord()
		if word == "" || word == "desc" || looksLikeRevision(word) {
			break
		}
		if word == "commitid" {
			sc.word()
			v.CommitID = p.Atoms.Intern(sc.word())
			if err := sc.expectByte(';'); err != nil {
				return nil, err
			}
			continue
		}
		if err := sc.skipNewphrase(); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// parseDeltatext consumes one deltatext block: a bare revision number,
// "log", any newphrases, and "text", recording the text body's file
// offset/length for lazy loading instead of reading it now.
func (p *Parser) parseDeltatext(sc *scanner, path string) (*rcsmaster.Patch, error) {
	numStr := sc.word()
	number, err := p.Numbers.Parse(numStr)
	if err != nil {
		return nil, err
	}
	patch := &rcsmaster.Patch{Number: number}

	if err := sc.expectWord("log"); err != nil {
		return nil, err
	}
	logOffset, logLength, err := sc.atString()
	if err != nil {
		return nil, err
	}
	patch.Log = p.Atoms.Intern(sc.slice(logOffset, logLength))

	for {
		sc.skipWS()
		if sc.peekWord() == "text" {
			break
		}
		if err := sc.skipNewphrase(); err != nil {
			return nil, err
		}
	}

	sc.word() // "text"
	offset, length, err := sc.atString()
	if err != nil {
		return nil, err
	}
	patch.Text = rcsmaster.Text{Filename: path, Offset: offset, Length: length}

	return patch, nil
}

// looksLikeRevision reports whether word is shaped like a dotted
// revision number (only digits and '.'), which is how a newphrase loop
// recognises that the next delta block has begun.
func looksLikeRevision(word string) bool {
	if word == "" {
		return false
	}
	for _, c := range word {
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// parseRCSDate parses RCS's "date" field: dotted YY.MM.DD.hh.mm.ss,
// where a two-digit year below 100 means 1900+year (RCS predates the
// four-digit convention CVS later adopted).
func parseRCSDate(s string) (int64, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 6 {
		return 0, fmt.Errorf("rcsparse: malformed date %q", s)
	}
	nums := make([]int, 6)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("rcsparse: malformed date %q: %w", s, err)
		}
		nums[i] = n
	}
	year := nums[0]
	if year < 100 {
		year += 1900
	}
	t := time.Date(year, time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, time.UTC)
	return t.Unix(), nil
}

// exportPath derives a master's export pathname from its ",v" path: the
// trailing ",v" is stripped, and an "Attic/" directory segment (CVS's
// convention for storing dead-on-trunk files) is removed so a file's
// export path is stable regardless of which state it died in, matching
// export_filename's de-Atticking in the ancestor codebase's export.c.
func exportPath(path string) string {
	p := strings.TrimSuffix(path, ",v")
	p = strings.TrimPrefix(p, "RCS/")
	p = strings.Replace(p, "/Attic/", "/", 1)
	p = strings.TrimPrefix(p, "Attic/")
	return p
}
