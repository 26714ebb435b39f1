// Package materialize walks a master's delta tree and produces the
// full text of every revision, expanding RCS keywords along the way,
// per §4.3 of the specification (component C, the revision
// materialiser).
package materialize

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rcowham/gitp4transfer/internal/rcsmaster"
)

// ExpandMode re-exports rcsmaster's expand-mode enum so callers of
// this package don't need to import both.
type ExpandMode = rcsmaster.ExpandMode

const (
	ExpandKV  = rcsmaster.ExpandKV
	ExpandKVL = rcsmaster.ExpandKVL
	ExpandK   = rcsmaster.ExpandK
	ExpandV   = rcsmaster.ExpandV
	ExpandO   = rcsmaster.ExpandO
	ExpandB   = rcsmaster.ExpandB
)

// TextLoader opens the delta body located by a rcsmaster.Text,
// returning its raw '@'-quoted bytes. Production code backs this with
// rcsparse.FileLoader, which keeps one open file per master and reads
// each delta body with ReadAt; tests back it with an in-memory map.
type TextLoader interface {
	Load(t rcsmaster.Text) ([]byte, error)
}

// Hook receives one materialised revision's full text.
type Hook func(node *rcsmaster.Node, data []byte)

// Generator materialises every revision of one master.
type Generator struct {
	Loader              TextLoader
	EnableKeywords       bool
	Epoch               int64 // RCS_EPOCH equivalent; Generate does not read it (Version.Date is already absolute in our model)
}

type frame struct {
	node       *rcsmaster.Node
	buf        *gapBuffer
	nextBranch *rcsmaster.Node
}

// Generate walks master's delta tree depth-first (trunk first, then
// each branch in Sib order), applying edit scripts and invoking hook
// with every revision's rendered text.
func (g *Generator) Generate(master *rcsmaster.Master, hook Hook) error {
	if master.Hash == nil || master.Hash.HeadNode == nil {
		return nil
	}

	stack := []*frame{{node: master.Hash.HeadNode, buf: newGapBuffer()}}

	if err := g.processDelta(stack[0], master, enter); err != nil {
		return err
	}

	for {
		top := stack[len(stack)-1]
		if top.node.File() {
			text := g.finishEdit(top.buf, master, top.node)
			hook(top.node, text)
		}

		if down := top.node.Down; down != nil {
			stack = append(stack, enterBranch(top, down))
			if err := g.processDelta(stack[len(stack)-1], master, edit); err != nil {
				return err
			}
			continue
		}

		// Walk back up via `to`/next-branch until we find a sibling
		// branch to descend into, or exhaust the stack (mirrors the
		// original's explicit frame-popping while-loop).
		for {
			cur := stack[len(stack)-1]
			nxt := cur.node.To
			if nxt == nil {
				if len(stack) == 1 {
					return nil
				}
				popped := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if popped.nextBranch != nil {
					stack = append(stack, enterBranch(stack[len(stack)-1], popped.nextBranch))
					break
				}
				continue
			}
			stack[len(stack)-1] = &frame{node: nxt, buf: cur.buf, nextBranch: cur.nextBranch}
			break
		}
		if err := g.processDelta(stack[len(stack)-1], master, edit); err != nil {
			return err
		}
	}
}

func enterBranch(parent *frame, child *rcsmaster.Node) *frame {
	return &frame{node: child, buf: parent.buf.clone(), nextBranch: child.Sib}
}

type deltaMode int

const (
	enter deltaMode = iota
	edit
)

func (g *Generator) processDelta(f *frame, master *rcsmaster.Master, mode deltaMode) error {
	text, err := g.Loader.Load(f.node.Patch.Text)
	if err != nil {
		return fmt.Errorf("materialize: loading %s: %w", f.node.Number, err)
	}
	text = stripAtQuoting(text)

	switch mode {
	case enter:
		for i, line := range splitLinesKeepEOL(text) {
			f.buf.insert(i, line)
		}
	case edit:
		if err := applyEditScript(f.buf, text); err != nil {
			return fmt.Errorf("materialize: applying delta for %s: %w", f.node.Number, err)
		}
	}
	return nil
}

// stripAtQuoting collapses "@@" pairs produced by RCS's '@'-string
// quoting convention down to a single '@', and trims the outer
// delimiters if still present.
func stripAtQuoting(b []byte) []byte {
	if len(b) >= 2 && b[0] == '@' && b[len(b)-1] == '@' {
		b = b[1 : len(b)-1]
	}
	return bytes.ReplaceAll(b, []byte("@@"), []byte("@"))
}

func splitLinesKeepEOL(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			out = append(out, b[start:i+1])
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, b[start:])
	}
	return out
}

// applyEditScript interprets text as a sequence of RCS 'a'/'d'
// commands and mutates buf in place, per §4.3's edit-script rules.
func applyEditScript(buf *gapBuffer, text []byte) error {
	adprev, dafter := 0, 0
	offset := 0 // lines inserted minus lines deleted so far; commands use the old text's numbering
	lineScanner := newLineReader(text)

	for {
		cmdLine, ok := lineScanner.next()
		if !ok {
			break
		}
		if len(cmdLine) == 0 {
			continue
		}
		cmd := cmdLine[0]
		var line1, nlines int
		if _, err := fmt.Sscanf(string(cmdLine[1:]), "%d %d", &line1, &nlines); err != nil {
			return fmt.Errorf("corrupt delta command %q: %w", cmdLine, err)
		}
		if nlines == 0 || (cmd != 'a' && cmd != 'd') {
			return fmt.Errorf("corrupt delta command %q", cmdLine)
		}

		switch cmd {
		case 'a':
			if line1 < adprev {
				return fmt.Errorf("backward insertion in delta at line %d", line1)
			}
			adprev = line1 + 1
			editline := line1 + offset
			for n := 0; n < nlines; n++ {
				l, ok := lineScanner.next()
				if !ok {
					return fmt.Errorf("truncated delta: expected %d lines after 'a' command", nlines)
				}
				buf.insert(editline, append(l, '\n'))
				editline++
			}
			offset += nlines
		case 'd':
			if line1 < adprev || line1 < dafter {
				return fmt.Errorf("backward deletion in delta at line %d", line1)
			}
			adprev = line1
			dafter = line1 + nlines
			buf.delete(line1-1+offset, nlines)
			offset -= nlines
		}
	}
	return nil
}

// lineReader yields successive newline-delimited lines (without their
// terminator) from the raw delta-script bytes, which mix ed commands
// and literal replacement text.
type lineReader struct {
	data []byte
	pos  int
}

func newLineReader(data []byte) *lineReader { return &lineReader{data: data} }

func (r *lineReader) next() ([]byte, bool) {
	if r.pos >= len(r.data) {
		return nil, false
	}
	start := r.pos
	for r.pos < len(r.data) && r.data[r.pos] != '\n' {
		r.pos++
	}
	line := r.data[start:r.pos]
	if r.pos < len(r.data) {
		r.pos++ // consume '\n'
	}
	return line, true
}

// finishEdit renders the buffer's current snapshot, optionally
// rescanning every line for keyword expansion.
func (g *Generator) finishEdit(buf *gapBuffer, master *rcsmaster.Master, node *rcsmaster.Node) []byte {
	lines := buf.snapshot()

	expandKeywords := g.EnableKeywords && master.Expand != ExpandO && master.Expand != ExpandB

	var out bytes.Buffer
	kw := keywordContext{
		Mode:           master.Expand,
		Basename:       basename(master.Path),
		FullPath:       master.Path,
		RevisionString: node.Number.String(),
		Author:         string(node.Version.Author),
		State:          string(node.Version.State),
		Log:            logText(node),
	}
	if node.Version != nil {
		kw.Date = time.Unix(node.Version.Date, 0).UTC()
	}

	for _, line := range lines {
		if expandKeywords {
			line = expandLine(line, kw)
		}
		out.Write(line)
	}
	return out.Bytes()
}

func logText(node *rcsmaster.Node) string {
	if node.Patch != nil {
		return string(node.Patch.Log)
	}
	return ""
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

