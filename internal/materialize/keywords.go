package materialize

import (
	"bytes"
	"fmt"
	"time"
)

var keywordNames = []string{
	"Author", "Date", "Header", "Id", "Locker", "Log",
	"Name", "RCSfile", "Revision", "Source", "State",
}

// keywordContext carries the per-revision values needed to expand
// RCS keywords into a rescanned output line, matching keyreplace's
// inputs in the original.
type keywordContext struct {
	Mode           ExpandMode
	Basename       string
	FullPath       string
	RevisionString string
	Date           time.Time
	Author         string
	State          string
	Log            string
}

// expandLine rescans one already-materialised line for $Keyword$ /
// $Keyword:...$ markers and replaces them per the active expand mode.
// Modes ExpandO and ExpandB pass bytes through unmodified, per the
// Open Question recorded in SPEC_FULL.md §9.
func expandLine(line []byte, kw keywordContext) []byte {
	if kw.Mode == ExpandO || kw.Mode == ExpandB {
		return line
	}

	var out bytes.Buffer
	i := 0
	for i < len(line) {
		c := line[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}
		name, rest, matched := matchKeyword(line[i+1:])
		if !matched {
			out.WriteByte(c)
			i++
			continue
		}
		// rest starts right after the keyword name; it is either ':'
		// (value present, to be replaced) or '$' (bare marker).
		j := i + 1 + len(name)
		// skip an optional ": value" payload up to the closing '$'
		end := j
		for end < len(line) && line[end] != '$' {
			end++
		}
		if end >= len(line) {
			// no closing delimiter found; emit verbatim and continue
			out.WriteByte(c)
			i++
			continue
		}
		out.WriteString(renderKeyword(name, kw))
		i = end + 1
		_ = rest
	}
	return out.Bytes()
}

// matchKeyword checks whether s begins with one of the known keyword
// names immediately followed by ':' or '$'.
func matchKeyword(s []byte) (name string, rest []byte, ok bool) {
	for _, kw := range keywordNames {
		if len(s) < len(kw) {
			continue
		}
		if string(s[:len(kw)]) != kw {
			continue
		}
		if len(s) == len(kw) {
			continue
		}
		if c := s[len(kw)]; c == ':' || c == '$' {
			return kw, s[len(kw):], true
		}
	}
	return "", nil, false
}

func renderKeyword(name string, kw keywordContext) string {
	dateStr := kw.Date.UTC().Format("2006/01/02 15:04:05")
	switch name {
	case "Author":
		return wrap(name, kw.Author, kw.Mode)
	case "Date":
		return wrap(name, dateStr, kw.Mode)
	case "Id":
		return wrap(name, fmt.Sprintf("%s %s %s %s %s", kw.Basename, kw.RevisionString, dateStr, kw.Author, kw.State), kw.Mode)
	case "Header":
		return wrap(name, fmt.Sprintf("%s %s %s %s %s", kw.FullPath, kw.RevisionString, dateStr, kw.Author, kw.State), kw.Mode)
	case "Locker":
		return wrap(name, "", kw.Mode)
	case "Log":
		return wrapLog(kw)
	case "Name":
		return wrap(name, "", kw.Mode)
	case "RCSfile":
		return wrap(name, kw.Basename, kw.Mode)
	case "Revision":
		return wrap(name, kw.RevisionString, kw.Mode)
	case "Source":
		return wrap(name, kw.FullPath, kw.Mode)
	case "State":
		return wrap(name, kw.State, kw.Mode)
	default:
		return "$" + name + "$"
	}
}

func wrap(name, value string, mode ExpandMode) string {
	if mode == ExpandKV {
		return fmt.Sprintf("$%s: %s $", name, value)
	}
	return fmt.Sprintf("$%s: %s $", name, value)
}

// wrapLog renders the $Log$ expansion: a header line, a "Revision"
// line, then the full log text. Only the first line keeps whatever
// precedes the $Log$ marker in the source line (the caller splices
// the result in there); the Revision line and the log text lines get
// no comment leader.
func wrapLog(kw keywordContext) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "$Log: %s $\n", kw.Basename)
	fmt.Fprintf(&b, "Revision %s  %s  %s", kw.RevisionString, kw.Date.UTC().Format("2006/01/02 15:04:05"), kw.Author)
	if kw.Log != "" {
		b.WriteByte('\n')
		b.WriteString(kw.Log)
	}
	return b.String()
}
