package rcsparse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rcowham/gitp4transfer/internal/atom"
	"github.com/rcowham/gitp4transfer/internal/cvsnumber"
	"github.com/stretchr/testify/require"
)

const fixture = `head	1.2;
access;
symbols
	REL1_0:1.1;
locks; strict;
comment	@# @;


1.2
date	2024.01.02.03.04.05;	author alice;	state Exp;
branches;
next	1.1;

1.1
date	2024.01.01.00.00.00;	author bob;	state Exp;
branches;
next	;


desc
@Initial import.
@


1.2
log
@Second revision.
@
text
@line one
line two
@


1.1
log
@Initial revision.
@
text
@line one
@
`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "foo.c,v")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0644))
	return path
}

func TestReadMasterParsesAdminAndDeltas(t *testing.T) {
	path := writeFixture(t)
	p := New(cvsnumber.NewTable(), atom.NewTable())

	m, err := p.ReadMaster(path)
	require.NoError(t, err)

	require.Equal(t, "1.2", m.Head.String())
	require.Equal(t, filepath.Join(filepath.Dir(path), "foo.c"), m.ExportPath)
	require.Len(t, m.Symbols, 1)
	require.Equal(t, "1.1", m.Symbols["REL1_0"].String())

	require.Len(t, m.Versions, 2)
	require.Equal(t, "1.2", m.Versions[0].Number.String())
	require.Equal(t, atom.Atom("alice"), m.Versions[0].Author)
	require.Equal(t, "1.1", m.Versions[1].Number.String())
	require.Equal(t, atom.Atom("bob"), m.Versions[1].Author)

	require.Len(t, m.Patches, 2)
	require.Equal(t, atom.Atom("Second revision.\n"), m.Patches[0].Log)
	require.Equal(t, atom.Atom("Initial revision.\n"), m.Patches[1].Log)
}

func TestReadMasterPatchTextOffsetsLocateRawBody(t *testing.T) {
	path := writeFixture(t)
	p := New(cvsnumber.NewTable(), atom.NewTable())

	m, err := p.ReadMaster(path)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	first := m.Patches[0].Text
	body := raw[first.Offset : first.Offset+first.Length]
	require.Equal(t, "line one\nline two\n", string(body))

	second := m.Patches[1].Text
	body2 := raw[second.Offset : second.Offset+second.Length]
	require.Equal(t, "line one\n", string(body2))
}

func TestParseRCSDateHandlesTwoDigitYear(t *testing.T) {
	sec, err := parseRCSDate("98.03.04.05.06.07")
	require.NoError(t, err)
	require.Equal(t, int64(888987967), sec)
}

func TestExportPathStripsAtticAndSuffix(t *testing.T) {
	require.Equal(t, "foo.c", exportPath("RCS/foo.c,v"))
	require.Equal(t, "sub/foo.c", exportPath("RCS/sub/Attic/foo.c,v"))
	require.Equal(t, "foo.c", exportPath("Attic/foo.c,v"))
}
