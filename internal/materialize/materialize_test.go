package materialize

import (
	"testing"
	"time"

	"github.com/rcowham/gitp4transfer/internal/cvsnumber"
	"github.com/rcowham/gitp4transfer/internal/rcsmaster"
	"github.com/stretchr/testify/require"
)

type memLoader map[string][]byte

func (m memLoader) Load(t rcsmaster.Text) ([]byte, error) {
	return m[t.Filename], nil
}

func TestGenerateLinearTrunk(t *testing.T) {
	numbers := cvsnumber.NewTable()
	master := &rcsmaster.Master{Path: "RCS/foo.c,v", Expand: ExpandK}
	hash := rcsmaster.NewNodeHash()
	master.Hash = hash

	n11, _ := numbers.Parse("1.1")
	n12, _ := numbers.Parse("1.2")

	// RCS stores the full text at the trunk tip (1.2, the head) and a
	// reverse delta at 1.1 that, applied to 1.2's lines, reconstructs 1.1.
	loader := memLoader{
		"1.2": []byte("@line one\nline two\n@"),
		"1.1": []byte("@d1 1\na1 1\nline ONE\n@"),
	}

	v1 := &rcsmaster.Version{Number: n11, Author: "alice", Date: 1000}
	p1 := &rcsmaster.Patch{Number: n11, Text: rcsmaster.Text{Filename: "1.1"}}
	v2 := &rcsmaster.Version{Number: n12, Author: "bob", Date: 2000}
	p2 := &rcsmaster.Patch{Number: n12, Text: rcsmaster.Text{Filename: "1.2"}}

	hash.HashVersion(v1)
	hash.HashPatch(p1)
	hash.HashVersion(v2)
	hash.HashPatch(p2)
	require.NoError(t, hash.BuildBranches(numbers))

	var got []string
	gen := &Generator{Loader: loader}
	require.NoError(t, gen.Generate(master, func(node *rcsmaster.Node, data []byte) {
		got = append(got, string(data))
	}))

	require.Len(t, got, 2)
	require.Equal(t, "line one\nline two\n", got[0])
	require.Equal(t, "line ONE\nline two\n", got[1])
}

func TestExpandLineId(t *testing.T) {
	kw := keywordContext{
		Mode:           ExpandKV,
		Basename:       "foo.c",
		RevisionString: "1.4",
		Author:         "alice",
		State:          "Exp",
	}
	tm, err := time.Parse(time.RFC3339, "2010-01-02T03:04:05Z")
	require.NoError(t, err)
	kw.Date = tm

	out := expandLine([]byte("$Id$\n"), kw)
	require.Contains(t, string(out), "$Id: foo.c 1.4 2010/01/02 03:04:05 alice Exp $")
}
