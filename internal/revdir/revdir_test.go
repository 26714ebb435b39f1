package revdir

import (
	"testing"

	"github.com/rcowham/gitp4transfer/internal/revdag"
	"github.com/stretchr/testify/require"
)

func TestPackFilesPostOrder(t *testing.T) {
	table := NewTable()

	a := &revdag.CvsCommit{Path: "a.txt"}
	b := &revdag.CvsCommit{Path: "dir/b.txt"}
	c := &revdag.CvsCommit{Path: "dir/sub/c.txt"}

	root := table.PackFiles([]Entry{
		{Path: "a.txt", Commit: a},
		{Path: "dir/b.txt", Commit: b},
		{Path: "dir/sub/c.txt", Commit: c},
	})

	require.Equal(t, 3, NFiles(root))

	it := NewIterator(root)
	var got []*revdag.CvsCommit
	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, c)
	}
	require.Len(t, got, 3)
	require.Equal(t, c, got[0])
	require.Equal(t, b, got[1])
	require.Equal(t, a, got[2])
}

func TestPackFilesInterningSharesUnchangedSubtree(t *testing.T) {
	table := NewTable()

	b1 := &revdag.CvsCommit{Path: "dir/b.txt"}
	a1 := &revdag.CvsCommit{Path: "a.txt"}
	a2 := &revdag.CvsCommit{Path: "a.txt"}

	first := table.PackFiles([]Entry{
		{Path: "a.txt", Commit: a1},
		{Path: "dir/b.txt", Commit: b1},
	})
	second := table.PackFiles([]Entry{
		{Path: "a.txt", Commit: a2},
		{Path: "dir/b.txt", Commit: b1},
	})

	require.Len(t, first.Dirs, 1)
	require.Len(t, second.Dirs, 1)
	require.Same(t, first.Dirs[0], second.Dirs[0])
	require.NotSame(t, first, second)
}
