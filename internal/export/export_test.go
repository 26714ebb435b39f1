package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rcowham/gitp4transfer/internal/blobstore"
	"github.com/rcowham/gitp4transfer/internal/merge"
	"github.com/rcowham/gitp4transfer/internal/rcsmaster"
	"github.com/rcowham/gitp4transfer/internal/revdag"
	"github.com/rcowham/gitp4transfer/internal/revdir"
	"github.com/stretchr/testify/require"
)

func stageFile(t *testing.T, store *blobstore.Store, tree *revdir.Table, path string, master *rcsmaster.Master, date int64, body string) *revdir.Node {
	t.Helper()
	serial, err := store.Stage([]byte(body), false)
	require.NoError(t, err)
	commit := &revdag.CvsCommit{Path: path, Master: master, Date: date, BlobID: serial}
	return tree.PackFiles([]revdir.Entry{{Path: path, Commit: commit}})
}

func TestRunEmitsSingleCommitStream(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	tree := revdir.NewTable()
	master := &rcsmaster.Master{Path: "RCS/foo.c,v", Mode: 0644}
	root := stageFile(t, store, tree, "foo.c", master, 1000, "hello\n")

	commit := &merge.GitCommit{
		Log:    "initial import",
		Author: "alice",
		Date:   1000,
		Tree:   root,
	}
	branch := &merge.Branch{Name: "master", Tip: commit}
	commit.Branch = branch

	var buf bytes.Buffer
	e := New(&buf, store, Options{})
	require.NoError(t, e.Run([]*merge.Branch{branch}))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "blob\nmark :1\ndata 6\nhello\n\n"), out)
	require.Contains(t, out, "commit refs/heads/master\n")
	require.Contains(t, out, "mark :2\n")
	require.Contains(t, out, "committer alice <alice> 1000 +0000\n")
	require.Contains(t, out, "data 14\ninitial import\n")
	require.Contains(t, out, "M 100644 :1 foo.c\n")
	require.Contains(t, out, "reset refs/heads/master\nfrom :2\n\n")
	require.True(t, strings.HasSuffix(out, "done\n"), out)
}

func TestRunSuppressesBodyBeforeIncrementalCutoff(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	tree := revdir.NewTable()
	master := &rcsmaster.Master{Path: "RCS/foo.c,v", Mode: 0644}
	oldRoot := stageFile(t, store, tree, "foo.c", master, 1000, "old\n")
	newRoot := stageFile(t, store, tree, "foo.c", master, 2000, "new\n")

	old := &merge.GitCommit{Log: "old", Author: "alice", Date: 1000, Tree: oldRoot}
	next := &merge.GitCommit{Log: "new", Author: "alice", Date: 2000, Tree: newRoot, Parent: old}
	branch := &merge.Branch{Name: "master", Tip: next}
	old.Branch = branch
	next.Branch = branch

	var buf bytes.Buffer
	e := New(&buf, store, Options{IncrementalCutoff: 1500})
	require.NoError(t, e.Run([]*merge.Branch{branch}))

	out := buf.String()
	require.NotContains(t, out, "data 4\nold\n")
	require.Contains(t, out, "data 4\nnew\n")
	require.Contains(t, out, "from refs/heads/master^0\n")
}

func TestRunJoinsChildBranchToParentCommit(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	tree := revdir.NewTable()
	master := &rcsmaster.Master{Path: "RCS/foo.c,v", Mode: 0644}
	trunkRoot := stageFile(t, store, tree, "foo.c", master, 1000, "trunk\n")
	branchRoot := stageFile(t, store, tree, "foo.c", master, 2000, "branch\n")

	trunkTip := &merge.GitCommit{Log: "trunk commit", Author: "alice", Date: 1000, Tree: trunkRoot}
	trunk := &merge.Branch{Name: "master", Tip: trunkTip}
	trunkTip.Branch = trunk

	branchTip := &merge.GitCommit{Log: "branch commit", Author: "bob", Date: 2000, Tree: branchRoot}
	child := &merge.Branch{Name: "REL1_0", Tip: branchTip, Parent: trunk, ParentCommit: trunkTip}
	branchTip.Branch = child

	var buf bytes.Buffer
	e := New(&buf, store, Options{})
	require.NoError(t, e.Run([]*merge.Branch{trunk, child}))

	out := buf.String()
	require.Contains(t, out, "commit refs/heads/master\nmark :2\n")
	require.Contains(t, out, "commit refs/heads/REL1_0\n")
	idx := strings.Index(out, "commit refs/heads/REL1_0\n")
	require.True(t, idx >= 0)
	require.Contains(t, out[idx:], "from :2\n")
	require.Contains(t, out, "reset refs/heads/REL1_0\n")
}

func TestRunEmitsTagResetLine(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	tree := revdir.NewTable()
	master := &rcsmaster.Master{Path: "RCS/foo.c,v", Mode: 0644}
	root := stageFile(t, store, tree, "foo.c", master, 1000, "v1\n")

	commit := &merge.GitCommit{Log: "tagged", Author: "alice", Date: 1000, Tree: root, Tags: []string{"REL1_0"}}
	branch := &merge.Branch{Name: "master", Tip: commit}
	commit.Branch = branch

	var buf bytes.Buffer
	e := New(&buf, store, Options{})
	require.NoError(t, e.Run([]*merge.Branch{branch}))

	out := buf.String()
	require.Contains(t, out, "reset refs/tags/REL1_0\nfrom :2\n\n")
}

func TestRunEmitsDeleteWhenFileDropsOutOfTree(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	tree := revdir.NewTable()
	master := &rcsmaster.Master{Path: "RCS/foo.c,v", Mode: 0644}

	fooSerial, err := store.Stage([]byte("foo\n"), false)
	require.NoError(t, err)
	barSerial, err := store.Stage([]byte("bar\n"), false)
	require.NoError(t, err)

	fooCommit := &revdag.CvsCommit{Path: "foo.c", Master: master, Date: 1000, BlobID: fooSerial}
	barCommit := &revdag.CvsCommit{Path: "bar.c", Master: master, Date: 1000, BlobID: barSerial}
	parentRoot := tree.PackFiles([]revdir.Entry{
		{Path: "foo.c", Commit: fooCommit},
		{Path: "bar.c", Commit: barCommit},
	})
	childRoot := tree.PackFiles([]revdir.Entry{
		{Path: "foo.c", Commit: fooCommit},
	})

	parent := &merge.GitCommit{Log: "add both", Author: "alice", Date: 1000, Tree: parentRoot}
	child := &merge.GitCommit{Log: "remove bar", Author: "alice", Date: 2000, Tree: childRoot, Parent: parent}
	branch := &merge.Branch{Name: "master", Tip: child}
	parent.Branch = branch
	child.Branch = branch

	var buf bytes.Buffer
	e := New(&buf, store, Options{})
	require.NoError(t, e.Run([]*merge.Branch{branch}))

	out := buf.String()
	require.Contains(t, out, "D bar.c\n")
	require.NotContains(t, out, "M 100644 :2 bar.c\n")
}

func TestRunUsesRemoteNamespaceWhenConfigured(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	tree := revdir.NewTable()
	master := &rcsmaster.Master{Path: "RCS/foo.c,v", Mode: 0644}
	root := stageFile(t, store, tree, "foo.c", master, 1000, "v1\n")

	commit := &merge.GitCommit{Log: "msg", Author: "alice", Date: 1000, Tree: root}
	branch := &merge.Branch{Name: "master", Tip: commit}
	commit.Branch = branch

	var buf bytes.Buffer
	e := New(&buf, store, Options{Remote: "origin"})
	require.NoError(t, e.Run([]*merge.Branch{branch}))

	out := buf.String()
	require.Contains(t, out, "commit refs/remotes/origin/master\n")
	require.Contains(t, out, "reset refs/remotes/origin/master\n")
}
