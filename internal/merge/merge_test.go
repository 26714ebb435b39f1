package merge

import (
	"testing"

	"github.com/rcowham/gitp4transfer/internal/cvsnumber"
	"github.com/rcowham/gitp4transfer/internal/rcsmaster"
	"github.com/rcowham/gitp4transfer/internal/revdag"
	"github.com/stretchr/testify/require"
)

func buildMaster(t *testing.T, numbers *cvsnumber.Table, path string, revs []struct {
	rev    string
	date   int64
	author string
	log    string
}) *revdag.Result {
	t.Helper()
	hash := rcsmaster.NewNodeHash()
	for _, r := range revs {
		n, err := numbers.Parse(r.rev)
		require.NoError(t, err)
		hash.HashVersion(&rcsmaster.Version{Number: n, Date: r.date, Author: r.author})
		hash.HashPatch(&rcsmaster.Patch{Number: n, Log: r.log})
	}
	require.NoError(t, hash.BuildBranches(numbers))

	master := &rcsmaster.Master{Path: path, ExportPath: path, Hash: hash}
	res, err := revdag.Build(master, numbers, nil)
	require.NoError(t, err)
	return res
}

func TestRunCoalescesSameMomentCommitsAcrossMasters(t *testing.T) {
	numbers := cvsnumber.NewTable()

	fooRes := buildMaster(t, numbers, "foo.c", []struct {
		rev    string
		date   int64
		author string
		log    string
	}{
		{"1.1", 1000, "alice", "initial import"},
		{"1.2", 2000, "bob", "fix typo"},
	})

	barRes := buildMaster(t, numbers, "bar.c", []struct {
		rev    string
		date   int64
		author string
		log    string
	}{
		{"1.1", 1005, "alice", "initial import"},
	})

	results := map[string]*revdag.Result{
		"foo.c": fooRes,
		"bar.c": barRes,
	}

	branches, _, err := Run(results, 0, nil)
	require.NoError(t, err)
	require.Len(t, branches, 1)

	master := branches[0]
	require.Equal(t, "master", master.Name)
	require.NotNil(t, master.Tip)

	var changesets []*GitCommit
	for c := master.Tip; c != nil; c = c.Parent {
		changesets = append(changesets, c)
	}
	// "fix typo" (foo.c 1.2) stands alone; "initial import" coalesces
	// foo.c 1.1 and bar.c 1.1 since they're within the time window with
	// matching author and log.
	require.Len(t, changesets, 2)
	require.Equal(t, "fix typo", string(changesets[0].Log))
	require.Equal(t, "initial import", string(changesets[1].Log))
	require.Equal(t, 2, memberCount(changesets[1]))
}

func memberCount(g *GitCommit) int {
	return len(g.members)
}

func TestRunJoinsBranchToParent(t *testing.T) {
	numbers := cvsnumber.NewTable()

	hash := rcsmaster.NewNodeHash()
	n11, _ := numbers.Parse("1.1")
	n12, _ := numbers.Parse("1.2")
	n1211, _ := numbers.Parse("1.2.1.1")
	hash.HashVersion(&rcsmaster.Version{Number: n11, Date: 1000, Author: "alice"})
	hash.HashPatch(&rcsmaster.Patch{Number: n11, Log: "initial"})
	hash.HashVersion(&rcsmaster.Version{Number: n12, Date: 2000, Author: "alice"})
	hash.HashPatch(&rcsmaster.Patch{Number: n12, Log: "second"})
	hash.HashVersion(&rcsmaster.Version{Number: n1211, Date: 3000, Author: "carol"})
	hash.HashPatch(&rcsmaster.Patch{Number: n1211, Log: "branch work"})
	require.NoError(t, hash.BuildBranches(numbers))

	master := &rcsmaster.Master{Path: "foo.c", ExportPath: "foo.c", Hash: hash}
	res, err := revdag.Build(master, numbers, nil)
	require.NoError(t, err)
	require.Len(t, res.Branches, 2)

	results := map[string]*revdag.Result{"foo.c": res}

	branches, _, err := Run(results, 0, nil)
	require.NoError(t, err)
	require.Len(t, branches, 2)

	var child *Branch
	for _, b := range branches {
		if b.Name != "master" {
			child = b
		}
	}
	require.NotNil(t, child)
	require.NotNil(t, child.ParentCommit)
	require.Equal(t, "second", string(child.ParentCommit.Log))
	require.True(t, child.ParentCommit.Tail)
}
