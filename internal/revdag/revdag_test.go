package revdag

import (
	"testing"

	"github.com/rcowham/gitp4transfer/internal/cvsnumber"
	"github.com/rcowham/gitp4transfer/internal/rcsmaster"
	"github.com/stretchr/testify/require"
)

func TestBuildTrunkChain(t *testing.T) {
	numbers := cvsnumber.NewTable()
	hash := rcsmaster.NewNodeHash()

	n11, _ := numbers.Parse("1.1")
	n12, _ := numbers.Parse("1.2")
	n13, _ := numbers.Parse("1.3")
	hash.HashVersion(&rcsmaster.Version{Number: n11, Date: 1000, Author: "alice"})
	hash.HashPatch(&rcsmaster.Patch{Number: n11})
	hash.HashVersion(&rcsmaster.Version{Number: n12, Date: 2000, Author: "bob"})
	hash.HashPatch(&rcsmaster.Patch{Number: n12})
	hash.HashVersion(&rcsmaster.Version{Number: n13, Date: 3000, Author: "carol"})
	hash.HashPatch(&rcsmaster.Patch{Number: n13})
	require.NoError(t, hash.BuildBranches(numbers))

	master := &rcsmaster.Master{Path: "RCS/foo.c,v", ExportPath: "foo.c", Hash: hash}

	res, err := Build(master, numbers, nil)
	require.NoError(t, err)
	require.Len(t, res.Branches, 1)

	trunk := res.Branches[0]
	require.Equal(t, "master", trunk.Name)

	var revs []string
	for c := trunk.Tip; c != nil; c = c.Parent {
		revs = append(revs, c.Number.String())
	}
	require.Equal(t, []string{"1.3", "1.2", "1.1"}, revs)
}

func TestBuildRepairsOutOfOrderDates(t *testing.T) {
	numbers := cvsnumber.NewTable()
	hash := rcsmaster.NewNodeHash()

	n11, _ := numbers.Parse("1.1")
	n12, _ := numbers.Parse("1.2")
	hash.HashVersion(&rcsmaster.Version{Number: n11, Date: 5000, Author: "alice"})
	hash.HashPatch(&rcsmaster.Patch{Number: n11})
	hash.HashVersion(&rcsmaster.Version{Number: n12, Date: 1000, Author: "bob"})
	hash.HashPatch(&rcsmaster.Patch{Number: n12})
	require.NoError(t, hash.BuildBranches(numbers))

	master := &rcsmaster.Master{Path: "RCS/foo.c,v", Hash: hash}

	var warnings []string
	res, err := Build(master, numbers, func(format string, args ...interface{}) {
		warnings = append(warnings, format)
	})
	require.NoError(t, err)
	require.NotEmpty(t, warnings)

	trunk := res.Branches[0]
	require.Equal(t, trunk.Tip.Parent.Date, trunk.Tip.Date)
}

func TestBuildResolvesTagsAcrossBranches(t *testing.T) {
	numbers := cvsnumber.NewTable()
	hash := rcsmaster.NewNodeHash()

	n11, _ := numbers.Parse("1.1")
	n12, _ := numbers.Parse("1.2")
	n1211, _ := numbers.Parse("1.2.1.1")

	hash.HashVersion(&rcsmaster.Version{Number: n11, Date: 1000, Author: "alice"})
	hash.HashPatch(&rcsmaster.Patch{Number: n11})
	hash.HashVersion(&rcsmaster.Version{Number: n12, Date: 1500, Author: "alice"})
	hash.HashPatch(&rcsmaster.Patch{Number: n12})
	hash.HashVersion(&rcsmaster.Version{Number: n1211, Date: 2000, Author: "dave"})
	hash.HashPatch(&rcsmaster.Patch{Number: n1211})
	require.NoError(t, hash.BuildBranches(numbers))

	master := &rcsmaster.Master{
		Path: "RCS/foo.c,v",
		Hash: hash,
		Symbols: map[string]*cvsnumber.Number{
			"REL1_0": n1211,
		},
	}

	res, err := Build(master, numbers, nil)
	require.NoError(t, err)
	require.Len(t, res.Tags, 1)
	require.Equal(t, "1.2.1.1", res.Tags[0].Commit.Number.String())
}

func TestAttachBlobIDsMatchesByNumber(t *testing.T) {
	numbers := cvsnumber.NewTable()
	hash := rcsmaster.NewNodeHash()

	n11, _ := numbers.Parse("1.1")
	n12, _ := numbers.Parse("1.2")
	hash.HashVersion(&rcsmaster.Version{Number: n11, Date: 1000, Author: "alice"})
	hash.HashPatch(&rcsmaster.Patch{Number: n11})
	hash.HashVersion(&rcsmaster.Version{Number: n12, Date: 2000, Author: "bob"})
	hash.HashPatch(&rcsmaster.Patch{Number: n12})
	require.NoError(t, hash.BuildBranches(numbers))

	master := &rcsmaster.Master{Path: "RCS/foo.c,v", ExportPath: "foo.c", Hash: hash}
	res, err := Build(master, numbers, nil)
	require.NoError(t, err)

	AttachBlobIDs(res, map[*cvsnumber.Number]int64{n11: 7, n12: 9})

	trunk := res.Branches[0]
	require.Equal(t, int64(9), trunk.Tip.BlobID)
	require.Equal(t, int64(7), trunk.Tip.Parent.BlobID)
}
