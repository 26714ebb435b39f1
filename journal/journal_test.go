package journal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportWritesHeaderAndSummary(t *testing.T) {
	var buf strings.Builder
	r := NewReport(&buf)

	start := time.Unix(1000, 0)
	r.WriteHeader(start, 4)
	r.MasterProcessed("RCS/foo.c,v", 3)
	r.ChangesetEmitted("main", 7, "fix the thing\nlonger body")
	r.TagPlaced("REL_1_0", "main")
	r.BranchJoined("maint", "main")
	r.Warning("tag %s points nowhere", "STALE")
	r.WriteSummary(5 * time.Second)

	out := buf.String()
	assert.Contains(t, out, "run started=")
	assert.Contains(t, out, `master path="RCS/foo.c,v" versions=3`)
	assert.Contains(t, out, `changeset branch="main" mark=7 log="fix the thing"`)
	assert.Contains(t, out, `tag name="REL_1_0" branch="main"`)
	assert.Contains(t, out, `join child="maint" parent="main"`)
	assert.Contains(t, out, `warning msg="tag STALE points nowhere"`)
	assert.Contains(t, out, "summary masters=1 changesets=1 tags=1 joins=1 warnings=1")

	require.Equal(t, 1, r.Masters)
	require.Equal(t, 1, r.Changesets)
	require.Equal(t, 1, r.Tags)
	require.Equal(t, 1, r.BranchesJoined)
	require.Equal(t, 1, r.Warnings)
}

func TestReportCountersAccumulate(t *testing.T) {
	var buf strings.Builder
	r := NewReport(&buf)

	for i := 0; i < 3; i++ {
		r.MasterProcessed("RCS/x.c,v", i)
	}
	for i := 0; i < 2; i++ {
		r.Warning("warning %d", i)
	}

	assert.Equal(t, 3, r.Masters)
	assert.Equal(t, 2, r.Warnings)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", firstLine("one\ntwo\nthree"))
	assert.Equal(t, "solo", firstLine("solo"))
	assert.Equal(t, "", firstLine(""))
}
