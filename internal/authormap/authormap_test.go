package authormap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResolvesFullIdentity(t *testing.T) {
	src := "# comment\n\nalice = Alice Example <alice@example.com> -0700\nbob = Bob Example <bob@example.com>\n"
	table, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	a, ok := table.Lookup("alice")
	require.True(t, ok)
	require.Equal(t, "Alice Example", a.FullName)
	require.Equal(t, "alice@example.com", a.Email)
	require.Equal(t, "-0700", a.Timezone)

	b, ok := table.Lookup("bob")
	require.True(t, ok)
	require.Equal(t, "+0000", b.Timezone)

	_, ok = table.Lookup("carol")
	require.False(t, ok)
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("alice Alice Example\n"))
	require.Error(t, err)
}

func TestWarnOnceFiresOnlyOnFirstMiss(t *testing.T) {
	table := NewTable()
	require.True(t, table.WarnOnce("dave"))
	require.False(t, table.WarnOnce("dave"))
	require.True(t, table.WarnOnce("erin"))
}
