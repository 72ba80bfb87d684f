package hydralog_test

import (
	"strings"
	"testing"

	"github.com/calvinalkan/hydralog"
	"github.com/stretchr/testify/require"
)

func TestRecord_StringOmitsAbsentParts(t *testing.T) {
	const src = "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=0\n" +
		"#: dT\tmessage\n" +
		"0\thello\n"

	r, err := hydralog.Open(strings.NewReader(src), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)

	s := rec.String()
	require.NotContains(t, s, ": hello: ") // no doubled separator when level/facility/identity absent
	require.True(t, strings.HasSuffix(s, ": hello"))
}

func TestRecord_HasFieldVsEmptyValue(t *testing.T) {
	const src = "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=0\n" +
		"#: dT\tlevel\tmessage\n" +
		"0\t\t\n"

	r, err := hydralog.Open(strings.NewReader(src), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)

	require.True(t, rec.HasField("level"))
	require.Equal(t, "", rec.Level())
	require.False(t, rec.HasField("nope"))
}

func TestRecord_FieldsReturnsDeclaredVectorExcludingTick(t *testing.T) {
	const src = "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=0\n" +
		"#: dT\tlevel\tmessage\tfacility\n" +
		"0\tINFO\thi\tsvc\n"

	r, err := hydralog.Open(strings.NewReader(src), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, []string{"level", "message", "facility"}, rec.Fields())
}
