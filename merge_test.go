package hydralog_test

import (
	"strings"
	"testing"

	"github.com/calvinalkan/hydralog"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// recordSnapshot is a plain, exported projection of the fields a
// structural diff should care about — Record itself carries unexported
// bookkeeping (name->index map, raw ticks) that cmp has no business
// comparing.
type recordSnapshot struct {
	Timestamp float64
	Level     string
	Message   string
}

func snapshot(rec hydralog.Record) recordSnapshot {
	return recordSnapshot{Timestamp: rec.Timestamp(), Level: rec.Level(), Message: rec.Message()}
}

func openTSV1(t *testing.T, body string) *hydralog.Reader {
	t.Helper()

	src := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=0\n" +
		"#: dT\tlevel\tmessage\n" + body

	r, err := hydralog.Open(strings.NewReader(src), hydralog.ReaderOptions{})
	require.NoError(t, err)

	return r
}

func TestMergeReader_OrdersByTimestampAcrossSources(t *testing.T) {
	a := openTSV1(t, "5\tINFO\tfrom-a-1\n10\tINFO\tfrom-a-2\n")
	b := openTSV1(t, "7\tINFO\tfrom-b-1\n")

	m := hydralog.NewMergeReader(a, b)

	var order []string

	for {
		rec, err := m.Next()
		if err != nil {
			require.ErrorIs(t, err, hydralog.ErrNoRecord)

			break
		}

		order = append(order, rec.Message())
	}

	require.Equal(t, []string{"from-a-1", "from-b-1", "from-a-2"}, order)
}

func TestMergeReader_TiesBrokenBySourceIndex(t *testing.T) {
	a := openTSV1(t, "5\tINFO\tfrom-a\n")
	b := openTSV1(t, "5\tINFO\tfrom-b\n")

	m := hydralog.NewMergeReader(a, b)

	first, err := m.Next()
	require.NoError(t, err)
	require.Equal(t, "from-a", first.Message())

	second, err := m.Next()
	require.NoError(t, err)
	require.Equal(t, "from-b", second.Message())
}

func TestMergeReader_PeekDoesNotAdvance(t *testing.T) {
	a := openTSV1(t, "5\tINFO\tonly\n")

	m := hydralog.NewMergeReader(a)

	peeked, err := m.Peek()
	require.NoError(t, err)
	require.Equal(t, "only", peeked.Message())

	again, err := m.Peek()
	require.NoError(t, err)
	require.Equal(t, "only", again.Message())
}

func TestMergeReader_EmptySourceSetIsImmediatelyExhausted(t *testing.T) {
	m := hydralog.NewMergeReader()

	_, err := m.Next()
	require.ErrorIs(t, err, hydralog.ErrNoRecord)
}

func TestMergeReader_MergedSequenceMatchesExpectedSnapshot(t *testing.T) {
	a := openTSV1(t, "5\tINFO\tfrom-a-1\n10\tWARNING\tfrom-a-2\n")
	b := openTSV1(t, "7\tERROR\tfrom-b-1\n")

	m := hydralog.NewMergeReader(a, b)

	var got []recordSnapshot

	for {
		rec, err := m.Next()
		if err != nil {
			require.ErrorIs(t, err, hydralog.ErrNoRecord)

			break
		}

		got = append(got, snapshot(rec))
	}

	want := []recordSnapshot{
		{Timestamp: 5, Level: "INFO", Message: "from-a-1"},
		{Timestamp: 7, Level: "ERROR", Message: "from-b-1"},
		{Timestamp: 69, Level: "WARNING", Message: "from-a-2"}, // 5 + "10" (base-64 for 64)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged sequence mismatch (-want +got):\n%s", diff)
	}
}
