package hydralog_test

import (
	"strings"
	"testing"

	"github.com/calvinalkan/hydralog"
	"github.com/stretchr/testify/require"
)

const sampleTSV1 = "#!hydralog-dump --in-format=tsv1\n" +
	"#% start_epoch=1000\n" +
	"#: dT\tlevel\tmessage\tfacility=app\n" +
	"0\tINFO\tboot\t\n" +
	"10\tWARNING\tslow response\tapi\n"

func TestReader_DecodesSequentialRecords(t *testing.T) {
	r, err := hydralog.Open(strings.NewReader(sampleTSV1), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "INFO", first.Level())
	require.Equal(t, "boot", first.Message())
	require.Equal(t, "app", first.Facility())
	require.Equal(t, float64(1000), first.Timestamp())

	second, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "WARNING", second.Level())
	require.Equal(t, "api", second.Facility())
	require.Equal(t, float64(1000+64), second.Timestamp()) // "10" base64 == 64

	_, err = r.Next()
	require.ErrorIs(t, err, hydralog.ErrNoRecord)
}

func TestReader_ParseCacheDisabledByDefault(t *testing.T) {
	r, err := hydralog.Open(strings.NewReader(sampleTSV1), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	_, err = r.Next()
	require.NoError(t, err)

	_, ok := r.CachedRecord(0)
	require.False(t, ok)
}

func TestReader_ParseCacheRemembersDecodedTicks(t *testing.T) {
	r, err := hydralog.Open(strings.NewReader(sampleTSV1), hydralog.ReaderOptions{ParseCacheSize: 1})
	require.NoError(t, err)

	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)

	cached, ok := r.CachedRecord(0)
	require.True(t, ok)
	require.Equal(t, first.Message(), cached.Message())

	second, err := r.Next()
	require.NoError(t, err)

	// Cache size 1: decoding the second record evicts the first.
	_, ok = r.CachedRecord(0)
	require.False(t, ok)

	cachedSecond, ok := r.CachedRecord(64) // "10" base64 == 64, see TestReader_DecodesSequentialRecords
	require.True(t, ok)
	require.Equal(t, second.Message(), cachedSecond.Message())
}

func TestReader_PeekDoesNotConsume(t *testing.T) {
	r, err := hydralog.Open(strings.NewReader(sampleTSV1), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	peeked, err := r.Peek()
	require.NoError(t, err)

	again, err := r.Peek()
	require.NoError(t, err)
	require.Equal(t, peeked.Message(), again.Message())

	next, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, peeked.Message(), next.Message())
}

func TestReader_UnknownFieldErrors(t *testing.T) {
	r, err := hydralog.Open(strings.NewReader(sampleTSV1), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)

	_, err = rec.Field("nonexistent")
	require.ErrorIs(t, err, hydralog.ErrUnknownField)
}

func TestReader_SeekFindsFirstRecordAtOrAfterEpoch(t *testing.T) {
	r, err := hydralog.Open(strings.NewReader(sampleTSV1), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	err = r.Seek(1000 + 64)
	require.NoError(t, err)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "slow response", rec.Message())
}

func TestReader_SeekBeforeStartReturnsErrAtStart(t *testing.T) {
	r, err := hydralog.Open(strings.NewReader(sampleTSV1), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	err = r.Seek(0)
	require.ErrorIs(t, err, hydralog.ErrAtStart)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "boot", rec.Message())
}

func TestReader_SeekBackwardViaIndexLandsOnCorrectRecord(t *testing.T) {
	// AutoIndexPeriod: 1 forces an index entry after every record, so a
	// backward Seek exercises the index-based jump in maybeIndex/Seek
	// rather than the plain forward scan.
	const src = "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=0\n" +
		"#: dT\tmessage\n" +
		"0\tr1\n" +
		"5\tr2\n" +
		"5\tr3\n" +
		"5\tr4\n"

	r, err := hydralog.Open(strings.NewReader(src), hydralog.ReaderOptions{AutoIndexPeriod: 1})
	require.NoError(t, err)

	defer r.Close()

	for range 4 {
		_, err := r.Next()
		require.NoError(t, err)
	}

	// r.ticks is now 15 (past every record); seeking to ticks=8 must land
	// on r3 (ticks=10), the first record at or after that point — not on
	// r2 mislabeled with a doubled delta.
	require.NoError(t, r.Seek(8))

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "r3", rec.Message())
	require.Equal(t, float64(10), rec.Timestamp())
}

func TestReader_SeekLastReturnsFinalRecord(t *testing.T) {
	r, err := hydralog.Open(strings.NewReader(sampleTSV1), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	last, err := r.SeekLast()
	require.NoError(t, err)
	require.Equal(t, "slow response", last.Message())

	_, err = r.Next()
	require.ErrorIs(t, err, hydralog.ErrNoRecord)
}

func TestReader_ContinuationRecordSharesInstant(t *testing.T) {
	const src = "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=0\n" +
		"#: dT\tlevel\tmessage\n" +
		"100\tDEBUG\tfirst\n" +
		"\tINFO\tsecond\n" +
		"100\tERROR\tthird\n"

	r, err := hydralog.Open(strings.NewReader(src), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)

	second, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, first.Timestamp(), second.Timestamp())

	third, err := r.Next()
	require.NoError(t, err)
	require.Greater(t, third.Timestamp(), second.Timestamp())
}

func TestReader_SingleFieldHeaderNeverAbsorbsContinuationLines(t *testing.T) {
	// With only one declared record field, a same-instant continuation
	// record ("\tsecond") and a continuation line extending that field
	// render identically on the wire. absorbContinuations must leave
	// such lines for decodeOne to parse as their own record rather than
	// silently merging them into the prior one.
	const src = "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=0\n" +
		"#: dT\tmessage\n" +
		"100\tfirst\n" +
		"\tsecond\n"

	r, err := hydralog.Open(strings.NewReader(src), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "first", first.Message())

	second, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "second", second.Message())
	require.Equal(t, first.Timestamp(), second.Timestamp())

	_, err = r.Next()
	require.ErrorIs(t, err, hydralog.ErrNoRecord)
}

func TestReader_MultilineFieldContinuationLines(t *testing.T) {
	const src = "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=0\n" +
		"#: dT\tlevel\tmessage\n" +
		"1\tERROR\tboom\n" +
		"\t\tstack line 1\n" +
		"\t\tstack line 2\n"

	r, err := hydralog.Open(strings.NewReader(src), hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "boom\nstack line 1\nstack line 2", rec.Message())
}
