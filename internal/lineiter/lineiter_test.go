package lineiter_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/calvinalkan/hydralog/internal/lineiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// onlyReader strips any Seek method a wrapped reader might have, forcing
// lineiter down the non-seekable stream path.
type onlyReader struct {
	io.Reader
}

func TestIter_Next_Seekable(t *testing.T) {
	src := bytes.NewReader([]byte("one\ntwo\nthree\n"))
	it := lineiter.New(src, lineiter.Options{})

	var got []string
	for {
		line, err := it.Next()
		if err == lineiter.ErrNoMoreData {
			break
		}
		require.NoError(t, err)
		got = append(got, string(line.Data))
	}

	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestIter_Next_CRLF(t *testing.T) {
	src := bytes.NewReader([]byte("one\r\ntwo\r\n"))
	it := lineiter.New(src, lineiter.Options{})

	line, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", string(line.Data))

	line, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, "two", string(line.Data))
}

func TestIter_Next_NoTrailingNewlineIsIncomplete(t *testing.T) {
	// A final line without a terminating '\n' is not yet a complete line:
	// on a stream it may still be growing, so Next reports ErrNoMoreData
	// rather than returning a partial line.
	src := bytes.NewReader([]byte("one\ntwo"))
	it := lineiter.New(src, lineiter.Options{})

	line, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", string(line.Data))

	_, err = it.Next()
	assert.ErrorIs(t, err, lineiter.ErrNoMoreData)
}

func TestIter_NextThenPrev_Roundtrips(t *testing.T) {
	src := bytes.NewReader([]byte("one\ntwo\nthree\n"))
	it := lineiter.New(src, lineiter.Options{})

	first, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", string(first.Data))

	second, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "two", string(second.Data))

	third, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "three", string(third.Data))

	back, err := it.Prev()
	require.NoError(t, err)
	assert.Equal(t, "two", string(back.Data))

	back, err = it.Prev()
	require.NoError(t, err)
	assert.Equal(t, "one", string(back.Data))

	_, err = it.Prev()
	assert.ErrorIs(t, err, lineiter.ErrNoMoreData)
}

func TestIter_Prev_BeforeAnyNext(t *testing.T) {
	src := bytes.NewReader([]byte("one\ntwo\n"))
	it := lineiter.New(src, lineiter.Options{})

	_, err := it.Prev()
	assert.ErrorIs(t, err, lineiter.ErrNoMoreData)
}

func TestIter_Seek_ThenNextReturnsLineContainingAddr(t *testing.T) {
	src := bytes.NewReader([]byte("one\ntwo\nthree\n"))
	it := lineiter.New(src, lineiter.Options{})

	// Offset 4 is the 't' of "two".
	ok, err := it.Seek(4)
	require.NoError(t, err)
	require.True(t, ok)

	line, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(4), line.Addr)
	assert.Equal(t, "two", string(line.Data))

	line, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, "three", string(line.Data))
}

func TestIter_Seek_MidLineFindsLineStart(t *testing.T) {
	src := bytes.NewReader([]byte("one\ntwo\nthree\n"))
	it := lineiter.New(src, lineiter.Options{})

	// Offset 5 is the 'w' of "two"; the sought line still starts at 4.
	ok, err := it.Seek(5)
	require.NoError(t, err)
	require.True(t, ok)

	line, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(4), line.Addr)
	assert.Equal(t, "two", string(line.Data))
}

func TestIter_Seek_ToFirstLineAddr(t *testing.T) {
	src := bytes.NewReader([]byte("one\ntwo\n"))
	it := lineiter.New(src, lineiter.Options{})

	ok, err := it.Seek(0)
	require.NoError(t, err)
	require.True(t, ok)

	line, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", string(line.Data))
}

func TestIter_Seek_BeforeFirstLineAddr(t *testing.T) {
	src := bytes.NewReader([]byte("one\ntwo\n"))
	it := lineiter.New(src, lineiter.Options{FirstLineAddr: 4})

	_, err := it.Seek(0)
	assert.ErrorIs(t, err, lineiter.ErrBeforeStart)
}

func TestIter_Seek_BeyondKnownEnd(t *testing.T) {
	src := bytes.NewReader([]byte("one\ntwo\n"))
	it := lineiter.New(src, lineiter.Options{})

	ok, err := it.Seek(1000)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIter_FirstLineAddrSkipsHeader(t *testing.T) {
	src := bytes.NewReader([]byte("HEADER\none\ntwo\n"))
	it := lineiter.New(src, lineiter.Options{FirstLineAddr: 7})

	line, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", string(line.Data))
}

func TestIter_Preseed(t *testing.T) {
	// The preseed stands in for bytes already consumed from a stream, which
	// carries on from where they end.
	full := []byte("one\ntwo\nthree\n")
	src := onlyReader{bytes.NewReader(full[4:])}
	it := lineiter.New(src, lineiter.Options{
		FirstLineAddr: 0,
		Preseed:       full[:4],
	})

	line, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", string(line.Data))

	line, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, "two", string(line.Data))
}

func TestIter_NonSeekableStream_Next(t *testing.T) {
	src := onlyReader{bytes.NewReader([]byte("one\ntwo\nthree\n"))}
	it := lineiter.New(src, lineiter.Options{})

	assert.False(t, it.Seekable())

	var got []string
	for {
		line, err := it.Next()
		if err == lineiter.ErrNoMoreData {
			break
		}
		require.NoError(t, err)
		got = append(got, string(line.Data))
	}

	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestIter_NonSeekableStream_SeekUnsupported(t *testing.T) {
	src := onlyReader{bytes.NewReader([]byte("one\ntwo\n"))}
	it := lineiter.New(src, lineiter.Options{})

	_, err := it.Seek(4)
	assert.Error(t, err)
}

func TestIter_ChunkBoundarySpanningLine(t *testing.T) {
	// Force a tiny chunk size so a single line spans multiple chunk reads.
	data := bytes.Repeat([]byte("a"), 10)
	data = append(data, '\n')
	data = append(data, []byte("b\n")...)

	src := bytes.NewReader(data)
	it := lineiter.New(src, lineiter.Options{ChunkSize: 4})

	line, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, string(bytes.Repeat([]byte("a"), 10)), string(line.Data))

	line, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", string(line.Data))
}
