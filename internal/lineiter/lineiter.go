// Package lineiter implements StreamLineIter (spec.md §4.C): a bidirectional,
// line-addressed iterator over a byte source that may be a static buffer, a
// seekable handle, or a non-seekable stream.
//
// Lines are cached by byte address in fixed power-of-two chunks, and the
// addresses of lines near the current position are kept in an
// internal/ring.SlidingArray so that repeated forward/backward motion near
// the current line doesn't re-scan bytes that have already been found.
package lineiter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/calvinalkan/hydralog/internal/byteio"
	"github.com/calvinalkan/hydralog/internal/ring"
)

// DefaultChunkSize is the size of chunks read from the source when no
// explicit chunk size is configured.
const DefaultChunkSize = 65536

// lineCacheCapacity bounds how many line-start addresses around the current
// position are kept in the ring cache.
const lineCacheCapacity = 64

var (
	// ErrNoMoreData is returned by Next/Prev when there is currently no
	// further line: permanently on a non-seekable stream that has reached
	// EOF, or transiently on a seekable source whose file may still grow.
	// Callers distinguish the two via [Iter.Seekable].
	ErrNoMoreData = errors.New("lineiter: no more data")

	// ErrRetry is returned for a transient I/O condition (interrupted,
	// would-block). State is not advanced; the caller should retry the same
	// call.
	ErrRetry = errors.New("lineiter: retry")

	// ErrBeforeStart is returned by Seek when addr precedes FirstLineAddr.
	ErrBeforeStart = errors.New("lineiter: address precedes start of records")
)

// Line is a single physical line returned by Next/Prev/Seek: the half-open
// byte range [Addr, next '\n'), with the terminating newline and any
// trailing '\r' stripped.
type Line struct {
	Addr int64
	Data []byte
}

// Options configures an Iter.
type Options struct {
	// ChunkSize is the aligned read granularity. Defaults to DefaultChunkSize.
	ChunkSize int64

	// FirstLineAddr is the byte offset where records begin: the caller's
	// pre-read header ends here. Defaults to the source's current seek
	// position for seekable sources, or 0 for streams.
	FirstLineAddr int64

	// Preseed, if non-nil, is treated as an already-read initial chunk
	// starting at FirstLineAddr — e.g. the bytes a caller consumed while
	// parsing a header and wants to hand back rather than re-read.
	Preseed []byte
}

type chunk struct {
	data []byte
	full bool // true once data reaches ChunkSize and can't grow further
}

// Iter is a bidirectional line iterator. The zero value is not usable;
// construct with [New].
type Iter struct {
	src       byteio.Source
	seekable  byteio.Seekable
	isSeekable bool

	chunkSize     int64
	firstLineAddr int64

	chunks map[int64]*chunk

	// highwater is one past the last byte address known to exist in the
	// source (the read frontier).
	highwater int64
	// streamDone is set once a non-seekable source has returned io.EOF;
	// after that, no further bytes can ever appear.
	streamDone bool

	// cache holds line-start addresses relative to the current line
	// (index 0 == start of the line last returned by Next/Prev).
	cache   *ring.SlidingArray
	started bool
	curAddr int64

	// pendingStart, when hasPending is set, overrides the normal
	// current-position-derived logic on the next Next() call: it is the
	// address Seek determined the sought line begins at.
	pendingStart int64
	hasPending   bool
}

// New creates an Iter over src. If src also implements io.Seeker it is used
// for random-access chunk loads and Seek; otherwise the source is treated as
// a forward-only, non-seekable stream.
func New(src byteio.Source, opts Options) *Iter {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	it := &Iter{
		src:           src,
		chunkSize:     chunkSize,
		firstLineAddr: opts.FirstLineAddr,
		chunks:        make(map[int64]*chunk),
		cache:         ring.New(lineCacheCapacity),
	}

	if seekable, ok := byteio.IsSeekable(src); ok {
		it.seekable = seekable
		it.isSeekable = true

		if opts.FirstLineAddr == 0 {
			if pos, err := seekable.Seek(0, io.SeekCurrent); err == nil {
				it.firstLineAddr = pos
			}
		}
	}

	it.highwater = it.firstLineAddr

	if len(opts.Preseed) > 0 {
		it.storeChunkBytes(it.firstLineAddr, opts.Preseed, len(opts.Preseed) == int(chunkSize))
		it.highwater = it.firstLineAddr + int64(len(opts.Preseed))
	}

	return it
}

// FirstLineAddr returns the byte offset where records begin.
func (it *Iter) FirstLineAddr() int64 {
	return it.firstLineAddr
}

// Seekable reports whether the underlying source supports random access.
func (it *Iter) Seekable() bool {
	return it.isSeekable
}

func (it *Iter) chunkStart(addr int64) int64 {
	return addr - (addr % it.chunkSize)
}

func (it *Iter) storeChunkBytes(start int64, data []byte, full bool) {
	existing, ok := it.chunks[start]
	if !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		it.chunks[start] = &chunk{data: cp, full: full}

		return
	}

	if len(data) > len(existing.data) {
		existing.data = append(existing.data[:0], data...)
	}

	existing.full = existing.full || full
}

// ensure loads whatever chunk covers addr, growing or creating it as needed,
// and reports whether addr is currently within the known (readable) range.
// retry indicates a transient error the caller should simply retry.
func (it *Iter) ensure(addr int64) (ok bool, retry bool, err error) {
	if addr < it.firstLineAddr {
		return false, false, nil
	}

	for addr >= it.highwater {
		if it.streamDone {
			return false, false, nil
		}

		grew, retryNow, loadErr := it.loadNext()
		if loadErr != nil {
			return false, retryNow, loadErr
		}

		if !grew {
			return false, false, nil
		}
	}

	return true, false, nil
}

// loadNext reads the next unread chunk (the one starting at it.highwater,
// rounded down to chunk alignment) and extends it.highwater. It returns
// grew=false when the source reports it has no more bytes right now.
func (it *Iter) loadNext() (grew bool, retry bool, err error) {
	start := it.chunkStart(it.highwater)

	existing := it.chunks[start]
	offsetInChunk := int64(0)

	if existing != nil {
		offsetInChunk = int64(len(existing.data))
		if existing.full {
			// Chunk complete but highwater lags (shouldn't normally
			// happen); advance highwater to the next chunk boundary.
			it.highwater = start + it.chunkSize

			return true, false, nil
		}
	}

	if it.isSeekable {
		if _, serr := it.seekable.Seek(start+offsetInChunk, io.SeekStart); serr != nil {
			return false, false, fmt.Errorf("lineiter: seek: %w", serr)
		}
	}

	want := it.chunkSize - offsetInChunk
	buf := make([]byte, want)

	n, rerr := it.src.Read(buf)
	if n > 0 {
		full := int64(n)+offsetInChunk == it.chunkSize
		combined := buf[:n]

		if existing != nil {
			existing.data = append(existing.data, combined...)
			existing.full = int64(len(existing.data)) == it.chunkSize
		} else {
			it.storeChunkBytes(start, combined, full)
		}

		it.highwater = start + offsetInChunk + int64(n)

		return true, false, nil
	}

	if rerr == nil {
		return false, false, nil
	}

	if isTransient(rerr) {
		return false, true, ErrRetry
	}

	if errors.Is(rerr, io.EOF) {
		if !it.isSeekable {
			it.streamDone = true
		}

		return false, false, nil
	}

	return false, false, fmt.Errorf("lineiter: read: %w", rerr)
}

func isTransient(err error) bool {
	return errors.Is(err, errRetrySentinel) || errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}

// errRetrySentinel marks a read error as transient for isTransient. It is
// unexported, so only code in this package can wrap it; readers elsewhere
// signal a transient condition through a wrapped EINTR or EAGAIN.
var errRetrySentinel = errors.New("lineiter: transient read error")

// byteAt returns the byte at addr, which must already be covered by ensure.
func (it *Iter) byteAt(addr int64) byte {
	start := it.chunkStart(addr)
	c := it.chunks[start]

	return c.data[addr-start]
}

// findNewlineForward scans for the address of the next '\n' at or after
// from. It returns found=false (with no error) if the search runs off the
// known end without finding one.
func (it *Iter) findNewlineForward(from int64) (addr int64, found bool, retry bool, err error) {
	pos := from

	for {
		ok, retryNow, ferr := it.ensure(pos)
		if ferr != nil {
			return 0, false, retryNow, ferr
		}

		if !ok {
			return 0, false, false, nil
		}

		start := it.chunkStart(pos)
		c := it.chunks[start]
		offset := int(pos - start)

		if idx := bytes.IndexByte(c.data[offset:], '\n'); idx >= 0 {
			return pos + int64(idx), true, false, nil
		}

		pos = start + int64(len(c.data))
	}
}

// findNewlineBackward scans backward for the address of the '\n' preceding
// from (exclusive of from itself), stopping no earlier than firstLineAddr-1.
// It returns found=false if no '\n' exists between firstLineAddr and from.
func (it *Iter) findNewlineBackward(from int64) (addr int64, found bool, err error) {
	if !it.isSeekable {
		return 0, false, errors.New("lineiter: backward scan requires a seekable source")
	}

	pos := from - 1

	for pos >= it.firstLineAddr {
		start := it.chunkStart(pos)

		if _, ok := it.chunks[start]; !ok {
			if err := it.loadChunkForBackwardScan(start); err != nil {
				return 0, false, err
			}
		}

		c := it.chunks[start]
		limit := int(pos - start)
		if limit >= len(c.data) {
			limit = len(c.data) - 1
		}

		if idx := bytes.LastIndexByte(c.data[:limit+1], '\n'); idx >= 0 {
			return start + int64(idx), true, nil
		}

		pos = start - 1
	}

	return 0, false, nil
}

func (it *Iter) loadChunkForBackwardScan(start int64) error {
	if start < 0 {
		return errors.New("lineiter: negative chunk address")
	}

	if _, err := it.seekable.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("lineiter: seek: %w", err)
	}

	size := it.chunkSize
	if start+size > it.highwater {
		size = it.highwater - start
	}

	if size <= 0 {
		return nil
	}

	buf := make([]byte, size)

	n, err := io.ReadFull(it.seekable, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("lineiter: read: %w", err)
	}

	it.storeChunkBytes(start, buf[:n], int64(n) == it.chunkSize)

	return nil
}

func stripCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}

	return b
}

func (it *Iter) readLineAt(start int64) (Line, bool, bool, error) {
	end, found, retry, err := it.findNewlineForward(start)
	if err != nil {
		return Line{}, false, retry, err
	}

	if !found {
		return Line{}, false, false, nil
	}

	data := make([]byte, 0, end-start)

	pos := start
	for pos < end {
		cstart := it.chunkStart(pos)
		c := it.chunks[cstart]
		offset := int(pos - cstart)
		avail := len(c.data) - offset

		take := int(end - pos)
		if take > avail {
			take = avail
		}

		data = append(data, c.data[offset:offset+take]...)
		pos += int64(take)
	}

	return Line{Addr: start, Data: stripCR(data)}, true, false, nil
}

// Next returns the next line after the current position, advancing the
// cursor. Returns ErrNoMoreData if there is currently none.
func (it *Iter) Next() (Line, error) {
	var nextStart int64

	slideCache := it.started

	switch {
	case it.hasPending:
		nextStart = it.pendingStart
		slideCache = false
	case !it.started:
		nextStart = it.firstLineAddr
	default:
		if cached, ok := it.cache.Get(1); ok {
			nextStart = cached
		} else {
			end, found, retry, err := it.findNewlineForward(it.curAddr)
			if err != nil {
				if retry {
					return Line{}, ErrRetry
				}

				return Line{}, err
			}

			if !found {
				return Line{}, ErrNoMoreData
			}

			nextStart = end + 1
		}
	}

	line, found, retry, err := it.readLineAt(nextStart)
	if err != nil {
		if retry {
			return Line{}, ErrRetry
		}

		return Line{}, err
	}

	if !found {
		return Line{}, ErrNoMoreData
	}

	if slideCache {
		it.cache.Slide(1)
	}

	it.hasPending = false
	it.cache.Put(0, nextStart)
	it.curAddr = nextStart
	it.started = true

	return line, nil
}

// Prev returns the line before the current position, moving the cursor
// backward. Returns ErrNoMoreData if already at the first line (or if Next
// has never been called).
func (it *Iter) Prev() (Line, error) {
	if !it.started {
		return Line{}, ErrNoMoreData
	}

	var prevStart int64

	if cached, ok := it.cache.Get(-1); ok {
		prevStart = cached
	} else {
		if it.curAddr <= it.firstLineAddr {
			return Line{}, ErrNoMoreData
		}

		addr, found, err := it.findNewlineBackward(it.curAddr)
		if err != nil {
			return Line{}, err
		}

		if !found {
			prevStart = it.firstLineAddr
		} else {
			prevStart = addr + 1
		}
	}

	line, found, retry, err := it.readLineAt(prevStart)
	if err != nil {
		if retry {
			return Line{}, ErrRetry
		}

		return Line{}, err
	}

	if !found {
		return Line{}, ErrNoMoreData
	}

	it.cache.Slide(-1)
	it.cache.Put(0, prevStart)
	it.curAddr = prevStart

	return line, nil
}

// Seek positions the iterator so the next Next() call returns the line
// containing addr. It returns ErrBeforeStart if addr precedes
// FirstLineAddr, or (false, nil) if addr is beyond the currently known end
// of the source.
func (it *Iter) Seek(addr int64) (bool, error) {
	if addr < it.firstLineAddr {
		return false, ErrBeforeStart
	}

	if !it.isSeekable {
		return false, errors.New("lineiter: seek requires a seekable source")
	}

	ok, retry, err := it.ensure(addr)
	if err != nil {
		if retry {
			return false, ErrRetry
		}

		return false, err
	}

	if !ok {
		return false, nil
	}

	var lineStart int64

	if addr == it.firstLineAddr {
		lineStart = it.firstLineAddr
	} else {
		back, found, berr := it.findNewlineBackward(addr)
		if berr != nil {
			return false, berr
		}

		if !found {
			lineStart = it.firstLineAddr
		} else {
			lineStart = back + 1
		}
	}

	// Clear the cache: a seek invalidates any relative addressing built up
	// around the old position. The next Next() call must return the line
	// AT lineStart, so park it as a pending start rather than marking it
	// current directly.
	it.cache = ring.New(lineCacheCapacity)
	it.started = false
	it.pendingStart = lineStart
	it.hasPending = true

	return true, nil
}
