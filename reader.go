package hydralog

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/calvinalkan/hydralog/internal/codec"
	"github.com/calvinalkan/hydralog/internal/lineiter"
	"github.com/calvinalkan/hydralog/internal/lru"
)

// DefaultAutoIndexPeriod and DefaultAutoIndexSize are the reader's default
// index-growth parameters (spec.md §4.E): an index entry is recorded every
// AutoIndexPeriod records until the index holds AutoIndexSize entries, at
// which point it's halved and the period doubled.
const (
	DefaultAutoIndexPeriod = 256
	DefaultAutoIndexSize   = 256
)

// ReaderOptions configures [Open].
type ReaderOptions struct {
	// AutoIndexPeriod is how many records elapse between index entries.
	// A negative value disables auto-indexing entirely. Zero (the default
	// value) selects [DefaultAutoIndexPeriod].
	AutoIndexPeriod int

	// AutoIndexSize is the entry count at which the index is compacted.
	// Zero selects [DefaultAutoIndexSize].
	AutoIndexSize int

	// ChunkSize overrides the line iterator's read granularity. Zero
	// selects [lineiter.DefaultChunkSize].
	ChunkSize int64

	// ParseCacheSize, if > 0, bounds an optional cache of already-decoded
	// records keyed by tick value (spec.md §4.B: RecentSet used "where
	// bounded LRU is needed"). Zero (the default) disables it — the cache
	// only pays off for callers that re-visit ticks they've already
	// decoded, e.g. a REPL seeking back and forth.
	ParseCacheSize int
}

type indexEntry struct {
	ticks int64
	addr  int64
}

// Reader decodes a tsv0 or tsv1 log file into a sequence of [Record]s, in
// ascending tick order, with a self-building sparse index that accelerates
// [Reader.Seek].
type Reader struct {
	header fileHeader
	iter   *lineiter.Iter
	closer io.Closer

	recordFieldNames []string
	recordFieldSpecs []codec.FieldSpec

	ticks int64

	pending   *lineiter.Line
	lookahead Record
	lookErr   error
	haveLook  bool

	index           []indexEntry
	autoindexPeriod int
	autoindexSize   int
	autoindexCount  int

	cacheLimit  int
	cacheValues map[int64]Record
	cacheOrder  *lru.RecentSet[int64]
}

// Open attaches a Reader to src, which must start at the beginning of a
// tsv0 or tsv1 file (its magic line). src may be a static buffer, a
// seekable handle, or a non-seekable stream.
func Open(src io.Reader, opts ReaderOptions) (*Reader, error) {
	hdr, firstAddr, preseed, err := readHeader(src)
	if err != nil {
		return nil, err
	}

	iter := lineiter.New(src, lineiter.Options{
		ChunkSize:     opts.ChunkSize,
		FirstLineAddr: firstAddr,
		Preseed:       preseed,
	})

	period := opts.AutoIndexPeriod
	if period == 0 {
		period = DefaultAutoIndexPeriod
	}

	size := opts.AutoIndexSize
	if size <= 0 {
		size = DefaultAutoIndexSize
	}

	recordSpecs := hdr.recordFields()
	names := make([]string, len(recordSpecs))

	for i, s := range recordSpecs {
		names[i] = s.Name
	}

	r := &Reader{
		header:           hdr,
		iter:             iter,
		recordFieldNames: names,
		recordFieldSpecs: recordSpecs,
		index:            []indexEntry{{ticks: 0, addr: firstAddr}},
		autoindexPeriod:  period,
		autoindexSize:    size,
		autoindexCount:   period,
	}

	if c, ok := src.(io.Closer); ok {
		r.closer = c
	}

	if opts.ParseCacheSize > 0 {
		r.cacheLimit = opts.ParseCacheSize
		r.cacheValues = make(map[int64]Record)
		r.cacheOrder = lru.New[int64]()
	}

	return r, nil
}

// OpenFile opens path and attaches a Reader to it. If a durable index
// sidecar (spec.md §12) is present and at least as fresh as the log file,
// it replaces the reader's default single-entry index so [Reader.Seek] and
// [Reader.SeekLast] start from it instead of building one from scratch.
func OpenFile(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hydralog: open %s: %w", path, err)
	}

	r, err := Open(f, opts)
	if err != nil {
		_ = f.Close()

		return nil, err
	}

	if entries, ok := readIndexSidecar(path); ok {
		r.index = entries
	}

	return r, nil
}

// Format reports the file's on-disk format.
func (r *Reader) Format() Format {
	return r.header.format
}

// Fields reports the declared record field names in header order, excluding
// the leading tick field — the same vector [Record.Fields] returns for any
// record this Reader decodes.
func (r *Reader) Fields() []string {
	return r.recordFieldNames
}

// Close releases the underlying file handle, if Open was given one that
// implements io.Closer.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}

	return r.closer.Close()
}

// Peek returns the next record without consuming it. Calling Peek again
// without an intervening Next returns the same record.
func (r *Reader) Peek() (Record, error) {
	r.fill()

	return r.lookahead, r.lookErr
}

// Next returns the next record and advances past it.
func (r *Reader) Next() (Record, error) {
	r.fill()

	rec, err := r.lookahead, r.lookErr
	r.haveLook = false

	return rec, err
}

func (r *Reader) fill() {
	if r.haveLook {
		return
	}

	r.lookahead, r.lookErr = r.decodeOne()
	r.haveLook = true
}

// nextRawLine returns the next physical line, preferring one pushed back
// by absorbContinuations over reading fresh from the iterator.
func (r *Reader) nextRawLine() (lineiter.Line, error) {
	if r.pending != nil {
		l := *r.pending
		r.pending = nil

		return l, nil
	}

	return r.iter.Next()
}

func (r *Reader) pushBack(l lineiter.Line) {
	r.pending = &l
}

// decodeOne reads and decodes exactly one record from the current
// position, skipping blank and comment lines, maintaining the ticks
// counter and auto-index as it goes.
func (r *Reader) decodeOne() (Record, error) {
	var primary lineiter.Line

	for {
		line, err := r.nextRawLine()
		if err != nil {
			if errors.Is(err, lineiter.ErrNoMoreData) {
				return Record{}, ErrNoRecord
			}

			return Record{}, fmt.Errorf("hydralog: %w", err)
		}

		if len(line.Data) == 0 {
			continue
		}

		if line.Data[0] == '#' {
			if ticks, ok := parseAnchorComment(line.Data); ok {
				r.ticks = ticks
			}

			continue
		}

		primary = line

		break
	}

	parts := strings.Split(string(primary.Data), "\t")
	if len(parts) != len(r.header.fields) {
		return Record{}, fmt.Errorf("%w: got %d fields, want %d", ErrMalformedRecord, len(parts), len(r.header.fields))
	}

	decoded, err := r.decodeTicks(parts[0])
	if err != nil {
		return Record{}, err
	}

	prevTicks := r.ticks

	switch {
	case decoded.Continuation:
		// dT empty: same instant as the previous record, no counter update.
	case decoded.Absolute:
		if decoded.Value < r.ticks {
			return Record{}, fmt.Errorf("%w: absolute %d < %d", ErrDecreasingCounter, decoded.Value, r.ticks)
		}

		r.ticks = decoded.Value
	default:
		r.ticks += decoded.Value
	}

	values := append([]string(nil), parts...)

	if r.header.format.supportsContinuation() {
		if err := r.absorbContinuations(values); err != nil {
			return Record{}, err
		}
	}

	finalValues := make([]string, len(r.recordFieldSpecs))

	for i, spec := range r.recordFieldSpecs {
		v := codec.ApplyDefault(spec, values[i+1])

		if spec.Name == fieldLevel {
			if canon, ok := codec.CanonicalizeLevel(v); ok {
				v = canon
			}
		}

		if err := codec.ValidateNoControlChars(v); err != nil {
			return Record{}, err
		}

		finalValues[i] = v
	}

	timestamp := r.header.startEpoch + float64(r.ticks)/r.header.scale

	rec := newRecord(timestamp, r.ticks, r.recordFieldNames, finalValues)

	r.maybeIndex(prevTicks, primary.Addr, r.ticks > prevTicks)
	r.cachePut(rec)

	return rec, nil
}

// CachedRecord returns a previously decoded record by tick value, if the
// reader's optional parse cache ([ReaderOptions.ParseCacheSize]) is enabled
// and still holds it.
func (r *Reader) CachedRecord(ticks int64) (Record, bool) {
	if r.cacheValues == nil {
		return Record{}, false
	}

	rec, ok := r.cacheValues[ticks]

	return rec, ok
}

func (r *Reader) cachePut(rec Record) {
	if r.cacheLimit <= 0 {
		return
	}

	r.cacheValues[rec.ticks] = rec
	r.cacheOrder.Touch(rec.ticks)

	for _, evicted := range r.cacheOrder.Truncate(r.cacheLimit) {
		delete(r.cacheValues, evicted)
	}
}

func (r *Reader) decodeTicks(field string) (codec.DecodedTicks, error) {
	if r.header.format == FormatTSV0 {
		return codec.DecodeTicksTSV0(field)
	}

	return codec.DecodeTicksTSV1(field)
}

// absorbContinuations consumes as many leading-TAB continuation lines as
// follow the primary record line, appending each to its field's value.
// The first non-continuation line encountered is pushed back.
//
// A continuation RECORD (empty dT, a full tab-separated record sharing the
// previous one's tick) also starts with a TAB, same as a continuation
// LINE extending a multi-line field — both begin with one or more TAB
// bytes. They're told apart by what follows: decoded field content can
// never legally contain a raw TAB (it's a control character and TABs are
// reserved as separators), so genuine continuation text has no further
// TAB in it. A line whose post-prefix text still contains a TAB is
// therefore a full record line, not a continuation of this one, and is
// pushed back whole.
//
// That disambiguation needs a second field to put the tell-tale interior
// TAB in. With exactly one declared record field, a continuation record
// ("\t<value>") and a continuation line extending that sole field
// ("\t<value>") render identically, with no interior TAB either way —
// the two encodings collide. Rather than guess, continuation lines are
// only recognized when there's more than one record field to tell them
// apart; a header with a single record field never attempts to absorb
// one, so an ambiguous line is left for the next decodeOne call to parse
// as what it unambiguously also is: a new record sharing the previous
// tick.
func (r *Reader) absorbContinuations(values []string) error {
	if len(values) < 3 {
		return nil
	}

	for {
		line, err := r.nextRawLine()
		if err != nil {
			if errors.Is(err, lineiter.ErrNoMoreData) {
				return nil
			}

			return fmt.Errorf("hydralog: %w", err)
		}

		col, text, ok := codec.ContinuationColumn(line.Data)
		if !ok || bytesContainTab(text) {
			r.pushBack(line)

			return nil
		}

		if col >= len(values) {
			return fmt.Errorf("%w: column %d", ErrContinuationOverflow, col)
		}

		values[col] = values[col] + "\n" + string(text)
	}
}

func bytesContainTab(b []byte) bool {
	for _, c := range b {
		if c == '\t' {
			return true
		}
	}

	return false
}

// maybeIndex may record an index entry for the record just decoded at addr.
// prevTicks is the tick counter as it stood *before* that record was applied
// — the same state Seek must restore before re-decoding the record at addr,
// since decoding re-applies the record's own delta/absolute/continuation
// field on top of whatever counter value is current when it runs.
func (r *Reader) maybeIndex(prevTicks, addr int64, advanced bool) {
	if r.autoindexPeriod <= 0 {
		return
	}

	r.autoindexCount--

	if r.autoindexCount != 0 {
		return
	}

	if advanced {
		r.index = append(r.index, indexEntry{ticks: prevTicks, addr: addr})

		if len(r.index) >= r.autoindexSize {
			compacted := make([]indexEntry, 0, len(r.index)/2+1)

			for i := 0; i < len(r.index); i += 2 {
				compacted = append(compacted, r.index[i])
			}

			r.index = compacted
			r.autoindexPeriod *= 2
		}
	}

	r.autoindexCount = r.autoindexPeriod
}

// Seek repositions the reader so the next Peek/Next returns the first
// record with timestamp >= epoch, or nothing if that's past the end of
// the file. It returns [ErrAtStart] (not a failure) if epoch is at or
// before the file's start_epoch, in which case the reader is repositioned
// to the very beginning.
func (r *Reader) Seek(epoch float64) error {
	target := int64(math.Ceil((epoch - r.header.startEpoch) * r.header.scale))

	if target <= 0 {
		ok, err := r.iter.Seek(r.index[0].addr)
		if err != nil {
			return fmt.Errorf("hydralog: seek: %w", err)
		}

		if !ok {
			return ErrNoRecord
		}

		r.ticks = 0
		r.pending = nil
		r.haveLook = false
		r.autoindexCount = r.autoindexPeriod

		return ErrAtStart
	}

	if target <= r.ticks {
		i := sort.Search(len(r.index), func(i int) bool { return r.index[i].ticks > target }) - 1
		if i < 0 {
			i = 0
		}

		entry := r.index[i]

		ok, err := r.iter.Seek(entry.addr)
		if err != nil {
			return fmt.Errorf("hydralog: seek: %w", err)
		}

		if !ok {
			return ErrNoRecord
		}

		r.ticks = entry.ticks
		r.pending = nil
		r.haveLook = false
	}

	for {
		rec, err := r.Peek()
		if err != nil || rec.ticks >= target {
			break
		}

		if _, err := r.Next(); err != nil {
			break
		}
	}

	return nil
}

// SeekLast repositions the reader to the final record and returns it, or
// [ErrNoRecord] if the file has no records.
func (r *Reader) SeekLast() (Record, error) {
	entry := r.index[len(r.index)-1]

	ok, err := r.iter.Seek(entry.addr)
	if err != nil {
		return Record{}, fmt.Errorf("hydralog: seek: %w", err)
	}

	if !ok {
		return Record{}, ErrNoRecord
	}

	r.ticks = entry.ticks
	r.pending = nil
	r.haveLook = false

	var (
		last  Record
		found bool
	)

	for {
		rec, err := r.Next()
		if err != nil {
			if errors.Is(err, ErrNoRecord) {
				break
			}

			return Record{}, err
		}

		last = rec
		found = true
	}

	if !found {
		return Record{}, ErrNoRecord
	}

	return last, nil
}

// parseAnchorComment recognizes a `#\tt=<hex>` durable index anchor and
// returns its ticks value.
func parseAnchorComment(line []byte) (int64, bool) {
	const prefix = "#\tt="

	if !strings.HasPrefix(string(line), prefix) {
		return 0, false
	}

	v, err := strconv.ParseInt(string(line[len(prefix):]), 16, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}
