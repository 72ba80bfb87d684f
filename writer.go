package hydralog

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/calvinalkan/hydralog/internal/codec"
	"github.com/calvinalkan/hydralog/internal/filelock"
)

// WriterSpec describes a fresh file's shape: its format, declared fields
// (tick field excluded — it's implied by Format), starting epoch, and tick
// scale.
type WriterSpec struct {
	Format Format
	Fields []codec.FieldSpec

	// Metadata carries extra `#%` key/value pairs beyond start_epoch and
	// the scale key; both of those are managed by the Writer itself.
	Metadata map[string]string

	// StartEpoch is the wall-clock instant (seconds since Unix epoch) the
	// tick counter is relative to. Zero selects the current time.
	StartEpoch float64

	// Scale is ticks per second. Zero selects 1 (one tick per second).
	Scale float64

	// IndexSpacing, if > 0, is the approximate number of bytes between
	// `#\tt=<ticks>` anchor comments the Writer emits. Zero disables them.
	IndexSpacing int64

	// PersistIndexSidecar, if true, writes one index entry per anchor
	// comment this Writer emitted to `<path>.idx` on Close (spec.md §12's
	// durable auto-index sidecar). The entries are not compacted.
	PersistIndexSidecar bool
}

// Writer emits a tsv0 or tsv1 log file: deterministic monotonic-derived
// timestamps, level aliasing, default suppression, and optional periodic
// index comments. A Writer is not safe for concurrent use.
type Writer struct {
	file *os.File
	lock *filelock.Lock
	path string

	header fileHeader

	recordFieldSpecs []codec.FieldSpec

	// anchor/anchorWallEpoch are this process's monotonic reference point
	// and the wall-clock instant it corresponds to (spec.md §4.F's M0/S0):
	// currentTicks derives every record's tick value from time.Since(anchor)
	// rather than re-sampling the wall clock, so a system clock step never
	// moves ticks backward.
	anchor          time.Time
	anchorWallEpoch float64

	prevTicks  int64
	hasWritten bool

	indexSpacing   int64
	bytesWritten   int64
	nextAnchorAt   int64
	persistSidecar bool
	index          []indexEntry
}

// Create makes a new file at path and writes its header. It fails with
// [ErrFileExists] if path already exists, and with [ErrAlreadyWriting] if
// another writer holds the file's lock (only possible in a narrow race
// immediately after creation).
func Create(path string, spec WriterSpec) (*Writer, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("hydralog: stat %s: %w", path, err)
	}

	now := time.Now()

	startEpoch := spec.StartEpoch
	if startEpoch == 0 {
		startEpoch = float64(now.Unix()) + float64(now.Nanosecond())/1e9
	}

	scale := spec.Scale
	if scale == 0 {
		scale = 1
	}

	// renderEpoch writes an integer start_epoch when scale is 1; ticks must
	// count from that same instant.
	if scale == 1 {
		startEpoch = math.Trunc(startEpoch)
	}

	fields := append([]codec.FieldSpec{tickFieldSpec(spec.Format, scale)}, spec.Fields...)

	metadata := map[string]string{}

	for k, v := range spec.Metadata {
		metadata[k] = v
	}

	metadata["start_epoch"] = renderEpoch(startEpoch, scale)

	if scale != 1 && spec.Format == FormatTSV0 {
		metadata["timestamp_scale"] = strconv.FormatFloat(scale, 'g', -1, 64)
	}

	hdr := fileHeader{
		format:     spec.Format,
		metadata:   metadata,
		startEpoch: startEpoch,
		scale:      scale,
		fields:     fields,
	}

	lock, err := filelock.Acquire(path)
	if err != nil {
		return nil, translateLockErr(err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		_ = lock.Close()

		return nil, fmt.Errorf("hydralog: open %s: %w", path, err)
	}

	if _, err := file.WriteString(renderHeader(hdr)); err != nil {
		_ = file.Close()
		_ = lock.Close()

		return nil, fmt.Errorf("hydralog: write header: %w", err)
	}

	w := newWriter(file, lock, path, hdr, now, startEpoch, spec.IndexSpacing, spec.PersistIndexSidecar)

	return w, nil
}

// CreateFromTemplate makes a new file at path inheriting its field vector,
// defaults, scale, and metadata from template — the rotation path: the new
// file continues the same logical stream under a new name.
func CreateFromTemplate(path string, template *Reader, spec WriterSpec) (*Writer, error) {
	if template.header.format != spec.Format {
		return nil, ErrTemplateFormatMismatch
	}

	inherited := spec
	inherited.Fields = template.recordFieldSpecs
	inherited.Metadata = template.header.metadata
	inherited.StartEpoch = template.header.startEpoch
	inherited.Scale = template.header.scale

	return Create(path, inherited)
}

// Append opens an existing file for appending: it reads the header (and
// the current last tick, via [Reader.SeekLast]) to continue the counter
// monotonically, then re-acquires the write lock without re-emitting the
// header.
func Append(path string, opts WriterSpec) (*Writer, error) {
	reader, err := OpenFile(path, ReaderOptions{})
	if err != nil {
		return nil, err
	}

	var (
		prevTicks int64
		hadRecord bool
	)

	if last, err := reader.SeekLast(); err == nil {
		prevTicks = last.ticks
		hadRecord = true
	} else if !errors.Is(err, ErrNoRecord) {
		_ = reader.Close()

		return nil, err
	}

	hdr := reader.header
	_ = reader.Close()

	lock, err := filelock.Acquire(path)
	if err != nil {
		return nil, translateLockErr(err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = lock.Close()

		return nil, fmt.Errorf("hydralog: open %s: %w", path, err)
	}

	now := time.Now()

	w := newWriter(file, lock, path, hdr, now, hdr.startEpoch, opts.IndexSpacing, opts.PersistIndexSidecar)
	w.prevTicks = prevTicks
	w.hasWritten = hadRecord

	return w, nil
}

func newWriter(file *os.File, lock *filelock.Lock, path string, hdr fileHeader, now time.Time, startEpoch float64, indexSpacing int64, persistSidecar bool) *Writer {
	wallEpoch := float64(now.Unix()) + float64(now.Nanosecond())/1e9

	w := &Writer{
		file:             file,
		lock:             lock,
		path:             path,
		header:           hdr,
		recordFieldSpecs: hdr.recordFields(),
		anchor:           now,
		anchorWallEpoch:  wallEpoch,
		indexSpacing:     indexSpacing,
		persistSidecar:   persistSidecar,
	}

	if indexSpacing > 0 {
		w.nextAnchorAt = indexSpacing
	}

	return w
}

func translateLockErr(err error) error {
	if errors.Is(err, filelock.ErrAlreadyLocked) {
		return ErrAlreadyWriting
	}

	return err
}

// currentTicks derives the tick counter from elapsed monotonic time, per
// spec.md §4.F: T = floor((now_monotonic - start_monotonic) * scale).
func (w *Writer) currentTicks() int64 {
	elapsed := time.Since(w.anchor).Seconds()
	seconds := w.anchorWallEpoch - w.header.startEpoch + elapsed

	return int64(math.Floor(seconds * w.header.scale))
}

// FieldValues supplies the non-reserved field values for [Writer.WriteRecord].
type FieldValues map[string]string

// WriteRecord emits one record with the given field values (by declared
// name; omitted fields are written as their default or empty). The tick
// field is computed automatically and must not be supplied.
func (w *Writer) WriteRecord(fields FieldValues) error {
	ticks := w.currentTicks()
	delta := ticks - w.prevTicks

	var (
		tickField string
		err       error
	)

	switch {
	case delta < 0:
		tickField, err = w.encodeAbsolute(ticks)
	case delta == 0 && w.hasWritten && w.ambiguousContinuation():
		// A bare empty dT would render as "\t<value>", indistinguishable
		// from a continuation line extending this file's sole record
		// field (see reader.go's absorbContinuations). Encode the
		// repeated tick explicitly instead; it's a no-op for the
		// counter (value == w.prevTicks) but keeps the primary line
		// from starting with TAB at all.
		tickField, err = w.encodeAbsolute(ticks)
	case delta == 0 && w.hasWritten:
		tickField = ""
	default:
		tickField, err = w.encodeDelta(delta)
	}

	if err != nil {
		return err
	}

	w.prevTicks = ticks
	w.hasWritten = true

	lineFields := make([]string, len(w.recordFieldSpecs))
	continuations := make([][]string, len(w.recordFieldSpecs))

	for i, spec := range w.recordFieldSpecs {
		raw := fields[spec.Name]

		if spec.Name == fieldLevel {
			raw = codec.WriterAlias(raw)
		}

		primary, cont := splitMultiline(raw, w.header.format.supportsContinuation())

		primary = codec.SanitizeForWrite(primary)

		for j := range cont {
			cont[j] = codec.SanitizeForWrite(cont[j])
		}

		lineFields[i] = codec.SuppressDefault(spec, primary)
		continuations[i] = cont
	}

	var b strings.Builder

	b.WriteString(tickField)

	for _, f := range lineFields {
		b.WriteByte('\t')
		b.WriteString(f)
	}

	b.WriteByte('\n')

	for i, lines := range continuations {
		column := i + 1 // field 0 is the tick field; record fields start at 1

		for _, line := range lines {
			b.WriteString(codec.EncodeContinuationLine(column, line))
			b.WriteByte('\n')
		}
	}

	return w.writeBuffered(b.String())
}

// encodeDelta renders a positive differential tick value in the format's
// counter encoding.
func (w *Writer) encodeDelta(delta int64) (string, error) {
	if w.header.format == FormatTSV0 {
		return codec.EncodeTicksTSV0(delta)
	}

	return codec.EncodeTicksTSV1(delta)
}

// encodeAbsolute renders an absolute counter reset. tsv0 has no absolute
// form; a backward clock step there is folded into a zero delta instead,
// since tsv0's monotonic counter can't legally decrease on the wire.
func (w *Writer) encodeAbsolute(value int64) (string, error) {
	if w.header.format == FormatTSV0 {
		return codec.EncodeTicksTSV0(0)
	}

	return codec.EncodeAbsoluteTicksTSV1(value)
}

// ambiguousContinuation reports whether an empty-dT continuation record
// would be indistinguishable from a continuation line on this file's field
// layout: tsv1 with exactly one declared record field, where there's no
// second field left to carry the disambiguating interior TAB.
func (w *Writer) ambiguousContinuation() bool {
	return w.header.format == FormatTSV1 && len(w.recordFieldSpecs) < 2
}

// splitMultiline separates raw on '\n' boundaries. If the format doesn't
// support continuation lines, any embedded newline is sanitized away by
// the caller instead (continuation stays nil).
func splitMultiline(raw string, supportsContinuation bool) (primary string, continuation []string) {
	if !strings.Contains(raw, "\n") {
		return raw, nil
	}

	if !supportsContinuation {
		return raw, nil
	}

	lines := strings.Split(raw, "\n")

	return lines[0], lines[1:]
}

// writeBuffered writes the fully-encoded record bytes in a single Write
// call, so a failed write can never leave a partial record on disk, then
// maintains the byte-offset bookkeeping for periodic anchor comments.
func (w *Writer) writeBuffered(encoded string) error {
	offset := w.bytesWritten

	n, err := w.file.WriteString(encoded)
	if err != nil {
		return fmt.Errorf("hydralog: write record: %w", err)
	}

	w.bytesWritten += int64(n)

	if w.indexSpacing <= 0 {
		return nil
	}

	if w.bytesWritten < w.nextAnchorAt {
		return nil
	}

	w.index = append(w.index, indexEntry{ticks: w.prevTicks, addr: offset})

	anchor := fmt.Sprintf("#\tt=%x\n", w.prevTicks)

	n, err = w.file.WriteString(anchor)
	if err != nil {
		return fmt.Errorf("hydralog: write anchor: %w", err)
	}

	w.bytesWritten += int64(n)
	w.nextAnchorAt = w.bytesWritten + w.indexSpacing

	return nil
}

// Trace, Debug, Info, Warn, Error, Crit, Alert, Emerg are logging helpers:
// positional arguments are joined with a space to form the message; if the
// final argument is a [FieldValues], it supplies additional field values
// (e.g. facility, identity) instead of being treated as message text.
func (w *Writer) Trace(args ...any) error { return w.log(codec.LevelTrace, args) }
func (w *Writer) Debug(args ...any) error { return w.log(codec.LevelDebug, args) }
func (w *Writer) Info(args ...any) error  { return w.log(codec.LevelInfo, args) }
func (w *Writer) Warn(args ...any) error  { return w.log(codec.LevelWarning, args) }
func (w *Writer) Error(args ...any) error { return w.log(codec.LevelError, args) }
func (w *Writer) Crit(args ...any) error  { return w.log(codec.LevelCritical, args) }
func (w *Writer) Alert(args ...any) error { return w.log(codec.LevelAlert, args) }
func (w *Writer) Emerg(args ...any) error { return w.log(codec.LevelEmergency, args) }

func (w *Writer) log(level string, args []any) error {
	parts := args

	extra := FieldValues(nil)

	if n := len(args); n > 0 {
		if m, ok := args[n-1].(FieldValues); ok {
			extra = m
			parts = args[:n-1]
		}
	}

	words := make([]string, len(parts))
	for i, p := range parts {
		words[i] = fmt.Sprint(p)
	}

	fields := FieldValues{fieldLevel: level, fieldMessage: strings.Join(words, " ")}

	for k, v := range extra {
		fields[k] = v
	}

	return w.WriteRecord(fields)
}

// Close releases the writer's lock and file handle, persisting the index
// sidecar first if configured.
func (w *Writer) Close() error {
	if w.persistSidecar && len(w.index) > 0 {
		if err := writeIndexSidecar(w.path, w.index); err != nil {
			_ = w.file.Close()
			_ = w.lock.Close()

			return err
		}
	}

	closeErr := w.file.Close()
	lockErr := w.lock.Close()

	if closeErr != nil {
		return fmt.Errorf("hydralog: close: %w", closeErr)
	}

	if lockErr != nil {
		return fmt.Errorf("hydralog: close: %w", lockErr)
	}

	return nil
}

func tickFieldSpec(format Format, scale float64) codec.FieldSpec {
	spec := codec.FieldSpec{Name: format.tickFieldName()}

	if format == FormatTSV1 && scale != 1 {
		spec.Encoding = "*" + strconv.FormatFloat(scale, 'g', -1, 64)
	}

	return spec
}

func renderEpoch(epoch float64, scale float64) string {
	if scale == 1 {
		return strconv.FormatInt(int64(epoch), 10)
	}

	return strconv.FormatFloat(epoch, 'f', -1, 64)
}
