package hydralog

import "errors"

// Header errors: fatal at open, before any record has been decoded.
var (
	// ErrMissingMagic is returned when the first line isn't a
	// `#!hydralog-dump --in-format=...` (or legacy `--format=...`) line.
	ErrMissingMagic = errors.New("hydralog: missing magic line")

	// ErrUnknownFormat is returned when the magic line names a format other
	// than tsv0 or tsv1.
	ErrUnknownFormat = errors.New("hydralog: unknown format")

	// ErrMissingStartEpoch is returned when no `#%` metadata line supplies
	// start_epoch.
	ErrMissingStartEpoch = errors.New("hydralog: missing start_epoch")

	// ErrMissingFieldHeader is returned when no `#:` line declares the
	// field vector.
	ErrMissingFieldHeader = errors.New("hydralog: missing field declaration line")

	// ErrDuplicateField is returned when the `#:` line declares the same
	// field name twice.
	ErrDuplicateField = errors.New("hydralog: duplicate field name")

	// ErrFirstFieldMismatch is returned when the first declared field
	// isn't the format's required tick field (dT for tsv1,
	// timestamp_step_hex for tsv0).
	ErrFirstFieldMismatch = errors.New("hydralog: first field must be the format's tick field")
)

// Decode errors: fatal for the record being decoded; the reader surfaces
// these rather than silently skipping the record.
var (
	// ErrDecreasingCounter is returned when a record's raw-ticks counter
	// would decrease, which the format forbids.
	ErrDecreasingCounter = errors.New("hydralog: ticks counter decreased")

	// ErrContinuationOverflow is returned when a continuation line's
	// column index names a field beyond the declared vector.
	ErrContinuationOverflow = errors.New("hydralog: continuation column exceeds declared fields")

	// ErrMalformedRecord is returned when a record line can't be split
	// into the declared number of fields.
	ErrMalformedRecord = errors.New("hydralog: malformed record line")
)

// Writer errors.
var (
	// ErrAlreadyWriting is returned by create/append when another writer
	// already holds the file's exclusive lock.
	ErrAlreadyWriting = errors.New("hydralog: file is already being written by another process")

	// ErrFileExists is returned by Create when the target path already
	// exists.
	ErrFileExists = errors.New("hydralog: file already exists")

	// ErrTemplateFormatMismatch is returned by CreateFromTemplate when the
	// template reader/writer's format doesn't match the one requested.
	ErrTemplateFormatMismatch = errors.New("hydralog: template format mismatch")
)

// Seek and record-access errors.
var (
	// ErrAtStart is returned by Seek when the target instant is at or
	// before the file's start_epoch; the reader is repositioned to the
	// first record.
	ErrAtStart = errors.New("hydralog: seek target precedes start of file")

	// ErrNoRecord is returned by Peek/Next/SeekLast when there is
	// currently no record to return (clean end of file).
	ErrNoRecord = errors.New("hydralog: no record available")

	// ErrUnknownField is returned by [Record.Field] when asked for a field
	// name the record doesn't carry.
	ErrUnknownField = errors.New("hydralog: unknown field")
)
