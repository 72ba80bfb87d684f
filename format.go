// Package hydralog reads, writes, and merges append-only, human-readable,
// tab-separated log files in the tsv0 and tsv1 on-disk formats: bytes in,
// records out; records in, bytes out. It does not dial sockets, rotate
// files, or dispatch to syslog — those are external collaborators.
package hydralog

import "fmt"

// Format is one of the two on-disk record encodings a Reader or Writer can
// speak.
type Format int

// Recognized formats.
const (
	FormatTSV1 Format = iota
	FormatTSV0
)

// String renders the format the way it appears after `--in-format=` in the
// file's magic line.
func (f Format) String() string {
	switch f {
	case FormatTSV1:
		return "tsv1"
	case FormatTSV0:
		return "tsv0"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

func parseFormat(s string) (Format, error) {
	return ParseFormat(s)
}

// ParseFormat maps "tsv0" or "tsv1" to the corresponding [Format], the same
// way the magic line's `--in-format=` value is interpreted at Open time.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "tsv1":
		return FormatTSV1, nil
	case "tsv0":
		return FormatTSV0, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// tickFieldName is the required name of the first declared field for each
// format.
func (f Format) tickFieldName() string {
	if f == FormatTSV0 {
		return "timestamp_step_hex"
	}

	return "dT"
}

// supportsContinuation reports whether the format allows multi-line
// records (tsv1 only).
func (f Format) supportsContinuation() bool {
	return f == FormatTSV1
}

// supportsAbsolute reports whether the format's tick field has an absolute
// (`=`-prefixed) reset form (tsv1 only).
func (f Format) supportsAbsolute() bool {
	return f == FormatTSV1
}
