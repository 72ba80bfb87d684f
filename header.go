package hydralog

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/calvinalkan/hydralog/internal/codec"
)

const (
	magicPrefixInFormat = "#!hydralog-dump --in-format="
	magicPrefixLegacy   = "#!hydralog-dump --format="
	metadataPrefix      = "#% "
	fieldsPrefix        = "#: "
)

// fileHeader is the fully parsed contents of the three leading comment
// lines a file (or a write-time template) carries: magic, metadata, and
// field declaration.
type fileHeader struct {
	format     Format
	metadata   map[string]string
	startEpoch float64
	scale      float64

	// fields are every declared field including the tick field at index 0.
	fields []codec.FieldSpec
}

// tickField returns the header's required first field.
func (h fileHeader) tickField() codec.FieldSpec {
	return h.fields[0]
}

// recordFields returns the declared fields minus the tick field, in header
// order — the vector a [Record] exposes.
func (h fileHeader) recordFields() []codec.FieldSpec {
	return h.fields[1:]
}

// readHeader consumes the three leading comment lines from r and returns
// the parsed header plus however many bytes of bufio read-ahead must be
// replayed to the caller: firstLineAddr is the logical byte offset where
// records begin, and preseed (possibly nil) is the bytes already pulled
// off the underlying reader past that point. If r also implements
// io.Seeker, the seek position is rewound to firstLineAddr instead and
// preseed is always nil.
func readHeader(r io.Reader) (hdr fileHeader, firstLineAddr int64, preseed []byte, err error) {
	br := bufio.NewReader(r)

	var consumed int64

	readLine := func() (string, error) {
		line, readErr := br.ReadString('\n')
		consumed += int64(len(line))

		if readErr != nil && readErr != io.EOF {
			return "", readErr
		}

		return strings.TrimRight(line, "\r\n"), nil
	}

	magicLine, err := readLine()
	if err != nil {
		return fileHeader{}, 0, nil, fmt.Errorf("hydralog: read magic line: %w", err)
	}

	format, err := parseMagicLine(magicLine)
	if err != nil {
		return fileHeader{}, 0, nil, err
	}

	metadata := make(map[string]string)

	var fields []codec.FieldSpec

	haveFields := false

	for !haveFields {
		line, lineErr := readLine()
		if lineErr != nil {
			return fileHeader{}, 0, nil, fmt.Errorf("hydralog: read header: %w", lineErr)
		}

		switch {
		case strings.HasPrefix(line, metadataPrefix):
			parseMetadataLine(line, metadata)
		case strings.HasPrefix(line, fieldsPrefix):
			fields, err = parseFieldsLine(line, format)
			if err != nil {
				return fileHeader{}, 0, nil, err
			}

			haveFields = true
		default:
			return fileHeader{}, 0, nil, fmt.Errorf("%w: unexpected header line %q", ErrMissingFieldHeader, line)
		}
	}

	startEpoch, ok := metadata["start_epoch"]
	if !ok {
		return fileHeader{}, 0, nil, ErrMissingStartEpoch
	}

	epoch, err := strconv.ParseFloat(startEpoch, 64)
	if err != nil {
		return fileHeader{}, 0, nil, fmt.Errorf("hydralog: parse start_epoch: %w", err)
	}

	scale := tickScale(metadata, fields[0], format)

	hdr = fileHeader{
		format:     format,
		metadata:   metadata,
		startEpoch: epoch,
		scale:      scale,
		fields:     fields,
	}

	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(-int64(br.Buffered()), io.SeekCurrent); err != nil {
			return fileHeader{}, 0, nil, fmt.Errorf("hydralog: rewind past header: %w", err)
		}

		return hdr, consumed, nil, nil
	}

	if n := br.Buffered(); n > 0 {
		preseed, _ = br.Peek(n)
	}

	return hdr, consumed, preseed, nil
}

// tickScale determines the scale factor N relating raw ticks to seconds:
// metadata (ts_scale/timestamp_scale) takes precedence; tsv1 falls back to
// the tick field's own `*N` encoding attribute; the default is 1.
func tickScale(metadata map[string]string, tick codec.FieldSpec, format Format) float64 {
	for _, key := range []string{"ts_scale", "timestamp_scale"} {
		if raw, ok := metadata[key]; ok {
			if n, err := strconv.ParseFloat(raw, 64); err == nil && n != 0 {
				return n
			}
		}
	}

	if format == FormatTSV1 && strings.HasPrefix(tick.Encoding, "*") {
		if n, err := strconv.ParseFloat(tick.Encoding[1:], 64); err == nil && n != 0 {
			return n
		}
	}

	return 1
}

func parseMagicLine(line string) (Format, error) {
	var formatName string

	switch {
	case strings.HasPrefix(line, magicPrefixInFormat):
		formatName = line[len(magicPrefixInFormat):]
	case strings.HasPrefix(line, magicPrefixLegacy):
		formatName = line[len(magicPrefixLegacy):]
	default:
		return 0, fmt.Errorf("%w: %q", ErrMissingMagic, line)
	}

	return parseFormat(formatName)
}

func parseMetadataLine(line string, into map[string]string) {
	body := strings.TrimPrefix(line, metadataPrefix)

	for _, pair := range strings.Split(body, "\t") {
		if pair == "" {
			continue
		}

		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}

		into[k] = v
	}
}

func parseFieldsLine(line string, format Format) ([]codec.FieldSpec, error) {
	body := strings.TrimPrefix(line, fieldsPrefix)
	tokens := strings.Split(body, "\t")

	fields := make([]codec.FieldSpec, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))

	for _, tok := range tokens {
		spec, err := parseFieldToken(tok)
		if err != nil {
			return nil, err
		}

		if seen[spec.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, spec.Name)
		}

		seen[spec.Name] = true
		fields = append(fields, spec)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty field declaration", ErrMissingFieldHeader)
	}

	if fields[0].Name != format.tickFieldName() {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrFirstFieldMismatch, fields[0].Name, format.tickFieldName())
	}

	return fields, nil
}

// parseFieldToken parses one NAME[:ENC][=DEFAULT] header token.
func parseFieldToken(tok string) (codec.FieldSpec, error) {
	left := tok

	var (
		hasDefault bool
		def        string
	)

	if name, value, ok := strings.Cut(tok, "="); ok {
		left = name
		def = value
		hasDefault = true
	}

	name := left
	encoding := ""

	if n, enc, ok := strings.Cut(left, ":"); ok {
		name = n
		encoding = enc
	}

	if err := codec.ValidateFieldName(name); err != nil {
		return codec.FieldSpec{}, err
	}

	return codec.FieldSpec{
		Name:       name,
		Encoding:   encoding,
		Default:    def,
		HasDefault: hasDefault,
	}, nil
}

// renderHeader renders the three leading comment lines for hdr, in the
// order they must appear on disk.
func renderHeader(hdr fileHeader) string {
	var b strings.Builder

	b.WriteString("#!hydralog-dump --in-format=")
	b.WriteString(hdr.format.String())
	b.WriteByte('\n')

	if len(hdr.metadata) > 0 {
		b.WriteString(metadataPrefix[:len(metadataPrefix)-1])

		first := true

		for _, key := range orderedMetadataKeys(hdr.metadata) {
			if first {
				b.WriteByte(' ')

				first = false
			} else {
				b.WriteByte('\t')
			}

			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(hdr.metadata[key])
		}

		b.WriteByte('\n')
	}

	b.WriteString(fieldsPrefix[:len(fieldsPrefix)-1])
	b.WriteByte(' ')

	for i, f := range hdr.fields {
		if i > 0 {
			b.WriteByte('\t')
		}

		b.WriteString(renderFieldToken(f))
	}

	b.WriteByte('\n')

	return b.String()
}

func renderFieldToken(f codec.FieldSpec) string {
	var b strings.Builder

	b.WriteString(f.Name)

	if f.Encoding != "" {
		b.WriteByte(':')
		b.WriteString(f.Encoding)
	}

	if f.HasDefault {
		b.WriteByte('=')
		b.WriteString(f.Default)
	}

	return b.String()
}

// orderedMetadataKeys puts start_epoch and the scale key first (matching
// how a writer naturally produces them), then the rest in insertion-
// independent (sorted) order, for deterministic output.
func orderedMetadataKeys(metadata map[string]string) []string {
	priority := []string{"start_epoch", "timestamp_scale", "ts_scale"}

	out := make([]string, 0, len(metadata))
	used := make(map[string]bool, len(metadata))

	for _, k := range priority {
		if _, ok := metadata[k]; ok {
			out = append(out, k)
			used[k] = true
		}
	}

	rest := make([]string, 0, len(metadata))

	for k := range metadata {
		if !used[k] {
			rest = append(rest, k)
		}
	}

	sort.Strings(rest)

	return append(out, rest...)
}
