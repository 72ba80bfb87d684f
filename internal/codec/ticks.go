package codec

import (
	"errors"
	"fmt"
	"strings"
)

// tsv1Alphabet is the base-64 digit alphabet used by the tsv1 dT field,
// MSB first. Position within the string is the digit's value, so "10" is
// 1*64 + 0 = 64.
const tsv1Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"

var tsv1DigitValue [256]int8

func init() {
	for i := range tsv1DigitValue {
		tsv1DigitValue[i] = -1
	}

	for i := 0; i < len(tsv1Alphabet); i++ {
		tsv1DigitValue[tsv1Alphabet[i]] = int8(i)
	}
}

// ErrMalformedTicks is returned when a dT/timestamp_step_hex field can't be
// parsed as a counter value.
var ErrMalformedTicks = errors.New("codec: malformed ticks field")

// DecodedTicks is the result of decoding a tsv1 dT or tsv0
// timestamp_step_hex field.
type DecodedTicks struct {
	// Value is the decoded integer: a delta to add to the running counter,
	// or (if Absolute) the new counter value itself.
	Value int64
	// Absolute is true when the field carries a `=`-prefixed absolute reset
	// (tsv1 only; tsv0 has no absolute form).
	Absolute bool
	// Continuation is true when the field was empty, meaning "no counter
	// update, this line continues the previous record".
	Continuation bool
}

// EncodeTicksTSV1 renders a differential tick delta in tsv1's base-64
// alphabet. A zero delta is legal and encodes as "0".
func EncodeTicksTSV1(delta int64) (string, error) {
	if delta < 0 {
		return "", fmt.Errorf("%w: negative differential %d", ErrMalformedTicks, delta)
	}

	return encodeBase64(delta), nil
}

// EncodeAbsoluteTicksTSV1 renders an absolute counter reset: `=` followed by
// the base-64 encoding of value.
func EncodeAbsoluteTicksTSV1(value int64) (string, error) {
	if value < 0 {
		return "", fmt.Errorf("%w: negative absolute value %d", ErrMalformedTicks, value)
	}

	return "=" + encodeBase64(value), nil
}

// DecodeTicksTSV1 parses a tsv1 dT field: empty means a continuation
// record, a leading `=` means an absolute reset, anything else is a
// differential delta.
func DecodeTicksTSV1(field string) (DecodedTicks, error) {
	if field == "" {
		return DecodedTicks{Continuation: true}, nil
	}

	absolute := false
	digits := field

	if field[0] == '=' {
		absolute = true
		digits = field[1:]
	}

	v, err := decodeBase64(digits)
	if err != nil {
		return DecodedTicks{}, err
	}

	return DecodedTicks{Value: v, Absolute: absolute}, nil
}

// EncodeTicksTSV0 renders a differential tick delta as uppercase hex, per
// the tsv0 timestamp_step_hex field. tsv0 has no absolute form.
func EncodeTicksTSV0(delta int64) (string, error) {
	if delta < 0 {
		return "", fmt.Errorf("%w: negative differential %d", ErrMalformedTicks, delta)
	}

	return fmt.Sprintf("%X", delta), nil
}

// DecodeTicksTSV0 parses a tsv0 timestamp_step_hex field (case-insensitive
// hex); empty means a continuation record.
func DecodeTicksTSV0(field string) (DecodedTicks, error) {
	if field == "" {
		return DecodedTicks{Continuation: true}, nil
	}

	var v int64

	for _, r := range field {
		digit, ok := hexDigit(r)
		if !ok {
			return DecodedTicks{}, fmt.Errorf("%w: %q", ErrMalformedTicks, field)
		}

		if v > (1<<63-1-int64(digit))/16 {
			return DecodedTicks{}, fmt.Errorf("%w: %q overflows", ErrMalformedTicks, field)
		}

		v = v*16 + int64(digit)
	}

	return DecodedTicks{Value: v}, nil
}

func hexDigit(r rune) (int64, bool) {
	switch {
	case r >= '0' && r <= '9':
		return int64(r - '0'), true
	case r >= 'A' && r <= 'F':
		return int64(r-'A') + 10, true
	case r >= 'a' && r <= 'f':
		return int64(r-'a') + 10, true
	default:
		return 0, false
	}
}

func encodeBase64(v int64) string {
	if v == 0 {
		return "0"
	}

	var b strings.Builder

	// Build digits least-significant first into a small buffer, then
	// reverse, since the result length isn't known up front.
	var digits [16]byte

	n := 0
	for v > 0 {
		digits[n] = tsv1Alphabet[v%64]
		v /= 64
		n++
	}

	b.Grow(n)

	for i := n - 1; i >= 0; i-- {
		b.WriteByte(digits[i])
	}

	return b.String()
}

func decodeBase64(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrMalformedTicks)
	}

	var v int64

	for i := 0; i < len(s); i++ {
		d := tsv1DigitValue[s[i]]
		if d < 0 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTicks, s)
		}

		if v > (1<<63-1-int64(d))/64 {
			return 0, fmt.Errorf("%w: %q overflows", ErrMalformedTicks, s)
		}

		v = v*64 + int64(d)
	}

	return v, nil
}
