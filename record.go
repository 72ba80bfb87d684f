package hydralog

import (
	"fmt"
	"strings"
	"time"
)

// Reserved field names with typed accessors on [Record].
const (
	fieldLevel    = "level"
	fieldMessage  = "message"
	fieldFacility = "facility"
	fieldIdentity = "identity"
)

// Record is one decoded log event: a typed timestamp plus a flat field
// vector declared by the file's header. Reserved fields (level, message,
// facility, identity) have typed accessors; everything else is reached
// through [Record.Field].
//
// A Record's field set is exactly the header's declared vector minus the
// tick field (which is consumed into Timestamp); accessing a name outside
// that set is [ErrUnknownField], regardless of whether the record's value
// for a declared field happens to be empty.
type Record struct {
	timestamp float64
	ticks     int64

	names  []string          // declared field names, in header order, tick field excluded
	index  map[string]int    // name -> position in values
	values []string          // decoded values, defaults already applied
}

// newRecord builds a Record from a declared field vector (tick field
// already excluded) and its decoded values, both in header order.
func newRecord(timestamp float64, ticks int64, names []string, values []string) Record {
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	return Record{
		timestamp: timestamp,
		ticks:     ticks,
		names:     names,
		index:     index,
		values:    values,
	}
}

// Timestamp returns the record's instant as fractional seconds since the
// Unix epoch.
func (r Record) Timestamp() float64 {
	return r.timestamp
}

// TimestampUTC returns the record's instant as a UTC [time.Time].
func (r Record) TimestampUTC() time.Time {
	return timeFromFloat(r.timestamp).UTC()
}

// TimestampLocal returns the record's instant as a [time.Time] in the
// local timezone.
func (r Record) TimestampLocal() time.Time {
	return timeFromFloat(r.timestamp).Local()
}

func timeFromFloat(seconds float64) time.Time {
	whole := int64(seconds)
	frac := seconds - float64(whole)

	return time.Unix(whole, int64(frac*float64(time.Second)))
}

// Level returns the record's canonicalized level, or "" if the record has
// no level field.
func (r Record) Level() string {
	return r.fieldOrEmpty(fieldLevel)
}

// Message returns the record's message field, or "" if absent.
func (r Record) Message() string {
	return r.fieldOrEmpty(fieldMessage)
}

// Facility returns the record's facility field, or "" if absent.
func (r Record) Facility() string {
	return r.fieldOrEmpty(fieldFacility)
}

// Identity returns the record's identity field, or "" if absent.
func (r Record) Identity() string {
	return r.fieldOrEmpty(fieldIdentity)
}

func (r Record) fieldOrEmpty(name string) string {
	v, err := r.Field(name)
	if err != nil {
		return ""
	}

	return v
}

// HasField reports whether name is part of this record's declared field
// vector (independent of whether its value happens to be empty).
func (r Record) HasField(name string) bool {
	_, ok := r.index[name]

	return ok
}

// Field returns the decoded value of the declared field name. It returns
// [ErrUnknownField] if name isn't part of the file's declared field
// vector.
func (r Record) Field(name string) (string, error) {
	i, ok := r.index[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}

	return r.values[i], nil
}

// Fields returns the record's declared field names, in header order, tick
// field excluded.
func (r Record) Fields() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)

	return out
}

// String renders "<local-ts> <level> <facility> <identity>: <message>",
// omitting parts the record doesn't carry, with no trailing newline.
func (r Record) String() string {
	var b strings.Builder

	b.WriteString(r.TimestampLocal().Format(time.RFC3339))

	if lvl := r.Level(); lvl != "" {
		b.WriteByte(' ')
		b.WriteString(lvl)
	}

	if fac := r.Facility(); fac != "" {
		b.WriteByte(' ')
		b.WriteString(fac)
	}

	if id := r.Identity(); id != "" {
		b.WriteByte(' ')
		b.WriteString(id)
	}

	if msg := r.Message(); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}

	return b.String()
}
