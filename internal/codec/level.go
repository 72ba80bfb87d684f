package codec

import (
	"strconv"
	"strings"
)

// Canonical level names, in syslog priority order (lowest number = most
// severe).
const (
	LevelEmergency = "EMERGENCY"
	LevelAlert     = "ALERT"
	LevelCritical  = "CRITICAL"
	LevelError     = "ERROR"
	LevelWarning   = "WARNING"
	LevelNotice    = "NOTICE"
	LevelInfo      = "INFO"
	LevelDebug     = "DEBUG"
	LevelTrace     = "TRACE"
)

type levelEntry struct {
	canonical string
	alias     string // short form the writer emits
	priority  float64
}

// levelTable lists every recognized spelling against its canonical name.
// Lookups are exact matches on the upper-cased spelling, so the order of
// rows and spellings does not matter.
var levelTable = []struct {
	spellings []string
	entry     levelEntry
}{
	{[]string{"EMERGENCY", "EMERG"}, levelEntry{LevelEmergency, "EM", 0}},
	{[]string{"ALERT"}, levelEntry{LevelAlert, "A", 1}},
	{[]string{"CRITICAL", "CRIT"}, levelEntry{LevelCritical, "C", 2}},
	{[]string{"ERROR", "ERR"}, levelEntry{LevelError, "E", 3}},
	{[]string{"WARNING", "WARN"}, levelEntry{LevelWarning, "W", 4}},
	{[]string{"NOTICE", "NOTE"}, levelEntry{LevelNotice, "N", 5}},
	{[]string{"INFO"}, levelEntry{LevelInfo, "I", 6}},
	{[]string{"DEBUG"}, levelEntry{LevelDebug, "D", 7}},
	{[]string{"TRACE"}, levelEntry{LevelTrace, "T", 8}},
}

var (
	spellingToEntry = make(map[string]levelEntry)
	aliasToCanon    = make(map[string]string)
)

func init() {
	for _, row := range levelTable {
		for _, s := range row.spellings {
			spellingToEntry[s] = row.entry
		}

		aliasToCanon[row.entry.alias] = row.entry.canonical
	}
}

// CanonicalizeLevel maps a level spelling (any case, short or long form,
// with an optional trailing decimal suffix on DEBUG/TRACE, e.g. "debug2")
// to its canonical name. If the spelling isn't recognized it is returned
// unchanged, with ok=false.
func CanonicalizeLevel(raw string) (canonical string, ok bool) {
	if raw == "" {
		return raw, false
	}

	upper := strings.ToUpper(raw)

	if entry, found := spellingToEntry[upper]; found {
		return entry.canonical, true
	}

	if canon, found := aliasToCanon[upper]; found {
		return canon, true
	}

	// DEBUGn / TRACEn: a numeric suffix on an otherwise-recognized base.
	for _, base := range []string{LevelDebug, LevelTrace} {
		if strings.HasPrefix(upper, base) {
			suffix := upper[len(base):]
			if suffix != "" && isAllDigits(suffix) {
				return base + suffix, true
			}
		}
	}

	return raw, false
}

// WriterAlias compresses a canonical (or recognizable) level name to the
// short form the writer emits on the wire. Unknown names pass through
// unchanged.
func WriterAlias(level string) string {
	_, base, suffix := splitNumberedLevel(level)

	entry, ok := spellingToEntry[strings.ToUpper(base)]
	if !ok {
		return level
	}

	if suffix != "" {
		return entry.alias + suffix
	}

	return entry.alias
}

// LevelPriority returns the syslog-style severity rank of level
// (EMERGENCY=0 … TRACE=8), with DEBUGn/TRACEn variants ranked with a
// fractional offset strictly above their base level (DEBUG1 is less severe
// than DEBUG, DEBUG2 less severe than DEBUG1, and so on), for use in
// ordering comparisons only. ok is false for unrecognized levels.
func LevelPriority(level string) (priority float64, ok bool) {
	_, base, suffix := splitNumberedLevel(level)

	entry, found := spellingToEntry[strings.ToUpper(base)]
	if !found {
		return 0, false
	}

	if suffix == "" {
		return entry.priority, true
	}

	n, err := strconv.ParseUint(suffix, 10, 31)
	if err != nil {
		return 0, false
	}

	// Each successive numbered variant sits strictly between the base level
	// and the next one down, approaching but never reaching it.
	frac := float64(n) / (float64(n) + 1)

	return entry.priority + frac, true
}

// splitNumberedLevel separates a DEBUGn/TRACEn spelling into its base name
// and numeric suffix; canon echoes the full input for callers that don't
// care about the split.
func splitNumberedLevel(level string) (canon, base, suffix string) {
	upper := strings.ToUpper(level)

	for _, name := range []string{LevelDebug, LevelTrace} {
		if strings.HasPrefix(upper, name) {
			rest := upper[len(name):]
			if rest == "" {
				return level, name, ""
			}

			if isAllDigits(rest) {
				return level, name, rest
			}
		}
	}

	return level, upper, ""
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
