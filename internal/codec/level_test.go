package codec_test

import (
	"testing"

	"github.com/calvinalkan/hydralog/internal/codec"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeLevel(t *testing.T) {
	cases := map[string]string{
		"info":      "INFO",
		"WARN":      "WARNING",
		"warning":   "WARNING",
		"err":       "ERROR",
		"ERROR":     "ERROR",
		"emerg":     "EMERGENCY",
		"EMERGENCY": "EMERGENCY",
		"crit":      "CRITICAL",
		"note":      "NOTICE",
		"debug2":    "DEBUG2",
		"TRACE1":    "TRACE1",
	}

	for in, want := range cases {
		got, ok := codec.CanonicalizeLevel(in)
		assert.True(t, ok, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestCanonicalizeLevel_Unknown(t *testing.T) {
	got, ok := codec.CanonicalizeLevel("WEIRD")
	assert.False(t, ok)
	assert.Equal(t, "WEIRD", got)
}

func TestWriterAlias(t *testing.T) {
	cases := map[string]string{
		"EMERGENCY": "EM",
		"ALERT":     "A",
		"CRITICAL":  "C",
		"ERROR":     "E",
		"WARNING":   "W",
		"NOTICE":    "N",
		"INFO":      "I",
		"DEBUG":     "D",
		"TRACE":     "T",
		"DEBUG2":    "D2",
		"UNKNOWN":   "UNKNOWN",
	}

	for in, want := range cases {
		assert.Equal(t, want, codec.WriterAlias(in), "input %q", in)
	}
}

func TestLevelPriority_Ordering(t *testing.T) {
	emerg, ok := codec.LevelPriority("EMERGENCY")
	assert.True(t, ok)

	trace, ok := codec.LevelPriority("TRACE")
	assert.True(t, ok)

	assert.Less(t, emerg, trace)

	debug, _ := codec.LevelPriority("DEBUG")
	debug1, _ := codec.LevelPriority("DEBUG1")
	debug2, _ := codec.LevelPriority("DEBUG2")

	assert.Less(t, debug, debug1)
	assert.Less(t, debug1, debug2)

	trace0, _ := codec.LevelPriority("TRACE")
	assert.Less(t, debug, trace0)
}

func TestLevelPriority_Unknown(t *testing.T) {
	_, ok := codec.LevelPriority("NOPE")
	assert.False(t, ok)
}
