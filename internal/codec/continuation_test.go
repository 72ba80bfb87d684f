package codec_test

import (
	"testing"

	"github.com/calvinalkan/hydralog/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContinuationColumn(t *testing.T) {
	col, text, ok := codec.ContinuationColumn([]byte("\t\tmore text"))
	require.True(t, ok)
	assert.Equal(t, 2, col)
	assert.Equal(t, "more text", string(text))
}

func TestContinuationColumn_NotAContinuation(t *testing.T) {
	_, _, ok := codec.ContinuationColumn([]byte("0\tINFO\thello"))
	assert.False(t, ok)
}

func TestEncodeContinuationLine(t *testing.T) {
	assert.Equal(t, "\t\tsecond line", codec.EncodeContinuationLine(2, "second line"))
	assert.Equal(t, "\tx", codec.EncodeContinuationLine(1, "x"))
}
