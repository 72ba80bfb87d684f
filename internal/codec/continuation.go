package codec

// ContinuationColumn reports whether line is a continuation line (one or
// more leading TABs) and, if so, the 1-based field column it continues and
// the text after the TAB prefix. A non-continuation line returns ok=false.
func ContinuationColumn(line []byte) (column int, text []byte, ok bool) {
	n := 0
	for n < len(line) && line[n] == '\t' {
		n++
	}

	if n == 0 {
		return 0, nil, false
	}

	return n, line[n:], true
}

// EncodeContinuationLine renders one continuation line for field column
// (1-based): column TAB characters followed by text. The caller appends
// the trailing '\n'.
func EncodeContinuationLine(column int, text string) string {
	b := make([]byte, column, column+len(text))
	for i := range b {
		b[i] = '\t'
	}

	return string(append(b, text...))
}
