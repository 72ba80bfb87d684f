package hydralog

import "errors"

// mergeSource is one child reader under a MergeReader's heap, with its
// cached look-ahead kept separate from the reader itself so heap repairs
// never re-peek (spec.md §4.G).
type mergeSource struct {
	reader *Reader
	index  int // original position in the MergeReader's source list; tie-break

	peeked    Record
	peekedErr error
	exhausted bool
}

// MergeReader multiplexes a fixed set of Readers into a single stream
// ordered by timestamp, ties broken by source index. It is a plain
// array-backed binary min-heap over the sources' look-ahead records —
// children of i live at 2i+1 and 2i+2.
type MergeReader struct {
	heap []*mergeSource
}

// NewMergeReader builds a MergeReader over readers, in the order given —
// that order is each source's tie-break index for the lifetime of the
// MergeReader.
func NewMergeReader(readers ...*Reader) *MergeReader {
	m := &MergeReader{heap: make([]*mergeSource, 0, len(readers))}

	for i, r := range readers {
		src := &mergeSource{reader: r, index: i}
		src.advance()

		if !src.exhausted {
			m.heap = append(m.heap, src)
		}
	}

	m.heapify()

	return m
}

// advance refreshes src's cached look-ahead from its reader.
func (s *mergeSource) advance() {
	rec, err := s.reader.Peek()
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			s.exhausted = true

			return
		}

		s.peeked, s.peekedErr = Record{}, err

		return
	}

	s.peeked, s.peekedErr = rec, nil
}

// less orders two sources by their look-ahead timestamp, ties broken by
// source index.
func (s *mergeSource) less(other *mergeSource) bool {
	if s.peeked.Timestamp() != other.peeked.Timestamp() {
		return s.peeked.Timestamp() < other.peeked.Timestamp()
	}

	return s.index < other.index
}

// Peek returns the earliest not-yet-consumed record across all sources,
// without consuming it. It returns [ErrNoRecord] once every source is
// exhausted.
func (m *MergeReader) Peek() (Record, error) {
	if len(m.heap) == 0 {
		return Record{}, ErrNoRecord
	}

	head := m.heap[0]
	if head.peekedErr != nil {
		return Record{}, head.peekedErr
	}

	return head.peeked, nil
}

// Next returns the earliest not-yet-consumed record, advances that
// source, and repairs the heap.
func (m *MergeReader) Next() (Record, error) {
	if len(m.heap) == 0 {
		return Record{}, ErrNoRecord
	}

	head := m.heap[0]

	if head.peekedErr != nil {
		return Record{}, head.peekedErr
	}

	rec := head.peeked

	if _, err := head.reader.Next(); err != nil && !errors.Is(err, ErrNoRecord) {
		return Record{}, err
	}

	head.advance()

	if head.exhausted {
		m.removeRoot()
	} else {
		m.siftDown(0)
	}

	return rec, nil
}

// Seek forwards epoch to every source and rebuilds the heap from their
// new look-aheads. A source for which Seek returns [ErrAtStart] is kept
// (it's repositioned to its own beginning, not removed); any other error
// from a source is returned without repositioning the rest.
func (m *MergeReader) Seek(epoch float64) error {
	for _, src := range m.heap {
		err := src.reader.Seek(epoch)
		if err != nil && !errors.Is(err, ErrAtStart) {
			return err
		}

		src.advance()
	}

	live := m.heap[:0]

	for _, src := range m.heap {
		if !src.exhausted {
			live = append(live, src)
		}
	}

	m.heap = live
	m.heapify()

	return nil
}

func (m *MergeReader) heapify() {
	for i := len(m.heap)/2 - 1; i >= 0; i-- {
		m.siftDown(i)
	}
}

func (m *MergeReader) siftDown(i int) {
	n := len(m.heap)

	for {
		left, right := 2*i+1, 2*i+2
		smallest := i

		if left < n && m.heap[left].less(m.heap[smallest]) {
			smallest = left
		}

		if right < n && m.heap[right].less(m.heap[smallest]) {
			smallest = right
		}

		if smallest == i {
			return
		}

		m.heap[i], m.heap[smallest] = m.heap[smallest], m.heap[i]
		i = smallest
	}
}

// removeRoot drops the exhausted root source, moving the last element
// into its place and repairing.
func (m *MergeReader) removeRoot() {
	n := len(m.heap)

	m.heap[0] = m.heap[n-1]
	m.heap = m.heap[:n-1]

	if len(m.heap) > 0 {
		m.siftDown(0)
	}
}
