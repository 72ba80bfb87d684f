package hydralog

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/natefinch/atomic"
)

// sidecarPath returns the durable index path for a log file (spec.md §12):
// `<path>.idx`, a flat run of (ticks uint64, addr uint64) pairs in index
// order, one per entry.
func sidecarPath(path string) string {
	return path + ".idx"
}

// writeIndexSidecar persists entries to path's sidecar, replacing any
// existing file atomically so a reader never observes a half-written
// index.
func writeIndexSidecar(path string, entries []indexEntry) error {
	buf := make([]byte, 0, len(entries)*16)

	for _, e := range entries {
		var scratch [16]byte

		binary.BigEndian.PutUint64(scratch[0:8], uint64(e.ticks))
		binary.BigEndian.PutUint64(scratch[8:16], uint64(e.addr))

		buf = append(buf, scratch[:]...)
	}

	return atomic.WriteFile(sidecarPath(path), bytes.NewReader(buf))
}

// readIndexSidecar loads a previously persisted index, if path's sidecar
// exists, is structurally valid (a multiple of 16 bytes), and is not older
// than the log file itself (a stale sidecar from before a truncation or
// rewrite must never be trusted). It returns ok=false rather than an error
// on any of these conditions — the sidecar is purely an optimization, so
// its absence or staleness falls back silently to the reader's built-in
// auto-index.
func readIndexSidecar(path string) (entries []indexEntry, ok bool) {
	logInfo, err := os.Stat(path)
	if err != nil {
		return nil, false
	}

	sidecarInfo, err := os.Stat(sidecarPath(path))
	if err != nil {
		return nil, false
	}

	if sidecarInfo.ModTime().Before(logInfo.ModTime()) {
		return nil, false
	}

	data, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return nil, false
	}

	if len(data)%16 != 0 || len(data) == 0 {
		return nil, false
	}

	out := make([]indexEntry, 0, len(data)/16)

	for i := 0; i < len(data); i += 16 {
		ticks := binary.BigEndian.Uint64(data[i : i+8])
		addr := binary.BigEndian.Uint64(data[i+8 : i+16])

		out = append(out, indexEntry{ticks: int64(ticks), addr: int64(addr)})
	}

	return out, true
}
