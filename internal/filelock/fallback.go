package filelock

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/natefinch/atomic"
)

// staleMarkerAge is how old an orphaned marker file must be before a new
// writer is willing to steal it. A crashed writer's marker otherwise locks
// the file out forever on filesystems where flock isn't available to
// release it automatically on process death.
const staleMarkerAge = 10 * time.Minute

// markerPath is the portable-fallback lock file: its presence (and
// freshness) stands in for the flock that the filesystem won't honor.
func markerPath(path string) string {
	return path + ".lock"
}

// flockUnsupported reports whether err indicates the filesystem doesn't
// implement flock at all (some network filesystems without a running lock
// daemon), as opposed to the lock simply being held by someone else.
func flockUnsupported(err error) bool {
	return errors.Is(err, syscall.ENOSYS) || errors.Is(err, syscall.EOPNOTSUPP) || errors.Is(err, syscall.ENOTSUP)
}

// acquireFallback takes the portable marker-file lock described in
// spec.md §12: a sidecar `<path>.lock` written atomically via
// github.com/natefinch/atomic, carrying this process's pid. It gives up
// flock's free-on-crash property — a marker left by a process that died
// without closing its Writer is only reclaimed once it's older than
// [staleMarkerAge] — but it works anywhere a plain file write does.
func acquireFallback(path string) (*Lock, error) {
	marker := markerPath(path)

	if info, err := os.Stat(marker); err == nil {
		if time.Since(info.ModTime()) < staleMarkerAge {
			return nil, ErrAlreadyLocked
		}
	}

	content := []byte(strconv.Itoa(os.Getpid()))

	if err := atomic.WriteFile(marker, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("filelock: write marker: %w", err)
	}

	return &Lock{markerOnly: marker}, nil
}
