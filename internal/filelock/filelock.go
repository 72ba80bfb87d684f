// Package filelock provides the writer's single-writer guarantee (spec.md
// §4.F, §9): an exclusive advisory lock held on the log file itself for
// the Writer's lifetime. It is a non-blocking flock with inode-match
// verification, so a lock acquired mid-rename can't silently coordinate
// with the wrong file.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrAlreadyLocked is returned when another process already holds the
// exclusive lock on the file.
var ErrAlreadyLocked = errors.New("filelock: file is already being written by another process")

// errInodeMismatch is an internal retry signal: the path was replaced
// between open and flock.
var errInodeMismatch = errors.New("filelock: lock file was replaced")

// Lock is a held exclusive lock. Close releases it.
//
// markerOnly is set instead of file when the lock was taken through the
// portable fallback (no flock support on this filesystem): Close then
// removes the marker file rather than unlocking an fd.
type Lock struct {
	file       *os.File
	markerOnly string
}

// Acquire takes a non-blocking exclusive lock on path, creating it if it
// doesn't exist. It fails immediately with [ErrAlreadyLocked] if another
// process holds the lock — the writer never waits for contention, per
// spec.md §4.F ("report 'already being written' and fail fast"). On a
// filesystem where flock isn't implemented at all, it falls back to a
// portable marker-file lock instead of failing outright.
func Acquire(path string) (*Lock, error) {
	for {
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, fmt.Errorf("filelock: open: %w", err)
		}

		lockErr := tryLockAndVerify(file, path)
		if lockErr == nil {
			return &Lock{file: file}, nil
		}

		_ = file.Close()

		if errors.Is(lockErr, errInodeMismatch) {
			continue
		}

		if flockUnsupported(lockErr) {
			return acquireFallback(path)
		}

		return nil, lockErr
	}
}

func tryLockAndVerify(file *os.File, path string) error {
	fd := int(file.Fd())

	if err := flockRetryEINTR(fd, syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return ErrAlreadyLocked
		}

		return fmt.Errorf("filelock: flock: %w", err)
	}

	match, err := inodeMatchesPath(path, file)
	if err != nil {
		_ = flockRetryEINTR(fd, syscall.LOCK_UN)

		if errors.Is(err, os.ErrNotExist) {
			return errInodeMismatch
		}

		return fmt.Errorf("filelock: verify inode: %w", err)
	}

	if !match {
		_ = flockRetryEINTR(fd, syscall.LOCK_UN)

		return errInodeMismatch
	}

	return nil
}

// Close releases the lock and closes the underlying file descriptor. It is
// idempotent.
func (l *Lock) Close() error {
	if l.markerOnly != "" {
		err := os.Remove(l.markerOnly)
		l.markerOnly = ""

		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("filelock: remove marker: %w", err)
		}

		return nil
	}

	if l.file == nil {
		return nil
	}

	fd := int(l.file.Fd())

	unlockErr := flockRetryEINTR(fd, syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("filelock: unlock: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("filelock: close: %w", closeErr)
	}

	return nil
}

// inodeMatchesPath guards against the lock file being renamed away and
// replaced between open() and flock(): flock locks the inode, not the
// pathname, so without this check two processes could each believe they
// hold the lock on "the file at path" while actually holding it on two
// different inodes.
func inodeMatchesPath(path string, f *os.File) (bool, error) {
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}

	pathInfo, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	openSys, ok := openInfo.Sys().(*syscall.Stat_t)
	if !ok || openSys == nil {
		return false, fmt.Errorf("filelock: unexpected Stat.Sys() type %T", openInfo.Sys())
	}

	pathSys, ok := pathInfo.Sys().(*syscall.Stat_t)
	if !ok || pathSys == nil {
		return false, fmt.Errorf("filelock: unexpected Stat.Sys() type %T", pathInfo.Sys())
	}

	return openSys.Dev == pathSys.Dev && openSys.Ino == pathSys.Ino, nil
}

// flockRetryEINTR retries flock on EINTR, since a blocking-capable signal
// can interrupt the syscall without it actually failing.
func flockRetryEINTR(fd, how int) error {
	const maxEINTRRetries = 10000

	var err error

	for range maxEINTRRetries {
		err = syscall.Flock(fd, how)
		if err == nil || !errors.Is(err, syscall.EINTR) {
			return err
		}
	}

	return err
}
