package chat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

var errLockHeld = errors.New("cache file is locked")

const (
	lockTimeout    = 5 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// cacheLock serializes writers of a cache file across processes with flock
// on a sidecar .lock file. The kernel drops the flock when its holder exits,
// so a file left behind by a crashed process never blocks a writer.
type cacheLock struct {
	lockPath string
	file     *os.File
}

func acquireCacheLock(path string) (*cacheLock, error) {
	l := &cacheLock{lockPath: path + ".lock"}
	deadline := time.Now().Add(lockTimeout)

	for {
		err := l.tryAcquire()
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, errLockHeld) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout acquiring lock on %s: %w", path, err)
		}
		time.Sleep(lockRetryDelay)
	}
}

func (l *cacheLock) tryAcquire() error {
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return errLockHeld
		}
		return fmt.Errorf("failed to apply system lock: %w", err)
	}

	// the previous holder removes the file on release; a lock on the
	// unlinked inode guards nothing
	if !l.current(f) {
		f.Close()
		return errLockHeld
	}

	f.Truncate(0)
	fmt.Fprintf(f, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	l.file = f
	return nil
}

// current reports whether f is still the file at lockPath
func (l *cacheLock) current(f *os.File) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(l.lockPath)
	if err != nil {
		return false
	}
	return os.SameFile(held, onDisk)
}

// release removes the lock file before unlocking so a waiter never locks a
// file that is about to disappear
func (l *cacheLock) release() error {
	if l.file == nil {
		return nil
	}

	var lastErr error
	if err := os.Remove(l.lockPath); err != nil {
		lastErr = fmt.Errorf("failed to remove lock file: %w", err)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil && lastErr == nil {
		lastErr = fmt.Errorf("failed to release system lock: %w", err)
	}
	if err := l.file.Close(); err != nil && lastErr == nil {
		lastErr = fmt.Errorf("failed to close lock file: %w", err)
	}
	l.file = nil
	return lastErr
}

// writeCacheFile replaces path atomically while holding its lock
func writeCacheFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	lock, err := acquireCacheLock(path)
	if err != nil {
		return err
	}
	defer lock.release()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
