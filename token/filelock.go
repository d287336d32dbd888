package token

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Lock file tuning. A lock older than lockStaleAfter is assumed to belong to
// a crashed process.
const (
	lockMaxRetries = 50
	lockRetryDelay = 100 * time.Millisecond
	lockStaleAfter = 30 * time.Second
)

// ErrLockTimeout is returned when the credential file stays locked.
var ErrLockTimeout = errors.New("timed out waiting for credential file lock")

// fileLock is an exclusive, cross-process lock held as a sibling
// "<path>.lock" file.
type fileLock struct {
	file *os.File
	path string
}

// acquireFileLock takes the lock guarding filePath, waiting up to
// lockMaxRetries*lockRetryDelay or until ctx is done.
func acquireFileLock(ctx context.Context, filePath string) (*fileLock, error) {
	lockPath := filePath + ".lock"

	for attempt := 0; attempt < lockMaxRetries; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// pid helps when inspecting a leftover lock by hand
			fmt.Fprintf(f, "%d", os.Getpid())
			return &fileLock{file: f, path: lockPath}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil &&
			time.Since(info.ModTime()) > lockStaleAfter {
			if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
				return nil, fmt.Errorf("failed to remove stale lock file %s: %w", lockPath, remErr)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	return nil, fmt.Errorf("%w after %v", ErrLockTimeout, lockMaxRetries*lockRetryDelay)
}

// release closes and removes the lock file. Releasing twice returns the
// not-exist error from the second removal.
func (l *fileLock) release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	return os.Remove(l.path)
}
