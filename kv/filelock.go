package kv

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Lock file tuning. A lock older than lockStaleAfter is assumed to belong
// to a crashed process and is taken over.
const (
	lockMaxAttempts = 50
	lockRetryDelay  = 100 * time.Millisecond
	lockStaleAfter  = 30 * time.Second
)

// fileLock is an exclusive, cross-process lock held through a sibling
// "<path>.lock" file.
type fileLock struct {
	f    *os.File
	path string
}

// acquireFileLock blocks until it owns the lock for path or gives up
// after lockMaxAttempts.
func acquireFileLock(path string) (*fileLock, error) {
	lockPath := path + ".lock"

	for attempt := 0; attempt < lockMaxAttempts; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// PID aids debugging a stuck lock
			fmt.Fprintf(f, "%d", os.Getpid())
			return &fileLock{f: f, path: lockPath}, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire file lock: %w", err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil &&
			time.Since(info.ModTime()) > lockStaleAfter {
			log.Warn().Str("lock", lockPath).Msg("Removing stale lock file")
			if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
				return nil, fmt.Errorf("failed to remove stale lock file %s: %w", lockPath, remErr)
			}
			continue
		}

		time.Sleep(lockRetryDelay)
	}

	return nil, fmt.Errorf(
		"timeout waiting for file lock after %v",
		time.Duration(lockMaxAttempts)*lockRetryDelay,
	)
}

func (l *fileLock) release() error {
	if l.f != nil {
		l.f.Close()
	}
	return os.Remove(l.path)
}
