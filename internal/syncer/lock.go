package syncer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// lockTimeout bounds how long a sync waits for a concurrent sync to finish.
const lockTimeout = 10 * time.Second

var errLockTimeout = errors.New("another sync is in progress")

// fileLock serializes sync invocations across processes. The private index
// and the sync branch ref are shared mutable state; only one sync may be in
// flight against them at a time.
type fileLock struct {
	file *os.File
}

// acquireLock takes an exclusive flock on path, waiting up to lockTimeout.
func acquireLock(path string) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(lockTimeout)
	const retryInterval = 25 * time.Millisecond

	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{file: file}, nil
		}
		if time.Now().After(deadline) {
			_ = file.Close()
			return nil, fmt.Errorf("%w: %s", errLockTimeout, path)
		}
		time.Sleep(retryInterval)
	}
}

func (l *fileLock) release() {
	if l.file != nil {
		_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		_ = l.file.Close()
	}
}
