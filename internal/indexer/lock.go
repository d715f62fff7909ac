package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

const lockFile = ".build.lock"

// buildLock admits one rebuild per data directory: an atomic flag for
// goroutines of this process and an advisory file lock for other processes
// sharing the directory.
type buildLock struct {
	busy atomic.Bool
	file *flock.Flock
}

func newBuildLock(dataDir string) *buildLock {
	return &buildLock{file: flock.New(filepath.Join(dataDir, lockFile))}
}

// acquire returns ErrBuildInProgress without waiting when a build is already
// running.
func (l *buildLock) acquire() error {
	if !l.busy.CompareAndSwap(false, true) {
		return apperrors.ErrBuildInProgress
	}
	if err := os.MkdirAll(filepath.Dir(l.file.Path()), 0o755); err != nil {
		l.busy.Store(false)
		return fmt.Errorf("creating index directory: %w", err)
	}
	ok, err := l.file.TryLock()
	if err != nil {
		l.busy.Store(false)
		return fmt.Errorf("locking %s: %w", l.file.Path(), err)
	}
	if !ok {
		l.busy.Store(false)
		return fmt.Errorf("another process holds %s: %w", l.file.Path(), apperrors.ErrBuildInProgress)
	}
	return nil
}

func (l *buildLock) release() {
	_ = l.file.Unlock()
	l.busy.Store(false)
}

func (l *buildLock) held() bool { return l.busy.Load() }
