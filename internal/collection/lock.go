package collection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/hyperjump/kotae/internal/models"
)

const lockRetryDelay = 50 * time.Millisecond

// creationLock serializes the exists-then-create sequence across goroutines and processes.
// A flock handle reports success again to anyone sharing it, so goroutines of one Manager
// take the in-process slot first and only its holder touches "<location>.lock".
type creationLock struct {
	slot chan struct{}
	fl   *flock.Flock
}

func newCreationLock(location string) *creationLock {
	return &creationLock{
		slot: make(chan struct{}, 1),
		fl:   flock.New(location + ".lock"),
	}
}

// acquire blocks until the lock is held or ctx is done.
func (l *creationLock) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: acquire collection lock %s: %w", models.ErrStore, l.fl.Path(), err)
	}
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: acquire collection lock %s: %w", models.ErrStore, l.fl.Path(), ctx.Err())
	}

	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0755); err != nil {
		<-l.slot
		return fmt.Errorf("%w: create collection parent directory: %w", models.ErrStore, err)
	}
	locked, err := l.fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		<-l.slot
		return fmt.Errorf("%w: acquire collection lock %s: %w", models.ErrStore, l.fl.Path(), err)
	}
	if !locked {
		<-l.slot
		return fmt.Errorf("%w: collection lock %s not acquired", models.ErrStore, l.fl.Path())
	}
	return nil
}

func (l *creationLock) release() {
	_ = l.fl.Unlock()
	<-l.slot
}
