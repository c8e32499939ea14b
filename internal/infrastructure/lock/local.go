package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bibbank/realizer/internal/domain/port"
)

// Compile-time interface check
var _ port.PositionLocker = (*LocalLocker)(nil)

// LocalLocker holds position locks in process. It serves single-instance
// deployments and the CLI.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

// Acquire takes key until released or until ttl passes. A zero ttl never
// expires.
func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, ok := l.held[key]; ok && (expiry.IsZero() || now.Before(expiry)) {
		return nil, fmt.Errorf("lock %s: %w", key, port.ErrPositionBusy)
	}
	var expiry time.Time
	if ttl > 0 {
		expiry = now.Add(ttl)
	}
	l.held[key] = expiry

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == expiry {
				delete(l.held, key)
			}
		})
		return nil
	}, nil
}
