package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bibbank/realizer/internal/domain/port"
)

// DefaultLockTTL bounds how long a crashed run can keep a position busy.
const DefaultLockTTL = 5 * time.Minute

// LockKey is the locker key of one position.
func LockKey(stockBookID, positionID string) string {
	return "realizer:position:" + stockBookID + ":" + positionID
}

// RunLocked runs fn while holding the position's lock. It returns
// port.ErrPositionBusy without calling fn when another run holds it.
func RunLocked(ctx context.Context, locker port.PositionLocker, ttl time.Duration, stockBookID, positionID string, fn func(context.Context) error) error {
	release, err := locker.Acquire(ctx, LockKey(stockBookID, positionID), ttl)
	if err != nil {
		return err
	}
	defer func() {
		// The run's context may be gone by now.
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.Default().WarnContext(ctx, "failed to release position lock",
				"stock_book_id", stockBookID, "position_id", positionID, "error", err)
		}
	}()
	if err := fn(ctx); err != nil {
		return fmt.Errorf("position %s: %w", positionID, err)
	}
	return nil
}
