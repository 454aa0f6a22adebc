package source

import (
	"context"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// Points fetches individual strikes with get_strikes and supports cursor-based
// incremental fetches.
type Points struct {
	caller          Caller
	intervalMinutes int
	offset          int
}

// NewPoints creates a point source. A negative offset replaces the cursor
// parameter and pins every request to a fixed historical slice.
func NewPoints(caller Caller, intervalMinutes, offset int) *Points {
	return &Points{caller: caller, intervalMinutes: intervalMinutes, offset: offset}
}

func (p *Points) Name() string { return "points" }

// Initial requests the full interval.
func (p *Points) Initial(ctx context.Context) (domain.Batch, error) {
	return p.fetch(ctx, 0)
}

// Incremental requests only strikes newer than cursor.
func (p *Points) Incremental(ctx context.Context, cursor domain.Cursor) (domain.Batch, error) {
	return p.fetch(ctx, cursor)
}

func (p *Points) fetch(ctx context.Context, cursor domain.Cursor) (domain.Batch, error) {
	arg := int64(cursor)
	if p.offset < 0 {
		arg = int64(p.offset)
	}
	return fetch(ctx, p.caller, domain.MethodStrikes, p.intervalMinutes, arg)
}
