package trophydb

import (
	"context"
	"fmt"
	"time"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/uptrace/bun"
)

// FireLedger persists the scheduler's fire guard in trophy_schedule_state.
type FireLedger struct {
	db  bun.IDB
	now func() time.Time
}

func NewFireLedger(db bun.IDB) *FireLedger {
	return &FireLedger{db: db, now: time.Now}
}

// LoadFired returns the last fired date of every action that has fired.
func (l *FireLedger) LoadFired(ctx context.Context) (map[trophydomain.AnchoredAction]trophydomain.Date, error) {
	var rows []ScheduleState
	if err := l.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load schedule state: %w", err)
	}

	fired := make(map[trophydomain.AnchoredAction]trophydomain.Date, len(rows))
	for _, row := range rows {
		fired[trophydomain.AnchoredAction(row.Action)] = trophydomain.Date(row.LastFiredDate)
	}
	return fired, nil
}

// RecordFired stores date as the last day action fired.
func (l *FireLedger) RecordFired(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
	row := &ScheduleState{
		Action:        string(action),
		LastFiredDate: string(date),
		UpdatedAt:     l.now().UTC(),
	}

	_, err := l.db.NewInsert().
		Model(row).
		On("CONFLICT (action) DO UPDATE").
		Set("last_fired_date = EXCLUDED.last_fired_date").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record %s fire: %w", action, err)
	}
	return nil
}
