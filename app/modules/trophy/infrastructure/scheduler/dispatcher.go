package trophyscheduler

import (
	"context"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
)

// ActionRunner executes an anchored action for a local date.
type ActionRunner interface {
	RunAnchoredAction(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error
}

// Dispatcher hands a claimed occurrence to whatever runs it. Returning
// trophydomain.ErrSchedulerReentrancy means the occurrence already ran
// elsewhere.
type Dispatcher interface {
	Dispatch(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error
}

// InlineDispatcher runs the action on the calling goroutine.
type InlineDispatcher struct {
	Runner ActionRunner
}

func NewInlineDispatcher(runner ActionRunner) *InlineDispatcher {
	return &InlineDispatcher{Runner: runner}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
	return d.Runner.RunAnchoredAction(ctx, action, date)
}
