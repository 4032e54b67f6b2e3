package notify

import (
	"context"

	"andon-board/internal/stations/application"
)

// MultiNotifier dispatches station events to multiple notifiers.
type MultiNotifier struct {
	notifiers []application.Notifier
}

// NewMultiNotifier constructs a MultiNotifier. Nil entries are skipped.
func NewMultiNotifier(notifiers ...application.Notifier) *MultiNotifier {
	kept := make([]application.Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &MultiNotifier{notifiers: kept}
}

// Notify forwards events to all notifiers in order.
func (m *MultiNotifier) Notify(ctx context.Context, event application.StationEvent) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		notifier.Notify(ctx, event)
	}
}
