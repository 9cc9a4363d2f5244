package notify

import (
	"context"
	"errors"

	maintapp "scada-maintenance/internal/maintenance/application"
)

// MultiNotifier dispatches lifecycle notifications to multiple notifiers.
// Every notifier is attempted even when an earlier one fails.
type MultiNotifier struct {
	notifiers []maintapp.Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...maintapp.Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards the notification to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, notification maintapp.Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
