package alert

import "net-scout/internal/model"

// Notifier receives newly recorded alerts. Delivery is best-effort; a
// notifier error never fails the detection run.
type Notifier interface {
	SendAlert(alert model.Alert) error
}
