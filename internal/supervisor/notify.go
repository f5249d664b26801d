package supervisor

import (
	"context"
	"strconv"
	"time"

	"flowpool/internal/logging"
	"flowpool/internal/notifications"
)

const notifyTimeout = 15 * time.Second

// notify publishes an alert. A failed publish is logged and otherwise ignored.
func (s *Supervisor) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(s.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func chainPayload(slot *Slot, exitStatus int) notifications.Payload {
	return notifications.Payload{
		"chain":       strconv.FormatInt(slot.Chain.ID, 10),
		"owner":       slot.Chain.Owner,
		"run_name":    slot.RunName,
		"exit_status": strconv.Itoa(exitStatus),
	}
}
