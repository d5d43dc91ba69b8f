package lifecycle

import "studio_gallery_server/internal/models"

// DeliveryTransition is the outcome of a permitted delivery action
type DeliveryTransition struct {
	Action   Action
	From     models.DeliveryStatus
	To       models.DeliveryStatus
	Previous *models.DeliveryStatus
	NoOp     bool
	Remove   bool
}

var requestedDeliveryState = map[Action]string{
	ActionSend:     string(models.DeliveryStatusSent),
	ActionDownload: string(models.DeliveryStatusDownloaded),
	ActionExpire:   string(models.DeliveryStatusExpired),
	ActionDelete:   string(models.DeliveryStatusDeleted),
	ActionRestore:  "restored",
	ActionPurge:    "removed",
}

// Delivery decides the transition for a delivery action. The delivery
// machine is smaller than the project one and has no archive state.
func Delivery(current models.DeliveryStatus, previous *models.DeliveryStatus, action Action) (DeliveryTransition, error) {
	t := DeliveryTransition{Action: action, From: current, Previous: previous}

	switch action {
	case ActionSend:
		if current == models.DeliveryStatusCreated {
			t.To = models.DeliveryStatusSent
			return t, nil
		}
	case ActionDownload:
		switch current {
		case models.DeliveryStatusSent:
			t.To = models.DeliveryStatusDownloaded
			return t, nil
		case models.DeliveryStatusDownloaded:
			t.To = current
			t.NoOp = true
			return t, nil
		}
	case ActionExpire:
		switch current {
		case models.DeliveryStatusSent, models.DeliveryStatusDownloaded:
			t.To = models.DeliveryStatusExpired
			return t, nil
		}
	case ActionDelete:
		if current != models.DeliveryStatusDeleted {
			t.To = models.DeliveryStatusDeleted
			prev := current
			t.Previous = &prev
			return t, nil
		}
	case ActionRestore:
		if current == models.DeliveryStatusDeleted {
			t.To = models.DeliveryStatusCreated
			if previous != nil {
				t.To = *previous
			}
			t.Previous = nil
			return t, nil
		}
	case ActionPurge:
		if current == models.DeliveryStatusDeleted {
			t.To = current
			t.Remove = true
			return t, nil
		}
	}

	requested, ok := requestedDeliveryState[action]
	if !ok {
		requested = string(action)
	}
	return DeliveryTransition{}, &TransitionError{
		Entity:    "delivery",
		Action:    action,
		Current:   string(current),
		Requested: requested,
	}
}
