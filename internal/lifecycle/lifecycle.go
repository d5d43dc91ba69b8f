// Package lifecycle holds the project and delivery state machines. It only
// decides transitions; persisting them is the caller's job.
package lifecycle

import (
	"errors"
	"fmt"

	"studio_gallery_server/internal/models"
)

// Action is an operation requested against a project or delivery
type Action string

const (
	ActionSend           Action = "send"
	ActionStartSelection Action = "start_selection"
	ActionFinalize       Action = "finalize"
	ActionArchive        Action = "archive"
	ActionRestore        Action = "restore"
	ActionDelete         Action = "delete"
	ActionPurge          Action = "delete_permanently"
	ActionExpire         Action = "expire"
	ActionDownload       Action = "download"
)

// ErrInvalidTransition matches every *TransitionError
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError names the entity, the current state and the state the
// action would have led to.
type TransitionError struct {
	Entity    string
	Action    Action
	Current   string
	Requested string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s: current state %q does not allow %q", e.Action, e.Entity, e.Current, e.Requested)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ProjectTransition is the outcome of a permitted project action
type ProjectTransition struct {
	Action Action
	From   models.ProjectStatus
	To     models.ProjectStatus

	// Previous is the value to store in previous_status; nil clears it
	Previous *models.ProjectStatus

	// NoOp is set when the project is already in the requested state
	NoOp bool

	// Remove is set when the record must be deleted permanently
	Remove bool
}

// requestedProjectState is the nominal target used in error messages
var requestedProjectState = map[Action]string{
	ActionSend:           string(models.ProjectStatusSent),
	ActionStartSelection: string(models.ProjectStatusInSelection),
	ActionFinalize:       string(models.ProjectStatusFinalized),
	ActionArchive:        string(models.ProjectStatusArchived),
	ActionExpire:         string(models.ProjectStatusArchived),
	ActionDelete:         string(models.ProjectStatusDeleted),
	ActionRestore:        "restored",
	ActionPurge:          "removed",
}

// Project decides the transition for action given the current status and the
// previously recorded active status.
func Project(current models.ProjectStatus, previous *models.ProjectStatus, action Action) (ProjectTransition, error) {
	t := ProjectTransition{Action: action, From: current, Previous: previous}

	switch action {
	case ActionSend:
		if current == models.ProjectStatusDraft {
			t.To = models.ProjectStatusSent
			return t, nil
		}
	case ActionStartSelection:
		switch current {
		case models.ProjectStatusSent:
			t.To = models.ProjectStatusInSelection
			return t, nil
		case models.ProjectStatusInSelection:
			t.To = current
			t.NoOp = true
			return t, nil
		}
	case ActionFinalize:
		if current == models.ProjectStatusInSelection {
			t.To = models.ProjectStatusFinalized
			return t, nil
		}
	case ActionArchive:
		if current.IsActive() {
			t.To = models.ProjectStatusArchived
			t.Previous = statusPtr(current)
			return t, nil
		}
	case ActionExpire:
		switch current {
		case models.ProjectStatusSent, models.ProjectStatusInSelection, models.ProjectStatusFinalized:
			t.To = models.ProjectStatusArchived
			t.Previous = statusPtr(current)
			return t, nil
		}
	case ActionDelete:
		if current != models.ProjectStatusDeleted {
			t.To = models.ProjectStatusDeleted
			if current.IsActive() {
				t.Previous = statusPtr(current)
			}
			return t, nil
		}
	case ActionRestore:
		if current == models.ProjectStatusArchived || current == models.ProjectStatusDeleted {
			t.To = restoreTarget(previous)
			t.Previous = nil
			return t, nil
		}
	case ActionPurge:
		if current == models.ProjectStatusDeleted {
			t.To = current
			t.Remove = true
			return t, nil
		}
	}

	requested, ok := requestedProjectState[action]
	if !ok {
		requested = string(action)
	}
	return ProjectTransition{}, &TransitionError{
		Entity:    "project",
		Action:    action,
		Current:   string(current),
		Requested: requested,
	}
}

// restoreTarget maps the remembered active state to the state a restore
// returns to. A finalized project reopens for selection.
func restoreTarget(previous *models.ProjectStatus) models.ProjectStatus {
	if previous == nil {
		return models.ProjectStatusDraft
	}
	switch *previous {
	case models.ProjectStatusSent:
		return models.ProjectStatusSent
	case models.ProjectStatusInSelection, models.ProjectStatusFinalized:
		return models.ProjectStatusInSelection
	default:
		return models.ProjectStatusDraft
	}
}

func statusPtr(s models.ProjectStatus) *models.ProjectStatus {
	return &s
}
