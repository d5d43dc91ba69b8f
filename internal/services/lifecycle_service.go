package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio_gallery_server/internal/lifecycle"
	"studio_gallery_server/internal/models"
	"studio_gallery_server/pkg/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LifecycleService applies project and delivery actions. Each action is a
// single conditional update; activity and notifications follow the commit.
type LifecycleService struct {
	projects      ProjectStore
	deliveries    DeliveryStore
	notifier      Notifier
	activity      activityLog
	logger        *logrus.Logger
	publicBaseURL string
	now           func() time.Time
}

func NewLifecycleService(projects ProjectStore, deliveries DeliveryStore, sink ActivitySink, notifier Notifier, publicBaseURL string, logger *logrus.Logger) *LifecycleService {
	return &LifecycleService{
		projects:      projects,
		deliveries:    deliveries,
		notifier:      notifier,
		activity:      activityLog{sink: sink, logger: logger},
		logger:        logger,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           time.Now,
	}
}

// GalleryURL returns the public URL of a project gallery
func (s *LifecycleService) GalleryURL(token string) string {
	return fmt.Sprintf("%s/gallery/%s", s.publicBaseURL, token)
}

// DeliveryURL returns the public URL of a delivery
func (s *LifecycleService) DeliveryURL(token string) string {
	return fmt.Sprintf("%s/delivery/%s", s.publicBaseURL, token)
}

// SendProject publishes a draft project to recipient
func (s *LifecycleService) SendProject(ctx context.Context, caller Caller, id uuid.UUID, recipient string) (*models.Project, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, validationError("recipient email is required")
	}

	project, err := s.ownedProject(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	token := ""
	if project.ShareToken != nil {
		token = *project.ShareToken
	}
	updated, err := s.applyProject(ctx, project, lifecycle.ActionSend, caller.IP, func(change *ProjectStatusChange) error {
		change.ClientEmail = &recipient
		if token == "" {
			generated, err := GenerateShareToken()
			if err != nil {
				return err
			}
			token = generated
			change.ShareToken = &token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	notifyAfterCommit(ctx, s.notifier, s.logger, Intent{
		Kind:      IntentGalleryReady,
		Recipient: recipient,
		ProjectID: uuidPtr(updated.ID),
		Title:     updated.Name,
		ShareURL:  s.GalleryURL(token),
	})
	return updated, nil
}

// StartSelection opens a sent project for selection
func (s *LifecycleService) StartSelection(ctx context.Context, caller Caller, id uuid.UUID) (*models.Project, error) {
	return s.projectAction(ctx, caller, id, lifecycle.ActionStartSelection)
}

// FinalizeProject closes selection
func (s *LifecycleService) FinalizeProject(ctx context.Context, caller Caller, id uuid.UUID) (*models.Project, error) {
	return s.projectAction(ctx, caller, id, lifecycle.ActionFinalize)
}

// ArchiveProject hides the gallery and remembers the active state
func (s *LifecycleService) ArchiveProject(ctx context.Context, caller Caller, id uuid.UUID) (*models.Project, error) {
	return s.projectAction(ctx, caller, id, lifecycle.ActionArchive)
}

// DeleteProject soft deletes a project
func (s *LifecycleService) DeleteProject(ctx context.Context, caller Caller, id uuid.UUID) (*models.Project, error) {
	return s.projectAction(ctx, caller, id, lifecycle.ActionDelete)
}

// RestoreProject returns an archived or deleted project to its remembered
// state. A client-visible restore restarts the link expiration window.
func (s *LifecycleService) RestoreProject(ctx context.Context, caller Caller, id uuid.UUID) (*models.Project, error) {
	project, err := s.ownedProject(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.applyProject(ctx, project, lifecycle.ActionRestore, caller.IP, func(change *ProjectStatusChange) error {
		if clientVisible(change.To) {
			at := change.At
			change.SentAt = &at
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if clientVisible(updated.Status) && updated.ClientEmail != nil && updated.ShareToken != nil {
		notifyAfterCommit(ctx, s.notifier, s.logger, Intent{
			Kind:      IntentGalleryRestored,
			Recipient: *updated.ClientEmail,
			ProjectID: uuidPtr(updated.ID),
			Title:     updated.Name,
			ShareURL:  s.GalleryURL(*updated.ShareToken),
		})
	}
	return updated, nil
}

// PurgeProject permanently removes a soft-deleted project and its photos
func (s *LifecycleService) PurgeProject(ctx context.Context, caller Caller, id uuid.UUID) error {
	project, err := s.ownedProject(ctx, caller, id)
	if err != nil {
		return err
	}
	_, err = s.applyProject(ctx, project, lifecycle.ActionPurge, caller.IP, nil)
	return err
}

// expireProject archives a project whose link has expired. A concurrent
// transition wins silently; the caller reports expiry either way.
func (s *LifecycleService) expireProject(ctx context.Context, project *models.Project) {
	_, err := s.applyProject(ctx, project, lifecycle.ActionExpire, "", nil)
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		s.logger.WithError(err).WithField("project_id", project.ID).Error("Failed to expire project")
	}
}

// autoStartSelection moves a sent project to in_selection on client activity
func (s *LifecycleService) autoStartSelection(ctx context.Context, project *models.Project) *models.Project {
	updated, err := s.applyProject(ctx, project, lifecycle.ActionStartSelection, "", nil)
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			s.logger.WithError(err).WithField("project_id", project.ID).Warn("Failed to start selection automatically")
		}
		return project
	}
	return updated
}

func (s *LifecycleService) projectAction(ctx context.Context, caller Caller, id uuid.UUID, action lifecycle.Action) (*models.Project, error) {
	project, err := s.ownedProject(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.applyProject(ctx, project, action, caller.IP, nil)
}

func (s *LifecycleService) ownedProject(ctx context.Context, caller Caller, id uuid.UUID) (*models.Project, error) {
	project, err := s.projects.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != caller.UserID {
		return nil, ErrNotFound
	}
	return project, nil
}

func (s *LifecycleService) applyProject(ctx context.Context, project *models.Project, action lifecycle.Action, ip string, prepare func(*ProjectStatusChange) error) (*models.Project, error) {
	tr, err := lifecycle.Project(project.Status, project.PreviousStatus, action)
	if err != nil {
		metrics.RecordTransition("project", string(action), false)
		return nil, err
	}
	if tr.NoOp {
		return project, nil
	}

	if tr.Remove {
		if err := s.projects.DeleteProject(ctx, project.ID); err != nil {
			if errors.Is(err, ErrStaleState) {
				metrics.RecordTransition("project", string(action), false)
				return nil, s.staleProject(ctx, project.ID, action, "removed")
			}
			return nil, fmt.Errorf("failed to delete project: %w", err)
		}
		metrics.RecordTransition("project", string(action), true)
		s.activity.record(ctx, &models.Activity{
			ProjectID:   uuidPtr(project.ID),
			Type:        models.ActivityProjectTransition,
			Description: fmt.Sprintf("Project %q deleted permanently", project.Name),
			Metadata:    models.JSONB{"action": string(action), "from": string(tr.From)},
		}, ip)
		return nil, nil
	}

	now := s.now()
	change := ProjectStatusChange{From: tr.From, To: tr.To, Previous: tr.Previous, At: now}
	switch tr.To {
	case models.ProjectStatusSent:
		change.SentAt = &now
	case models.ProjectStatusFinalized:
		change.FinalizedAt = &now
	case models.ProjectStatusArchived:
		change.ArchivedAt = &now
	case models.ProjectStatusDeleted:
		change.DeletedAt = &now
	}
	if prepare != nil {
		if err := prepare(&change); err != nil {
			return nil, err
		}
	}

	if err := s.projects.ApplyProjectChange(ctx, project.ID, change); err != nil {
		if errors.Is(err, ErrStaleState) {
			metrics.RecordTransition("project", string(action), false)
			return nil, s.staleProject(ctx, project.ID, action, string(tr.To))
		}
		return nil, fmt.Errorf("failed to apply project transition: %w", err)
	}
	metrics.RecordTransition("project", string(action), true)

	s.activity.record(ctx, &models.Activity{
		ProjectID:   uuidPtr(project.ID),
		Type:        models.ActivityProjectTransition,
		Description: fmt.Sprintf("Project moved from %s to %s", tr.From, tr.To),
		Metadata:    models.JSONB{"action": string(action), "from": string(tr.From), "to": string(tr.To)},
	}, ip)

	return s.projects.GetProject(ctx, project.ID)
}

func (s *LifecycleService) staleProject(ctx context.Context, id uuid.UUID, action lifecycle.Action, requested string) error {
	current, err := s.projects.GetProject(ctx, id)
	if err != nil {
		return err
	}
	return &lifecycle.TransitionError{
		Entity:    "project",
		Action:    action,
		Current:   string(current.Status),
		Requested: requested,
	}
}

// SendDelivery publishes a delivery to recipient
func (s *LifecycleService) SendDelivery(ctx context.Context, caller Caller, id uuid.UUID, recipient string) (*models.Delivery, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, validationError("recipient email is required")
	}

	delivery, err := s.ownedDelivery(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	token := ""
	if delivery.ShareToken != nil {
		token = *delivery.ShareToken
	}
	updated, err := s.applyDelivery(ctx, delivery, lifecycle.ActionSend, caller.IP, func(change *DeliveryStatusChange) error {
		change.ClientEmail = &recipient
		if token == "" {
			generated, err := GenerateShareToken()
			if err != nil {
				return err
			}
			token = generated
			change.ShareToken = &token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	notifyAfterCommit(ctx, s.notifier, s.logger, Intent{
		Kind:       IntentDeliveryReady,
		Recipient:  recipient,
		DeliveryID: uuidPtr(updated.ID),
		Title:      updated.Title,
		ShareURL:   s.DeliveryURL(token),
	})
	return updated, nil
}

// DeleteDelivery soft deletes a delivery
func (s *LifecycleService) DeleteDelivery(ctx context.Context, caller Caller, id uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.ownedDelivery(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.applyDelivery(ctx, delivery, lifecycle.ActionDelete, caller.IP, nil)
}

// RestoreDelivery undoes a soft delete
func (s *LifecycleService) RestoreDelivery(ctx context.Context, caller Caller, id uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.ownedDelivery(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.applyDelivery(ctx, delivery, lifecycle.ActionRestore, caller.IP, func(change *DeliveryStatusChange) error {
		if change.To == models.DeliveryStatusSent || change.To == models.DeliveryStatusDownloaded {
			at := change.At
			change.SentAt = &at
		}
		return nil
	})
}

// PurgeDelivery permanently removes a soft-deleted delivery
func (s *LifecycleService) PurgeDelivery(ctx context.Context, caller Caller, id uuid.UUID) error {
	delivery, err := s.ownedDelivery(ctx, caller, id)
	if err != nil {
		return err
	}
	_, err = s.applyDelivery(ctx, delivery, lifecycle.ActionPurge, caller.IP, nil)
	return err
}

func (s *LifecycleService) expireDelivery(ctx context.Context, delivery *models.Delivery) {
	_, err := s.applyDelivery(ctx, delivery, lifecycle.ActionExpire, "", nil)
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		s.logger.WithError(err).WithField("delivery_id", delivery.ID).Error("Failed to expire delivery")
	}
}

// markDownloaded records the first client download of a delivery
func (s *LifecycleService) markDownloaded(ctx context.Context, delivery *models.Delivery, ip string) {
	_, err := s.applyDelivery(ctx, delivery, lifecycle.ActionDownload, ip, nil)
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		s.logger.WithError(err).WithField("delivery_id", delivery.ID).Warn("Failed to mark delivery downloaded")
	}
}

func (s *LifecycleService) staleDelivery(ctx context.Context, id uuid.UUID, action lifecycle.Action, requested string) error {
	current, err := s.deliveries.GetDelivery(ctx, id)
	if err != nil {
		return err
	}
	return &lifecycle.TransitionError{
		Entity:    "delivery",
		Action:    action,
		Current:   string(current.Status),
		Requested: requested,
	}
}

func (s *LifecycleService) ownedDelivery(ctx context.Context, caller Caller, id uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.deliveries.GetDelivery(ctx, id)
	if err != nil {
		return nil, err
	}
	if delivery.OwnerID != caller.UserID {
		return nil, ErrNotFound
	}
	return delivery, nil
}

func (s *LifecycleService) applyDelivery(ctx context.Context, delivery *models.Delivery, action lifecycle.Action, ip string, prepare func(*DeliveryStatusChange) error) (*models.Delivery, error) {
	tr, err := lifecycle.Delivery(delivery.Status, delivery.PreviousStatus, action)
	if err != nil {
		metrics.RecordTransition("delivery", string(action), false)
		return nil, err
	}
	if tr.NoOp {
		return delivery, nil
	}

	if tr.Remove {
		if err := s.deliveries.DeleteDelivery(ctx, delivery.ID); err != nil {
			if errors.Is(err, ErrStaleState) {
				metrics.RecordTransition("delivery", string(action), false)
				return nil, s.staleDelivery(ctx, delivery.ID, action, "removed")
			}
			return nil, fmt.Errorf("failed to delete delivery: %w", err)
		}
		metrics.RecordTransition("delivery", string(action), true)
		s.activity.record(ctx, &models.Activity{
			DeliveryID:  uuidPtr(delivery.ID),
			Type:        models.ActivityDeliveryTransition,
			Description: fmt.Sprintf("Delivery %q deleted permanently", delivery.Title),
			Metadata:    models.JSONB{"action": string(action), "from": string(tr.From)},
		}, ip)
		return nil, nil
	}

	now := s.now()
	change := DeliveryStatusChange{From: tr.From, To: tr.To, Previous: tr.Previous, At: now}
	switch tr.To {
	case models.DeliveryStatusSent:
		change.SentAt = &now
	case models.DeliveryStatusDownloaded:
		change.DownloadedAt = &now
	case models.DeliveryStatusExpired:
		change.ExpiredAt = &now
	case models.DeliveryStatusDeleted:
		change.DeletedAt = &now
	}
	if prepare != nil {
		if err := prepare(&change); err != nil {
			return nil, err
		}
	}

	if err := s.deliveries.ApplyDeliveryChange(ctx, delivery.ID, change); err != nil {
		if errors.Is(err, ErrStaleState) {
			metrics.RecordTransition("delivery", string(action), false)
			return nil, s.staleDelivery(ctx, delivery.ID, action, string(tr.To))
		}
		return nil, fmt.Errorf("failed to apply delivery transition: %w", err)
	}
	metrics.RecordTransition("delivery", string(action), true)

	s.activity.record(ctx, &models.Activity{
		DeliveryID:  uuidPtr(delivery.ID),
		Type:        models.ActivityDeliveryTransition,
		Description: fmt.Sprintf("Delivery moved from %s to %s", tr.From, tr.To),
		Metadata:    models.JSONB{"action": string(action), "from": string(tr.From), "to": string(tr.To)},
	}, ip)

	return s.deliveries.GetDelivery(ctx, delivery.ID)
}

func clientVisible(status models.ProjectStatus) bool {
	return status == models.ProjectStatusSent || status == models.ProjectStatusInSelection
}
