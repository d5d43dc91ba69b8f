package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio_gallery_server/internal/models"
	"studio_gallery_server/internal/pricing"
	"studio_gallery_server/pkg/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SelectionService maintains the client's favorites under the project quota
type SelectionService struct {
	projects  ProjectStore
	access    *AccessService
	lifecycle *LifecycleService
	notifier  Notifier
	activity  activityLog
	logger    *logrus.Logger
	autoStart bool
	now       func() time.Time
}

// Selection is one selected photo in selection order
type Selection struct {
	PhotoID          uuid.UUID `json:"photo_id"`
	OriginalFilename string    `json:"original_filename"`
	Order            int       `json:"selection_order"`
	SelectedAt       time.Time `json:"selected_at"`
}

// SelectionResult describes the photo after an add, remove or toggle
type SelectionResult struct {
	PhotoID       uuid.UUID  `json:"photo_id"`
	Selected      bool       `json:"selected"`
	Order         *int       `json:"selection_order"`
	SelectedAt    *time.Time `json:"selected_at"`
	Changed       bool       `json:"changed"`
	SelectedCount int        `json:"selected_count"`
	MaxSelections *int       `json:"max_selections"`
	Remaining     *int       `json:"remaining"`
}

func NewSelectionService(projects ProjectStore, access *AccessService, lifecycle *LifecycleService, sink ActivitySink, notifier Notifier, autoStart bool, logger *logrus.Logger) *SelectionService {
	return &SelectionService{
		projects:  projects,
		access:    access,
		lifecycle: lifecycle,
		notifier:  notifier,
		activity:  activityLog{sink: sink, logger: logger},
		logger:    logger,
		autoStart: autoStart,
		now:       time.Now,
	}
}

// Add selects a photo. Selecting an already selected photo succeeds without
// changes.
func (s *SelectionService) Add(ctx context.Context, token, sessionToken string, photoID uuid.UUID, ip string) (*SelectionResult, error) {
	project, err := s.openProject(ctx, token, sessionToken)
	if err != nil {
		return nil, err
	}
	return s.add(ctx, project, photoID, ip)
}

// Remove clears a selection. Removing an unselected photo succeeds without
// changes.
func (s *SelectionService) Remove(ctx context.Context, token, sessionToken string, photoID uuid.UUID, ip string) (*SelectionResult, error) {
	project, err := s.openProject(ctx, token, sessionToken)
	if err != nil {
		return nil, err
	}
	return s.remove(ctx, project, photoID, ip)
}

// Toggle removes the selection if present and adds it otherwise
func (s *SelectionService) Toggle(ctx context.Context, token, sessionToken string, photoID uuid.UUID, ip string) (*SelectionResult, error) {
	project, err := s.openProject(ctx, token, sessionToken)
	if err != nil {
		return nil, err
	}

	photo, err := s.projects.GetProjectPhoto(ctx, project.ID, photoID)
	if err != nil {
		return nil, err
	}
	if photo.IsSelected {
		return s.remove(ctx, project, photoID, ip)
	}
	return s.add(ctx, project, photoID, ip)
}

// CountSelected returns the number of selected photos of a project
func (s *SelectionService) CountSelected(ctx context.Context, projectID uuid.UUID) (int, error) {
	return s.projects.CountSelected(ctx, projectID)
}

// ListSelections returns the owner's view of the selections in order
func (s *SelectionService) ListSelections(ctx context.Context, caller Caller, projectID uuid.UUID) ([]Selection, error) {
	if _, err := s.lifecycle.ownedProject(ctx, caller, projectID); err != nil {
		return nil, err
	}

	photos, err := s.projects.ListSelections(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}

	selections := make([]Selection, 0, len(photos))
	for _, p := range photos {
		if p.SelectionOrder == nil {
			continue
		}
		sel := Selection{PhotoID: p.ID, OriginalFilename: p.OriginalFilename, Order: *p.SelectionOrder}
		if p.SelectedAt != nil {
			sel.SelectedAt = *p.SelectedAt
		}
		selections = append(selections, sel)
	}
	return selections, nil
}

// Quote prices the client's current selection
func (s *SelectionService) Quote(ctx context.Context, token, sessionToken string) (*pricing.Quote, error) {
	access, err := s.access.AuthorizeProject(ctx, token, sessionToken)
	if err != nil {
		return nil, err
	}
	return s.quote(ctx, access.Project)
}

// OwnerQuote prices the current selection of an owned project
func (s *SelectionService) OwnerQuote(ctx context.Context, caller Caller, projectID uuid.UUID) (*pricing.Quote, error) {
	project, err := s.lifecycle.ownedProject(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}
	return s.quote(ctx, project)
}

// Submit records that the client finished choosing. The project state is
// left alone; finalizing stays with the owner.
func (s *SelectionService) Submit(ctx context.Context, token, sessionToken, ip string) (*pricing.Quote, error) {
	project, err := s.openProject(ctx, token, sessionToken)
	if err != nil {
		return nil, err
	}

	quote, err := s.quote(ctx, project)
	if err != nil {
		return nil, err
	}

	s.activity.record(ctx, &models.Activity{
		ProjectID:   uuidPtr(project.ID),
		Type:        models.ActivitySelectionSubmitted,
		Description: fmt.Sprintf("Client submitted %d selected photos", quote.Selected),
		Metadata:    models.JSONB{"selected": quote.Selected, "overage": quote.Overage},
	}, ip)

	selected := quote.Selected
	notifyAfterCommit(ctx, s.notifier, s.logger, Intent{
		Kind:      IntentSelectionComplete,
		ProjectID: uuidPtr(project.ID),
		Title:     project.Name,
		Selected:  &selected,
	})
	return quote, nil
}

func (s *SelectionService) quote(ctx context.Context, project *models.Project) (*pricing.Quote, error) {
	plan, err := project.PricingPlan()
	if err != nil {
		return nil, fmt.Errorf("project %s has invalid billing: %w", project.ID, err)
	}
	selected, err := s.projects.CountSelected(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count selections: %w", err)
	}
	quote := plan.Quote(selected, project.ContractedPhotos)
	return &quote, nil
}

// openProject authorizes the client and checks that selection is open
func (s *SelectionService) openProject(ctx context.Context, token, sessionToken string) (*models.Project, error) {
	access, err := s.access.AuthorizeProject(ctx, token, sessionToken)
	if err != nil {
		return nil, err
	}

	project := access.Project
	switch project.Status {
	case models.ProjectStatusSent:
		if s.autoStart {
			project = s.lifecycle.autoStartSelection(ctx, project)
		}
	case models.ProjectStatusInSelection:
	default:
		return nil, ErrSelectionClosed
	}
	return project, nil
}

func (s *SelectionService) add(ctx context.Context, project *models.Project, photoID uuid.UUID, ip string) (*SelectionResult, error) {
	photo, changed, err := s.projects.AddSelection(ctx, project.ID, photoID, s.now())
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			metrics.RecordSelection("add", "quota_exceeded")
			return nil, err
		}
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add selection: %w", err)
	}

	if changed {
		metrics.RecordSelection("add", "added")
		s.activity.record(ctx, &models.Activity{
			ProjectID:   uuidPtr(project.ID),
			Type:        models.ActivitySelectionAdded,
			Description: fmt.Sprintf("Photo %s selected", photo.OriginalFilename),
			Metadata:    models.JSONB{"photo_id": photo.ID.String(), "selection_order": *photo.SelectionOrder},
		}, ip)
	} else {
		metrics.RecordSelection("add", "unchanged")
	}
	return s.result(ctx, project, photo, changed)
}

func (s *SelectionService) remove(ctx context.Context, project *models.Project, photoID uuid.UUID, ip string) (*SelectionResult, error) {
	photo, changed, err := s.projects.RemoveSelection(ctx, project.ID, photoID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to remove selection: %w", err)
	}

	if changed {
		metrics.RecordSelection("remove", "removed")
		s.activity.record(ctx, &models.Activity{
			ProjectID:   uuidPtr(project.ID),
			Type:        models.ActivitySelectionRemoved,
			Description: fmt.Sprintf("Photo %s unselected", photo.OriginalFilename),
			Metadata:    models.JSONB{"photo_id": photo.ID.String()},
		}, ip)
	} else {
		metrics.RecordSelection("remove", "unchanged")
	}
	return s.result(ctx, project, photo, changed)
}

func (s *SelectionService) result(ctx context.Context, project *models.Project, photo *models.Photo, changed bool) (*SelectionResult, error) {
	count, err := s.projects.CountSelected(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count selections: %w", err)
	}

	res := &SelectionResult{
		PhotoID:       photo.ID,
		Selected:      photo.IsSelected,
		Order:         photo.SelectionOrder,
		SelectedAt:    photo.SelectedAt,
		Changed:       changed,
		SelectedCount: count,
		MaxSelections: project.MaxSelections,
	}
	if project.MaxSelections != nil {
		remaining := *project.MaxSelections - count
		if remaining < 0 {
			remaining = 0
		}
		res.Remaining = &remaining
	}
	return res, nil
}
