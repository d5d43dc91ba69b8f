package services

import (
	"context"
	"fmt"
	"strings"

	"studio_gallery_server/internal/models"
	"studio_gallery_server/internal/presentation"
	"studio_gallery_server/internal/pricing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type ProjectService struct {
	projects  ProjectStore
	lifecycle *LifecycleService
	signer    URLSigner
	logger    *logrus.Logger
}

// BillingInput replaces the quota and extra photo billing of a project
type BillingInput struct {
	ContractedPhotos int
	MaxSelections    *int
	ExtraPhotosType  pricing.Mode
	ExtraPhotoPrice  *int64
	PackageSize      *int
	PackagePrice     *int64
}

// SharingInput replaces the sharing settings of a project. A nil Password
// keeps the current one, an empty one removes it.
type SharingInput struct {
	Password           *string
	LinkExpirationDays *int
	AllowDownload      bool
	AddWatermark       bool
}

// CreateProjectInput is everything needed to create a draft project
type CreateProjectInput struct {
	Name        string
	ClientEmail *string
	Billing     BillingInput
	Sharing     SharingInput
}

// WatermarkInput configures the watermark of a photo
type WatermarkInput struct {
	Text     string
	Position models.WatermarkPosition
	FontSize *int
	Opacity  *float64
}

// PhotoInput registers an uploaded photo and its derived variants
type PhotoInput struct {
	OriginalFilename string
	OriginalKey      string
	WatermarkedKey   *string
	ThumbnailKey     *string
	FileSize         int64
	MimeType         string
	Watermark        *WatermarkInput
}

func NewProjectService(projects ProjectStore, lifecycle *LifecycleService, signer URLSigner, logger *logrus.Logger) *ProjectService {
	return &ProjectService{
		projects:  projects,
		lifecycle: lifecycle,
		signer:    signer,
		logger:    logger,
	}
}

// CreateProject creates a new draft project owned by the caller
func (s *ProjectService) CreateProject(ctx context.Context, caller Caller, input CreateProjectInput) (*models.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("project name is required")
	}
	if caller.UserID == uuid.Nil {
		return nil, validationError("owner ID is required")
	}

	project := &models.Project{
		OwnerID:     caller.UserID,
		Name:        name,
		ClientEmail: input.ClientEmail,
		Status:      models.ProjectStatusDraft,
	}
	applyBilling(project, input.Billing)
	if err := applySharing(project, input.Sharing); err != nil {
		return nil, err
	}
	if err := project.Validate(); err != nil {
		return nil, validationError("%v", err)
	}

	if err := s.projects.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"project_id": project.ID,
		"owner_id":   project.OwnerID,
	}).Info("Project created")
	return project, nil
}

// GetProject returns a project owned by the caller
func (s *ProjectService) GetProject(ctx context.Context, caller Caller, id uuid.UUID) (*models.Project, error) {
	return s.lifecycle.ownedProject(ctx, caller, id)
}

// ListProjects retrieves a paginated list of the caller's projects
func (s *ProjectService) ListProjects(ctx context.Context, caller Caller, status *models.ProjectStatus, offset, limit int) ([]models.Project, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.projects.ListProjects(ctx, ProjectListFilter{
		OwnerID: caller.UserID,
		Status:  status,
		Offset:  offset,
		Limit:   limit,
	})
}

// UpdateBilling replaces the quota and billing configuration
func (s *ProjectService) UpdateBilling(ctx context.Context, caller Caller, id uuid.UUID, input BillingInput) (*models.Project, error) {
	project, err := s.editableProject(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	applyBilling(project, input)
	if err := project.Validate(); err != nil {
		return nil, validationError("%v", err)
	}

	if err := s.projects.UpdateProjectColumns(ctx, project,
		"contracted_photos", "max_selections", "extra_photos_type",
		"extra_photo_price", "package_size", "package_price"); err != nil {
		return nil, fmt.Errorf("failed to update billing: %w", err)
	}
	return s.projects.GetProject(ctx, id)
}

// UpdateSharing replaces the sharing configuration. Changing the password
// invalidates every outstanding gallery session.
func (s *ProjectService) UpdateSharing(ctx context.Context, caller Caller, id uuid.UUID, input SharingInput) (*models.Project, error) {
	project, err := s.editableProject(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if err := applySharing(project, input); err != nil {
		return nil, err
	}
	if err := project.Validate(); err != nil {
		return nil, validationError("%v", err)
	}

	if err := s.projects.UpdateProjectColumns(ctx, project,
		"access_password_hash", "link_expiration_days", "allow_download", "add_watermark"); err != nil {
		return nil, fmt.Errorf("failed to update sharing: %w", err)
	}
	return s.projects.GetProject(ctx, id)
}

// RotateShareToken replaces the share token. The old link stops working.
func (s *ProjectService) RotateShareToken(ctx context.Context, caller Caller, id uuid.UUID) (*models.Project, string, error) {
	project, err := s.editableProject(ctx, caller, id)
	if err != nil {
		return nil, "", err
	}

	token, err := GenerateShareToken()
	if err != nil {
		return nil, "", err
	}
	project.ShareToken = &token
	if err := s.projects.UpdateProjectColumns(ctx, project, "share_token"); err != nil {
		return nil, "", fmt.Errorf("failed to rotate share token: %w", err)
	}

	s.logger.WithField("project_id", project.ID).Info("Share token rotated")
	updated, err := s.projects.GetProject(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return updated, s.lifecycle.GalleryURL(token), nil
}

// AddPhoto registers a photo in a project
func (s *ProjectService) AddPhoto(ctx context.Context, caller Caller, projectID uuid.UUID, input PhotoInput) (*models.Photo, error) {
	project, err := s.editableProject(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}

	photo, err := newPhoto(input)
	if err != nil {
		return nil, err
	}
	photo.ProjectID = uuidPtr(project.ID)
	if err := photo.Validate(); err != nil {
		return nil, validationError("%v", err)
	}

	if err := s.projects.AddPhoto(ctx, photo); err != nil {
		return nil, fmt.Errorf("failed to add photo: %w", err)
	}
	return photo, nil
}

// ListPhotos returns the owner's view of a project's photos
func (s *ProjectService) ListPhotos(ctx context.Context, caller Caller, projectID uuid.UUID) ([]PhotoView, error) {
	project, err := s.lifecycle.ownedProject(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}

	photos, err := s.projects.ListProjectPhotos(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photoViews(ctx, s.signer, photos, galleryFlags(project), presentation.ViewerOwner)
}

func (s *ProjectService) editableProject(ctx context.Context, caller Caller, id uuid.UUID) (*models.Project, error) {
	project, err := s.lifecycle.ownedProject(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if project.Status == models.ProjectStatusDeleted {
		return nil, validationError("project is deleted")
	}
	return project, nil
}

func applyBilling(project *models.Project, input BillingInput) {
	project.ContractedPhotos = input.ContractedPhotos
	project.MaxSelections = input.MaxSelections
	project.ExtraPhotosType = input.ExtraPhotosType
	if project.ExtraPhotosType == "" {
		project.ExtraPhotosType = pricing.ModeIndividual
	}
	project.ExtraPhotoPrice = input.ExtraPhotoPrice
	project.PackageSize = input.PackageSize
	project.PackagePrice = input.PackagePrice
}

func applySharing(project *models.Project, input SharingInput) error {
	if input.Password != nil {
		if *input.Password == "" {
			project.AccessPasswordHash = nil
		} else {
			hash, err := HashPassword(*input.Password)
			if err != nil {
				return err
			}
			project.AccessPasswordHash = &hash
		}
	}
	project.LinkExpirationDays = input.LinkExpirationDays
	project.AllowDownload = input.AllowDownload
	project.AddWatermark = input.AddWatermark
	return nil
}

// HashPassword hashes a gallery password with bcrypt
func HashPassword(password string) (string, error) {
	if len(password) > 72 {
		return "", validationError("password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func newPhoto(input PhotoInput) (*models.Photo, error) {
	if strings.TrimSpace(input.OriginalFilename) == "" {
		return nil, validationError("original filename is required")
	}
	if strings.TrimSpace(input.OriginalKey) == "" {
		return nil, validationError("original key is required")
	}

	photo := &models.Photo{
		OriginalFilename: input.OriginalFilename,
		OriginalKey:      input.OriginalKey,
		WatermarkedKey:   input.WatermarkedKey,
		ThumbnailKey:     input.ThumbnailKey,
		FileSize:         input.FileSize,
		MimeType:         input.MimeType,
	}

	if wm := input.Watermark; wm != nil {
		if strings.TrimSpace(wm.Text) == "" {
			return nil, validationError("watermark text is required")
		}
		position := wm.Position
		if position == "" {
			position = models.WatermarkCenter
		}
		if !position.Valid() {
			return nil, validationError("unknown watermark position %q", position)
		}
		text := wm.Text
		photo.HasWatermark = true
		photo.WatermarkText = &text
		photo.WatermarkPosition = &position
		photo.WatermarkFontSize = wm.FontSize
		photo.WatermarkOpacity = wm.Opacity
	}
	return photo, nil
}
