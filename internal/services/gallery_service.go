package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio_gallery_server/internal/models"
	"studio_gallery_server/internal/presentation"
	"studio_gallery_server/internal/pricing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GalleryService composes what the public gallery and delivery pages show
type GalleryService struct {
	access     *AccessService
	projects   ProjectStore
	deliveries DeliveryStore
	lifecycle  *LifecycleService
	signer     URLSigner
	activity   activityLog
	logger     *logrus.Logger
	autoStart  bool
}

// PhotoView is a photo as a viewer may see it. Available is false when the
// only variant the viewer may receive does not exist yet.
type PhotoView struct {
	ID               uuid.UUID                   `json:"id"`
	OriginalFilename string                      `json:"original_filename"`
	Available        bool                        `json:"available"`
	Variant          presentation.Variant        `json:"variant,omitempty"`
	GridURL          string                      `json:"grid_url,omitempty"`
	ViewURL          string                      `json:"view_url,omitempty"`
	IsSelected       bool                        `json:"is_selected"`
	SelectionOrder   *int                        `json:"selection_order"`
	MimeType         string                      `json:"mime_type,omitempty"`
	FileSize         int64                       `json:"file_size,omitempty"`
	Watermark        *presentation.WatermarkSpec `json:"watermark,omitempty"`
}

// GalleryView is the public page of a project
type GalleryView struct {
	ID               uuid.UUID            `json:"id"`
	Name             string               `json:"name"`
	Status           models.ProjectStatus `json:"status"`
	RequirePassword  bool                 `json:"require_password"`
	AllowDownload    bool                 `json:"allow_download"`
	AddWatermark     bool                 `json:"add_watermark"`
	SelectionOpen    bool                 `json:"selection_open"`
	ContractedPhotos int                  `json:"contracted_photos"`
	MaxSelections    *int                 `json:"max_selections"`
	SelectedCount    int                  `json:"selected_count"`
	Remaining        *int                 `json:"remaining"`
	ExtraPhotosType  pricing.Mode         `json:"extra_photos_type"`
	ExtraPhotoPrice  *int64               `json:"extra_photo_price,omitempty"`
	PackageSize      *int                 `json:"package_size,omitempty"`
	PackagePrice     *int64               `json:"package_price,omitempty"`
	ExpiresAt        *time.Time           `json:"expires_at"`
	Photos           []PhotoView          `json:"photos"`
}

// DeliveryView is the public page of a delivery
type DeliveryView struct {
	ID              uuid.UUID             `json:"id"`
	Title           string                `json:"title"`
	Status          models.DeliveryStatus `json:"status"`
	RequirePassword bool                  `json:"require_password"`
	ExpiresAt       *time.Time            `json:"expires_at"`
	Photos          []PhotoView           `json:"photos"`
}

// Download is a resolved, signed download link
type Download struct {
	URL      string               `json:"url"`
	Filename string               `json:"filename"`
	Variant  presentation.Variant `json:"variant"`
}

func NewGalleryService(access *AccessService, projects ProjectStore, deliveries DeliveryStore, lifecycle *LifecycleService, signer URLSigner, sink ActivitySink, autoStart bool, logger *logrus.Logger) *GalleryService {
	return &GalleryService{
		access:     access,
		projects:   projects,
		deliveries: deliveries,
		lifecycle:  lifecycle,
		signer:     signer,
		activity:   activityLog{sink: sink, logger: logger},
		logger:     logger,
		autoStart:  autoStart,
	}
}

// OpenProject returns the gallery page. Open galleries visited without a
// session get a fresh one in the returned grant.
func (s *GalleryService) OpenProject(ctx context.Context, token, sessionToken string) (*GalleryView, *Grant, error) {
	access, err := s.access.AuthorizeProject(ctx, token, sessionToken)
	if err != nil {
		return nil, nil, err
	}

	var grant *Grant
	if access.Session == nil {
		grant, _, err = s.access.MintOpenSession(GalleryKindProject, token)
		if err != nil {
			return nil, nil, err
		}
	}

	project := access.Project
	if s.autoStart && project.Status == models.ProjectStatusSent {
		project = s.lifecycle.autoStartSelection(ctx, project)
	}

	photos, err := s.projects.ListProjectPhotos(ctx, project.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list photos: %w", err)
	}
	views, err := photoViews(ctx, s.signer, photos, galleryFlags(project), presentation.ViewerPublic)
	if err != nil {
		return nil, nil, err
	}

	selected := 0
	for _, p := range photos {
		if p.IsSelected {
			selected++
		}
	}

	view := &GalleryView{
		ID:               project.ID,
		Name:             project.Name,
		Status:           project.Status,
		RequirePassword:  project.RequiresPassword(),
		AllowDownload:    project.AllowDownload,
		AddWatermark:     project.AddWatermark,
		SelectionOpen:    project.Status == models.ProjectStatusSent || project.Status == models.ProjectStatusInSelection,
		ContractedPhotos: project.ContractedPhotos,
		MaxSelections:    project.MaxSelections,
		SelectedCount:    selected,
		ExtraPhotosType:  project.ExtraPhotosType,
		ExtraPhotoPrice:  project.ExtraPhotoPrice,
		PackageSize:      project.PackageSize,
		PackagePrice:     project.PackagePrice,
		ExpiresAt:        project.ExpiresAt(),
		Photos:           views,
	}
	if project.MaxSelections != nil {
		remaining := *project.MaxSelections - selected
		if remaining < 0 {
			remaining = 0
		}
		view.Remaining = &remaining
	}
	return view, grant, nil
}

// RecordView counts a gallery view. The activity log gets one entry per
// session; views without a session are only counted.
func (s *GalleryService) RecordView(ctx context.Context, token, sessionToken, ip string) error {
	access, err := s.access.AuthorizeProject(ctx, token, sessionToken)
	if err != nil {
		return err
	}

	if err := s.projects.IncrementProjectCounter(ctx, access.Project.ID, CounterViews); err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}
	if s.access.FirstView(ctx, access.Session) {
		s.activity.record(ctx, &models.Activity{
			ProjectID:   uuidPtr(access.Project.ID),
			Type:        models.ActivityGalleryViewed,
			Description: "Client opened the gallery",
		}, ip)
	}
	return nil
}

// DownloadPhoto resolves a download link for a gallery photo
func (s *GalleryService) DownloadPhoto(ctx context.Context, token, sessionToken string, photoID uuid.UUID, ip string) (*Download, error) {
	access, err := s.access.AuthorizeProject(ctx, token, sessionToken)
	if err != nil {
		return nil, err
	}
	project := access.Project

	photo, err := s.projects.GetProjectPhoto(ctx, project.ID, photoID)
	if err != nil {
		return nil, err
	}

	download, err := s.download(ctx, photo, galleryFlags(project))
	if err != nil {
		return nil, err
	}

	if err := s.projects.IncrementProjectCounter(ctx, project.ID, CounterDownloads); err != nil {
		s.logger.WithError(err).WithField("project_id", project.ID).Warn("Failed to count download")
	}
	s.activity.record(ctx, &models.Activity{
		ProjectID:   uuidPtr(project.ID),
		Type:        models.ActivityPhotoDownloaded,
		Description: fmt.Sprintf("Photo %s downloaded", photo.OriginalFilename),
		Metadata:    models.JSONB{"photo_id": photo.ID.String(), "variant": string(download.Variant)},
	}, ip)
	return download, nil
}

// OpenDelivery returns the delivery page and counts the view
func (s *GalleryService) OpenDelivery(ctx context.Context, token, sessionToken, ip string) (*DeliveryView, *Grant, error) {
	access, err := s.access.AuthorizeDelivery(ctx, token, sessionToken)
	if err != nil {
		return nil, nil, err
	}

	session := access.Session
	var grant *Grant
	if session == nil {
		grant, session, err = s.access.MintOpenSession(GalleryKindDelivery, token)
		if err != nil {
			return nil, nil, err
		}
	}

	delivery := access.Delivery
	photos, err := s.deliveries.ListDeliveryPhotos(ctx, delivery.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list photos: %w", err)
	}
	views, err := photoViews(ctx, s.signer, photos, deliveryFlags, presentation.ViewerPublic)
	if err != nil {
		return nil, nil, err
	}

	if err := s.deliveries.IncrementDeliveryCounter(ctx, delivery.ID, CounterViews); err != nil {
		s.logger.WithError(err).WithField("delivery_id", delivery.ID).Warn("Failed to count delivery view")
	}
	if s.access.FirstView(ctx, session) {
		s.activity.record(ctx, &models.Activity{
			DeliveryID:  uuidPtr(delivery.ID),
			Type:        models.ActivityGalleryViewed,
			Description: "Client opened the delivery",
		}, ip)
	}

	return &DeliveryView{
		ID:              delivery.ID,
		Title:           delivery.Title,
		Status:          delivery.Status,
		RequirePassword: delivery.RequiresPassword(),
		ExpiresAt:       delivery.ExpiresAt(),
		Photos:          views,
	}, grant, nil
}

// DownloadDeliveryPhoto resolves a download link for a delivered photo. The
// first download moves the delivery to downloaded.
func (s *GalleryService) DownloadDeliveryPhoto(ctx context.Context, token, sessionToken string, photoID uuid.UUID, ip string) (*Download, error) {
	access, err := s.access.AuthorizeDelivery(ctx, token, sessionToken)
	if err != nil {
		return nil, err
	}
	delivery := access.Delivery

	photo, err := s.deliveries.GetDeliveryPhoto(ctx, delivery.ID, photoID)
	if err != nil {
		return nil, err
	}

	download, err := s.download(ctx, photo, deliveryFlags)
	if err != nil {
		return nil, err
	}

	if err := s.deliveries.IncrementDeliveryCounter(ctx, delivery.ID, CounterDownloads); err != nil {
		s.logger.WithError(err).WithField("delivery_id", delivery.ID).Warn("Failed to count download")
	}
	if delivery.Status == models.DeliveryStatusSent {
		s.lifecycle.markDownloaded(ctx, delivery, ip)
	}
	s.activity.record(ctx, &models.Activity{
		DeliveryID:  uuidPtr(delivery.ID),
		Type:        models.ActivityPhotoDownloaded,
		Description: fmt.Sprintf("Photo %s downloaded", photo.OriginalFilename),
		Metadata:    models.JSONB{"photo_id": photo.ID.String()},
	}, ip)
	return download, nil
}

func (s *GalleryService) download(ctx context.Context, photo *models.Photo, flags presentation.Gallery) (*Download, error) {
	asset, err := presentation.Resolve(photo, flags, presentation.ViewerPublic, presentation.ContextDownload)
	if err != nil {
		return nil, err
	}
	if s.signer == nil {
		return nil, ErrAssetUnavailable
	}

	url, err := s.signer.SignedURL(ctx, asset.Key, true, photo.OriginalFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to sign download: %w", err)
	}
	return &Download{URL: url, Filename: photo.OriginalFilename, Variant: asset.Variant}, nil
}

// deliveryFlags apply to every delivery: finished photos, downloadable
var deliveryFlags = presentation.Gallery{AddWatermark: false, AllowDownload: true}

func galleryFlags(project *models.Project) presentation.Gallery {
	return presentation.Gallery{AddWatermark: project.AddWatermark, AllowDownload: project.AllowDownload}
}

func photoViews(ctx context.Context, signer URLSigner, photos []models.Photo, flags presentation.Gallery, viewer presentation.Viewer) ([]PhotoView, error) {
	views := make([]PhotoView, 0, len(photos))
	for i := range photos {
		photo := &photos[i]
		view := PhotoView{
			ID:               photo.ID,
			OriginalFilename: photo.OriginalFilename,
			IsSelected:       photo.IsSelected,
			SelectionOrder:   photo.SelectionOrder,
			MimeType:         photo.MimeType,
			FileSize:         photo.FileSize,
		}
		if viewer == presentation.ViewerOwner {
			view.Watermark = presentation.Watermark(photo)
		}

		grid, err := presentation.Resolve(photo, flags, viewer, presentation.ContextGrid)
		if err != nil {
			if errors.Is(err, ErrAssetUnavailable) {
				views = append(views, view)
				continue
			}
			return nil, err
		}
		full, err := presentation.Resolve(photo, flags, viewer, presentation.ContextLightbox)
		if err != nil {
			return nil, err
		}

		view.Available = true
		view.Variant = full.Variant
		if signer != nil {
			if view.GridURL, err = signer.SignedURL(ctx, grid.Key, false, ""); err != nil {
				return nil, fmt.Errorf("failed to sign photo url: %w", err)
			}
			if view.ViewURL, err = signer.SignedURL(ctx, full.Key, false, ""); err != nil {
				return nil, fmt.Errorf("failed to sign photo url: %w", err)
			}
		}
		views = append(views, view)
	}
	return views, nil
}
