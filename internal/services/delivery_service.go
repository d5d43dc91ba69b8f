package services

import (
	"context"
	"fmt"
	"strings"

	"studio_gallery_server/internal/models"
	"studio_gallery_server/internal/presentation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type DeliveryService struct {
	deliveries DeliveryStore
	lifecycle  *LifecycleService
	signer     URLSigner
	logger     *logrus.Logger
}

// CreateDeliveryInput is everything needed to create a delivery
type CreateDeliveryInput struct {
	Title              string
	ClientEmail        *string
	Password           *string
	LinkExpirationDays *int
}

// DeliverySharingInput replaces the sharing settings of a delivery
type DeliverySharingInput struct {
	Password           *string
	LinkExpirationDays *int
}

func NewDeliveryService(deliveries DeliveryStore, lifecycle *LifecycleService, signer URLSigner, logger *logrus.Logger) *DeliveryService {
	return &DeliveryService{
		deliveries: deliveries,
		lifecycle:  lifecycle,
		signer:     signer,
		logger:     logger,
	}
}

// CreateDelivery creates a delivery in the created state
func (s *DeliveryService) CreateDelivery(ctx context.Context, caller Caller, input CreateDeliveryInput) (*models.Delivery, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("delivery title is required")
	}
	if caller.UserID == uuid.Nil {
		return nil, validationError("owner ID is required")
	}

	delivery := &models.Delivery{
		OwnerID:     caller.UserID,
		Title:       title,
		ClientEmail: input.ClientEmail,
		Status:      models.DeliveryStatusCreated,
	}
	if err := applyDeliverySharing(delivery, DeliverySharingInput{
		Password:           input.Password,
		LinkExpirationDays: input.LinkExpirationDays,
	}); err != nil {
		return nil, err
	}
	if err := delivery.Validate(); err != nil {
		return nil, validationError("%v", err)
	}

	if err := s.deliveries.CreateDelivery(ctx, delivery); err != nil {
		return nil, fmt.Errorf("failed to create delivery: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"delivery_id": delivery.ID,
		"owner_id":    delivery.OwnerID,
	}).Info("Delivery created")
	return delivery, nil
}

// GetDelivery returns a delivery owned by the caller
func (s *DeliveryService) GetDelivery(ctx context.Context, caller Caller, id uuid.UUID) (*models.Delivery, error) {
	return s.lifecycle.ownedDelivery(ctx, caller, id)
}

// ListDeliveries retrieves a paginated list of the caller's deliveries
func (s *DeliveryService) ListDeliveries(ctx context.Context, caller Caller, offset, limit int) ([]models.Delivery, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.deliveries.ListDeliveries(ctx, caller.UserID, offset, limit)
}

// UpdateSharing replaces the password and expiration of a delivery
func (s *DeliveryService) UpdateSharing(ctx context.Context, caller Caller, id uuid.UUID, input DeliverySharingInput) (*models.Delivery, error) {
	delivery, err := s.editableDelivery(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if err := applyDeliverySharing(delivery, input); err != nil {
		return nil, err
	}
	if err := delivery.Validate(); err != nil {
		return nil, validationError("%v", err)
	}

	if err := s.deliveries.UpdateDeliveryColumns(ctx, delivery, "access_password_hash", "link_expiration_days"); err != nil {
		return nil, fmt.Errorf("failed to update delivery sharing: %w", err)
	}
	return s.deliveries.GetDelivery(ctx, id)
}

// AddPhoto registers a finished photo in a delivery
func (s *DeliveryService) AddPhoto(ctx context.Context, caller Caller, deliveryID uuid.UUID, input PhotoInput) (*models.Photo, error) {
	delivery, err := s.editableDelivery(ctx, caller, deliveryID)
	if err != nil {
		return nil, err
	}

	photo, err := newPhoto(input)
	if err != nil {
		return nil, err
	}
	photo.DeliveryID = uuidPtr(delivery.ID)
	if err := photo.Validate(); err != nil {
		return nil, validationError("%v", err)
	}

	if err := s.deliveries.AddPhoto(ctx, photo); err != nil {
		return nil, fmt.Errorf("failed to add photo: %w", err)
	}
	return photo, nil
}

// ListPhotos returns the owner's view of a delivery's photos
func (s *DeliveryService) ListPhotos(ctx context.Context, caller Caller, deliveryID uuid.UUID) ([]PhotoView, error) {
	delivery, err := s.lifecycle.ownedDelivery(ctx, caller, deliveryID)
	if err != nil {
		return nil, err
	}

	photos, err := s.deliveries.ListDeliveryPhotos(ctx, delivery.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photoViews(ctx, s.signer, photos, deliveryFlags, presentation.ViewerOwner)
}

func (s *DeliveryService) editableDelivery(ctx context.Context, caller Caller, id uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.lifecycle.ownedDelivery(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if delivery.Status == models.DeliveryStatusDeleted {
		return nil, validationError("delivery is deleted")
	}
	return delivery, nil
}

func applyDeliverySharing(delivery *models.Delivery, input DeliverySharingInput) error {
	if input.Password != nil {
		if *input.Password == "" {
			delivery.AccessPasswordHash = nil
		} else {
			hash, err := HashPassword(*input.Password)
			if err != nil {
				return err
			}
			delivery.AccessPasswordHash = &hash
		}
	}
	delivery.LinkExpirationDays = input.LinkExpirationDays
	return nil
}
