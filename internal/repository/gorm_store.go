// Package repository implements the service stores on gorm. Every query is
// portable between postgres and sqlite.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio_gallery_server/internal/models"
	"studio_gallery_server/internal/services"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// errAlreadySelected rolls back an add that lost the race to a concurrent
// add of the same photo
var errAlreadySelected = errors.New("photo already selected")

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var (
	_ services.ProjectStore  = (*GormStore)(nil)
	_ services.DeliveryStore = (*GormStore)(nil)
	_ services.ActivitySink  = (*GormStore)(nil)
)

// CreateProject inserts a project
func (s *GormStore) CreateProject(ctx context.Context, project *models.Project) error {
	return s.db.WithContext(ctx).Create(project).Error
}

// GetProject retrieves a project by ID
func (s *GormStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		return nil, notFound(err)
	}
	return &project, nil
}

// GetProjectByToken retrieves a project by its share token
func (s *GormStore) GetProjectByToken(ctx context.Context, token string) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).Where("share_token = ?", token).First(&project).Error; err != nil {
		return nil, notFound(err)
	}
	return &project, nil
}

// ListProjects retrieves a paginated list of an owner's projects
func (s *GormStore) ListProjects(ctx context.Context, filter services.ProjectListFilter) ([]models.Project, int64, error) {
	var projects []models.Project
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Project{}).Where("owner_id = ?", filter.OwnerID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	} else {
		query = query.Where("status <> ?", models.ProjectStatusDeleted)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Offset(filter.Offset).
		Limit(filter.Limit).
		Order("created_at DESC").
		Find(&projects).Error

	return projects, total, err
}

// UpdateProjectColumns writes the named columns of project
func (s *GormStore) UpdateProjectColumns(ctx context.Context, project *models.Project, columns ...string) error {
	project.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).Model(project).Select(append(columns, "updated_at")).Updates(project)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrNotFound
	}
	return nil
}

// ApplyProjectChange performs a conditional status update
func (s *GormStore) ApplyProjectChange(ctx context.Context, id uuid.UUID, change services.ProjectStatusChange) error {
	updates := map[string]interface{}{
		"status":          change.To,
		"previous_status": change.Previous,
		"updated_at":      change.At,
	}
	setTime(updates, "sent_at", change.SentAt)
	setTime(updates, "finalized_at", change.FinalizedAt)
	setTime(updates, "archived_at", change.ArchivedAt)
	setTime(updates, "deleted_at", change.DeletedAt)
	if change.ClientEmail != nil {
		updates["client_email"] = *change.ClientEmail
	}
	if change.ShareToken != nil {
		updates["share_token"] = *change.ShareToken
	}

	res := s.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ? AND status = ?", id, change.From).
		UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrStaleState
	}
	return nil
}

// DeleteProject permanently removes a soft deleted project and its photos.
// A project restored in the meantime is left alone and reported as
// ErrStaleState.
func (s *GormStore) DeleteProject(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status = ?", id, models.ProjectStatusDeleted).Delete(&models.Project{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrStale(tx, &models.Project{}, id)
		}
		return tx.Where("project_id = ?", id).Delete(&models.Photo{}).Error
	})
}

// IncrementProjectCounter bumps a usage counter
func (s *GormStore) IncrementProjectCounter(ctx context.Context, id uuid.UUID, counter services.Counter) error {
	column, err := counterColumn(counter)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error
}

// AddPhoto inserts a photo
func (s *GormStore) AddPhoto(ctx context.Context, photo *models.Photo) error {
	return s.db.WithContext(ctx).Create(photo).Error
}

// GetProjectPhoto retrieves a photo of a project
func (s *GormStore) GetProjectPhoto(ctx context.Context, projectID, photoID uuid.UUID) (*models.Photo, error) {
	return s.getPhoto(s.db.WithContext(ctx), "project_id", projectID, photoID)
}

// ListProjectPhotos retrieves the photos of a project in upload order
func (s *GormStore) ListProjectPhotos(ctx context.Context, projectID uuid.UUID) ([]models.Photo, error) {
	var photos []models.Photo
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("uploaded_at ASC, id ASC").
		Find(&photos).Error
	return photos, err
}

// AddSelection selects a photo within one transaction. The quota guard and
// the order counter live on the project row, so concurrent adds for the same
// project serialize on it.
func (s *GormStore) AddSelection(ctx context.Context, projectID, photoID uuid.UUID, at time.Time) (*models.Photo, bool, error) {
	var photo *models.Photo
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.getPhoto(tx, "project_id", projectID, photoID)
		if err != nil {
			return err
		}
		if current.IsSelected {
			photo = current
			return errAlreadySelected
		}

		res := tx.Model(&models.Project{}).
			Where("id = ? AND (max_selections IS NULL OR selected_count < max_selections)", projectID).
			UpdateColumns(map[string]interface{}{
				"selection_seq":  gorm.Expr("selection_seq + ?", 1),
				"selected_count": gorm.Expr("selected_count + ?", 1),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.quotaError(tx, projectID)
		}

		var seq int
		if err := tx.Model(&models.Project{}).Where("id = ?", projectID).
			Select("selection_seq").Row().Scan(&seq); err != nil {
			return err
		}

		res = tx.Model(&models.Photo{}).
			Where("id = ? AND project_id = ? AND is_selected = ?", photoID, projectID, false).
			UpdateColumns(map[string]interface{}{
				"is_selected":     true,
				"selection_order": seq,
				"selected_at":     at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadySelected
		}

		current.IsSelected = true
		current.SelectionOrder = &seq
		current.SelectedAt = &at
		photo = current
		return nil
	})

	if errors.Is(err, errAlreadySelected) {
		if photo != nil && photo.IsSelected {
			return photo, false, nil
		}
		reloaded, gerr := s.GetProjectPhoto(ctx, projectID, photoID)
		if gerr != nil {
			return nil, false, gerr
		}
		return reloaded, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return photo, true, nil
}

// RemoveSelection clears a selection and frees its quota slot
func (s *GormStore) RemoveSelection(ctx context.Context, projectID, photoID uuid.UUID) (*models.Photo, bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Photo{}).
			Where("id = ? AND project_id = ? AND is_selected = ?", photoID, projectID, true).
			UpdateColumns(map[string]interface{}{
				"is_selected":     false,
				"selection_order": nil,
				"selected_at":     nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		changed = true
		return tx.Model(&models.Project{}).
			Where("id = ? AND selected_count > ?", projectID, 0).
			UpdateColumn("selected_count", gorm.Expr("selected_count - ?", 1)).Error
	})
	if err != nil {
		return nil, false, err
	}

	photo, err := s.GetProjectPhoto(ctx, projectID, photoID)
	if err != nil {
		return nil, false, err
	}
	return photo, changed, nil
}

// CountSelected counts the selected photos of a project
func (s *GormStore) CountSelected(ctx context.Context, projectID uuid.UUID) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Photo{}).
		Where("project_id = ? AND is_selected = ?", projectID, true).
		Count(&count).Error
	return int(count), err
}

// ListSelections retrieves the selected photos in selection order
func (s *GormStore) ListSelections(ctx context.Context, projectID uuid.UUID) ([]models.Photo, error) {
	var photos []models.Photo
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND is_selected = ?", projectID, true).
		Order("selection_order ASC").
		Find(&photos).Error
	return photos, err
}

// CreateDelivery inserts a delivery
func (s *GormStore) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	return s.db.WithContext(ctx).Create(delivery).Error
}

// GetDelivery retrieves a delivery by ID
func (s *GormStore) GetDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&delivery).Error; err != nil {
		return nil, notFound(err)
	}
	return &delivery, nil
}

// GetDeliveryByToken retrieves a delivery by its share token
func (s *GormStore) GetDeliveryByToken(ctx context.Context, token string) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := s.db.WithContext(ctx).Where("share_token = ?", token).First(&delivery).Error; err != nil {
		return nil, notFound(err)
	}
	return &delivery, nil
}

// ListDeliveries retrieves a paginated list of an owner's deliveries
func (s *GormStore) ListDeliveries(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]models.Delivery, int64, error) {
	var deliveries []models.Delivery
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Delivery{}).
		Where("owner_id = ? AND status <> ?", ownerID, models.DeliveryStatusDeleted)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&deliveries).Error

	return deliveries, total, err
}

// UpdateDeliveryColumns writes the named columns of delivery
func (s *GormStore) UpdateDeliveryColumns(ctx context.Context, delivery *models.Delivery, columns ...string) error {
	delivery.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).Model(delivery).Select(append(columns, "updated_at")).Updates(delivery)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrNotFound
	}
	return nil
}

// ApplyDeliveryChange performs a conditional status update
func (s *GormStore) ApplyDeliveryChange(ctx context.Context, id uuid.UUID, change services.DeliveryStatusChange) error {
	updates := map[string]interface{}{
		"status":          change.To,
		"previous_status": change.Previous,
		"updated_at":      change.At,
	}
	setTime(updates, "sent_at", change.SentAt)
	setTime(updates, "downloaded_at", change.DownloadedAt)
	setTime(updates, "expired_at", change.ExpiredAt)
	setTime(updates, "deleted_at", change.DeletedAt)
	if change.ClientEmail != nil {
		updates["client_email"] = *change.ClientEmail
	}
	if change.ShareToken != nil {
		updates["share_token"] = *change.ShareToken
	}

	res := s.db.WithContext(ctx).Model(&models.Delivery{}).
		Where("id = ? AND status = ?", id, change.From).
		UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrStaleState
	}
	return nil
}

// DeleteDelivery permanently removes a soft deleted delivery and its photos
func (s *GormStore) DeleteDelivery(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status = ?", id, models.DeliveryStatusDeleted).Delete(&models.Delivery{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrStale(tx, &models.Delivery{}, id)
		}
		return tx.Where("delivery_id = ?", id).Delete(&models.Photo{}).Error
	})
}

// IncrementDeliveryCounter bumps a usage counter
func (s *GormStore) IncrementDeliveryCounter(ctx context.Context, id uuid.UUID, counter services.Counter) error {
	column, err := counterColumn(counter)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.Delivery{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error
}

// GetDeliveryPhoto retrieves a photo of a delivery
func (s *GormStore) GetDeliveryPhoto(ctx context.Context, deliveryID, photoID uuid.UUID) (*models.Photo, error) {
	return s.getPhoto(s.db.WithContext(ctx), "delivery_id", deliveryID, photoID)
}

// ListDeliveryPhotos retrieves the photos of a delivery in upload order
func (s *GormStore) ListDeliveryPhotos(ctx context.Context, deliveryID uuid.UUID) ([]models.Photo, error) {
	var photos []models.Photo
	err := s.db.WithContext(ctx).Where("delivery_id = ?", deliveryID).
		Order("uploaded_at ASC, id ASC").
		Find(&photos).Error
	return photos, err
}

// AppendActivity inserts an activity record
func (s *GormStore) AppendActivity(ctx context.Context, activity *models.Activity) error {
	return s.db.WithContext(ctx).Create(activity).Error
}

func (s *GormStore) getPhoto(db *gorm.DB, ownerColumn string, ownerID, photoID uuid.UUID) (*models.Photo, error) {
	var photo models.Photo
	if err := db.Where("id = ? AND "+ownerColumn+" = ?", photoID, ownerID).First(&photo).Error; err != nil {
		return nil, notFound(err)
	}
	return &photo, nil
}

func (s *GormStore) quotaError(tx *gorm.DB, projectID uuid.UUID) error {
	var project models.Project
	if err := tx.Select("id", "max_selections", "selected_count").
		Where("id = ?", projectID).First(&project).Error; err != nil {
		return notFound(err)
	}
	qe := &services.QuotaExceededError{Selected: project.SelectedCount}
	if project.MaxSelections != nil {
		qe.MaxSelections = *project.MaxSelections
	}
	return qe
}

// missingOrStale tells a vanished row from one whose status moved on
func missingOrStale(tx *gorm.DB, model interface{}, id uuid.UUID) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return services.ErrNotFound
	}
	return services.ErrStaleState
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return services.ErrNotFound
	}
	return err
}

func setTime(updates map[string]interface{}, column string, t *time.Time) {
	if t != nil {
		updates[column] = *t
	}
}

func counterColumn(counter services.Counter) (string, error) {
	switch counter {
	case services.CounterViews, services.CounterDownloads:
		return string(counter), nil
	}
	return "", fmt.Errorf("unknown counter %q", counter)
}
