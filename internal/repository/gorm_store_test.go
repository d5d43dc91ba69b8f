package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"studio_gallery_server/internal/models"
	"studio_gallery_server/internal/pricing"
	"studio_gallery_server/internal/services"
	"studio_gallery_server/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return NewGormStore(db)
}

func seedProject(t *testing.T, s *GormStore, owner uuid.UUID, max *int, photos int) (*models.Project, []models.Photo) {
	t.Helper()
	ctx := context.Background()
	price := int64(100)
	project := &models.Project{
		OwnerID:         owner,
		Name:            "Portraits",
		Status:          models.ProjectStatusInSelection,
		MaxSelections:   max,
		ExtraPhotosType: pricing.ModeIndividual,
		ExtraPhotoPrice: &price,
	}
	require.NoError(t, s.CreateProject(ctx, project))

	for i := 0; i < photos; i++ {
		require.NoError(t, s.AddPhoto(ctx, &models.Photo{
			ProjectID:        &project.ID,
			OriginalFilename: "img.jpg",
			OriginalKey:      "originals/" + uuid.NewString(),
		}))
	}
	list, err := s.ListProjectPhotos(ctx, project.ID)
	require.NoError(t, err)
	return project, list
}

func TestAddSelection_OrderAndCounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project, photos := seedProject(t, s, uuid.New(), nil, 2)
	at := time.Now()

	photo, changed, err := s.AddSelection(ctx, project.ID, photos[0].ID, at)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, *photo.SelectionOrder)
	require.NotNil(t, photo.SelectedAt)

	again, changed, err := s.AddSelection(ctx, project.ID, photos[0].ID, at)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, *again.SelectionOrder)

	reloaded, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.SelectedCount)
	assert.Equal(t, 1, reloaded.SelectionSeq)
}

func TestAddSelection_QuotaGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	max := 1
	project, photos := seedProject(t, s, uuid.New(), &max, 2)

	_, _, err := s.AddSelection(ctx, project.ID, photos[0].ID, time.Now())
	require.NoError(t, err)

	_, _, err = s.AddSelection(ctx, project.ID, photos[1].ID, time.Now())
	var quota *services.QuotaExceededError
	require.True(t, errors.As(err, &quota))
	assert.Equal(t, 1, quota.MaxSelections)
	assert.Equal(t, 1, quota.Selected)

	reloaded, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.SelectionSeq, "a rejected add does not consume an order")
}

func TestRemoveSelection_FreesSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	max := 1
	project, photos := seedProject(t, s, uuid.New(), &max, 2)

	_, _, err := s.AddSelection(ctx, project.ID, photos[0].ID, time.Now())
	require.NoError(t, err)

	photo, changed, err := s.RemoveSelection(ctx, project.ID, photos[0].ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, photo.IsSelected)
	assert.Nil(t, photo.SelectionOrder)
	assert.Nil(t, photo.SelectedAt)

	_, changed, err = s.RemoveSelection(ctx, project.ID, photos[0].ID)
	require.NoError(t, err)
	assert.False(t, changed)

	second, _, err := s.AddSelection(ctx, project.ID, photos[1].ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, *second.SelectionOrder)

	count, err := s.CountSelected(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestApplyProjectChange_StaleStateIsDetected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project, _ := seedProject(t, s, uuid.New(), nil, 0)
	now := time.Now()

	err := s.ApplyProjectChange(ctx, project.ID, services.ProjectStatusChange{
		From:        models.ProjectStatusInSelection,
		To:          models.ProjectStatusFinalized,
		At:          now,
		FinalizedAt: &now,
	})
	require.NoError(t, err)

	err = s.ApplyProjectChange(ctx, project.ID, services.ProjectStatusChange{
		From: models.ProjectStatusInSelection,
		To:   models.ProjectStatusArchived,
		At:   now,
	})
	assert.ErrorIs(t, err, services.ErrStaleState)

	reloaded, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusFinalized, reloaded.Status)
	assert.NotNil(t, reloaded.FinalizedAt)
}

func TestListProjects_HidesDeletedUnlessAsked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := uuid.New()
	kept, _ := seedProject(t, s, owner, nil, 0)
	gone, _ := seedProject(t, s, owner, nil, 0)
	seedProject(t, s, uuid.New(), nil, 0)

	now := time.Now()
	require.NoError(t, s.ApplyProjectChange(ctx, gone.ID, services.ProjectStatusChange{
		From: models.ProjectStatusInSelection, To: models.ProjectStatusDeleted, At: now, DeletedAt: &now,
	}))

	projects, total, err := s.ListProjects(ctx, services.ProjectListFilter{OwnerID: owner, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, projects, 1)
	assert.Equal(t, kept.ID, projects[0].ID)

	deleted := models.ProjectStatusDeleted
	projects, total, err = s.ListProjects(ctx, services.ProjectListFilter{OwnerID: owner, Status: &deleted, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, gone.ID, projects[0].ID)
}

func softDelete(t *testing.T, s *GormStore, project *models.Project) {
	t.Helper()
	now := time.Now()
	require.NoError(t, s.ApplyProjectChange(context.Background(), project.ID, services.ProjectStatusChange{
		From: project.Status, To: models.ProjectStatusDeleted, Previous: &project.Status, At: now, DeletedAt: &now,
	}))
}

func TestDeleteProject_RemovesPhotos(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project, photos := seedProject(t, s, uuid.New(), nil, 2)
	softDelete(t, s, project)

	require.NoError(t, s.DeleteProject(ctx, project.ID))

	_, err := s.GetProject(ctx, project.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = s.GetProjectPhoto(ctx, project.ID, photos[0].ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.ErrorIs(t, s.DeleteProject(ctx, project.ID), services.ErrNotFound)
}

func TestDeleteProject_LeavesRestoredProjectAlone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project, photos := seedProject(t, s, uuid.New(), nil, 2)

	assert.ErrorIs(t, s.DeleteProject(ctx, project.ID), services.ErrStaleState)

	kept, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusInSelection, kept.Status)
	list, err := s.ListProjectPhotos(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, list, len(photos))
}

func TestDeleteDelivery_RequiresSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	delivery := &models.Delivery{OwnerID: uuid.New(), Title: "Final", Status: models.DeliveryStatusSent}
	require.NoError(t, s.CreateDelivery(ctx, delivery))
	require.NoError(t, s.AddPhoto(ctx, &models.Photo{DeliveryID: &delivery.ID, OriginalFilename: "a.jpg", OriginalKey: "a"}))

	assert.ErrorIs(t, s.DeleteDelivery(ctx, delivery.ID), services.ErrStaleState)

	now := time.Now()
	require.NoError(t, s.ApplyDeliveryChange(ctx, delivery.ID, services.DeliveryStatusChange{
		From: models.DeliveryStatusSent, To: models.DeliveryStatusDeleted, At: now, DeletedAt: &now,
	}))
	require.NoError(t, s.DeleteDelivery(ctx, delivery.ID))

	_, err := s.GetDelivery(ctx, delivery.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	photos, err := s.ListDeliveryPhotos(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Empty(t, photos)
	assert.ErrorIs(t, s.DeleteDelivery(ctx, delivery.ID), services.ErrNotFound)
}

func TestIncrementProjectCounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project, _ := seedProject(t, s, uuid.New(), nil, 0)

	require.NoError(t, s.IncrementProjectCounter(ctx, project.ID, services.CounterViews))
	require.NoError(t, s.IncrementProjectCounter(ctx, project.ID, services.CounterViews))
	require.NoError(t, s.IncrementProjectCounter(ctx, project.ID, services.CounterDownloads))
	assert.Error(t, s.IncrementProjectCounter(ctx, project.ID, services.Counter("selected_count")))

	reloaded, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reloaded.ViewCount)
	assert.Equal(t, int64(1), reloaded.DownloadCount)
}

func TestGetDeliveryPhoto_ScopedToDelivery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := uuid.New()

	delivery := &models.Delivery{OwnerID: owner, Title: "Final"}
	require.NoError(t, s.CreateDelivery(ctx, delivery))
	other := &models.Delivery{OwnerID: owner, Title: "Other"}
	require.NoError(t, s.CreateDelivery(ctx, other))

	photo := &models.Photo{DeliveryID: &delivery.ID, OriginalFilename: "a.jpg", OriginalKey: "a"}
	require.NoError(t, s.AddPhoto(ctx, photo))

	got, err := s.GetDeliveryPhoto(ctx, delivery.ID, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, photo.ID, got.ID)

	_, err = s.GetDeliveryPhoto(ctx, other.ID, photo.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}
