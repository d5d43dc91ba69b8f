package services_test

import (
	"context"
	"testing"

	"studio_gallery_server/internal/models"
	"studio_gallery_server/internal/presentation"
	"studio_gallery_server/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenProject_OpenGalleryMintsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project, photos := f.sentGallery(t, individualBilling(2, intPtr(4), 500), services.SharingInput{}, 2)
	token := *project.ShareToken

	view, grant, err := f.gallery.OpenProject(ctx, token, "")
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.NotEmpty(t, grant.SessionToken)

	assert.Equal(t, project.ID, view.ID)
	assert.False(t, view.RequirePassword)
	assert.True(t, view.SelectionOpen)
	assert.Equal(t, 4, *view.Remaining)
	require.Len(t, view.Photos, 2)
	var first services.PhotoView
	for _, p := range view.Photos {
		if p.ID == photos[0].ID {
			first = p
		}
	}
	assert.True(t, first.Available)
	assert.Equal(t, presentation.VariantOriginal, first.Variant)
	assert.Equal(t, "https://objects.test/"+*photos[0].ThumbnailKey, first.GridURL)
	assert.Equal(t, "https://objects.test/"+photos[0].OriginalKey, first.ViewURL)
	assert.Nil(t, first.Watermark, "public viewers never see watermark settings")

	_, again, err := f.gallery.OpenProject(ctx, token, grant.SessionToken)
	require.NoError(t, err)
	assert.Nil(t, again, "a valid session is reused")
}

func TestOpenProject_WatermarkedGalleryOnlyExposesWatermarkedVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project := f.createProject(t, individualBilling(2, nil, 500), services.SharingInput{AddWatermark: true})
	ready := f.addPhotos(t, project.ID, 1)[0]
	pending, err := f.projects.AddPhoto(ctx, f.owner, project.ID, services.PhotoInput{
		OriginalFilename: "pending.jpg",
		OriginalKey:      "originals/pending.jpg",
		Watermark:        &services.WatermarkInput{Text: "Studio"},
	})
	require.NoError(t, err)
	sent, err := f.lifecycle.SendProject(ctx, f.owner, project.ID, "client@example.com")
	require.NoError(t, err)

	view, _, err := f.gallery.OpenProject(ctx, *sent.ShareToken, "")
	require.NoError(t, err)
	require.Len(t, view.Photos, 2)

	byID := map[string]services.PhotoView{}
	for _, p := range view.Photos {
		byID[p.ID.String()] = p
	}
	assert.Equal(t, presentation.VariantWatermarked, byID[ready.ID.String()].Variant)
	assert.Equal(t, "https://objects.test/"+*ready.WatermarkedKey, byID[ready.ID.String()].GridURL)

	withheld := byID[pending.ID.String()]
	assert.False(t, withheld.Available)
	assert.Empty(t, withheld.GridURL)
	assert.Empty(t, withheld.ViewURL)

	owner, err := f.projects.ListPhotos(ctx, f.owner, project.ID)
	require.NoError(t, err)
	for _, p := range owner {
		assert.True(t, p.Available, "the owner always sees the original")
		if p.ID == pending.ID {
			require.NotNil(t, p.Watermark)
			assert.Equal(t, "Studio", p.Watermark.Text)
		}
	}
}

func TestDownloadPhoto_RespectsAllowDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	closed, closedPhotos := f.sentGallery(t, individualBilling(2, nil, 500), services.SharingInput{}, 1)

	_, err := f.gallery.DownloadPhoto(ctx, *closed.ShareToken, "", closedPhotos[0].ID, "")
	assert.ErrorIs(t, err, services.ErrDownloadNotAllowed)

	open, openPhotos := f.sentGallery(t, individualBilling(2, nil, 500), services.SharingInput{AllowDownload: true}, 1)
	download, err := f.gallery.DownloadPhoto(ctx, *open.ShareToken, "", openPhotos[0].ID, "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, presentation.VariantOriginal, download.Variant)
	assert.Equal(t, "https://objects.test/"+openPhotos[0].OriginalKey+"?attachment="+openPhotos[0].OriginalFilename, download.URL)

	assert.Equal(t, int64(1), f.reload(t, open.ID).DownloadCount)
	assert.Contains(t, f.activityTypes(t, open.ID), models.ActivityPhotoDownloaded)
}

func TestDownloadPhoto_WatermarkedGalleryServesWatermark(t *testing.T) {
	f := newFixture(t)
	project, photos := f.sentGallery(t, individualBilling(2, nil, 500), services.SharingInput{AllowDownload: true, AddWatermark: true}, 1)

	download, err := f.gallery.DownloadPhoto(context.Background(), *project.ShareToken, "", photos[0].ID, "")
	require.NoError(t, err)
	assert.Equal(t, presentation.VariantWatermarked, download.Variant)
	assert.Contains(t, download.URL, *photos[0].WatermarkedKey)
}

func TestRecordView_CountsEveryView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project, _ := f.sentGallery(t, individualBilling(2, nil, 500), services.SharingInput{}, 0)
	session := f.openSession(t, project)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.gallery.RecordView(ctx, *project.ShareToken, session, ""))
	}
	assert.Equal(t, int64(3), f.reload(t, project.ID).ViewCount)
	assert.Contains(t, f.activityTypes(t, project.ID), models.ActivityGalleryViewed)
}

func TestRecordView_WithoutSessionOnlyCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project, _ := f.sentGallery(t, individualBilling(2, nil, 500), services.SharingInput{}, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.gallery.RecordView(ctx, *project.ShareToken, "", ""))
	}
	assert.Equal(t, int64(3), f.reload(t, project.ID).ViewCount)
	assert.NotContains(t, f.activityTypes(t, project.ID), models.ActivityGalleryViewed)

	_, grant, err := f.gallery.OpenProject(ctx, *project.ShareToken, "")
	require.NoError(t, err)
	require.NotNil(t, grant)
	require.NoError(t, f.gallery.RecordView(ctx, *project.ShareToken, grant.SessionToken, ""))

	viewed := 0
	for _, activity := range f.activityTypes(t, project.ID) {
		if activity == models.ActivityGalleryViewed {
			viewed++
		}
	}
	assert.Equal(t, 1, viewed)
	assert.Equal(t, int64(4), f.reload(t, project.ID).ViewCount)
}

func TestDelivery_FirstDownloadMarksDownloaded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	delivery, err := f.deliveries.CreateDelivery(ctx, f.owner, services.CreateDeliveryInput{Title: "Final edits"})
	require.NoError(t, err)
	photo, err := f.deliveries.AddPhoto(ctx, f.owner, delivery.ID, services.PhotoInput{
		OriginalFilename: "final.jpg",
		OriginalKey:      "deliveries/final.jpg",
	})
	require.NoError(t, err)
	sent, err := f.lifecycle.SendDelivery(ctx, f.owner, delivery.ID, "client@example.com")
	require.NoError(t, err)
	token := *sent.ShareToken

	view, grant, err := f.gallery.OpenDelivery(ctx, token, "", "203.0.113.9")
	require.NoError(t, err)
	require.NotNil(t, grant)
	require.Len(t, view.Photos, 1)
	assert.True(t, view.Photos[0].Available)

	download, err := f.gallery.DownloadDeliveryPhoto(ctx, token, grant.SessionToken, photo.ID, "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, presentation.VariantOriginal, download.Variant)

	updated, err := f.store.GetDelivery(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDownloaded, updated.Status)
	assert.NotNil(t, updated.DownloadedAt)
	assert.Equal(t, int64(1), updated.ViewCount)
	assert.Equal(t, int64(1), updated.DownloadCount)

	_, err = f.gallery.DownloadDeliveryPhoto(ctx, token, grant.SessionToken, photo.ID, "203.0.113.9")
	require.NoError(t, err, "later downloads keep working")
}

func TestOpenDelivery_CreatedDeliveryIsHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	delivery, err := f.deliveries.CreateDelivery(ctx, f.owner, services.CreateDeliveryInput{Title: "Final edits"})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.Delivery{}).Where("id = ?", delivery.ID).
		UpdateColumn("share_token", "unsent-token").Error)

	_, _, err = f.gallery.OpenDelivery(ctx, "unsent-token", "", "")
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, _, err = f.gallery.OpenDelivery(ctx, "missing", "", "")
	assert.ErrorIs(t, err, services.ErrNotFound)
}
