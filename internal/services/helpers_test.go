package services_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"studio_gallery_server/internal/models"
	"studio_gallery_server/internal/pricing"
	"studio_gallery_server/internal/repository"
	"studio_gallery_server/internal/services"
	"studio_gallery_server/pkg/cache"
	"studio_gallery_server/pkg/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testBaseURL = "https://studio.test"

// recordingNotifier keeps every intent it is handed
type recordingNotifier struct {
	mu      sync.Mutex
	intents []services.Intent
}

func (n *recordingNotifier) Notify(_ context.Context, intent services.Intent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intents = append(n.intents, intent)
	return nil
}

func (n *recordingNotifier) kinds() []services.IntentKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]services.IntentKind, 0, len(n.intents))
	for _, i := range n.intents {
		kinds = append(kinds, i.Kind)
	}
	return kinds
}

func (n *recordingNotifier) last() services.Intent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.intents[len(n.intents)-1]
}

// memoryThrottle mirrors the redis throttle in process
type memoryThrottle struct {
	mu          sync.Mutex
	maxAttempts int
	base        time.Duration
	failures    map[string]int
	lockedUntil map[string]time.Time
}

func newMemoryThrottle(maxAttempts int, base time.Duration) *memoryThrottle {
	return &memoryThrottle{
		maxAttempts: maxAttempts,
		base:        base,
		failures:    make(map[string]int),
		lockedUntil: make(map[string]time.Time),
	}
}

func (t *memoryThrottle) Blocked(_ context.Context, key string) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if until, ok := t.lockedUntil[key]; ok {
		if wait := time.Until(until); wait > 0 {
			return wait, nil
		}
	}
	return 0, nil
}

func (t *memoryThrottle) Failure(_ context.Context, key string) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[key]++
	lockout := cache.LockoutFor(t.failures[key], t.maxAttempts, t.base)
	if lockout > 0 {
		t.lockedUntil[key] = time.Now().Add(lockout)
	}
	return lockout, nil
}

func (t *memoryThrottle) Reset(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, key)
	delete(t.lockedUntil, key)
	return nil
}

func (t *memoryThrottle) failureCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, n := range t.failures {
		total += n
	}
	return total
}

// fakeSigner returns deterministic URLs for object keys
type fakeSigner struct{}

func (fakeSigner) SignedURL(_ context.Context, key string, download bool, filename string) (string, error) {
	url := "https://objects.test/" + key
	if download {
		url += "?attachment=" + filename
	}
	return url, nil
}

type fixture struct {
	db         *gorm.DB
	store      *repository.GormStore
	notifier   *recordingNotifier
	throttle   *memoryThrottle
	jwt        *services.JWTService
	lifecycle  *services.LifecycleService
	access     *services.AccessService
	selection  *services.SelectionService
	gallery    *services.GalleryService
	projects   *services.ProjectService
	deliveries *services.DeliveryService
	owner      services.Caller
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	autoStart bool
}

func withAutoStart() fixtureOption {
	return func(c *fixtureConfig) { c.autoStart = true }
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	db := newTestDB(t)
	store := repository.NewGormStore(db)
	notifier := &recordingNotifier{}
	throttle := newMemoryThrottle(3, time.Minute)
	jwtService := services.NewJWTService("owner-secret", "gallery-secret", time.Hour)

	lifecycle := services.NewLifecycleService(store, store, store, notifier, testBaseURL, log)
	access := services.NewAccessService(store, store, lifecycle, jwtService, throttle, nil, store, log)

	return &fixture{
		db:         db,
		store:      store,
		notifier:   notifier,
		throttle:   throttle,
		jwt:        jwtService,
		lifecycle:  lifecycle,
		access:     access,
		selection:  services.NewSelectionService(store, access, lifecycle, store, notifier, cfg.autoStart, log),
		gallery:    services.NewGalleryService(access, store, store, lifecycle, fakeSigner{}, store, cfg.autoStart, log),
		projects:   services.NewProjectService(store, lifecycle, fakeSigner{}, log),
		deliveries: services.NewDeliveryService(store, lifecycle, fakeSigner{}, log),
		owner:      services.Caller{UserID: uuid.New(), IP: "10.0.0.1"},
	}
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

// individualBilling includes contracted photos and sells extras at unitPrice
func individualBilling(contracted int, max *int, unitPrice int64) services.BillingInput {
	return services.BillingInput{
		ContractedPhotos: contracted,
		MaxSelections:    max,
		ExtraPhotosType:  pricing.ModeIndividual,
		ExtraPhotoPrice:  int64Ptr(unitPrice),
	}
}

func (f *fixture) createProject(t *testing.T, billing services.BillingInput, sharing services.SharingInput) *models.Project {
	t.Helper()
	project, err := f.projects.CreateProject(context.Background(), f.owner, services.CreateProjectInput{
		Name:    "Smith wedding",
		Billing: billing,
		Sharing: sharing,
	})
	require.NoError(t, err)
	return project
}

func (f *fixture) addPhotos(t *testing.T, projectID uuid.UUID, n int) []*models.Photo {
	t.Helper()
	photos := make([]*models.Photo, 0, n)
	for i := 0; i < n; i++ {
		name := uuid.NewString()
		photo, err := f.projects.AddPhoto(context.Background(), f.owner, projectID, services.PhotoInput{
			OriginalFilename: name + ".jpg",
			OriginalKey:      "originals/" + name + ".jpg",
			WatermarkedKey:   strPtr("watermarked/" + name + ".jpg"),
			ThumbnailKey:     strPtr("thumbs/" + name + ".jpg"),
			FileSize:         1024,
			MimeType:         "image/jpeg",
		})
		require.NoError(t, err)
		photos = append(photos, photo)
	}
	return photos
}

// sentGallery creates a project with n photos and sends it to the client
func (f *fixture) sentGallery(t *testing.T, billing services.BillingInput, sharing services.SharingInput, n int) (*models.Project, []*models.Photo) {
	t.Helper()
	project := f.createProject(t, billing, sharing)
	photos := f.addPhotos(t, project.ID, n)
	sent, err := f.lifecycle.SendProject(context.Background(), f.owner, project.ID, "client@example.com")
	require.NoError(t, err)
	return sent, photos
}

// openSession authenticates against an open project gallery
func (f *fixture) openSession(t *testing.T, project *models.Project) string {
	t.Helper()
	grant, err := f.access.AuthenticateProject(context.Background(), *project.ShareToken, "", "203.0.113.9")
	require.NoError(t, err)
	return grant.SessionToken
}

// backdateSentAt moves the send time of a project into the past
func (f *fixture) backdateSentAt(t *testing.T, projectID uuid.UUID, age time.Duration) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Project{}).Where("id = ?", projectID).
		UpdateColumn("sent_at", time.Now().Add(-age)).Error)
}

func (f *fixture) reload(t *testing.T, projectID uuid.UUID) *models.Project {
	t.Helper()
	project, err := f.store.GetProject(context.Background(), projectID)
	require.NoError(t, err)
	return project
}

func (f *fixture) activityTypes(t *testing.T, projectID uuid.UUID) []models.ActivityType {
	t.Helper()
	var activities []models.Activity
	require.NoError(t, f.db.Where("project_id = ?", projectID).Order("created_at ASC").Find(&activities).Error)
	types := make([]models.ActivityType, 0, len(activities))
	for _, a := range activities {
		types = append(types, a.Type)
	}
	return types
}
