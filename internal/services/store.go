package services

import (
	"context"
	"time"

	"studio_gallery_server/internal/models"

	"github.com/google/uuid"
)

// Counter names a monotonically increasing usage column
type Counter string

const (
	CounterViews     Counter = "view_count"
	CounterDownloads Counter = "download_count"
)

// ProjectStatusChange is one conditional status update. The store applies it
// only while the row is still in From and reports ErrStaleState otherwise.
type ProjectStatusChange struct {
	From     models.ProjectStatus
	To       models.ProjectStatus
	Previous *models.ProjectStatus
	At       time.Time

	// Columns written together with the status when non-nil
	SentAt      *time.Time
	FinalizedAt *time.Time
	ArchivedAt  *time.Time
	DeletedAt   *time.Time
	ClientEmail *string
	ShareToken  *string
}

// DeliveryStatusChange is the delivery counterpart of ProjectStatusChange
type DeliveryStatusChange struct {
	From     models.DeliveryStatus
	To       models.DeliveryStatus
	Previous *models.DeliveryStatus
	At       time.Time

	SentAt       *time.Time
	DownloadedAt *time.Time
	ExpiredAt    *time.Time
	DeletedAt    *time.Time
	ClientEmail  *string
	ShareToken   *string
}

// ProjectListFilter narrows an owner's project listing
type ProjectListFilter struct {
	OwnerID uuid.UUID
	Status  *models.ProjectStatus
	Offset  int
	Limit   int
}

// ProjectStore persists projects, their photos and the selection ledger.
// Lookups return ErrNotFound for missing rows.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetProjectByToken(ctx context.Context, token string) (*models.Project, error)
	ListProjects(ctx context.Context, filter ProjectListFilter) ([]models.Project, int64, error)

	// UpdateProjectColumns writes the named columns of project
	UpdateProjectColumns(ctx context.Context, project *models.Project, columns ...string) error
	ApplyProjectChange(ctx context.Context, id uuid.UUID, change ProjectStatusChange) error
	// DeleteProject removes a deleted project and its photos. It reports
	// ErrStaleState when the project is no longer deleted.
	DeleteProject(ctx context.Context, id uuid.UUID) error
	IncrementProjectCounter(ctx context.Context, id uuid.UUID, counter Counter) error

	AddPhoto(ctx context.Context, photo *models.Photo) error
	GetProjectPhoto(ctx context.Context, projectID, photoID uuid.UUID) (*models.Photo, error)
	ListProjectPhotos(ctx context.Context, projectID uuid.UUID) ([]models.Photo, error)

	// AddSelection marks the photo selected and reports whether it changed
	// anything. It returns *QuotaExceededError when the project is full.
	AddSelection(ctx context.Context, projectID, photoID uuid.UUID, at time.Time) (*models.Photo, bool, error)
	// RemoveSelection clears the selection and reports whether it changed
	// anything.
	RemoveSelection(ctx context.Context, projectID, photoID uuid.UUID) (*models.Photo, bool, error)
	CountSelected(ctx context.Context, projectID uuid.UUID) (int, error)
	ListSelections(ctx context.Context, projectID uuid.UUID) ([]models.Photo, error)
}

// DeliveryStore persists deliveries and their photos
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, delivery *models.Delivery) error
	GetDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	GetDeliveryByToken(ctx context.Context, token string) (*models.Delivery, error)
	ListDeliveries(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]models.Delivery, int64, error)
	UpdateDeliveryColumns(ctx context.Context, delivery *models.Delivery, columns ...string) error
	ApplyDeliveryChange(ctx context.Context, id uuid.UUID, change DeliveryStatusChange) error
	DeleteDelivery(ctx context.Context, id uuid.UUID) error // ErrStaleState unless deleted
	IncrementDeliveryCounter(ctx context.Context, id uuid.UUID, counter Counter) error

	AddPhoto(ctx context.Context, photo *models.Photo) error
	GetDeliveryPhoto(ctx context.Context, deliveryID, photoID uuid.UUID) (*models.Photo, error)
	ListDeliveryPhotos(ctx context.Context, deliveryID uuid.UUID) ([]models.Photo, error)
}

// ActivitySink appends activity records
type ActivitySink interface {
	AppendActivity(ctx context.Context, activity *models.Activity) error
}

// URLSigner turns a stored object key into a short-lived URL
type URLSigner interface {
	SignedURL(ctx context.Context, key string, download bool, filename string) (string, error)
}

// IntentKind identifies a notification the engine asks to be sent
type IntentKind string

const (
	IntentGalleryReady      IntentKind = "gallery_ready"
	IntentGalleryRestored   IntentKind = "gallery_restored"
	IntentDeliveryReady     IntentKind = "delivery_ready"
	IntentSelectionComplete IntentKind = "selection_complete"
)

// Intent is a notification request. Delivery of it is the notifier's
// concern; the engine never waits on it.
type Intent struct {
	Kind       IntentKind `json:"kind"`
	Recipient  string     `json:"recipient,omitempty"`
	ProjectID  *uuid.UUID `json:"project_id,omitempty"`
	DeliveryID *uuid.UUID `json:"delivery_id,omitempty"`
	Title      string     `json:"title"`
	ShareURL   string     `json:"share_url,omitempty"`
	Selected   *int       `json:"selected,omitempty"`
}

// Notifier dispatches notification intents
type Notifier interface {
	Notify(ctx context.Context, intent Intent) error
}

// AttemptThrottle counts failed password attempts per key
type AttemptThrottle interface {
	// Blocked returns how long the key is still locked out, zero if it is not
	Blocked(ctx context.Context, key string) (time.Duration, error)
	// Failure records a failed attempt and returns the lockout it triggered
	Failure(ctx context.Context, key string) (time.Duration, error)
	Reset(ctx context.Context, key string) error
}

// ViewDeduper reports whether a key is seen for the first time within ttl
type ViewDeduper interface {
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
