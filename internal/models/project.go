package models

import (
	"time"

	"studio_gallery_server/internal/pricing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectStatus represents the lifecycle state of a project
type ProjectStatus string

const (
	ProjectStatusDraft       ProjectStatus = "draft"
	ProjectStatusSent        ProjectStatus = "sent"
	ProjectStatusInSelection ProjectStatus = "in_selection"
	ProjectStatusFinalized   ProjectStatus = "finalized"
	ProjectStatusArchived    ProjectStatus = "archived"
	ProjectStatusDeleted     ProjectStatus = "deleted"
)

// IsActive reports whether the status is one of the working states that
// archive and delete remember for a later restore.
func (s ProjectStatus) IsActive() bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusSent, ProjectStatusInSelection, ProjectStatusFinalized:
		return true
	}
	return false
}

// Project represents one client engagement and its gallery configuration
type Project struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID        uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	Name           string         `json:"name" gorm:"not null"`
	ClientEmail    *string        `json:"client_email"`
	Status         ProjectStatus  `json:"status" gorm:"type:text;not null;default:'draft';index"`
	PreviousStatus *ProjectStatus `json:"previous_status,omitempty" gorm:"type:text"`

	// Selection quota
	ContractedPhotos int  `json:"contracted_photos" gorm:"not null;default:0"`
	MaxSelections    *int `json:"max_selections"`

	// Extra photo billing
	ExtraPhotosType pricing.Mode `json:"extra_photos_type" gorm:"type:text;not null;default:'individual'"`
	ExtraPhotoPrice *int64       `json:"extra_photo_price"`
	PackageSize     *int         `json:"package_size"`
	PackagePrice    *int64       `json:"package_price"`

	// Sharing
	ShareToken         *string `json:"share_token,omitempty" gorm:"uniqueIndex"`
	AccessPasswordHash *string `json:"-"`
	LinkExpirationDays *int    `json:"link_expiration_days"`
	AllowDownload      bool    `json:"allow_download" gorm:"not null;default:false"`
	AddWatermark       bool    `json:"add_watermark" gorm:"not null;default:false"`

	// Counters
	SelectionSeq  int   `json:"-" gorm:"not null;default:0"`
	SelectedCount int   `json:"selected_count" gorm:"not null;default:0"`
	ViewCount     int64 `json:"view_count" gorm:"not null;default:0"`
	DownloadCount int64 `json:"download_count" gorm:"not null;default:0"`

	SentAt      *time.Time `json:"sent_at"`
	FinalizedAt *time.Time `json:"finalized_at"`
	ArchivedAt  *time.Time `json:"archived_at"`
	DeletedAt   *time.Time `json:"deleted_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relationships
	Photos []Photo `json:"photos,omitempty" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for the Project model
func (Project) TableName() string {
	return "projects"
}

// BeforeCreate hook to set timestamps
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = ProjectStatusDraft
	}
	return nil
}

// BeforeUpdate hook to update timestamp
func (p *Project) BeforeUpdate(tx *gorm.DB) error {
	p.UpdatedAt = time.Now()
	return nil
}

// RequiresPassword reports whether the gallery is password protected
func (p *Project) RequiresPassword() bool {
	return p.AccessPasswordHash != nil && *p.AccessPasswordHash != ""
}

// PricingPlan builds the validated billing variant for this project
func (p *Project) PricingPlan() (pricing.Plan, error) {
	return pricing.NewPlan(p.ExtraPhotosType, p.ExtraPhotoPrice, p.PackageSize, p.PackagePrice)
}

// Validate checks the quota and billing invariants
func (p *Project) Validate() error {
	if p.MaxSelections != nil && *p.MaxSelections < 0 {
		return ErrNegativeQuota
	}
	if p.ContractedPhotos < 0 {
		return ErrNegativeQuota
	}
	if p.LinkExpirationDays != nil && *p.LinkExpirationDays < 1 {
		return ErrInvalidExpiration
	}
	_, err := p.PricingPlan()
	return err
}

// ExpiresAt returns when the share link stops working, if it expires at all
func (p *Project) ExpiresAt() *time.Time {
	return expiresAt(p.SentAt, p.LinkExpirationDays)
}

// RemainingSelections returns the free quota slots clamped at zero, or nil
// when the quota is unlimited
func (p *Project) RemainingSelections() *int {
	if p.MaxSelections == nil {
		return nil
	}
	remaining := *p.MaxSelections - p.SelectedCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

func expiresAt(sentAt *time.Time, days *int) *time.Time {
	if sentAt == nil || days == nil {
		return nil
	}
	t := sentAt.Add(time.Duration(*days) * 24 * time.Hour)
	return &t
}
