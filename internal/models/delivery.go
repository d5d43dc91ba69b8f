package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryStatus represents the lifecycle state of a delivery
type DeliveryStatus string

const (
	DeliveryStatusCreated    DeliveryStatus = "created"
	DeliveryStatusSent       DeliveryStatus = "sent"
	DeliveryStatusDownloaded DeliveryStatus = "downloaded"
	DeliveryStatusExpired    DeliveryStatus = "expired"
	DeliveryStatusDeleted    DeliveryStatus = "deleted"
)

// Delivery is a hand-off of already edited photos
type Delivery struct {
	ID             uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID        uuid.UUID       `json:"owner_id" gorm:"type:uuid;not null;index"`
	Title          string          `json:"title" gorm:"not null"`
	ClientEmail    *string         `json:"client_email"`
	Status         DeliveryStatus  `json:"status" gorm:"type:text;not null;default:'created';index"`
	PreviousStatus *DeliveryStatus `json:"previous_status,omitempty" gorm:"type:text"`

	ShareToken         *string `json:"share_token,omitempty" gorm:"uniqueIndex"`
	AccessPasswordHash *string `json:"-"`
	LinkExpirationDays *int    `json:"link_expiration_days"`

	ViewCount     int64 `json:"view_count" gorm:"not null;default:0"`
	DownloadCount int64 `json:"download_count" gorm:"not null;default:0"`

	SentAt       *time.Time `json:"sent_at"`
	DownloadedAt *time.Time `json:"downloaded_at"`
	ExpiredAt    *time.Time `json:"expired_at"`
	DeletedAt    *time.Time `json:"deleted_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Relationships
	Photos []Photo `json:"photos,omitempty" gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for the Delivery model
func (Delivery) TableName() string {
	return "deliveries"
}

// BeforeCreate hook to set timestamps
func (d *Delivery) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = DeliveryStatusCreated
	}
	return nil
}

// BeforeUpdate hook to update timestamp
func (d *Delivery) BeforeUpdate(tx *gorm.DB) error {
	d.UpdatedAt = time.Now()
	return nil
}

// RequiresPassword reports whether the delivery is password protected
func (d *Delivery) RequiresPassword() bool {
	return d.AccessPasswordHash != nil && *d.AccessPasswordHash != ""
}

// ExpiresAt returns when the share link stops working, if it expires at all
func (d *Delivery) ExpiresAt() *time.Time {
	return expiresAt(d.SentAt, d.LinkExpirationDays)
}

// Validate checks the delivery configuration
func (d *Delivery) Validate() error {
	if d.LinkExpirationDays != nil && *d.LinkExpirationDays < 1 {
		return ErrInvalidExpiration
	}
	return nil
}
