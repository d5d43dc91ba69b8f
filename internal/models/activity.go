package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityType tags an activity record
type ActivityType string

const (
	ActivityProjectTransition  ActivityType = "project_transition"
	ActivityDeliveryTransition ActivityType = "delivery_transition"
	ActivitySelectionAdded     ActivityType = "selection_added"
	ActivitySelectionRemoved   ActivityType = "selection_removed"
	ActivitySelectionSubmitted ActivityType = "selection_submitted"
	ActivityGalleryViewed      ActivityType = "gallery_viewed"
	ActivityGalleryUnlocked    ActivityType = "gallery_unlocked"
	ActivityPasswordFailed     ActivityType = "gallery_password_failed"
	ActivityGalleryExpired     ActivityType = "gallery_expired"
	ActivityPhotoDownloaded    ActivityType = "photo_downloaded"
)

// Activity is an append-only log entry. Nothing reads it back for decisions.
type Activity struct {
	ID          uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID   *uuid.UUID   `json:"project_id" gorm:"type:uuid;index"`
	DeliveryID  *uuid.UUID   `json:"delivery_id" gorm:"type:uuid;index"`
	Type        ActivityType `json:"type" gorm:"type:text;not null"`
	Description string       `json:"description" gorm:"not null"`
	IPAddress   *string      `json:"ip_address"`
	Metadata    JSONB        `json:"metadata" gorm:"type:jsonb"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TableName returns the table name for the Activity model
func (Activity) TableName() string {
	return "activities"
}

// BeforeCreate hook to set timestamps
func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Metadata == nil {
		a.Metadata = make(JSONB)
	}
	return nil
}

// JSONB represents a JSONB field
type JSONB map[string]interface{}

// Scan implements the Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return gorm.ErrInvalidData
	}

	return json.Unmarshal(bytes, j)
}

// Value implements the driver Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
