package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNegativeQuota     = errors.New("selection quota must not be negative")
	ErrInvalidExpiration = errors.New("link expiration must be at least one day")
	ErrPhotoOwner        = errors.New("photo must belong to exactly one project or delivery")
)

// WatermarkPosition enumerates where the watermark text is composited
type WatermarkPosition string

const (
	WatermarkCenter      WatermarkPosition = "center"
	WatermarkTopLeft     WatermarkPosition = "top_left"
	WatermarkTopRight    WatermarkPosition = "top_right"
	WatermarkBottomLeft  WatermarkPosition = "bottom_left"
	WatermarkBottomRight WatermarkPosition = "bottom_right"
	WatermarkTiled       WatermarkPosition = "tiled"
)

// Valid reports whether p is a known position
func (p WatermarkPosition) Valid() bool {
	switch p {
	case WatermarkCenter, WatermarkTopLeft, WatermarkTopRight, WatermarkBottomLeft, WatermarkBottomRight, WatermarkTiled:
		return true
	}
	return false
}

// Photo is an image owned by exactly one project or delivery
type Photo struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID  *uuid.UUID `json:"project_id,omitempty" gorm:"type:uuid;index"`
	DeliveryID *uuid.UUID `json:"delivery_id,omitempty" gorm:"type:uuid;index"`

	OriginalFilename string  `json:"original_filename" gorm:"not null"`
	OriginalKey      string  `json:"-" gorm:"not null"`
	WatermarkedKey   *string `json:"-"`
	ThumbnailKey     *string `json:"-"`

	// Watermark configuration, all nil when the watermark is disabled
	HasWatermark      bool               `json:"has_watermark" gorm:"not null;default:false"`
	WatermarkText     *string            `json:"watermark_text,omitempty"`
	WatermarkPosition *WatermarkPosition `json:"watermark_position,omitempty" gorm:"type:text"`
	WatermarkFontSize *int               `json:"watermark_font_size,omitempty"`
	WatermarkOpacity  *float64           `json:"watermark_opacity,omitempty"`

	// Selection
	IsSelected     bool       `json:"is_selected" gorm:"not null;default:false;index"`
	SelectionOrder *int       `json:"selection_order"`
	SelectedAt     *time.Time `json:"selected_at"`

	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// TableName returns the table name for the Photo model
func (Photo) TableName() string {
	return "photos"
}

// BeforeCreate hook to set timestamps
func (ph *Photo) BeforeCreate(tx *gorm.DB) error {
	if ph.ID == uuid.Nil {
		ph.ID = uuid.New()
	}
	if ph.UploadedAt.IsZero() {
		ph.UploadedAt = time.Now()
	}
	return nil
}

// Validate checks ownership and the selection invariant
func (ph *Photo) Validate() error {
	if (ph.ProjectID == nil) == (ph.DeliveryID == nil) {
		return ErrPhotoOwner
	}
	if ph.IsSelected != (ph.SelectionOrder != nil) {
		return errors.New("selection order must be set exactly when the photo is selected")
	}
	if ph.WatermarkPosition != nil && !ph.WatermarkPosition.Valid() {
		return errors.New("unknown watermark position")
	}
	return nil
}

// HasWatermarkedVariant reports whether a composited variant exists
func (ph *Photo) HasWatermarkedVariant() bool {
	return ph.WatermarkedKey != nil && *ph.WatermarkedKey != ""
}
