package presentation

import "studio_gallery_server/internal/models"

const (
	// DefaultFontSize is 5% of the longer side.
	DefaultFontSize = 50

	MinFontScale = 0.02
	MaxFontScale = 0.50

	DefaultOpacity = 0.5
)

// WatermarkSpec is what the compositing service needs to render a watermark
type WatermarkSpec struct {
	Text     string                   `json:"text"`
	Position models.WatermarkPosition `json:"position"`

	// FontScale is the text height as a fraction of the image's longer side
	FontScale float64 `json:"font_scale"`
	Opacity   float64 `json:"opacity"`
}

// FontScale converts a stored font size, in tenths of a percent of the longer
// side, into a clamped ratio. 120 means 12%.
func FontScale(fontSize *int) float64 {
	size := DefaultFontSize
	if fontSize != nil {
		size = *fontSize
	}
	return clamp(float64(size)/1000, MinFontScale, MaxFontScale)
}

// Watermark returns the render spec for a photo, or nil when the photo has no
// watermark configured.
func Watermark(photo *models.Photo) *WatermarkSpec {
	if !photo.HasWatermark || photo.WatermarkText == nil || *photo.WatermarkText == "" {
		return nil
	}

	position := models.WatermarkCenter
	if photo.WatermarkPosition != nil && photo.WatermarkPosition.Valid() {
		position = *photo.WatermarkPosition
	}

	opacity := DefaultOpacity
	if photo.WatermarkOpacity != nil {
		opacity = clamp(*photo.WatermarkOpacity, 0, 1)
	}

	return &WatermarkSpec{
		Text:      *photo.WatermarkText,
		Position:  position,
		FontScale: FontScale(photo.WatermarkFontSize),
		Opacity:   opacity,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
