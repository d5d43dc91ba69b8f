// Package presentation decides which stored asset of a photo a viewer may
// see. It never produces URLs itself; callers sign the returned object key.
package presentation

import (
	"errors"

	"studio_gallery_server/internal/models"
)

// Viewer is the privilege of whoever is looking at the gallery
type Viewer int

const (
	ViewerPublic Viewer = iota
	ViewerOwner
)

// Context is where the asset will be rendered
type Context int

const (
	ContextGrid Context = iota
	ContextLightbox
	ContextDownload
)

// Variant names the stored asset that was chosen
type Variant string

const (
	VariantOriginal    Variant = "original"
	VariantWatermarked Variant = "watermarked"
	VariantThumbnail   Variant = "thumbnail"
)

var (
	// ErrDownloadNotAllowed is returned for public downloads when the gallery
	// does not allow them.
	ErrDownloadNotAllowed = errors.New("downloads are not allowed for this gallery")

	// ErrAssetUnavailable is returned when the only safe variant does not exist
	// yet, for example while the watermark is still being composited.
	ErrAssetUnavailable = errors.New("asset is not available")
)

// Gallery carries the project flags that affect presentation
type Gallery struct {
	AddWatermark  bool
	AllowDownload bool
}

// Asset is the resolved object to expose
type Asset struct {
	Variant Variant
	Key     string
}

// Resolve picks the asset for photo. A public viewer of a watermarked gallery
// only ever receives the watermarked variant, whatever the context.
func Resolve(photo *models.Photo, g Gallery, viewer Viewer, ctx Context) (Asset, error) {
	if viewer == ViewerPublic && ctx == ContextDownload && !g.AllowDownload {
		return Asset{}, ErrDownloadNotAllowed
	}

	if viewer == ViewerPublic && g.AddWatermark {
		if !photo.HasWatermarkedVariant() {
			return Asset{}, ErrAssetUnavailable
		}
		return Asset{Variant: VariantWatermarked, Key: *photo.WatermarkedKey}, nil
	}

	if ctx == ContextGrid && photo.ThumbnailKey != nil && *photo.ThumbnailKey != "" {
		return Asset{Variant: VariantThumbnail, Key: *photo.ThumbnailKey}, nil
	}
	if photo.OriginalKey == "" {
		return Asset{}, ErrAssetUnavailable
	}
	return Asset{Variant: VariantOriginal, Key: photo.OriginalKey}, nil
}
