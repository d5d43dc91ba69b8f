package handlers

import (
	"net/http"

	"studio_gallery_server/internal/middleware"
	"studio_gallery_server/internal/pricing"
	"studio_gallery_server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GalleryHandler serves the public, token addressed gallery and delivery
// pages
type GalleryHandler struct {
	accessService    *services.AccessService
	galleryService   *services.GalleryService
	selectionService *services.SelectionService
	logger           *logrus.Logger
}

func NewGalleryHandler(accessService *services.AccessService, galleryService *services.GalleryService, selectionService *services.SelectionService, logger *logrus.Logger) *GalleryHandler {
	return &GalleryHandler{
		accessService:    accessService,
		galleryService:   galleryService,
		selectionService: selectionService,
		logger:           logger,
	}
}

// AuthRequest represents the password submitted to unlock a gallery
type AuthRequest struct {
	Password string `json:"password"`
}

// SelectionRequest represents the photo to select
type SelectionRequest struct {
	PhotoID string `json:"photo_id" binding:"required"`
}

// GetGallery returns the gallery page
func (h *GalleryHandler) GetGallery(c *gin.Context) {
	view, grant, err := h.galleryService.OpenProject(c.Request.Context(), c.Param("token"), middleware.GallerySession(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if grant != nil {
		c.Header(middleware.GallerySessionHeader, grant.SessionToken)
	}

	c.JSON(http.StatusOK, view)
}

// Authenticate checks the gallery password and returns a session
func (h *GalleryHandler) Authenticate(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	grant, err := h.accessService.AuthenticateProject(c.Request.Context(), c.Param("token"), req.Password, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header(middleware.GallerySessionHeader, grant.SessionToken)
	c.JSON(http.StatusOK, grant)
}

// AddSelection selects a photo
func (h *GalleryHandler) AddSelection(c *gin.Context) {
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	photoID, err := uuid.Parse(req.PhotoID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid photo ID"})
		return
	}

	result, err := h.selectionService.Add(c.Request.Context(), c.Param("token"), middleware.GallerySession(c), photoID, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Changed {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// RemoveSelection clears a photo's selection
func (h *GalleryHandler) RemoveSelection(c *gin.Context) {
	photoID, err := uuid.Parse(c.Param("photoId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid photo ID"})
		return
	}

	result, err := h.selectionService.Remove(c.Request.Context(), c.Param("token"), middleware.GallerySession(c), photoID, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ToggleSelection flips a photo's selection
func (h *GalleryHandler) ToggleSelection(c *gin.Context) {
	photoID, err := uuid.Parse(c.Param("photoId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid photo ID"})
		return
	}

	result, err := h.selectionService.Toggle(c.Request.Context(), c.Param("token"), middleware.GallerySession(c), photoID, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RecordView counts a view. Failures are logged only; the client does not
// wait for this call.
func (h *GalleryHandler) RecordView(c *gin.Context) {
	if err := h.galleryService.RecordView(c.Request.Context(), c.Param("token"), middleware.GallerySession(c), c.ClientIP()); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// GetQuote prices the current selection. For dual billing, mode picks the
// option to total.
func (h *GalleryHandler) GetQuote(c *gin.Context) {
	quote, err := h.selectionService.Quote(c.Request.Context(), c.Param("token"), middleware.GallerySession(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondQuote(c, quote)
}

// Submit signals that the client finished selecting
func (h *GalleryHandler) Submit(c *gin.Context) {
	quote, err := h.selectionService.Submit(c.Request.Context(), c.Param("token"), middleware.GallerySession(c), c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"submitted": true,
		"quote":     quote,
	})
}

// DownloadPhoto returns a signed download URL
func (h *GalleryHandler) DownloadPhoto(c *gin.Context) {
	photoID, err := uuid.Parse(c.Param("photoId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid photo ID"})
		return
	}

	download, err := h.galleryService.DownloadPhoto(c.Request.Context(), c.Param("token"), middleware.GallerySession(c), photoID, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, download)
}

// GetDelivery returns the delivery page
func (h *GalleryHandler) GetDelivery(c *gin.Context) {
	view, grant, err := h.galleryService.OpenDelivery(c.Request.Context(), c.Param("token"), middleware.GallerySession(c), c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if grant != nil {
		c.Header(middleware.GallerySessionHeader, grant.SessionToken)
	}
	c.JSON(http.StatusOK, view)
}

// AuthenticateDelivery checks the delivery password and returns a session
func (h *GalleryHandler) AuthenticateDelivery(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	grant, err := h.accessService.AuthenticateDelivery(c.Request.Context(), c.Param("token"), req.Password, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header(middleware.GallerySessionHeader, grant.SessionToken)
	c.JSON(http.StatusOK, grant)
}

// DownloadDeliveryPhoto returns a signed download URL for a delivered photo
func (h *GalleryHandler) DownloadDeliveryPhoto(c *gin.Context) {
	photoID, err := uuid.Parse(c.Param("photoId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid photo ID"})
		return
	}

	download, err := h.galleryService.DownloadDeliveryPhoto(c.Request.Context(), c.Param("token"), middleware.GallerySession(c), photoID, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, download)
}

func respondQuote(c *gin.Context, quote *pricing.Quote) {
	body := gin.H{"quote": quote}

	if mode := c.Query("mode"); mode != "" {
		total, err := quote.For(pricing.Mode(mode))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		body["mode"] = mode
		body["total"] = total
	} else if total, ok := quote.Total(); ok {
		body["total"] = total
	}

	c.JSON(http.StatusOK, body)
}
