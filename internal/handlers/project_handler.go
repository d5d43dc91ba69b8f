package handlers

import (
	"context"
	"net/http"
	"strconv"

	"studio_gallery_server/internal/middleware"
	"studio_gallery_server/internal/models"
	"studio_gallery_server/internal/pricing"
	"studio_gallery_server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ProjectHandler struct {
	projectService   *services.ProjectService
	lifecycleService *services.LifecycleService
	selectionService *services.SelectionService
	logger           *logrus.Logger
}

func NewProjectHandler(projectService *services.ProjectService, lifecycleService *services.LifecycleService, selectionService *services.SelectionService, logger *logrus.Logger) *ProjectHandler {
	return &ProjectHandler{
		projectService:   projectService,
		lifecycleService: lifecycleService,
		selectionService: selectionService,
		logger:           logger,
	}
}

// BillingRequest represents the quota and extra photo pricing of a project
type BillingRequest struct {
	ContractedPhotos int          `json:"contracted_photos"`
	MaxSelections    *int         `json:"max_selections"`
	ExtraPhotosType  pricing.Mode `json:"extra_photos_type"`
	ExtraPhotoPrice  *int64       `json:"extra_photo_price"`
	PackageSize      *int         `json:"package_size"`
	PackagePrice     *int64       `json:"package_price"`
}

// SharingRequest represents the sharing settings of a project
type SharingRequest struct {
	Password           *string `json:"password"`
	LinkExpirationDays *int    `json:"link_expiration_days"`
	AllowDownload      bool    `json:"allow_download"`
	AddWatermark       bool    `json:"add_watermark"`
}

// CreateProjectRequest represents the request payload for creating a project
type CreateProjectRequest struct {
	Name        string  `json:"name" binding:"required"`
	ClientEmail *string `json:"client_email"`
	BillingRequest
	SharingRequest
}

// WatermarkRequest represents the watermark settings of an uploaded photo
type WatermarkRequest struct {
	Text     string                   `json:"text"`
	Position models.WatermarkPosition `json:"position"`
	FontSize *int                     `json:"font_size"`
	Opacity  *float64                 `json:"opacity"`
}

// PhotoRequest registers a photo already uploaded to object storage
type PhotoRequest struct {
	OriginalFilename string            `json:"original_filename" binding:"required"`
	OriginalKey      string            `json:"original_key" binding:"required"`
	WatermarkedKey   *string           `json:"watermarked_key"`
	ThumbnailKey     *string           `json:"thumbnail_key"`
	FileSize         int64             `json:"file_size"`
	MimeType         string            `json:"mime_type"`
	Watermark        *WatermarkRequest `json:"watermark"`
}

// SendRequest represents the recipient of a gallery link
type SendRequest struct {
	Recipient string `json:"recipient"`
}

func (r BillingRequest) input() services.BillingInput {
	return services.BillingInput{
		ContractedPhotos: r.ContractedPhotos,
		MaxSelections:    r.MaxSelections,
		ExtraPhotosType:  r.ExtraPhotosType,
		ExtraPhotoPrice:  r.ExtraPhotoPrice,
		PackageSize:      r.PackageSize,
		PackagePrice:     r.PackagePrice,
	}
}

func (r SharingRequest) input() services.SharingInput {
	return services.SharingInput{
		Password:           r.Password,
		LinkExpirationDays: r.LinkExpirationDays,
		AllowDownload:      r.AllowDownload,
		AddWatermark:       r.AddWatermark,
	}
}

func (r PhotoRequest) input() services.PhotoInput {
	input := services.PhotoInput{
		OriginalFilename: r.OriginalFilename,
		OriginalKey:      r.OriginalKey,
		WatermarkedKey:   r.WatermarkedKey,
		ThumbnailKey:     r.ThumbnailKey,
		FileSize:         r.FileSize,
		MimeType:         r.MimeType,
	}
	if r.Watermark != nil {
		input.Watermark = &services.WatermarkInput{
			Text:     r.Watermark.Text,
			Position: r.Watermark.Position,
			FontSize: r.Watermark.FontSize,
			Opacity:  r.Watermark.Opacity,
		}
	}
	return input
}

// CreateProject creates a new draft project
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.projectService.CreateProject(c.Request.Context(), caller, services.CreateProjectInput{
		Name:        req.Name,
		ClientEmail: req.ClientEmail,
		Billing:     req.BillingRequest.input(),
		Sharing:     req.SharingRequest.input(),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Project created successfully",
		"project": project,
	})
}

// GetProject retrieves a project by ID
func (h *ProjectHandler) GetProject(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	project, err := h.projectService.GetProject(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

// ListProjects retrieves a paginated list of the caller's projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	offset, limit := pagination(c)

	var status *models.ProjectStatus
	if statusStr := c.Query("status"); statusStr != "" {
		s := models.ProjectStatus(statusStr)
		status = &s
	}

	projects, total, err := h.projectService.ListProjects(c.Request.Context(), caller, status, offset, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"projects": projects,
		"pagination": gin.H{
			"offset": offset,
			"limit":  limit,
			"total":  total,
		},
	})
}

// UpdateBilling replaces the quota and pricing of a project
func (h *ProjectHandler) UpdateBilling(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	var req BillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.projectService.UpdateBilling(c.Request.Context(), caller, id, req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Project billing updated successfully",
		"project": project,
	})
}

// UpdateSharing replaces the sharing settings of a project
func (h *ProjectHandler) UpdateSharing(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	var req SharingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.projectService.UpdateSharing(c.Request.Context(), caller, id, req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Project sharing updated successfully",
		"project": project,
	})
}

// RotateShareToken issues a new share link, invalidating the old one
func (h *ProjectHandler) RotateShareToken(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	project, url, err := h.projectService.RotateShareToken(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project":   project,
		"share_url": url,
	})
}

// AddPhoto registers an uploaded photo
func (h *ProjectHandler) AddPhoto(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	var req PhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	photo, err := h.projectService.AddPhoto(c.Request.Context(), caller, id, req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"photo": photo})
}

// ListPhotos lists the photos of a project as the owner sees them
func (h *ProjectHandler) ListPhotos(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	photos, err := h.projectService.ListPhotos(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"photos": photos})
}

// ListSelections lists the client's selections in selection order
func (h *ProjectHandler) ListSelections(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	selections, err := h.selectionService.ListSelections(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"selections": selections,
		"count":      len(selections),
	})
}

// GetQuote prices the client's current selection
func (h *ProjectHandler) GetQuote(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	quote, err := h.selectionService.OwnerQuote(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondQuote(c, quote)
}

// SendProject shares the gallery with the client
func (h *ProjectHandler) SendProject(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	var req SendRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	project, err := h.lifecycleService.SendProject(c.Request.Context(), caller, id, req.Recipient)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project":   project,
		"share_url": h.lifecycleService.GalleryURL(*project.ShareToken),
	})
}

// StartSelection opens the selection phase
func (h *ProjectHandler) StartSelection(c *gin.Context) {
	h.transition(c, h.lifecycleService.StartSelection)
}

// FinalizeProject closes the selection phase
func (h *ProjectHandler) FinalizeProject(c *gin.Context) {
	h.transition(c, h.lifecycleService.FinalizeProject)
}

// ArchiveProject archives a project
func (h *ProjectHandler) ArchiveProject(c *gin.Context) {
	h.transition(c, h.lifecycleService.ArchiveProject)
}

// RestoreProject returns an archived or deleted project to its previous state
func (h *ProjectHandler) RestoreProject(c *gin.Context) {
	h.transition(c, h.lifecycleService.RestoreProject)
}

// DeleteProject soft deletes a project
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	h.transition(c, h.lifecycleService.DeleteProject)
}

// PurgeProject permanently deletes a soft deleted project
func (h *ProjectHandler) PurgeProject(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	if err := h.lifecycleService.PurgeProject(c.Request.Context(), caller, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Project deleted permanently"})
}

type projectTransition func(ctx context.Context, caller services.Caller, id uuid.UUID) (*models.Project, error)

func (h *ProjectHandler) transition(c *gin.Context, apply projectTransition) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	project, err := apply(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

func requireCaller(c *gin.Context) (services.Caller, bool) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return services.Caller{}, false
	}
	return caller, true
}

func callerAndID(c *gin.Context) (services.Caller, uuid.UUID, bool) {
	caller, ok := requireCaller(c)
	if !ok {
		return services.Caller{}, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return services.Caller{}, uuid.Nil, false
	}
	return caller, id, true
}

func pagination(c *gin.Context) (int, int) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}
	return offset, limit
}
