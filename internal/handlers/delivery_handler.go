package handlers

import (
	"net/http"

	"studio_gallery_server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type DeliveryHandler struct {
	deliveryService  *services.DeliveryService
	lifecycleService *services.LifecycleService
	logger           *logrus.Logger
}

func NewDeliveryHandler(deliveryService *services.DeliveryService, lifecycleService *services.LifecycleService, logger *logrus.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		deliveryService:  deliveryService,
		lifecycleService: lifecycleService,
		logger:           logger,
	}
}

// CreateDeliveryRequest represents the request payload for creating a delivery
type CreateDeliveryRequest struct {
	Title              string  `json:"title" binding:"required"`
	ClientEmail        *string `json:"client_email"`
	Password           *string `json:"password"`
	LinkExpirationDays *int    `json:"link_expiration_days"`
}

// DeliverySharingRequest represents the sharing settings of a delivery
type DeliverySharingRequest struct {
	Password           *string `json:"password"`
	LinkExpirationDays *int    `json:"link_expiration_days"`
}

// CreateDelivery creates a new delivery
func (h *DeliveryHandler) CreateDelivery(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	delivery, err := h.deliveryService.CreateDelivery(c.Request.Context(), caller, services.CreateDeliveryInput{
		Title:              req.Title,
		ClientEmail:        req.ClientEmail,
		Password:           req.Password,
		LinkExpirationDays: req.LinkExpirationDays,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Delivery created successfully",
		"delivery": delivery,
	})
}

// GetDelivery retrieves a delivery by ID
func (h *DeliveryHandler) GetDelivery(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	delivery, err := h.deliveryService.GetDelivery(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"delivery": delivery})
}

// ListDeliveries retrieves a paginated list of the caller's deliveries
func (h *DeliveryHandler) ListDeliveries(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	offset, limit := pagination(c)

	deliveries, total, err := h.deliveryService.ListDeliveries(c.Request.Context(), caller, offset, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deliveries": deliveries,
		"pagination": gin.H{
			"offset": offset,
			"limit":  limit,
			"total":  total,
		},
	})
}

// UpdateSharing replaces the password and expiration of a delivery
func (h *DeliveryHandler) UpdateSharing(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	var req DeliverySharingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	delivery, err := h.deliveryService.UpdateSharing(c.Request.Context(), caller, id, services.DeliverySharingInput{
		Password:           req.Password,
		LinkExpirationDays: req.LinkExpirationDays,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"delivery": delivery})
}

// AddPhoto registers an uploaded photo with a delivery
func (h *DeliveryHandler) AddPhoto(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	var req PhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	photo, err := h.deliveryService.AddPhoto(c.Request.Context(), caller, id, req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"photo": photo})
}

// ListPhotos lists the photos of a delivery
func (h *DeliveryHandler) ListPhotos(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	photos, err := h.deliveryService.ListPhotos(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"photos": photos})
}

// SendDelivery shares the delivery with the client
func (h *DeliveryHandler) SendDelivery(c *gin.Context) {
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

	delivery, err := h.lifecycleService.SendDelivery(c.Request.Context(), caller, id, req.Recipient)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"delivery":     delivery,
		"delivery_url": h.lifecycleService.DeliveryURL(*delivery.ShareToken),
	})
}

// RestoreDelivery returns a deleted delivery to its previous state
func (h *DeliveryHandler) RestoreDelivery(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	delivery, err := h.lifecycleService.RestoreDelivery(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"delivery": delivery})
}

// DeleteDelivery soft deletes a delivery
func (h *DeliveryHandler) DeleteDelivery(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	delivery, err := h.lifecycleService.DeleteDelivery(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"delivery": delivery})
}

// PurgeDelivery permanently deletes a soft deleted delivery
func (h *DeliveryHandler) PurgeDelivery(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	if err := h.lifecycleService.PurgeDelivery(c.Request.Context(), caller, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Delivery deleted permanently"})
}
