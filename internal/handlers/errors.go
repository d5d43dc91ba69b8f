package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"studio_gallery_server/internal/lifecycle"
	"studio_gallery_server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// respondError maps service errors onto HTTP responses. Unknown errors are
// logged and reported as 500 without detail.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var quota *services.QuotaExceededError
	var transition *lifecycle.TransitionError
	var throttled *services.TooManyAttemptsError

	switch {
	case errors.As(err, &quota):
		c.JSON(http.StatusConflict, gin.H{
			"error":          "Selection limit reached",
			"code":           "quota_exceeded",
			"max_selections": quota.MaxSelections,
			"selected":       quota.Selected,
			"remaining":      quota.Remaining(),
		})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{
			"error":     transition.Error(),
			"code":      "invalid_transition",
			"current":   transition.Current,
			"requested": transition.Requested,
		})
	case errors.As(err, &throttled):
		seconds := int(math.Ceil(throttled.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too many password attempts",
			"code":        "too_many_attempts",
			"retry_after": seconds,
		})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Link invalid", "code": "not_found"})
	case errors.Is(err, services.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "This gallery link has expired", "code": "expired"})
	case errors.Is(err, services.ErrInvalidPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password", "code": "invalid_password"})
	case errors.Is(err, services.ErrSessionRequired):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":            "Password required",
			"code":             "session_required",
			"require_password": true,
		})
	case errors.Is(err, services.ErrSelectionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "Selection is closed", "code": "selection_closed"})
	case errors.Is(err, services.ErrDownloadNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": "Downloads are disabled for this gallery", "code": "download_not_allowed"})
	case errors.Is(err, services.ErrAssetUnavailable):
		c.JSON(http.StatusNotFound, gin.H{"error": "Photo is not available yet", "code": "asset_unavailable"})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
	default:
		logger.WithError(err).WithField("route", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
