package middleware

import (
	"net/http"

	"studio_gallery_server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GallerySessionHeader carries the client's gallery session
const GallerySessionHeader = "X-Gallery-Session"

// AuthMiddleware creates authentication middleware for studio owners
func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		tokenString, err := jwtService.ExtractTokenFromHeader(authHeader)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil || claims.UserID == uuid.Nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		// Set user information in context
		c.Set("user_id", claims.UserID)
		c.Set("session_id", claims.SessionID)
		c.Set("claims", claims)

		c.Next()
	}
}

// GetCaller returns the authenticated owner of the request
func GetCaller(c *gin.Context) (services.Caller, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		return services.Caller{}, false
	}
	userID, ok := value.(uuid.UUID)
	if !ok {
		return services.Caller{}, false
	}
	return services.Caller{UserID: userID, IP: c.ClientIP()}, true
}

// GallerySession returns the gallery session presented by the client
func GallerySession(c *gin.Context) string {
	return c.GetHeader(GallerySessionHeader)
}

// SecurityHeadersMiddleware adds security headers
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")

		c.Next()
	}
}
