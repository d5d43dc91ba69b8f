package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studio_gallery_server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_RejectsBurstOverflow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(1, 2, quietLogger())

	router := gin.New()
	router.GET("/g/:token", limiter.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/g/abc", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		codes = append(codes, serve(router, req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodGet, "/g/abc", nil)
	other.RemoteAddr = "198.51.100.7:1234"
	assert.Equal(t, http.StatusOK, serve(router, other).Code, "limits are per client")
}

func TestRateLimiter_CleanupDropsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(1, 1, quietLogger())
	limiter.getLimiter("a")
	limiter.limiters["a"].lastSeen = time.Now().Add(-time.Hour)
	limiter.getLimiter("b")

	limiter.Cleanup(time.Minute)

	_, hasA := limiter.limiters["a"]
	_, hasB := limiter.limiters["b"]
	assert.False(t, hasA)
	assert.True(t, hasB)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtService := services.NewJWTService("owner-secret", "gallery-secret", time.Hour)
	userID := uuid.New()
	token, err := jwtService.GenerateAccessToken(userID, uuid.New())
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", AuthMiddleware(jwtService), func(c *gin.Context) {
		caller, ok := GetCaller(c)
		require.True(t, ok)
		c.String(http.StatusOK, caller.UserID.String())
	})

	cases := map[string]struct {
		header string
		status int
	}{
		"missing":    {"", http.StatusUnauthorized},
		"not bearer": {"Basic abc", http.StatusUnauthorized},
		"bad token":  {"Bearer abc.def.ghi", http.StatusUnauthorized},
		"valid":      {"Bearer " + token, http.StatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := serve(router, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, userID.String(), rec.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_RejectsGallerySessions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtService := services.NewJWTService("owner-secret", "gallery-secret", time.Hour)
	session, _, err := jwtService.GenerateGallerySession(services.GalleryKindProject, "tok", "")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", AuthMiddleware(jwtService), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+session)
	assert.Equal(t, http.StatusUnauthorized, serve(router, req).Code)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS("https://studio.test/"))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://studio.test")
	rec := serve(router, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://studio.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), GallerySessionHeader)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = serve(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), Logger(quietLogger()), Recovery(quietLogger()))
	router.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/ok", nil))
	generated := rec.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", serve(router, req).Header().Get(RequestIDHeader))

	assert.Equal(t, http.StatusInternalServerError, serve(router, httptest.NewRequest(http.MethodGet, "/panic", nil)).Code)
}
