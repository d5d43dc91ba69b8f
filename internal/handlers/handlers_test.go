package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studio_gallery_server/internal/lifecycle"
	"studio_gallery_server/internal/middleware"
	"studio_gallery_server/internal/models"
	"studio_gallery_server/internal/repository"
	"studio_gallery_server/internal/services"
	"studio_gallery_server/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubSigner struct{}

func (stubSigner) SignedURL(_ context.Context, key string, download bool, filename string) (string, error) {
	if download {
		return "https://objects.test/" + key + "?attachment=" + filename, nil
	}
	return "https://objects.test/" + key, nil
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, services.Intent) error { return nil }

type testServer struct {
	router *gin.Engine
	bearer string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := repository.NewGormStore(db)
	jwtService := services.NewJWTService("owner-secret", "gallery-secret", time.Hour)
	lifecycleService := services.NewLifecycleService(store, store, store, discardNotifier{}, "https://studio.test", log)
	accessService := services.NewAccessService(store, store, lifecycleService, jwtService, nil, nil, store, log)
	selectionService := services.NewSelectionService(store, accessService, lifecycleService, store, discardNotifier{}, false, log)
	galleryService := services.NewGalleryService(accessService, store, store, lifecycleService, stubSigner{}, store, false, log)
	projectService := services.NewProjectService(store, lifecycleService, stubSigner{}, log)

	projectHandler := NewProjectHandler(projectService, lifecycleService, selectionService, log)
	galleryHandler := NewGalleryHandler(accessService, galleryService, selectionService, log)

	router := gin.New()
	gallery := router.Group("/api/v1/gallery/:token")
	{
		gallery.GET("", galleryHandler.GetGallery)
		gallery.POST("/auth", galleryHandler.Authenticate)
		gallery.POST("/selections", galleryHandler.AddSelection)
		gallery.DELETE("/selections/:photoId", galleryHandler.RemoveSelection)
		gallery.GET("/quote", galleryHandler.GetQuote)
		gallery.POST("/submit", galleryHandler.Submit)
		gallery.GET("/photos/:photoId/download", galleryHandler.DownloadPhoto)
	}
	projects := router.Group("/api/v1/projects", middleware.AuthMiddleware(jwtService))
	{
		projects.POST("", projectHandler.CreateProject)
		projects.GET("/:id", projectHandler.GetProject)
		projects.PUT("/:id/sharing", projectHandler.UpdateSharing)
		projects.POST("/:id/photos", projectHandler.AddPhoto)
		projects.POST("/:id/send", projectHandler.SendProject)
		projects.POST("/:id/start-selection", projectHandler.StartSelection)
		projects.POST("/:id/finalize", projectHandler.FinalizeProject)
	}

	bearer, err := jwtService.GenerateAccessToken(uuid.New(), uuid.New())
	require.NoError(t, err)
	return &testServer{router: router, bearer: bearer}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) owner(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	return s.do(t, method, path, body, map[string]string{"Authorization": "Bearer " + s.bearer})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// sendGallery creates a project with n photos, sends it and returns the
// project id, share token and photo ids
func (s *testServer) sendGallery(t *testing.T, project gin.H, n int) (string, string, []string) {
	t.Helper()
	rec := s.owner(t, http.MethodPost, "/api/v1/projects", project)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["project"].(map[string]interface{})["id"].(string)

	photos := make([]string, 0, n)
	for i := 0; i < n; i++ {
		rec = s.owner(t, http.MethodPost, "/api/v1/projects/"+id+"/photos", gin.H{
			"original_filename": fmt.Sprintf("img-%d.jpg", i),
			"original_key":      fmt.Sprintf("originals/img-%d.jpg", i),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		photos = append(photos, decode(t, rec)["photo"].(map[string]interface{})["id"].(string))
	}

	rec = s.owner(t, http.MethodPost, "/api/v1/projects/"+id+"/send", gin.H{"recipient": "client@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	token := body["project"].(map[string]interface{})["share_token"].(string)
	assert.Equal(t, "https://studio.test/gallery/"+token, body["share_url"])
	return id, token, photos
}

func billing(max int) gin.H {
	return gin.H{
		"name":              "Smith wedding",
		"contracted_photos": 1,
		"max_selections":    max,
		"extra_photos_type": "individual",
		"extra_photo_price": 500,
	}
}

func TestOwnerRoutes_RequireBearerToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/projects", billing(2), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/projects", billing(2), map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateProject_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := s.owner(t, http.MethodPost, "/api/v1/projects", gin.H{"contracted_photos": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "name is required")

	rec = s.owner(t, http.MethodPost, "/api/v1/projects", gin.H{"name": "No price", "extra_photos_type": "individual"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decode(t, rec)["code"])

	rec = s.owner(t, http.MethodGet, "/api/v1/projects/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGallery_SelectionFlow(t *testing.T) {
	s := newTestServer(t)
	_, token, photos := s.sendGallery(t, billing(2), 3)

	rec := s.do(t, http.MethodGet, "/api/v1/gallery/"+token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := rec.Header().Get(middleware.GallerySessionHeader)
	assert.NotEmpty(t, session)
	page := decode(t, rec)
	assert.Len(t, page["photos"], 3)
	assert.Equal(t, false, page["require_password"])

	headers := map[string]string{middleware.GallerySessionHeader: session}
	rec = s.do(t, http.MethodPost, "/api/v1/gallery/"+token+"/selections", gin.H{"photo_id": photos[0]}, headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), decode(t, rec)["selection_order"])

	rec = s.do(t, http.MethodPost, "/api/v1/gallery/"+token+"/selections", gin.H{"photo_id": photos[0]}, headers)
	assert.Equal(t, http.StatusOK, rec.Code, "re-adding is idempotent")

	rec = s.do(t, http.MethodPost, "/api/v1/gallery/"+token+"/selections", gin.H{"photo_id": photos[1]}, headers)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/gallery/"+token+"/selections", gin.H{"photo_id": photos[2]}, headers)
	require.Equal(t, http.StatusConflict, rec.Code)
	quota := decode(t, rec)
	assert.Equal(t, "quota_exceeded", quota["code"])
	assert.Equal(t, float64(2), quota["max_selections"])
	assert.Equal(t, float64(0), quota["remaining"])

	rec = s.do(t, http.MethodGet, "/api/v1/gallery/"+token+"/quote", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	quote := decode(t, rec)
	assert.Equal(t, float64(500), quote["total"])
	assert.Equal(t, float64(1), quote["quote"].(map[string]interface{})["overage"])

	rec = s.do(t, http.MethodDelete, "/api/v1/gallery/"+token+"/selections/"+photos[0], nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["selected"])

	rec = s.do(t, http.MethodPost, "/api/v1/gallery/"+token+"/submit", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["submitted"])
}

func TestGallery_QuoteModeQuery(t *testing.T) {
	s := newTestServer(t)
	_, token, _ := s.sendGallery(t, billing(2), 0)

	rec := s.do(t, http.MethodGet, "/api/v1/gallery/"+token+"/quote?mode=packages", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "the plan does not sell packages")

	rec = s.do(t, http.MethodGet, "/api/v1/gallery/"+token+"/quote?mode=individual", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["total"])
}

func TestGallery_UnknownTokenIsNotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/gallery/does-not-exist", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["code"])
}

func TestGallery_PasswordProtected(t *testing.T) {
	s := newTestServer(t)
	project := billing(2)
	project["password"] = "secret"
	_, token, photos := s.sendGallery(t, project, 1)

	rec := s.do(t, http.MethodGet, "/api/v1/gallery/"+token, nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, true, decode(t, rec)["require_password"])

	rec = s.do(t, http.MethodPost, "/api/v1/gallery/"+token+"/auth", gin.H{"password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_password", decode(t, rec)["code"])

	rec = s.do(t, http.MethodPost, "/api/v1/gallery/"+token+"/auth", gin.H{"password": "secret"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	session := rec.Header().Get(middleware.GallerySessionHeader)
	require.NotEmpty(t, session)

	headers := map[string]string{middleware.GallerySessionHeader: session}
	rec = s.do(t, http.MethodGet, "/api/v1/gallery/"+token, nil, headers)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/gallery/"+token+"/selections", gin.H{"photo_id": photos[0]}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGallery_DownloadDisabledByDefault(t *testing.T) {
	s := newTestServer(t)
	_, token, photos := s.sendGallery(t, billing(2), 1)

	rec := s.do(t, http.MethodGet, "/api/v1/gallery/"+token+"/photos/"+photos[0]+"/download", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "download_not_allowed", decode(t, rec)["code"])

	rec = s.do(t, http.MethodGet, "/api/v1/gallery/"+token+"/photos/bad-id/download", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGallery_ClosedAfterFinalize(t *testing.T) {
	s := newTestServer(t)
	id, token, photos := s.sendGallery(t, billing(2), 1)

	rec := s.owner(t, http.MethodPost, "/api/v1/projects/"+id+"/finalize", nil)
	require.Equal(t, http.StatusConflict, rec.Code, "a sent project has not started selection")
	assert.Equal(t, "invalid_transition", decode(t, rec)["code"])

	rec = s.owner(t, http.MethodPost, "/api/v1/projects/"+id+"/start-selection", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.owner(t, http.MethodPost, "/api/v1/projects/"+id+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.ProjectStatusFinalized), decode(t, rec)["project"].(map[string]interface{})["status"])

	rec = s.do(t, http.MethodPost, "/api/v1/gallery/"+token+"/selections", gin.H{"photo_id": photos[0]}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "selection_closed", decode(t, rec)["code"])
}

func TestRespondError_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrNotFound, http.StatusNotFound, "not_found"},
		{services.ErrExpired, http.StatusGone, "expired"},
		{services.ErrInvalidPassword, http.StatusUnauthorized, "invalid_password"},
		{services.ErrSessionRequired, http.StatusUnauthorized, "session_required"},
		{services.ErrSelectionClosed, http.StatusConflict, "selection_closed"},
		{services.ErrDownloadNotAllowed, http.StatusForbidden, "download_not_allowed"},
		{services.ErrAssetUnavailable, http.StatusNotFound, "asset_unavailable"},
		{fmt.Errorf("%w: name is required", services.ErrValidation), http.StatusBadRequest, "validation"},
		{&services.QuotaExceededError{MaxSelections: 1, Selected: 1}, http.StatusConflict, "quota_exceeded"},
		{&lifecycle.TransitionError{Current: "draft", Requested: "finalized"}, http.StatusConflict, "invalid_transition"},
		{&services.TooManyAttemptsError{RetryAfter: 90 * time.Second}, http.StatusTooManyRequests, "too_many_attempts"},
		{errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d %s", tc.status, tc.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			respondError(c, log, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			if tc.code != "" {
				assert.Equal(t, tc.code, body["code"])
			} else {
				assert.Equal(t, "Internal server error", body["error"])
			}
			if tc.status == http.StatusTooManyRequests {
				assert.Equal(t, "90", rec.Header().Get("Retry-After"))
			}
		})
	}
}
