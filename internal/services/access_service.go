package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio_gallery_server/internal/models"
	"studio_gallery_server/pkg/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AccessService is the gate in front of every public gallery and delivery
// action. It resolves the share token, applies lazy expiration, checks the
// password and validates gallery sessions.
type AccessService struct {
	projects   ProjectStore
	deliveries DeliveryStore
	lifecycle  *LifecycleService
	jwt        *JWTService
	throttle   AttemptThrottle
	views      ViewDeduper
	activity   activityLog
	logger     *logrus.Logger
	now        func() time.Time
}

// ProjectAccess is a project the caller may act on. Session is nil for an
// open gallery visited without a session.
type ProjectAccess struct {
	Project *models.Project
	Session *GallerySessionClaims
}

// DeliveryAccess is the delivery counterpart of ProjectAccess
type DeliveryAccess struct {
	Delivery *models.Delivery
	Session  *GallerySessionClaims
}

// Grant is the outcome of a successful authentication
type Grant struct {
	Authenticated bool      `json:"authenticated"`
	SessionToken  string    `json:"session_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// NewAccessService builds the gate. throttle and views may be nil, which
// disables brute force protection and view dedupe.
func NewAccessService(projects ProjectStore, deliveries DeliveryStore, lifecycle *LifecycleService, jwt *JWTService, throttle AttemptThrottle, views ViewDeduper, sink ActivitySink, logger *logrus.Logger) *AccessService {
	return &AccessService{
		projects:   projects,
		deliveries: deliveries,
		lifecycle:  lifecycle,
		jwt:        jwt,
		throttle:   throttle,
		views:      views,
		activity:   activityLog{sink: sink, logger: logger},
		logger:     logger,
		now:        time.Now,
	}
}

// ResolveProject looks up a project gallery by token and enforces expiry
func (s *AccessService) ResolveProject(ctx context.Context, token string) (*models.Project, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	project, err := s.projects.GetProjectByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.RecordAccess(string(GalleryKindProject), "not_found")
		}
		return nil, err
	}

	switch project.Status {
	case models.ProjectStatusDeleted, models.ProjectStatusDraft:
		metrics.RecordAccess(string(GalleryKindProject), "not_found")
		return nil, ErrNotFound
	}

	if exp := project.ExpiresAt(); exp != nil && s.now().After(*exp) {
		if project.Status != models.ProjectStatusArchived {
			s.lifecycle.expireProject(ctx, project)
			s.activity.record(ctx, &models.Activity{
				ProjectID:   uuidPtr(project.ID),
				Type:        models.ActivityGalleryExpired,
				Description: "Gallery link expired",
				Metadata:    models.JSONB{"expired_at": exp.UTC().Format(time.RFC3339)},
			}, "")
		}
		metrics.RecordAccess(string(GalleryKindProject), "expired")
		return nil, ErrExpired
	}

	if project.Status == models.ProjectStatusArchived {
		metrics.RecordAccess(string(GalleryKindProject), "not_found")
		return nil, ErrNotFound
	}
	return project, nil
}

// ResolveDelivery looks up a delivery by token and enforces expiry
func (s *AccessService) ResolveDelivery(ctx context.Context, token string) (*models.Delivery, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	delivery, err := s.deliveries.GetDeliveryByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.RecordAccess(string(GalleryKindDelivery), "not_found")
		}
		return nil, err
	}

	switch delivery.Status {
	case models.DeliveryStatusDeleted, models.DeliveryStatusCreated:
		metrics.RecordAccess(string(GalleryKindDelivery), "not_found")
		return nil, ErrNotFound
	case models.DeliveryStatusExpired:
		metrics.RecordAccess(string(GalleryKindDelivery), "expired")
		return nil, ErrExpired
	}

	if exp := delivery.ExpiresAt(); exp != nil && s.now().After(*exp) {
		s.lifecycle.expireDelivery(ctx, delivery)
		metrics.RecordAccess(string(GalleryKindDelivery), "expired")
		return nil, ErrExpired
	}
	return delivery, nil
}

// AuthenticateProject checks password against the gallery and mints a
// session. Open galleries are granted without a password.
func (s *AccessService) AuthenticateProject(ctx context.Context, token, password, ip string) (*Grant, error) {
	project, err := s.ResolveProject(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.authenticate(ctx, gate{
		kind:      GalleryKindProject,
		token:     token,
		hash:      project.AccessPasswordHash,
		projectID: uuidPtr(project.ID),
	}, password, ip)
}

// AuthenticateDelivery checks password against the delivery
func (s *AccessService) AuthenticateDelivery(ctx context.Context, token, password, ip string) (*Grant, error) {
	delivery, err := s.ResolveDelivery(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.authenticate(ctx, gate{
		kind:       GalleryKindDelivery,
		token:      token,
		hash:       delivery.AccessPasswordHash,
		deliveryID: uuidPtr(delivery.ID),
	}, password, ip)
}

// AuthorizeProject re-runs the gate for a gallery action. Protected
// galleries need a valid session for this token.
func (s *AccessService) AuthorizeProject(ctx context.Context, token, sessionToken string) (*ProjectAccess, error) {
	project, err := s.ResolveProject(ctx, token)
	if err != nil {
		return nil, err
	}
	claims, err := s.checkSession(gate{kind: GalleryKindProject, token: token, hash: project.AccessPasswordHash}, sessionToken)
	if err != nil {
		return nil, err
	}
	return &ProjectAccess{Project: project, Session: claims}, nil
}

// AuthorizeDelivery re-runs the gate for a delivery action
func (s *AccessService) AuthorizeDelivery(ctx context.Context, token, sessionToken string) (*DeliveryAccess, error) {
	delivery, err := s.ResolveDelivery(ctx, token)
	if err != nil {
		return nil, err
	}
	claims, err := s.checkSession(gate{kind: GalleryKindDelivery, token: token, hash: delivery.AccessPasswordHash}, sessionToken)
	if err != nil {
		return nil, err
	}
	return &DeliveryAccess{Delivery: delivery, Session: claims}, nil
}

// MintOpenSession issues a session for a gallery without a password
func (s *AccessService) MintOpenSession(kind GalleryKind, token string) (*Grant, *GallerySessionClaims, error) {
	signed, claims, err := s.jwt.GenerateGallerySession(kind, token, "")
	if err != nil {
		return nil, nil, err
	}
	return &Grant{Authenticated: true, SessionToken: signed, ExpiresAt: claims.ExpiresAt.Time}, claims, nil
}

// FirstView reports whether this is the first view recorded for the
// session. A view without a session is never first; without a deduper every
// session view counts as first.
func (s *AccessService) FirstView(ctx context.Context, session *GallerySessionClaims) bool {
	if session == nil {
		return false
	}
	if s.views == nil {
		return true
	}
	first, err := s.views.FirstSeen(ctx, "gallery:viewed:"+session.SessionID.String(), s.jwt.SessionTTL())
	if err != nil {
		s.logger.WithError(err).Warn("View dedupe unavailable")
		return true
	}
	return first
}

// gate carries what the password and session checks need from either a
// project or a delivery
type gate struct {
	kind       GalleryKind
	token      string
	hash       *string
	projectID  *uuid.UUID
	deliveryID *uuid.UUID
}

func (g gate) passwordHash() string {
	if g.hash == nil {
		return ""
	}
	return *g.hash
}

func (g gate) throttleKey(ip string) string {
	return fmt.Sprintf("%s:%s:%s", g.kind, g.token, ip)
}

func (s *AccessService) authenticate(ctx context.Context, g gate, password, ip string) (*Grant, error) {
	hash := g.passwordHash()
	if hash == "" {
		metrics.RecordAccess(string(g.kind), "granted")
		grant, _, err := s.MintOpenSession(g.kind, g.token)
		return grant, err
	}

	key := g.throttleKey(ip)
	if s.throttle != nil {
		wait, err := s.throttle.Blocked(ctx, key)
		if err != nil {
			s.logger.WithError(err).Warn("Password throttle unavailable")
		} else if wait > 0 {
			metrics.RecordAccess(string(g.kind), "throttled")
			return nil, &TooManyAttemptsError{RetryAfter: wait}
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if s.throttle != nil {
			if _, terr := s.throttle.Failure(ctx, key); terr != nil {
				s.logger.WithError(terr).Warn("Failed to record password attempt")
			}
		}
		s.activity.record(ctx, &models.Activity{
			ProjectID:   g.projectID,
			DeliveryID:  g.deliveryID,
			Type:        models.ActivityPasswordFailed,
			Description: "Wrong gallery password",
		}, ip)
		metrics.RecordAccess(string(g.kind), "invalid_password")
		return nil, ErrInvalidPassword
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, key); err != nil {
			s.logger.WithError(err).Warn("Failed to reset password attempts")
		}
	}

	signed, claims, err := s.jwt.GenerateGallerySession(g.kind, g.token, hash)
	if err != nil {
		return nil, err
	}
	s.activity.record(ctx, &models.Activity{
		ProjectID:   g.projectID,
		DeliveryID:  g.deliveryID,
		Type:        models.ActivityGalleryUnlocked,
		Description: "Gallery unlocked with password",
		Metadata:    models.JSONB{"session_id": claims.SessionID.String()},
	}, ip)
	metrics.RecordAccess(string(g.kind), "granted")

	return &Grant{Authenticated: true, SessionToken: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *AccessService) checkSession(g gate, sessionToken string) (*GallerySessionClaims, error) {
	hash := g.passwordHash()
	if hash == "" {
		if sessionToken == "" {
			return nil, nil
		}
		// A stale session on an open gallery is simply ignored
		claims, err := s.jwt.ValidateGallerySession(sessionToken, g.kind, g.token, "")
		if err != nil {
			return nil, nil
		}
		return claims, nil
	}

	claims, err := s.jwt.ValidateGallerySession(sessionToken, g.kind, g.token, hash)
	if err != nil {
		metrics.RecordAccess(string(g.kind), "session_required")
		return nil, ErrSessionRequired
	}
	return claims, nil
}
