package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "studio-gallery-server"

// GalleryKind tells a project gallery session from a delivery one
type GalleryKind string

const (
	GalleryKindProject  GalleryKind = "project"
	GalleryKindDelivery GalleryKind = "delivery"
)

type JWTService struct {
	ownerKey   []byte
	sessionKey []byte
	sessionTTL time.Duration
	now        func() time.Time
}

// Claims identify a studio owner. Owner tokens are issued by the CRM; this
// service only validates them.
type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	SessionID uuid.UUID `json:"session_id"`
	jwt.RegisteredClaims
}

// GallerySessionClaims scope a client session to one share token. The
// fingerprint ties the session to the password that unlocked it.
type GallerySessionClaims struct {
	ShareToken  string      `json:"share_token"`
	Kind        GalleryKind `json:"kind"`
	SessionID   uuid.UUID   `json:"session_id"`
	Fingerprint string      `json:"fpr,omitempty"`
	jwt.RegisteredClaims
}

func NewJWTService(ownerSecret, sessionSecret string, sessionTTL time.Duration) *JWTService {
	if sessionSecret == "" {
		sessionSecret = ownerSecret
	}
	return &JWTService{
		ownerKey:   []byte(ownerSecret),
		sessionKey: []byte(sessionSecret),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// SessionTTL returns the lifetime of gallery sessions
func (j *JWTService) SessionTTL() time.Duration {
	return j.sessionTTL
}

// GenerateAccessToken generates a short-lived owner access token
func (j *JWTService) GenerateAccessToken(userID, sessionID uuid.UUID) (string, error) {
	now := j.now()
	claims := Claims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)), // 15 minutes
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.ownerKey)
}

// ValidateToken validates and parses an owner access token
func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, j.keyFunc(j.ownerKey))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// GenerateGallerySession mints a session for shareToken. passwordHash is the
// hash that was verified, empty for open galleries.
func (j *JWTService) GenerateGallerySession(kind GalleryKind, shareToken, passwordHash string) (string, *GallerySessionClaims, error) {
	now := j.now()
	sessionID := uuid.New()
	claims := &GallerySessionClaims{
		ShareToken:  shareToken,
		Kind:        kind,
		SessionID:   sessionID,
		Fingerprint: fingerprint(passwordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   sessionID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.sessionKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign gallery session: %w", err)
	}
	return signed, claims, nil
}

// ValidateGallerySession checks the signature and expiry of a session and
// that it belongs to shareToken and the current password.
func (j *JWTService) ValidateGallerySession(tokenString string, kind GalleryKind, shareToken, passwordHash string) (*GallerySessionClaims, error) {
	if tokenString == "" {
		return nil, ErrSessionRequired
	}

	token, err := jwt.ParseWithClaims(tokenString, &GallerySessionClaims{}, j.keyFunc(j.sessionKey),
		jwt.WithTimeFunc(j.now), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionRequired, err)
	}

	claims, ok := token.Claims.(*GallerySessionClaims)
	if !ok || !token.Valid {
		return nil, ErrSessionRequired
	}
	if claims.Kind != kind || claims.ShareToken != shareToken {
		return nil, ErrSessionRequired
	}
	if claims.Fingerprint != fingerprint(passwordHash) {
		return nil, ErrSessionRequired
	}
	return claims, nil
}

// ExtractTokenFromHeader extracts token from Authorization header
func (j *JWTService) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header is required")
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) || authHeader[:len(bearerPrefix)] != bearerPrefix {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	return authHeader[len(bearerPrefix):], nil
}

func (j *JWTService) keyFunc(key []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	}
}

func fingerprint(passwordHash string) string {
	if passwordHash == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}
