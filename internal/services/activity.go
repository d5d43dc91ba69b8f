package services

import (
	"context"

	"studio_gallery_server/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Caller is the identity behind an owner mutation
type Caller struct {
	UserID uuid.UUID
	IP     string
}

// activityLog writes activity records and swallows their failures
type activityLog struct {
	sink   ActivitySink
	logger *logrus.Logger
}

func (a activityLog) record(ctx context.Context, activity *models.Activity, ip string) {
	if a.sink == nil {
		return
	}
	if ip != "" {
		activity.IPAddress = &ip
	}
	if err := a.sink.AppendActivity(ctx, activity); err != nil {
		a.logger.WithError(err).WithField("type", activity.Type).Warn("Failed to record activity")
	}
}

// notifyAfterCommit dispatches an intent; failures never reach the caller
func notifyAfterCommit(ctx context.Context, notifier Notifier, logger *logrus.Logger, intent Intent) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, intent); err != nil {
		logger.WithError(err).WithField("kind", intent.Kind).Warn("Failed to dispatch notification")
	}
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
