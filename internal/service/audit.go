package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/pkg/middleware/requestid"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditTrail records state changes. Failures are logged and never surface to the caller.
type auditTrail struct {
	sink   auditLogger
	logger *zap.Logger
	source string
}

func newAuditTrail(sink auditLogger, logger *zap.Logger, source string) auditTrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return auditTrail{sink: sink, logger: logger, source: source}
}

func (a auditTrail) emit(ctx context.Context, actor models.Actor, action, resource, resourceID string, oldValue, newValue interface{}) {
	if a.sink == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		OldValues:  marshalAudit(oldValue),
		NewValues:  marshalAudit(newValue),
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}
	if actor.UserID != "" {
		userID := actor.UserID
		log.UserID = &userID
	}
	if log.IPAddress == "" {
		log.IPAddress = "system"
	}
	if log.UserAgent == "" {
		log.UserAgent = a.source
	}
	if err := a.sink.CreateAuditLog(ctx, log); err != nil {
		a.logger.Warn("failed to record audit",
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.String("request_id", requestid.FromContext(ctx)),
			zap.Error(err),
		)
	}
}

func marshalAudit(v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
