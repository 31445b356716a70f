package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// AuditRecorder persists audit log entries. *shared.AuditLogger satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuthorizationAuditJob writes authorization changes to audit_logs.
type AuthorizationAuditJob struct {
	Recorder AuditRecorder
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// NewAuthorizationAuditJob initialises the audit handler.
func NewAuthorizationAuditJob(recorder AuditRecorder, logger *slog.Logger, metrics *observability.Metrics) *AuthorizationAuditJob {
	return &AuthorizationAuditJob{Recorder: recorder, Logger: logger, Metrics: metrics}
}

// Handle records one authorization change.
func (j *AuthorizationAuditJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Recorder == nil {
		return errors.New("authorization audit: handler not configured")
	}
	defer func() { j.Metrics.ObserveJob(TaskAuthorizationChanged, err) }()

	var payload AuthorizationChangedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := payload.validate(); err != nil {
		j.logger().Warn("authorization audit: invalid payload", slog.Any("error", err))
		return asynq.SkipRetry
	}

	action := "authz.capability.revoke"
	if payload.Field == FieldAdmin {
		action = "authz.admin.revoke"
		if payload.Value {
			action = "authz.admin.grant"
		}
	} else if payload.Value {
		action = "authz.capability.grant"
	}
	meta := map[string]any{"field": payload.Field, "value": payload.Value}
	if payload.Capability != "" {
		meta["capability"] = payload.Capability
	}

	err = j.Recorder.Record(ctx, shared.AuditLog{
		ActorID:  payload.ActorID,
		Action:   action,
		Entity:   "authorization_record",
		EntityID: payload.TargetID,
		Meta:     meta,
		At:       payload.At,
	})
	if err != nil {
		j.logger().Error("authorization audit failed",
			slog.String("target_id", payload.TargetID),
			slog.Any("error", err))
		return err
	}
	j.logger().Info("authorization change recorded",
		slog.String("actor_id", payload.ActorID),
		slog.String("target_id", payload.TargetID),
		slog.String("action", action))
	return nil
}

func (j *AuthorizationAuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
