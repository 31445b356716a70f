package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/jobs"
)

// Auditor queues audit records of confirmed writes. *jobs.Client satisfies it.
type Auditor interface {
	EnqueueAuthorizationChanged(ctx context.Context, payload jobs.AuthorizationChangedPayload) error
}

// Service lets administrators read and change authorization records.
type Service struct {
	repo    Repository
	writer  authz.Writer
	auditor Auditor
	logger  *slog.Logger
	metrics *authz.Metrics
	now     func() time.Time
}

// NewService constructs the admin service. auditor may be nil.
func NewService(repo Repository, writer authz.Writer, auditor Auditor, logger *slog.Logger, metrics *authz.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		writer:  writer,
		auditor: auditor,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Members lists every authorization record.
func (s *Service) Members(ctx context.Context, st authz.State) ([]Member, error) {
	if err := s.authorize(st); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx)
}

// SetAdmin sets the admin flag of target to value. The returned record is
// the row as persisted.
func (s *Service) SetAdmin(ctx context.Context, st authz.State, target string, value bool) (authz.Record, error) {
	if err := s.authorize(st); err != nil {
		return authz.Record{}, err
	}
	rec, err := s.writer.SetAdmin(ctx, target, value)
	if err != nil {
		return authz.Record{}, err
	}
	s.logger.Info("admin flag changed",
		slog.String("actor_id", st.IdentityID),
		slog.String("target_id", target),
		slog.Bool("value", rec.IsAdmin))
	s.audit(ctx, jobs.AuthorizationChangedPayload{
		ActorID:  st.IdentityID,
		TargetID: target,
		Field:    jobs.FieldAdmin,
		Value:    rec.IsAdmin,
	})
	return rec, nil
}

// SetCapability grants or revokes one capability of target.
func (s *Service) SetCapability(ctx context.Context, st authz.State, target string, c authz.Capability, value bool) (authz.Record, error) {
	if err := s.authorize(st); err != nil {
		return authz.Record{}, err
	}
	if !c.Valid() {
		return authz.Record{}, fmt.Errorf("%w: %q", authz.ErrUnknownCapability, c)
	}
	rec, err := s.writer.SetCapability(ctx, target, c, value)
	if err != nil {
		return authz.Record{}, err
	}
	s.logger.Info("capability changed",
		slog.String("actor_id", st.IdentityID),
		slog.String("target_id", target),
		slog.String("capability", string(c)),
		slog.Bool("value", rec.Capabilities.Has(c)))
	s.audit(ctx, jobs.AuthorizationChangedPayload{
		ActorID:    st.IdentityID,
		TargetID:   target,
		Field:      jobs.FieldCapability,
		Capability: string(c),
		Value:      rec.Capabilities.Has(c),
	})
	return rec, nil
}

func (s *Service) authorize(st authz.State) error {
	if err := authz.AuthorizeAdmin(st); err != nil {
		s.metrics.ObserveDenial("")
		s.logger.Debug("admin action denied", slog.String("identity_id", st.IdentityID))
		return err
	}
	return nil
}

func (s *Service) audit(ctx context.Context, payload jobs.AuthorizationChangedPayload) {
	if s.auditor == nil {
		return
	}
	payload.At = s.now()
	if err := s.auditor.EnqueueAuthorizationChanged(ctx, payload); err != nil {
		s.logger.Warn("enqueue authorization audit", slog.String("target_id", payload.TargetID), slog.Any("error", err))
	}
}
