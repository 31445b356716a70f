package clients

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// Service applies capability checks and validation around the repository.
// Each method re-checks the caller's authorization before touching storage.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *authz.Metrics
}

// NewService constructs the client service.
func NewService(repo Repository, logger *slog.Logger, metrics *authz.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validate: validator.New(), logger: logger, metrics: metrics}
}

// List returns one page of the caller's clients.
func (s *Service) List(ctx context.Context, st authz.State, page int) ([]Client, shared.Pagination, error) {
	if err := s.authorize(st, authz.ViewClients); err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, shared.DefaultPerPage, 0)
	items, total, err := s.repo.List(ctx, st.IdentityID, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// Get returns one client of the caller.
func (s *Service) Get(ctx context.Context, st authz.State, id string) (Client, error) {
	if err := s.authorize(st, authz.ViewClients); err != nil {
		return Client{}, err
	}
	return s.repo.Get(ctx, st.IdentityID, id)
}

// GetForEdit loads a client into the edit form. It is gated on edit-clients
// alone, like the edit route.
func (s *Service) GetForEdit(ctx context.Context, st authz.State, id string) (Client, error) {
	if err := s.authorize(st, authz.EditClients); err != nil {
		return Client{}, err
	}
	return s.repo.Get(ctx, st.IdentityID, id)
}

// Options lists the caller's clients for pickers. It requires no capability
// of its own; screens that embed it are gated.
func (s *Service) Options(ctx context.Context, st authz.State) ([]Option, error) {
	if st.IdentityID == "" {
		return nil, nil
	}
	return s.repo.Options(ctx, st.IdentityID)
}

// Create adds a client.
func (s *Service) Create(ctx context.Context, st authz.State, in Input) (Client, error) {
	if err := s.authorize(st, authz.CreateClients); err != nil {
		return Client{}, err
	}
	in = in.Normalize()
	if err := s.check(in); err != nil {
		return Client{}, err
	}
	c, err := s.repo.Create(ctx, st.IdentityID, in)
	if err != nil {
		return Client{}, err
	}
	s.logger.Info("client created", slog.String("client_id", c.ID), slog.String("owner_id", st.IdentityID))
	return c, nil
}

// Update replaces the editable fields of a client.
func (s *Service) Update(ctx context.Context, st authz.State, id string, in Input) (Client, error) {
	if err := s.authorize(st, authz.EditClients); err != nil {
		return Client{}, err
	}
	in = in.Normalize()
	if err := s.check(in); err != nil {
		return Client{}, err
	}
	return s.repo.Update(ctx, st.IdentityID, id, in)
}

// Delete removes a client without sales.
func (s *Service) Delete(ctx context.Context, st authz.State, id string) error {
	if err := s.authorize(st, authz.DeleteClients); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, st.IdentityID, id); err != nil {
		return err
	}
	s.logger.Info("client deleted", slog.String("client_id", id), slog.String("owner_id", st.IdentityID))
	return nil
}

func (s *Service) authorize(st authz.State, c authz.Capability) error {
	if err := authz.Authorize(st, c); err != nil {
		s.metrics.ObserveDenial(c)
		s.logger.Debug("client action denied", slog.String("capability", string(c)), slog.String("identity_id", st.IdentityID))
		return err
	}
	return nil
}

func (s *Service) check(in Input) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		verr.Fields[fe.Field()] = fieldMessage(fe)
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return "Must be at most " + fe.Param() + " characters."
	}
	return "Invalid value."
}
