package sales

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// Service applies capability checks and validation around the repository.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *authz.Metrics
}

// NewService constructs the sales service.
func NewService(repo Repository, logger *slog.Logger, metrics *authz.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validate: validator.New(), logger: logger, metrics: metrics}
}

// List returns one page of the caller's sales filtered by status.
func (s *Service) List(ctx context.Context, st authz.State, status Status, page int) ([]Sale, shared.Pagination, error) {
	if err := s.authorize(st, authz.ViewSales); err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, shared.DefaultPerPage, 0)
	items, total, err := s.repo.List(ctx, st.IdentityID, status, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// Get returns one sale of the caller.
func (s *Service) Get(ctx context.Context, st authz.State, id string) (Sale, error) {
	if err := s.authorize(st, authz.ViewSales); err != nil {
		return Sale{}, err
	}
	return s.repo.Get(ctx, st.IdentityID, id)
}

// Create records a sale for one of the caller's clients.
func (s *Service) Create(ctx context.Context, st authz.State, in Input) (Sale, error) {
	if err := s.authorize(st, authz.CreateSales); err != nil {
		return Sale{}, err
	}
	in = in.Normalize()
	if err := s.check(in); err != nil {
		return Sale{}, err
	}
	sale, err := s.repo.Create(ctx, st.IdentityID, in)
	if err != nil {
		if errors.Is(err, ErrUnknownClient) {
			return Sale{}, &ValidationError{Fields: map[string]string{"ClientID": "Choose one of your clients."}}
		}
		return Sale{}, err
	}
	s.logger.Info("sale created", slog.String("sale_id", sale.ID), slog.String("owner_id", st.IdentityID))
	return sale, nil
}

// Complete marks a sale as completed.
func (s *Service) Complete(ctx context.Context, st authz.State, id string) (Sale, error) {
	if err := s.authorize(st, authz.EditSales); err != nil {
		return Sale{}, err
	}
	return s.repo.Complete(ctx, st.IdentityID, id)
}

// Delete removes a sale.
func (s *Service) Delete(ctx context.Context, st authz.State, id string) error {
	if err := s.authorize(st, authz.DeleteSales); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, st.IdentityID, id); err != nil {
		return err
	}
	s.logger.Info("sale deleted", slog.String("sale_id", id), slog.String("owner_id", st.IdentityID))
	return nil
}

func (s *Service) authorize(st authz.State, c authz.Capability) error {
	if err := authz.Authorize(st, c); err != nil {
		s.metrics.ObserveDenial(c)
		s.logger.Debug("sale action denied", slog.String("capability", string(c)), slog.String("identity_id", st.IdentityID))
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
		switch fe.Field() {
		case "ClientID":
			verr.Fields["ClientID"] = "Choose a client."
		case "SaleDate":
			verr.Fields["SaleDate"] = "Enter the sale date."
		default:
			verr.Fields[fe.Field()] = "Must be at most " + fe.Param() + " characters."
		}
	}
	return verr
}
