package stamp

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/redmonkez12/docstamp-api/internal/guard"
	"github.com/redmonkez12/docstamp-api/internal/logging"
	"github.com/redmonkez12/docstamp-api/internal/storage"
)

// Authorizer decides whether an account may perform a gated action
type Authorizer interface {
	Authorize(ctx context.Context, accountID uuid.UUID, action guard.Action) error
}

type Service struct {
	repo    Repository
	guard   Authorizer
	objects storage.ObjectStore
	logger  *logging.Logger
}

func NewService(repo Repository, authorizer Authorizer, objects storage.ObjectStore, logger *logging.Logger) *Service {
	return &Service{
		repo:    repo,
		guard:   authorizer,
		objects: objects,
		logger:  logger,
	}
}

// Create stores a new stamp. The eligibility check runs before anything else,
// so a refused request never reaches validation or the repository.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, in CreateInput) (*Stamp, error) {
	if err := s.guard.Authorize(ctx, accountID, guard.ActionCreateStamp); err != nil {
		s.logger.Warn("stamp creation refused", "account_id", accountID, "error", err.Error())
		return nil, err
	}

	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var logoKey *string
	if in.LogoKey != "" {
		if !strings.HasPrefix(in.LogoKey, LogoPrefix(accountID)) || strings.Contains(in.LogoKey, "..") {
			return nil, ErrInvalidLogoKey
		}
		logoKey = &in.LogoKey
	}

	st, err := s.repo.Create(ctx, &Stamp{
		AccountID: accountID,
		Shape:     in.Shape,
		Color:     in.Color,
		Text:      in.Text,
		LogoKey:   logoKey,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stamp created", "account_id", accountID, "stamp_id", st.ID)
	return st, nil
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID) ([]*Stamp, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// RequestLogoUpload returns a presigned PUT under the account's logo prefix
func (s *Service) RequestLogoUpload(ctx context.Context, accountID uuid.UUID) (*storage.PresignedURL, error) {
	return s.objects.PresignUpload(ctx, LogoPrefix(accountID))
}
