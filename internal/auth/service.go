package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/odyssey-erp/accountkit/internal/accounts"
	"github.com/odyssey-erp/accountkit/internal/observability"
	"github.com/odyssey-erp/accountkit/internal/shared"
)

// Accounts is the part of accounts.Service the auth flows depend on.
type Accounts interface {
	Authenticate(ctx context.Context, identifier, password string) (*accounts.Account, error)
	ConfirmByActivationKey(ctx context.Context, key string) (*accounts.EmailAssociation, error)
}

// LoginObserver records login outcomes.
type LoginObserver interface {
	ObserveLogin(outcome string)
}

// Service wraps authentication business rules.
type Service struct {
	accounts Accounts
	observer LoginObserver
	logger   *slog.Logger
}

// NewService constructs a new Service. observer may be nil.
func NewService(accts Accounts, observer LoginObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{accounts: accts, observer: observer, logger: logger}
}

// Login authenticates identifier/password. Every credential failure is
// reported as shared.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identifier, password string) (*accounts.Account, error) {
	account, err := s.accounts.Authenticate(ctx, identifier, password)
	switch {
	case err == nil:
		s.observe(observability.LoginSuccess)
		return account, nil
	case errors.Is(err, shared.ErrInvalidCredentials):
		s.observe(observability.LoginInvalid)
		return nil, shared.ErrInvalidCredentials
	default:
		s.observe(observability.LoginError)
		s.logger.Error("authenticate", slog.Any("error", err))
		return nil, err
	}
}

// Confirm activates the association addressed by an activation key. Unknown
// keys yield nil without error.
func (s *Service) Confirm(ctx context.Context, key string) (*accounts.EmailAssociation, error) {
	return s.accounts.ConfirmByActivationKey(ctx, key)
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveLogin(outcome)
	}
}
