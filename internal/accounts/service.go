package accounts

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrAssociationExists is returned by repositories when an (account, email)
// association was inserted concurrently.
var ErrAssociationExists = errors.New("accounts: email association already exists")

// ActivationNotifier dispatches activation and reminder emails.
type ActivationNotifier interface {
	SendActivation(ctx context.Context, activation Activation) error
}

// ServiceConfig carries the tunables of Service.
type ServiceConfig struct {
	// DefaultEmailSendingDomain builds activation links when callers pass no domain.
	DefaultEmailSendingDomain string
	Verifier                  PasswordVerifier
	Logger                    *slog.Logger
	Clock                     func() time.Time
}

// Service wraps identity lookup, email association and authentication rules.
type Service struct {
	repo          Repository
	notifier      ActivationNotifier
	verifier      PasswordVerifier
	logger        *slog.Logger
	now           func() time.Time
	defaultDomain string
}

// NewService constructs a new Service.
func NewService(repo Repository, notifier ActivationNotifier, cfg ServiceConfig) *Service {
	s := &Service{
		repo:          repo,
		notifier:      notifier,
		verifier:      cfg.Verifier,
		logger:        cfg.Logger,
		now:           cfg.Clock,
		defaultDomain: cfg.DefaultEmailSendingDomain,
	}
	if s.verifier == nil {
		s.verifier = BcryptVerifier{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// DefaultDomain returns the sending domain used when none is supplied.
func (s *Service) DefaultDomain() string {
	return s.defaultDomain
}
