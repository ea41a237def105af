package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/odyssey-erp/accountkit/internal/shared"
)

// ErrEmailTaken is returned when an activation link targets an email that is
// already confirmed on another account.
var ErrEmailTaken = errors.New("accounts: email already confirmed on another account")

// FindAssociation returns the association of email with account, or nil.
func (s *Service) FindAssociation(ctx context.Context, accountID int64, email string) (*EmailAssociation, error) {
	assoc, err := s.repo.FindAssociation(ctx, accountID, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return assoc, nil
}

// AssociateEmail attaches email to account. Confirmed associations are
// activated immediately; unconfirmed ones trigger one activation email.
//
// The association is refused (nil, nil) when the email already resolves to
// another account, or to this account once it is active. Missing or invalid
// input is a silent no-op as well.
func (s *Service) AssociateEmail(ctx context.Context, account *Account, email string, opts AssociateOptions) (*EmailAssociation, error) {
	if account == nil || email == "" || !IsValidEmail(email) {
		return nil, nil
	}

	existing, err := s.ResolveByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	// Only a pending signup may re-associate an email it already holds.
	if existing != nil && (existing.ID != account.ID || account.IsActive) {
		s.logger.Info("email association skipped",
			slog.Int64("account_id", account.ID),
			slog.Int64("owner_id", existing.ID),
		)
		return nil, nil
	}

	assoc, err := s.FindAssociation(ctx, account.ID, email)
	if err != nil {
		return nil, err
	}
	if assoc == nil {
		assoc, err = s.createAssociation(ctx, account, email, opts.Confirmed)
		if err != nil {
			return nil, err
		}
	}

	if opts.Confirmed || assoc.IsConfirmed {
		activated, err := s.ConfirmAndActivate(ctx, assoc)
		if err != nil {
			return nil, err
		}
		if activated {
			account.IsActive = true
		}
		return assoc, nil
	}

	domain := opts.Domain
	if domain == "" {
		domain = s.defaultDomain
	}
	if err := s.notifier.SendActivation(ctx, Activation{Account: account, Association: assoc, Domain: domain}); err != nil {
		return nil, fmt.Errorf("accounts: send activation email: %w", err)
	}
	return assoc, nil
}

// ConfirmAndActivate marks assoc confirmed and activates its account in one
// transaction. It reports whether the account was activated by this call and
// is a no-op when both are already done.
func (s *Service) ConfirmAndActivate(ctx context.Context, assoc *EmailAssociation) (bool, error) {
	if assoc == nil {
		return false, nil
	}
	now := s.now()
	var activated bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		confirmed, err := tx.MarkEmailConfirmed(ctx, assoc.ID, now)
		if err != nil {
			return err
		}
		if confirmed {
			assoc.ConfirmedAt = &now
		}
		activated, err = tx.ActivateAccount(ctx, assoc.AccountID, now)
		return err
	})
	if err != nil {
		return false, err
	}
	assoc.IsConfirmed = true
	if activated {
		s.logger.Info("account activated", slog.Int64("account_id", assoc.AccountID))
	}
	return activated, nil
}

// ConfirmByActivationKey confirms the association addressed by an activation
// link. Unknown keys yield nil without error.
func (s *Service) ConfirmByActivationKey(ctx context.Context, key string) (*EmailAssociation, error) {
	if key == "" {
		return nil, nil
	}
	assoc, err := s.repo.FindAssociationByKey(ctx, key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !assoc.IsConfirmed {
		owners, err := s.repo.ListConfirmedEmailOwners(ctx, assoc.Email)
		if err != nil {
			return nil, err
		}
		for _, owner := range owners {
			if owner.ID != assoc.AccountID {
				return nil, ErrEmailTaken
			}
		}
	}
	if _, err := s.ConfirmAndActivate(ctx, assoc); err != nil {
		return nil, err
	}
	return assoc, nil
}

func (s *Service) createAssociation(ctx context.Context, account *Account, email string, confirmed bool) (*EmailAssociation, error) {
	// Stored canonical, so SQL lower() comparisons and the unique index see
	// one form per address.
	assoc := &EmailAssociation{
		AccountID:     account.ID,
		Email:         NormalizeEmail(email),
		IsConfirmed:   confirmed,
		ActivationKey: uuid.NewString(),
	}
	if confirmed {
		now := s.now()
		assoc.ConfirmedAt = &now
	}
	err := s.repo.CreateAssociation(ctx, assoc)
	if errors.Is(err, ErrAssociationExists) {
		// Lost a race with a concurrent request for the same pair.
		return s.repo.FindAssociation(ctx, account.ID, email)
	}
	if err != nil {
		return nil, err
	}
	return assoc, nil
}
