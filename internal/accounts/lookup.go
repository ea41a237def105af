package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/accountkit/internal/shared"
)

// ResolveByIdentifier resolves a human supplied username or email. A missing
// account yields nil without error.
func (s *Service) ResolveByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	if IsValidEmail(identifier) {
		return s.ResolveByEmail(ctx, identifier)
	}
	return s.ResolveByUsername(ctx, identifier)
}

// ExtractAccountEmail resolves identifier and also returns it when it was an email.
func (s *Service) ExtractAccountEmail(ctx context.Context, identifier string) (*Account, string, error) {
	if IsValidEmail(identifier) {
		account, err := s.ResolveByEmail(ctx, identifier)
		return account, identifier, err
	}
	account, err := s.ResolveByUsername(ctx, identifier)
	return account, "", err
}

// ResolveByUsername looks an account up by login-name.
func (s *Service) ResolveByUsername(ctx context.Context, username string) (*Account, error) {
	if username == "" {
		return nil, nil
	}
	account, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// ResolveByEmail returns the owner of the confirmed email, falling back to
// pending signups. More than one confirmed owner is a data integrity error.
func (s *Service) ResolveByEmail(ctx context.Context, email string) (*Account, error) {
	if !IsValidEmail(email) {
		return nil, nil
	}
	owners, err := s.repo.ListConfirmedEmailOwners(ctx, email)
	if err != nil {
		return nil, err
	}
	switch len(owners) {
	case 0:
		return s.ResolveIncompleteSignup(ctx, email)
	case 1:
		return owners[0], nil
	default:
		return nil, nonUniqueEmail(email, len(owners))
	}
}

// ResolveIncompleteSignup finds the inactive account that registered email but
// has not confirmed it yet.
func (s *Service) ResolveIncompleteSignup(ctx context.Context, email string) (*Account, error) {
	owners, err := s.repo.ListPendingEmailOwners(ctx, email)
	if err != nil {
		return nil, err
	}
	switch len(owners) {
	case 1:
		return owners[0], nil
	case 0:
	default:
		return nil, nonUniqueEmail(email, len(owners))
	}

	// No association row yet, match the primary email column.
	inactive, err := s.repo.ListInactiveByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	switch len(inactive) {
	case 0:
		return nil, nil
	case 1:
		return inactive[0], nil
	default:
		return nil, nonUniqueEmail(email, len(inactive))
	}
}

// ResolveByIDs returns the accounts for ids in input order. In strict mode a
// single missing id fails the whole lookup; otherwise missing ids are skipped.
func (s *Service) ResolveByIDs(ctx context.Context, ids []int64, strict bool) ([]*Account, error) {
	found, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*Account, len(found))
	for _, account := range found {
		byID[account.ID] = account
	}

	result := make([]*Account, 0, len(ids))
	for _, id := range ids {
		account, ok := byID[id]
		if !ok {
			if strict {
				return nil, fmt.Errorf("accounts: id %d: %w", id, shared.ErrAccountNotFound)
			}
			continue
		}
		result = append(result, account)
	}
	return result, nil
}

func nonUniqueEmail(email string, count int) error {
	return fmt.Errorf("accounts: %q matched %d accounts: %w", email, count, shared.ErrNonUniqueEmail)
}
