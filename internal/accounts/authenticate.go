package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/accountkit/internal/shared"
)

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Compare(hash, password string) error
}

// BcryptVerifier verifies bcrypt hashes.
type BcryptVerifier struct{}

// Compare implements PasswordVerifier.
func (BcryptVerifier) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// HashPassword returns a bcrypt hash suitable for Account.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("accounts: hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate validates identifier/password credentials. The identifier may
// be a login-name or an email address.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*Account, error) {
	username := identifier
	if IsValidEmail(identifier) {
		account, err := s.ResolveByEmail(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("accounts: authenticate: %w", err)
		}
		if account == nil {
			return nil, shared.ErrInvalidCredentials
		}
		username = account.Username
	}
	return s.authenticateUsername(ctx, username, password)
}

func (s *Service) authenticateUsername(ctx context.Context, username, password string) (*Account, error) {
	if username == "" || password == "" {
		return nil, shared.ErrInvalidCredentials
	}
	account, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("accounts: authenticate: %w", err)
	}
	if !account.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := s.verifier.Compare(account.PasswordHash, password); err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.repo.TouchLastLogin(ctx, account.ID, now); err != nil {
		s.logger.Warn("record last login", slog.Int64("account_id", account.ID), slog.Any("error", err))
	} else {
		account.LastLoginAt = &now
	}
	return account, nil
}

// CreateAccount stores a new account. The email is stored in canonical form,
// and an empty Username is derived from the email hash.
func (s *Service) CreateAccount(ctx context.Context, account *Account) error {
	if account == nil {
		return errors.New("accounts: nil account")
	}
	account.Email = NormalizeEmail(account.Email)
	if account.Username == "" {
		account.Username = EmailToUsernameHash(account.Email)
	}
	return s.repo.CreateAccount(ctx, account)
}

// AccountTimezone returns the stored timezone name of the account with the
// given session user id. Unknown accounts yield an empty name.
func (s *Service) AccountTimezone(ctx context.Context, userID string) (string, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("accounts: parse user id %q: %w", userID, err)
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return account.Timezone, nil
}

// CurrentAccount loads the account bound to a session user id, or nil.
func (s *Service) CurrentAccount(ctx context.Context, userID string) (*Account, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, nil
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}
