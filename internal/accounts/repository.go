package accounts

import (
	"context"
	"time"
)

// Repository defines persistence operations for accounts and their emails.
// Single-record finders return shared.ErrNotFound when nothing matches; list
// finders return an empty slice. Email comparisons are case-insensitive.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*Account, error)
	// ListConfirmedEmailOwners returns the accounts holding a confirmed association for email.
	ListConfirmedEmailOwners(ctx context.Context, email string) ([]*Account, error)
	// ListPendingEmailOwners returns inactive accounts holding an unconfirmed association for email.
	ListPendingEmailOwners(ctx context.Context, email string) ([]*Account, error)
	// ListInactiveByEmail matches the primary email column of inactive accounts.
	ListInactiveByEmail(ctx context.Context, email string) ([]*Account, error)
	CreateAccount(ctx context.Context, account *Account) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error

	FindAssociation(ctx context.Context, accountID int64, email string) (*EmailAssociation, error)
	FindAssociationByKey(ctx context.Context, key string) (*EmailAssociation, error)
	CreateAssociation(ctx context.Context, assoc *EmailAssociation) error
	ListPendingActivations(ctx context.Context, filter PendingFilter) ([]PendingActivation, error)
	MarkReminderSent(ctx context.Context, associationID int64, at time.Time) error

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes of the confirm-and-activate transition.
type TxRepository interface {
	// MarkEmailConfirmed confirms the association and reports whether a row changed.
	MarkEmailConfirmed(ctx context.Context, associationID int64, at time.Time) (bool, error)
	// ActivateAccount activates the account and reports whether a row changed.
	ActivateAccount(ctx context.Context, accountID int64, at time.Time) (bool, error)
}
