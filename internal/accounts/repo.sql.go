package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/accountkit/internal/platform/db"
	"github.com/odyssey-erp/accountkit/internal/shared"
)

const accountColumns = `a.id, a.username, a.email, a.password_hash, a.is_active, a.timezone, a.created_at, a.updated_at, a.last_login_at`

const associationColumns = `e.id, e.account_id, e.email, e.is_confirmed, e.activation_key, e.confirmed_at, e.reminder_sent_at, e.created_at, e.updated_at`

const (
	findAccountByIDSQL       = `SELECT ` + accountColumns + ` FROM accounts a WHERE a.id = $1`
	findAccountByUsernameSQL = `SELECT ` + accountColumns + ` FROM accounts a WHERE a.username = $1`
	listAccountsByIDsSQL     = `SELECT ` + accountColumns + ` FROM accounts a WHERE a.id = ANY($1)`

	listConfirmedOwnersSQL = `SELECT ` + accountColumns + `
FROM account_emails e
JOIN accounts a ON a.id = e.account_id
WHERE lower(e.email) = lower($1) AND e.is_confirmed = TRUE
ORDER BY e.id`

	listPendingOwnersSQL = `SELECT ` + accountColumns + `
FROM account_emails e
JOIN accounts a ON a.id = e.account_id
WHERE lower(e.email) = lower($1) AND e.is_confirmed = FALSE AND a.is_active = FALSE
ORDER BY e.id`

	listInactiveByEmailSQL = `SELECT ` + accountColumns + ` FROM accounts a
WHERE lower(a.email) = lower($1) AND a.is_active = FALSE
ORDER BY a.id`

	insertAccountSQL = `INSERT INTO accounts (username, email, password_hash, is_active, timezone)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`

	touchLastLoginSQL = `UPDATE accounts SET last_login_at = $2 WHERE id = $1`

	findAssociationSQL = `SELECT ` + associationColumns + ` FROM account_emails e
WHERE e.account_id = $1 AND lower(e.email) = lower($2)`

	findAssociationByKeySQL = `SELECT ` + associationColumns + ` FROM account_emails e WHERE e.activation_key = $1`

	insertAssociationSQL = `INSERT INTO account_emails (account_id, email, is_confirmed, activation_key, confirmed_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`

	listPendingActivationsSQL = `SELECT ` + accountColumns + `, ` + associationColumns + `
FROM account_emails e
JOIN accounts a ON a.id = e.account_id
WHERE e.is_confirmed = FALSE
  AND a.is_active = FALSE
  AND e.created_at < $1
  AND (e.reminder_sent_at IS NULL OR e.reminder_sent_at < $2)
ORDER BY e.created_at, e.id
LIMIT $3`

	markReminderSentSQL = `UPDATE account_emails SET reminder_sent_at = $2, updated_at = $2 WHERE id = $1`

	markEmailConfirmedSQL = `UPDATE account_emails SET is_confirmed = TRUE, confirmed_at = $2, updated_at = $2
WHERE id = $1 AND is_confirmed = FALSE`

	activateAccountSQL = `UPDATE accounts SET is_active = TRUE, updated_at = $2
WHERE id = $1 AND is_active = FALSE`
)

const uniqueViolationCode = "23505"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByID fetches an account by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Account, error) {
	return r.findAccount(ctx, findAccountByIDSQL, id)
}

// FindByUsername fetches an account by its login-name.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return r.findAccount(ctx, findAccountByUsernameSQL, username)
}

// ListByIDs returns the accounts matching ids in no particular order.
func (r *PGRepository) ListByIDs(ctx context.Context, ids []int64) ([]*Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.listAccounts(ctx, listAccountsByIDsSQL, ids)
}

// ListConfirmedEmailOwners returns owners of confirmed associations for email.
func (r *PGRepository) ListConfirmedEmailOwners(ctx context.Context, email string) ([]*Account, error) {
	return r.listAccounts(ctx, listConfirmedOwnersSQL, NormalizeEmail(email))
}

// ListPendingEmailOwners returns inactive owners of unconfirmed associations for email.
func (r *PGRepository) ListPendingEmailOwners(ctx context.Context, email string) ([]*Account, error) {
	return r.listAccounts(ctx, listPendingOwnersSQL, NormalizeEmail(email))
}

// ListInactiveByEmail returns inactive accounts whose primary email matches.
func (r *PGRepository) ListInactiveByEmail(ctx context.Context, email string) ([]*Account, error) {
	return r.listAccounts(ctx, listInactiveByEmailSQL, NormalizeEmail(email))
}

// CreateAccount inserts the account and fills generated columns.
func (r *PGRepository) CreateAccount(ctx context.Context, account *Account) error {
	err := r.pool.QueryRow(ctx, insertAccountSQL,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.IsActive,
		account.Timezone,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("accounts: insert account: %w", err)
	}
	return nil
}

// TouchLastLogin records a successful login.
func (r *PGRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.pool.Exec(ctx, touchLastLoginSQL, id, at.UTC()); err != nil {
		return fmt.Errorf("accounts: touch last login: %w", err)
	}
	return nil
}

// FindAssociation fetches the association of email with the account.
func (r *PGRepository) FindAssociation(ctx context.Context, accountID int64, email string) (*EmailAssociation, error) {
	return r.findAssociation(ctx, findAssociationSQL, accountID, NormalizeEmail(email))
}

// FindAssociationByKey fetches the association addressed by an activation link.
func (r *PGRepository) FindAssociationByKey(ctx context.Context, key string) (*EmailAssociation, error) {
	return r.findAssociation(ctx, findAssociationByKeySQL, key)
}

// CreateAssociation inserts the association. A concurrent insert of the same
// (account, email) pair surfaces as ErrAssociationExists.
func (r *PGRepository) CreateAssociation(ctx context.Context, assoc *EmailAssociation) error {
	confirmedAt := pgtype.Timestamptz{}
	if assoc.ConfirmedAt != nil {
		confirmedAt = pgtype.Timestamptz{Time: assoc.ConfirmedAt.UTC(), Valid: true}
	}
	err := r.pool.QueryRow(ctx, insertAssociationSQL,
		assoc.AccountID,
		assoc.Email,
		assoc.IsConfirmed,
		assoc.ActivationKey,
		confirmedAt,
	).Scan(&assoc.ID, &assoc.CreatedAt, &assoc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrAssociationExists
		}
		return fmt.Errorf("accounts: insert association: %w", err)
	}
	return nil
}

// ListPendingActivations selects reminder candidates, oldest signups first.
func (r *PGRepository) ListPendingActivations(ctx context.Context, filter PendingFilter) ([]PendingActivation, error) {
	rows, err := r.pool.Query(ctx, listPendingActivationsSQL, filter.CreatedBefore.UTC(), filter.RemindedBefore.UTC(), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("accounts: list pending activations: %w", err)
	}
	pending, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PendingActivation, error) {
		var p PendingActivation
		var lastLogin, confirmedAt, remindedAt pgtype.Timestamptz
		err := row.Scan(
			&p.Account.ID, &p.Account.Username, &p.Account.Email, &p.Account.PasswordHash,
			&p.Account.IsActive, &p.Account.Timezone, &p.Account.CreatedAt, &p.Account.UpdatedAt, &lastLogin,
			&p.Association.ID, &p.Association.AccountID, &p.Association.Email, &p.Association.IsConfirmed,
			&p.Association.ActivationKey, &confirmedAt, &remindedAt, &p.Association.CreatedAt, &p.Association.UpdatedAt,
		)
		p.Account.LastLoginAt = timePtr(lastLogin)
		p.Association.ConfirmedAt = timePtr(confirmedAt)
		p.Association.ReminderSentAt = timePtr(remindedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("accounts: scan pending activations: %w", err)
	}
	return pending, nil
}

// MarkReminderSent stamps the association after a reminder went out.
func (r *PGRepository) MarkReminderSent(ctx context.Context, associationID int64, at time.Time) error {
	if _, err := r.pool.Exec(ctx, markReminderSentSQL, associationID, at.UTC()); err != nil {
		return fmt.Errorf("accounts: mark reminder sent: %w", err)
	}
	return nil
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) MarkEmailConfirmed(ctx context.Context, associationID int64, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, markEmailConfirmedSQL, associationID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("accounts: confirm email: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepo) ActivateAccount(ctx context.Context, accountID int64, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, activateAccountSQL, accountID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("accounts: activate account: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepository) findAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	account, err := scanAccount(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("accounts: find account: %w", err)
	}
	return account, nil
}

func (r *PGRepository) listAccounts(ctx context.Context, query string, args ...any) ([]*Account, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("accounts: list accounts: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Account, error) {
		return scanAccount(row)
	})
	if err != nil {
		return nil, fmt.Errorf("accounts: scan accounts: %w", err)
	}
	return list, nil
}

func (r *PGRepository) findAssociation(ctx context.Context, query string, args ...any) (*EmailAssociation, error) {
	assoc, err := scanAssociation(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("accounts: find association: %w", err)
	}
	return assoc, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	var lastLogin pgtype.Timestamptz
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.IsActive, &a.Timezone, &a.CreatedAt, &a.UpdatedAt, &lastLogin); err != nil {
		return nil, err
	}
	a.LastLoginAt = timePtr(lastLogin)
	return &a, nil
}

func scanAssociation(row pgx.Row) (*EmailAssociation, error) {
	var e EmailAssociation
	var confirmedAt, remindedAt pgtype.Timestamptz
	if err := row.Scan(&e.ID, &e.AccountID, &e.Email, &e.IsConfirmed, &e.ActivationKey, &confirmedAt, &remindedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.ConfirmedAt = timePtr(confirmedAt)
	e.ReminderSentAt = timePtr(remindedAt)
	return &e, nil
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

var _ Repository = (*PGRepository)(nil)
