package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/accountkit/internal/shared"
)

// memRepo is an in-memory Repository mirroring the SQL semantics.
type memRepo struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*Account
	assocs   []*EmailAssociation

	touchErr error
	txErr    error
	txCalls  int
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: map[int64]*Account{}}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) addAccount(username, email string, active bool) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &Account{ID: m.id(), Username: username, Email: email, IsActive: active}
	m.accounts[a.ID] = a
	cp := *a
	return &cp
}

func (m *memRepo) addAssociation(accountID int64, email string, confirmed bool) *EmailAssociation {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &EmailAssociation{ID: m.id(), AccountID: accountID, Email: email, IsConfirmed: confirmed, CreatedAt: time.Now()}
	e.ActivationKey = fmt.Sprintf("key-%d", e.ID)
	m.assocs = append(m.assocs, e)
	cp := *e
	return &cp
}

func (m *memRepo) account(id int64) Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.accounts[id]
}

func (m *memRepo) associationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.assocs)
}

// sameEmail mirrors lower(stored) = lower($1) with the canonical argument
// PGRepository passes; the stored value is only lower-cased.
func sameEmail(stored, query string) bool {
	return strings.ToLower(stored) == strings.ToLower(NormalizeEmail(query))
}

func (m *memRepo) FindByID(_ context.Context, id int64) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) FindByUsername(_ context.Context, username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memRepo) ListByIDs(_ context.Context, ids []int64) ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Account
	for _, a := range m.accounts {
		for _, id := range ids {
			if a.ID == id {
				cp := *a
				out = append(out, &cp)
				break
			}
		}
	}
	// Reverse order proves callers restore input order themselves.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memRepo) owners(email string, match func(*EmailAssociation, *Account) bool) []*Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Account
	for _, e := range m.assocs {
		a := m.accounts[e.AccountID]
		if sameEmail(e.Email, email) && match(e, a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

func (m *memRepo) ListConfirmedEmailOwners(_ context.Context, email string) ([]*Account, error) {
	return m.owners(email, func(e *EmailAssociation, _ *Account) bool { return e.IsConfirmed }), nil
}

func (m *memRepo) ListPendingEmailOwners(_ context.Context, email string) ([]*Account, error) {
	return m.owners(email, func(e *EmailAssociation, a *Account) bool { return !e.IsConfirmed && !a.IsActive }), nil
}

func (m *memRepo) ListInactiveByEmail(_ context.Context, email string) ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Account
	for _, a := range m.accounts {
		if !a.IsActive && sameEmail(a.Email, email) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) CreateAccount(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == account.Username {
			return errors.New("duplicate username")
		}
	}
	account.ID = m.id()
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *memRepo) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	if m.touchErr != nil {
		return m.touchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.LastLoginAt = &at
	}
	return nil
}

func (m *memRepo) FindAssociation(_ context.Context, accountID int64, email string) (*EmailAssociation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.assocs {
		if e.AccountID == accountID && sameEmail(e.Email, email) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memRepo) FindAssociationByKey(_ context.Context, key string) (*EmailAssociation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.assocs {
		if e.ActivationKey == key {
			cp := *e
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memRepo) CreateAssociation(_ context.Context, assoc *EmailAssociation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.assocs {
		if e.AccountID == assoc.AccountID && strings.ToLower(e.Email) == strings.ToLower(assoc.Email) {
			return ErrAssociationExists
		}
	}
	assoc.ID = m.id()
	assoc.CreatedAt = time.Now()
	cp := *assoc
	m.assocs = append(m.assocs, &cp)
	return nil
}

func (m *memRepo) ListPendingActivations(_ context.Context, filter PendingFilter) ([]PendingActivation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PendingActivation
	for _, e := range m.assocs {
		a := m.accounts[e.AccountID]
		if e.IsConfirmed || a.IsActive || !e.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		if e.ReminderSentAt != nil && !e.ReminderSentAt.Before(filter.RemindedBefore) {
			continue
		}
		out = append(out, PendingActivation{Account: *a, Association: *e})
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) MarkReminderSent(_ context.Context, associationID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.assocs {
		if e.ID == associationID {
			e.ReminderSentAt = &at
		}
	}
	return nil
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.txCalls++
	if m.txErr != nil {
		return m.txErr
	}
	return fn(ctx, memTx{m})
}

type memTx struct{ m *memRepo }

func (t memTx) MarkEmailConfirmed(_ context.Context, associationID int64, at time.Time) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for _, e := range t.m.assocs {
		if e.ID == associationID && !e.IsConfirmed {
			e.IsConfirmed = true
			e.ConfirmedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (t memTx) ActivateAccount(_ context.Context, accountID int64, _ time.Time) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if a, ok := t.m.accounts[accountID]; ok && !a.IsActive {
		a.IsActive = true
		return true, nil
	}
	return false, nil
}

var _ Repository = (*memRepo)(nil)

type recordingNotifier struct {
	sent []Activation
	err  error
}

func (n *recordingNotifier) SendActivation(_ context.Context, activation Activation) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, activation)
	return nil
}

type plainVerifier struct{}

func (plainVerifier) Compare(hash, password string) error {
	if hash != password {
		return errors.New("mismatch")
	}
	return nil
}
