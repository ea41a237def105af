package accounts

import "time"

// Account is the identity record behind a login.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	Timezone     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// EmailAssociation links one email address to exactly one account.
type EmailAssociation struct {
	ID             int64
	AccountID      int64
	Email          string
	IsConfirmed    bool
	ActivationKey  string
	ConfirmedAt    *time.Time
	ReminderSentAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PendingActivation is an unconfirmed association whose account has not been
// activated yet.
type PendingActivation struct {
	Account     Account
	Association EmailAssociation
}

// PendingFilter narrows the pending activations selected for reminders.
type PendingFilter struct {
	// CreatedBefore excludes signups younger than this instant.
	CreatedBefore time.Time
	// RemindedBefore excludes associations reminded after this instant.
	RemindedBefore time.Time
	Limit          int
}

// AssociateOptions tunes AssociateEmail.
type AssociateOptions struct {
	// Domain is used to build the activation link. Empty means the configured default.
	Domain string
	// Confirmed marks the address as already verified, e.g. by a social login provider.
	Confirmed bool
}

// Activation describes one activation email to dispatch.
type Activation struct {
	Account     *Account
	Association *EmailAssociation
	Domain      string
	Reminder    bool
}
