package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Unknown accounts, wrong
	// passwords and inactive accounts all map to this error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNonUniqueEmail signals that one email is confirmed on more than one
	// account. It is a data integrity failure and must not be swallowed.
	ErrNonUniqueEmail = errors.New("email confirmed on more than one account")
	// ErrAccountNotFound is returned by strict batch lookups when an id is missing.
	ErrAccountNotFound = errors.New("account not found")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage returns a message that can be shown to end users without
// leaking account existence or internal failures.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username/email or password"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAccountNotFound):
		return "The requested record could not be found"
	case errors.Is(err, ErrCSRFTokenMissing), errors.Is(err, ErrCSRFTokenMismatch):
		return "Your form expired, please try again"
	default:
		return "Something went wrong, please try again later"
	}
}
