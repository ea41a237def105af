package accounts

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// UsernameHashLength is the width of login-names derived from emails.
const UsernameHashLength = 30

var validate = validator.New()

// IsValidEmail reports whether s is a syntactically valid email address.
func IsValidEmail(s string) bool {
	if s == "" {
		return false
	}
	return validate.Var(s, "email") == nil
}

// NormalizeEmail returns the canonical form used for comparisons and hashing:
// invalid UTF-8 dropped, NFC composed, lower-cased.
func NormalizeEmail(email string) string {
	email = strings.ToValidUTF8(strings.TrimSpace(email), "")
	// cases.Caser is stateful, so a fresh one per call.
	return cases.Lower(language.Und).String(norm.NFC.String(email))
}

// EmailToUsernameHash derives the opaque login-name stored for email-as-username
// accounts. Emails are case-insensitive, so every casing maps to one hash.
func EmailToUsernameHash(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return base64.URLEncoding.EncodeToString(sum[:])[:UsernameHashLength]
}
