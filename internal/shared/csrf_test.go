package shared

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFTokenLifecycle(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()

	token, err := m.EnsureToken(sess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	again, err := m.EnsureToken(sess)
	require.NoError(t, err)
	assert.Equal(t, token, again, "token is stable within a session")

	assert.NoError(t, m.VerifyToken(sess, token))
	assert.ErrorIs(t, m.VerifyToken(sess, token+"x"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(newSession(), token), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(nil, token), ErrCSRFTokenMissing)
}

func TestTokenFromRequest(t *testing.T) {
	form := url.Values{CSRFFormField: {"from-form"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(CSRFHeader, "from-header")
	assert.Equal(t, "from-form", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(CSRFHeader, "from-header")
	assert.Equal(t, "from-header", TokenFromRequest(req))
}
