package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/odyssey-erp/accountkit/internal/shared"
)

// TimezoneProvider returns the stored timezone name of a session user.
type TimezoneProvider interface {
	AccountTimezone(ctx context.Context, userID string) (string, error)
}

// Timezone activates the account timezone for the request. The name is cached
// in the session so the provider is asked once per session. Failures never
// block the request.
func Timezone(provider TimezoneProvider, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	var locations sync.Map

	load := func(name string) (*time.Location, error) {
		if loc, ok := locations.Load(name); ok {
			return loc.(*time.Location), nil
		}
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, err
		}
		locations.Store(name, loc)
		return loc, nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil {
				next.ServeHTTP(w, r)
				return
			}

			name := sess.Get(shared.SessionKeyTimezone)
			fetched := false
			if name == "" && sess.Authenticated() && provider != nil {
				tz, err := provider.AccountTimezone(r.Context(), sess.User())
				if err != nil {
					logger.Warn("lookup account timezone", slog.String("user_id", sess.User()), slog.Any("error", err))
				}
				name, fetched = tz, true
			}
			if name == "" {
				next.ServeHTTP(w, r)
				return
			}

			loc, err := load(name)
			if err != nil {
				logger.Warn("unknown timezone", slog.String("timezone", name), slog.Any("error", err))
				sess.Delete(shared.SessionKeyTimezone)
				next.ServeHTTP(w, r)
				return
			}
			if fetched {
				sess.Set(shared.SessionKeyTimezone, name)
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithLocation(r.Context(), loc)))
		})
	}
}
