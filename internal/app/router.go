package app

import (
	"context"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/accountkit/internal/accounts"
	"github.com/odyssey-erp/accountkit/internal/auth"
	accountmw "github.com/odyssey-erp/accountkit/internal/middleware"
	"github.com/odyssey-erp/accountkit/internal/observability"
	"github.com/odyssey-erp/accountkit/internal/shared"
	"github.com/odyssey-erp/accountkit/internal/view"
	"github.com/odyssey-erp/accountkit/jobs"
	"github.com/odyssey-erp/accountkit/web"
)

// AccountLoader loads the account bound to a session user id.
type AccountLoader interface {
	CurrentAccount(ctx context.Context, userID string) (*accounts.Account, error)
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AllowedHosts   *accountmw.AllowedHosts
	Timezones      accountmw.TimezoneProvider
	Accounts       AccountLoader

	AuthHandler     *auth.Handler
	AccountsHandler *accounts.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

type homePageData struct {
	Account *accounts.Account
}

// NewRouter constructs the chi.Router with accountkit defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		AllowedHosts:   params.AllowedHosts,
		Timezones:      params.Timezones,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	// Innermost, so handlers receive the exact request that was bound.
	r.Use(accountmw.RequestContext)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || !sess.Authenticated() {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}

		var account *accounts.Account
		if params.Accounts != nil {
			var err error
			account, err = params.Accounts.CurrentAccount(r.Context(), sess.User())
			if err != nil {
				params.Logger.Error("load current account", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}
		if account == nil {
			// Account vanished since login.
			sess.SetUser("")
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}

		csrfToken, _ := params.CSRFManager.EnsureToken(sess)
		data := view.TemplateData{
			Title:       "Home",
			CSRFToken:   csrfToken,
			Flash:       sess.PopFlash(),
			CurrentPath: r.URL.Path,
			Data:        homePageData{Account: account},
		}
		if err := params.Templates.Render(r.Context(), w, "pages/home.html", data); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	if params.AuthHandler != nil {
		r.Route("/auth", func(r chi.Router) {
			limit := 0
			if params.Config != nil {
				limit = params.Config.LoginRateLimit
			}
			r.Use(loginThrottle(limit))
			params.AuthHandler.MountRoutes(r)
		})
	}
	if params.AccountsHandler != nil {
		r.Route("/accounts", func(r chi.Router) {
			r.Use(accountmw.RequireAuthenticated)
			params.AccountsHandler.MountRoutes(r)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		ensureMimeType(params.Logger, ".css", "text/css; charset=utf-8")
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

// ensureMimeType registers typ for ext on hosts whose mime tables lack it.
func ensureMimeType(logger *slog.Logger, ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		logger.Warn("register mime type", slog.String("ext", ext), slog.Any("error", err))
	}
}
