package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/accountkit/internal/accounts"
	"github.com/odyssey-erp/accountkit/internal/forms"
	"github.com/odyssey-erp/accountkit/internal/platform/httpx"
	"github.com/odyssey-erp/accountkit/internal/shared"
	"github.com/odyssey-erp/accountkit/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	styler         forms.Styler
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, styler forms.Styler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		styler:         styler,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/api/login", h.apiLogin)
	r.Get("/confirm/{key}", h.confirm)
}

type loginForm struct {
	Identifier string `form:"identifier" validate:"required,max=254"`
	Password   string `form:"password" validate:"required"`
}

type loginPageData struct {
	Form *forms.Form
}

func (h *Handler) newLoginForm() *forms.Form {
	form := forms.New(
		forms.NewField("identifier", "Username or email", forms.WidgetText),
		forms.NewField("password", "Password", forms.WidgetPassword),
	)
	h.styler.SetInputAttrs(form, nil)
	forms.SetInputPlaceholderLabels(form)
	form.Field("identifier").SetAttr("autocomplete", "username")
	form.Field("password").SetAttr("autocomplete", "current-password")
	return form
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if next := safeRedirect(r.URL.Query().Get("next")); next != "" {
			sess.Set(shared.SessionKeyRedirect, next)
		}
		if sess.Authenticated() {
			http.Redirect(w, r, h.popRedirect(sess), http.StatusSeeOther)
			return
		}
	}
	h.renderLogin(w, r, http.StatusOK, h.newLoginForm())
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := h.newLoginForm()
	form.Bind(r.PostFormValue)
	input := loginForm{
		Identifier: strings.TrimSpace(form.Value("identifier")),
		Password:   form.Value("password"),
	}
	if !forms.Validate(input, form) {
		h.renderLogin(w, r, http.StatusBadRequest, form)
		return
	}

	account, err := h.service.Login(r.Context(), input.Identifier, input.Password)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			status = http.StatusInternalServerError
		}
		form.AddError("", shared.UserSafeMessage(err))
		h.renderLogin(w, r, status, form)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess.SetUser(strconv.FormatInt(account.ID, 10))
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back"})
	h.logger.Info("login", slog.Int64("account_id", account.ID))
	http.Redirect(w, r, h.popRedirect(sess), http.StatusSeeOther)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, form *forms.Form) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        loginPageData{Form: form},
	}
	if err := h.templates.RenderStatus(r.Context(), w, status, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

type apiLoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required"`
}

type apiLoginResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (h *Handler) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req apiLoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", "identifier and password are required")
		return
	}

	account, err := h.service.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "unauthorized", shared.UserSafeMessage(err))
			return
		}
		httpx.Problem(w, http.StatusInternalServerError, "internal error", shared.UserSafeMessage(err))
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetUser(strconv.FormatInt(account.ID, 10))
	}
	httpx.JSON(w, http.StatusOK, apiLoginResponse{ID: account.ID, Username: account.Username})
}

type confirmPageData struct {
	Message string
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	assoc, err := h.service.Confirm(r.Context(), key)

	status := http.StatusOK
	data := view.TemplateData{Title: "Email confirmed", CurrentPath: r.URL.Path}
	switch {
	case errors.Is(err, accounts.ErrEmailTaken):
		status = http.StatusConflict
		data.Title = "Email already in use"
		data.Data = confirmPageData{Message: "This email address is already confirmed on another account."}
	case err != nil:
		h.logger.Error("confirm activation key", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	case assoc == nil:
		status = http.StatusNotFound
		data.Title = "Link not valid"
		data.Data = confirmPageData{Message: "This activation link is invalid or has expired."}
	default:
		h.logger.Info("email confirmed", slog.Int64("account_id", assoc.AccountID))
		data.Data = confirmPageData{Message: "Your email address " + assoc.Email + " is confirmed. You can sign in now."}
	}

	sess := shared.SessionFromContext(r.Context())
	data.CSRFToken, _ = h.csrfManager.EnsureToken(sess)
	if err := h.templates.RenderStatus(r.Context(), w, status, "pages/confirm.html", data); err != nil {
		h.logger.Error("render confirm", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) popRedirect(sess *shared.Session) string {
	next := safeRedirect(sess.Get(shared.SessionKeyRedirect))
	sess.Delete(shared.SessionKeyRedirect)
	if next == "" {
		return "/"
	}
	return next
}

// safeRedirect accepts only local absolute paths.
func safeRedirect(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}
