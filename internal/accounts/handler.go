package accounts

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/accountkit/internal/platform/httpx"
)

// maxBatchIDs bounds one batch lookup request.
const maxBatchIDs = 200

// Handler exposes account lookups over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers account routes. Callers are expected to guard the
// router with an authentication middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/batch", h.batch)
}

type accountView struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	IsActive    bool       `json:"is_active"`
	Timezone    string     `json:"timezone,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type batchResponse struct {
	Accounts []accountView `json:"accounts"`
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	strict, _ := strconv.ParseBool(r.URL.Query().Get("strict"))

	found, err := h.service.ResolveByIDs(r.Context(), ids, strict)
	if err != nil {
		h.logger.Warn("batch account lookup", slog.Bool("strict", strict), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := batchResponse{Accounts: make([]accountView, 0, len(found))}
	for _, account := range found {
		resp.Accounts = append(resp.Accounts, accountView{
			ID:          account.ID,
			Username:    account.Username,
			Email:       account.Email,
			IsActive:    account.IsActive,
			Timezone:    account.Timezone,
			LastLoginAt: account.LastLoginAt,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func parseIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("ids parameter is required: %w", httpx.ErrValidation)
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxBatchIDs {
		return nil, fmt.Errorf("at most %d ids per request: %w", maxBatchIDs, httpx.ErrValidation)
	}
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q: %w", part, httpx.ErrValidation)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
