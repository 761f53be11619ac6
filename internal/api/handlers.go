package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/giftcard-mini/internal/logging"
	"github.com/shehryarbajwa/giftcard-mini/internal/session"
	"github.com/shehryarbajwa/giftcard-mini/pkg/models"
)

// maxBodyBytes caps auth request bodies.
const maxBodyBytes = 1 << 16

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sessions *session.Manager
	headless bool
	logger   *slog.Logger
}

// NewHandler creates a handler. headless is used when a request leaves it
// unset.
func NewHandler(sessions *session.Manager, headless bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: sessions,
		headless: headless,
		logger:   logger,
	}
}

// Auth handles POST /v1/auth. The outcome is in the status field, so every
// processed request answers 200.
func (h *Handler) Auth(w http.ResponseWriter, r *http.Request) {
	var req models.AuthRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.AuthResponse{Status: models.AuthError})
		return
	}

	headless := h.headless
	if req.Headless != nil {
		headless = *req.Headless
	}

	id, err := h.sessions.CreateSession(r.Context(), session.Credentials{
		CardNumber: req.CardNumber,
		PIN:        req.PIN,
		Headless:   headless,
	})
	status := session.StatusOf(err)
	switch status {
	case models.AuthSuccess:
		writeJSON(w, http.StatusOK, models.AuthResponse{Status: status, Identifier: &id})
		return
	case models.AuthError:
		logging.LogError(r.Context(), h.logger, "auth errored", err)
	default:
		h.logger.InfoContext(r.Context(), "auth failed", logging.ErrorAttrs(err)...)
	}
	writeJSON(w, http.StatusOK, models.AuthResponse{Status: status})
}

// Account handles GET /v1/sessions/{id}/account. It consumes the session.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	result, ok := h.fetch(r)
	if !ok {
		writeJSON(w, http.StatusOK, []models.Account{})
		return
	}
	writeJSON(w, http.StatusOK, accountsOf(h.sessions.Site(), result))
}

// Transactions handles GET /v1/sessions/{id}/transactions. It consumes the
// session.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	result, ok := h.fetch(r)
	if !ok {
		writeJSON(w, http.StatusOK, []models.TransactionView{})
		return
	}
	writeJSON(w, http.StatusOK, transactionsOf(result))
}

// Session handles GET /v1/sessions/{id}, answering both views from one fetch.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	view := models.SessionView{
		Account:      []models.Account{},
		Transactions: []models.TransactionView{},
	}
	if result, ok := h.fetch(r); ok {
		view.Account = accountsOf(h.sessions.Site(), result)
		view.Transactions = transactionsOf(result)
	}
	writeJSON(w, http.StatusOK, view)
}

// DeleteSession handles DELETE /v1/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Teardown(mux.Vars(r)["id"]) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	g := h.sessions.Gate()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"site":     h.sessions.Site().Name,
		"active":   g.Active(),
		"waiting":  g.Waiting(),
		"capacity": g.Capacity(),
		"sessions": h.sessions.Live(),
	})
}

// fetch consumes the session named in the path. Invalid and expired
// identifiers are not errors to the caller; they read as empty.
func (h *Handler) fetch(r *http.Request) (*models.GiftCardResult, bool) {
	id := mux.Vars(r)["id"]
	result, err := h.sessions.Fetch(r.Context(), id)
	if err == nil {
		return result, true
	}
	if errors.Is(err, session.ErrInvalidIdentifier) {
		h.logger.DebugContext(r.Context(), "fetch for unknown session", "session_id", id)
	} else {
		logging.LogError(r.Context(), h.logger, "fetch failed", err, "session_id", id)
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
