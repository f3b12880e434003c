package handler

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"linknote-server/internal/domain"
	"linknote-server/internal/logging"
	"linknote-server/internal/middleware"
	"linknote-server/internal/render"
	"linknote-server/internal/service"
	"linknote-server/pkg/response"
)

const UnlockCookieName = "unlock"

const maxUnlockFormBytes = 4 << 10

// PublicHandler serves keys to visitors: redirects, notes and the password
// prompt in front of protected records.
type PublicHandler struct {
	gate   *service.GateService
	pages  *render.Renderer
	cfg    PublicConfig
	logger logging.Logger
}

type PublicConfig struct {
	CookieSecure bool
	// TrustProxyHeaders takes the rate-limit client from forwarding headers.
	// Only safe when every request arrives through an edge that sets them.
	TrustProxyHeaders bool
}

func NewPublicHandler(gate *service.GateService, pages *render.Renderer, cfg PublicConfig, logger logging.Logger) *PublicHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PublicHandler{
		gate:   gate,
		pages:  pages,
		cfg:    cfg,
		logger: logger,
	}
}

func unlockToken(r *http.Request) string {
	c, err := r.Cookie(UnlockCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *PublicHandler) Show(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	record, err := h.gate.Lookup(r.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			h.page(w, http.StatusNotFound, func(b *bytes.Buffer) error { return h.pages.NotFound(b, key) })
			return
		}
		h.logger.Error("lookup failed", "key", key, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if record.IsProtected() {
		w.Header().Set("Cache-Control", "no-store")
	}

	if !h.gate.CanView(record, unlockToken(r), key) {
		h.page(w, http.StatusUnauthorized, func(b *bytes.Buffer) error { return h.pages.Prompt(b, key, "") })
		return
	}

	switch record.Type {
	case domain.RecordTypeURI:
		http.Redirect(w, r, record.Content, http.StatusFound)
	default:
		h.page(w, http.StatusOK, func(b *bytes.Buffer) error { return h.pages.Note(b, key, record.Content) })
	}
}

// Raw returns the stored content as plain text. Locked records get a bare
// 401, never the prompt page.
func (h *PublicHandler) Raw(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	record, err := h.gate.Lookup(r.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			response.Text(w, http.StatusNotFound, "not found\n")
			return
		}
		h.logger.Error("lookup failed", "key", key, "error", err)
		response.Text(w, http.StatusInternalServerError, "internal server error\n")
		return
	}

	if record.IsProtected() {
		w.Header().Set("Cache-Control", "no-store")
	}

	if !h.gate.CanView(record, unlockToken(r), key) {
		response.Text(w, http.StatusUnauthorized, "unauthorized\n")
		return
	}

	response.Text(w, http.StatusOK, record.Content)
}

func (h *PublicHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	r.Body = http.MaxBytesReader(w, r.Body, maxUnlockFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	password := r.PostFormValue("password")

	result, err := h.gate.Unlock(r.Context(), key, password, middleware.ClientID(r, h.cfg.TrustProxyHeaders))
	if err != nil {
		var limited *service.RateLimitedError
		switch {
		case errors.As(err, &limited):
			w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds()))
			msg := "Too many attempts. Try again in " + strconv.Itoa(limited.RetryAfterSeconds()) + " seconds."
			h.page(w, http.StatusTooManyRequests, func(b *bytes.Buffer) error { return h.pages.Prompt(b, key, msg) })
		case errors.Is(err, service.ErrIncorrectPassword):
			h.page(w, http.StatusUnauthorized, func(b *bytes.Buffer) error { return h.pages.Prompt(b, key, "Incorrect password") })
		default:
			h.logger.Error("unlock failed", "key", key, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     UnlockCookieName,
		Value:    result.Token,
		Path:     "/" + key,
		MaxAge:   int(h.gate.UnlockTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/"+key, http.StatusSeeOther)
}

// page renders into a buffer first so a template error never leaves a half
// written body behind a success status.
func (h *PublicHandler) page(w http.ResponseWriter, status int, draw func(*bytes.Buffer) error) {
	var b bytes.Buffer
	if err := draw(&b); err != nil {
		h.logger.Error("render failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(b.Bytes())
}
