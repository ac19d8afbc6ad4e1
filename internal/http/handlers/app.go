package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"pulsethread/internal/domain"
	"pulsethread/internal/infra/geoip"
	"pulsethread/internal/lifecycle"
	"pulsethread/internal/matching"
	"pulsethread/internal/metrics"
	"pulsethread/internal/middleware"
	"pulsethread/internal/realtime"
	"pulsethread/internal/verification"
)

// App holds the services the HTTP layer talks to.
type App struct {
	Requests     *lifecycle.Requests
	Donations    *lifecycle.Donations
	Matching     *matching.Engine
	Verification *verification.Service
	Hub          *realtime.Hub
	Metrics      *metrics.Metrics
	Locator      geoip.Locator
	Logger       zerolog.Logger
	PollInterval time.Duration
	// Ready reports store health for /healthz. Nil means always ready.
	Ready func(r *http.Request) error
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{
			"code":    errCode,
			"message": message,
		},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

// fail maps a domain error to its HTTP status and stable code.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		a.Logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		a.error(w, status, code, "internal error")
		return
	}
	a.error(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrAuthorization):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrRequestClosed):
		return http.StatusConflict, "request_closed"
	case errors.Is(err, domain.ErrAlreadyResponding):
		return http.StatusConflict, "already_responding"
	case errors.Is(err, domain.ErrIneligibleRequest):
		return http.StatusConflict, "request_full"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrTokenMismatch):
		return http.StatusUnprocessableEntity, "token_mismatch"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
