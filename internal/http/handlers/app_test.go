package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"pulsethread/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.Validationf("bad"), http.StatusBadRequest, "validation"},
		{fmt.Errorf("%w: nope", domain.ErrAuthorization), http.StatusForbidden, "forbidden"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("wrap: %w", domain.ErrIneligibleRequest), http.StatusConflict, "request_full"},
		{fmt.Errorf("%w (3 units)", domain.ErrRequestFull), http.StatusConflict, "request_full"},
		{fmt.Errorf("%w (CANCELLED)", domain.ErrRequestClosed), http.StatusConflict, "request_closed"},
		{domain.ErrAlreadyResponding, http.StatusConflict, "already_responding"},
		{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{domain.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{domain.ErrTokenMismatch, http.StatusUnprocessableEntity, "token_mismatch"},
		{errors.New("db down"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range tests {
		status, code := classify(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("classify(%v) = %d %q, want %d %q", tc.err, status, code, tc.status, tc.code)
		}
	}
}
