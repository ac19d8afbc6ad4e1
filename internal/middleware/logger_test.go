package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoggerRecordsAuthenticatedUser(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var seen string
	handler := Logger(logger)(AuthJWT(testSecret, "pulsethread")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	token, err := SignToken(testSecret, "pulsethread", "alice", time.Hour)
	if err != nil {
		t.Fatalf("SignToken error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/me/active", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "alice" {
		t.Fatalf("handler user = %q", seen)
	}
	line := map[string]any{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["user_id"] != "alice" {
		t.Fatalf("logged user_id = %v, want alice", line["user_id"])
	}
	if line["status"] != float64(http.StatusNoContent) {
		t.Fatalf("logged status = %v", line["status"])
	}
}

func TestLoggerLeavesUserEmptyWhenUnauthenticated(t *testing.T) {
	var buf bytes.Buffer
	handler := Logger(zerolog.New(&buf))(AuthJWT(testSecret, "pulsethread")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a token")
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/me/active", nil))

	line := map[string]any{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["user_id"] != "" {
		t.Fatalf("logged user_id = %v, want empty", line["user_id"])
	}
	if line["status"] != float64(http.StatusUnauthorized) {
		t.Fatalf("logged status = %v", line["status"])
	}
}
