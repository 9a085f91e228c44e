package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestWriteError_MapsKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperror.Validation(map[string]string{"lat": "out of range"}), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"forbidden", apperror.Forbidden("no"), http.StatusForbidden, "FORBIDDEN"},
		{"not found", apperror.NotFound("location", "x"), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", apperror.Conflict("ALREADY_REVIEWED", "done"), http.StatusConflict, "ALREADY_REVIEWED"},
		{"duplicate", apperror.Duplicate("dup", map[string]any{"kind": "pending"}), http.StatusConflict, "DUPLICATE"},
		{"rate limited", apperror.RateLimited(), http.StatusTooManyRequests, "RATE_LIMITED"},
		{"dependency", apperror.Dependency("find", errors.New("connection refused")), http.StatusServiceUnavailable, "DEPENDENCY_ERROR"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(nil, rec, tc.err)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			body := decodeEnvelope(t, rec)
			if body["success"] != false {
				t.Errorf("success = %v", body["success"])
			}
			errBody := body["error"].(map[string]any)
			if errBody["code"] != tc.code {
				t.Errorf("code = %v, want %s", errBody["code"], tc.code)
			}
		})
	}
}

func TestWriteError_HidesDependencyDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(nil, rec, apperror.Dependency("insert", errors.New("mongo://secret-host timeout")))
	if strings.Contains(rec.Body.String(), "secret-host") {
		t.Fatalf("response leaked internal detail: %s", rec.Body.String())
	}
}

func TestWriteError_ValidationDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(nil, rec, apperror.Validation(map[string]string{"address": "required"}))
	body := decodeEnvelope(t, rec)
	details := body["error"].(map[string]any)["details"].(map[string]any)
	if details["address"] != "required" {
		t.Fatalf("details = %v", details)
	}
}

func TestWriteData_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(nil, rec, http.StatusCreated, map[string]string{"id": "abc"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["success"] != true || body["data"].(map[string]any)["id"] != "abc" {
		t.Fatalf("body = %v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	if err := DecodeJSON(rec, req, &dst); err != nil || dst.Name != "x" {
		t.Fatalf("DecodeJSON = %v, %+v", err, dst)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(rec, req, &dst); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("empty body err = %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	if err := DecodeJSON(rec, req, &dst); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestRateLimiter_PerUser(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{PerMinute: 60, Burst: 2}, nil)
	defer rl.Stop()

	if !rl.Allow("u1") || !rl.Allow("u1") {
		t.Fatal("burst should allow two requests")
	}
	if rl.Allow("u1") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("u2") {
		t.Fatal("other users must have their own bucket")
	}
	if rl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", rl.Len())
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{PerMinute: 60, Burst: 1}, nil)
	defer rl.Stop()
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/engagements", nil)
		req = req.WithContext(ContextWithUser(req.Context(), AuthenticatedUser{ID: "u1"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}
	if rec := call(); rec.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := call()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{PerMinute: 60, CleanupInterval: time.Minute}, nil)
	defer rl.Stop()
	rl.Allow("u1")
	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.Len() != 0 {
		t.Fatalf("Len = %d after cleanup, want 0", rl.Len())
	}
}

func TestSanitizer_Text(t *testing.T) {
	s := NewSanitizer()
	cases := []struct{ in, want string }{
		{"  plain text ", "plain text"},
		{"<script>alert(1)</script>Lights", "Lights"},
		{"<b>Big</b> & bright", "Big & bright"},
		{"Tom's <a href=\"x\">display</a>", "Tom's display"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := s.Text(tc.in); got != tc.want {
			t.Errorf("Text(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := s.Strings([]string{"<i></i>", " wreath "}); len(got) != 1 || got[0] != "wreath" {
		t.Errorf("Strings = %v", got)
	}
}

func TestAuthenticatedUser(t *testing.T) {
	u := AuthenticatedUser{ID: "1", Username: "elf", Groups: []string{"Admins"}}
	if u.DisplayName() != "elf" {
		t.Errorf("DisplayName = %q", u.DisplayName())
	}
	if !u.InGroup("Admins") || u.InGroup("") || u.InGroup("Editors") {
		t.Error("InGroup mismatch")
	}
}

func TestParseOptionalFloat(t *testing.T) {
	if v, err := ParseOptionalFloat(""); err != nil || v != nil {
		t.Fatalf("empty = %v, %v", v, err)
	}
	if v, err := ParseOptionalFloat(" 32.5 "); err != nil || v == nil || *v != 32.5 {
		t.Fatalf("32.5 = %v, %v", v, err)
	}
	if _, err := ParseOptionalFloat("abc"); err == nil {
		t.Fatal("expected error")
	}
}
