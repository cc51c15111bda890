package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/EmpoweredVote/EV-Globe/internal/middleware"
	"github.com/EmpoweredVote/EV-Globe/internal/utils"
)

// call wraps a simple 200-OK inner handler in the provided middleware,
// sets the given headers on the request, and returns the recorded response.
func call(t *testing.T, mw func(http.Handler) http.Handler, method string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(method, "/test", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, req)
	return rec
}

// TestAdminTokenMiddleware_MissingToken verifies that a request without the
// header receives a 401 response.
func TestAdminTokenMiddleware_MissingToken(t *testing.T) {
	rec := call(t, middleware.AdminTokenMiddleware("s3cret"), http.MethodGet, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAdminTokenMiddleware_WrongToken(t *testing.T) {
	rec := call(t, middleware.AdminTokenMiddleware("s3cret"), http.MethodGet,
		map[string]string{"X-Admin-Token": "guess"})

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestAdminTokenMiddleware_Disabled(t *testing.T) {
	rec := call(t, middleware.AdminTokenMiddleware(""), http.MethodGet,
		map[string]string{"X-Admin-Token": ""})

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("expected body to mention disabled routes, got: %q", rec.Body.String())
	}
}

func TestAdminTokenMiddleware_ValidToken(t *testing.T) {
	rec := call(t, middleware.AdminTokenMiddleware("s3cret"), http.MethodPost,
		map[string]string{"X-Admin-Token": "s3cret"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
}

// TestCORSMiddleware_AllowedOrigin verifies the origin is echoed back and a
// preflight short-circuits with 204.
func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	mw := middleware.CORSMiddleware([]string{"https://compass.empowered.vote/"})

	rec := call(t, mw, http.MethodOptions, map[string]string{"Origin": "https://compass.empowered.vote"})

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://compass.empowered.vote" {
		t.Errorf("expected origin to be echoed, got %q", got)
	}
}

func TestCORSMiddleware_UnknownOrigin(t *testing.T) {
	mw := middleware.CORSMiddleware([]string{"https://compass.empowered.vote"})

	rec := call(t, mw, http.MethodGet, map[string]string{"Origin": "https://evil.example"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow-origin header, got %q", got)
	}
}

func TestUserIDMiddleware(t *testing.T) {
	rec := call(t, middleware.UserIDMiddleware, http.MethodPost, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	var got string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = utils.GetUserIDFromContext(r.Context())
	})
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set("X-User-ID", " user-42 ")
	middleware.UserIDMiddleware(inner).ServeHTTP(httptest.NewRecorder(), req)

	if got != "user-42" {
		t.Errorf("expected user-42 in context, got %q", got)
	}
}

// TestRateLimiter_PerIP verifies the burst is enforced per client and that
// other clients are unaffected.
func TestRateLimiter_PerIP(t *testing.T) {
	l := middleware.NewRateLimiter(1, 2)

	for i := 0; i < 2; i++ {
		rec := call(t, l.Middleware, http.MethodGet, map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"})
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := call(t, l.Middleware, http.MethodGet, map[string]string{"X-Forwarded-For": "203.0.113.7"})
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	rec = call(t, l.Middleware, http.MethodGet, map[string]string{"X-Forwarded-For": "198.51.100.1"})
	if rec.Code != http.StatusOK {
		t.Errorf("expected other client to pass, got %d", rec.Code)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := middleware.NewRateLimiter(0, 0)
	for i := 0; i < 50; i++ {
		if !l.Allow("203.0.113.7") {
			t.Fatalf("request %d was limited", i)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	if got := middleware.ClientIP(req); got != "192.0.2.10" {
		t.Errorf("expected RemoteAddr host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	if got := middleware.ClientIP(req); got != "192.0.2.10" {
		t.Errorf("expected bad forwarded header to be ignored, got %q", got)
	}
}
