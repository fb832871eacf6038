package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New("", "secret"); err != ErrNotConfigured {
		t.Errorf("missing username: err = %v, want ErrNotConfigured", err)
	}
	if _, err := New("admin", ""); err != ErrNotConfigured {
		t.Errorf("missing password: err = %v, want ErrNotConfigured", err)
	}
	if _, err := New("admin", "secret"); err != nil {
		t.Errorf("valid credentials: err = %v", err)
	}
}

func TestVerify(t *testing.T) {
	a, err := New("admin", "s3cret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{name: "valid", username: "admin", password: "s3cret", want: true},
		{name: "wrong password", username: "admin", password: "wrong"},
		{name: "wrong username", username: "root", password: "s3cret"},
		{name: "both empty", username: "", password: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Verify(tt.username, tt.password); got != tt.want {
				t.Errorf("Verify(%q, %q) = %v, want %v", tt.username, tt.password, got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	a, err := New("admin", "s3cret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var reached bool
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	// No credentials.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
	if reached {
		t.Error("handler reached without credentials")
	}

	// Wrong credentials.
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || reached {
		t.Errorf("wrong credentials: status = %d, reached = %v", rec.Code, reached)
	}

	// Valid credentials.
	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "s3cret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !reached {
		t.Errorf("valid credentials: status = %d, reached = %v", rec.Code, reached)
	}
}
