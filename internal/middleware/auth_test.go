package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/checkout-saga/internal/model"
)

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	token, err := m.Issue(42, model.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatalf("principal not in context")
		}
		if p.UserID != 42 {
			t.Fatalf("user id from context = %d, want 42", p.UserID)
		}
		if !p.IsAdmin() {
			t.Fatalf("role = %s, want ADMIN", p.Role)
		}
		if p.Token != token {
			t.Fatalf("token not kept in principal")
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_SubjectClaim(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	claims := jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	p, err := m.parse(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if p.UserID != 7 || p.Role != model.RoleUser {
		t.Fatalf("principal = %+v, want user 7 with USER role", p)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	other := NewAuthMiddleware("other-secret")

	expired, err := m.Issue(1, model.RoleUser, -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	foreign, err := other.Issue(1, model.RoleUser, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 1}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "not bearer", header: "Basic dXNlcjpwYXNz"},
		{name: "garbage", header: "Bearer not-a-jwt"},
		{name: "expired", header: "Bearer " + expired},
		{name: "wrong secret", header: "Bearer " + foreign},
		{name: "no expiration", header: "Bearer " + noExp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestPrincipalFromContext_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := PrincipalFromContext(r.Context()); ok {
		t.Fatalf("principal must be absent")
	}
}
