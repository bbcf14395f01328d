package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) context.Context {
	return WithActor(context.Background(), Actor{ID: "u1", Roles: roles})
}

func TestRequireRole_Allowed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(contextWithRoles(RoleDoctor))
	c := e.NewContext(req, httptest.NewRecorder())

	h := RequireRole(RoleDoctor)(func(c echo.Context) error { return nil })
	if err := h(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(contextWithRoles(RolePatient))
	c := e.NewContext(req, httptest.NewRecorder())

	h := RequireRole(RoleAdmin)(func(c echo.Context) error { return nil })
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(contextWithRoles(RoleAdmin))
	c := e.NewContext(req, httptest.NewRecorder())

	h := RequireRole(RoleDoctor)(func(c echo.Context) error { return nil })
	if err := h(c); err != nil {
		t.Errorf("admin should pass any role check, got %v", err)
	}
}

func TestRequireRole_NoActor(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := RequireRole(RoleAdmin)(func(c echo.Context) error { return nil })(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Errorf("expected 403 without an actor, got %v", err)
	}
}

func TestActorAuthorize(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		actor   Actor
		wantErr bool
	}{
		{"admin without expiry", Actor{ID: "a", Roles: []string{RoleAdmin}}, false},
		{"admin before expiry", Actor{ID: "a", Roles: []string{RoleAdmin}, ExpiresAt: now.Add(time.Minute)}, false},
		{"admin after expiry", Actor{ID: "a", Roles: []string{RoleAdmin}, ExpiresAt: now}, true},
		{"anonymous", Actor{Roles: []string{RoleAdmin}}, true},
		{"patient", Actor{ID: "p", Roles: []string{RolePatient}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.actor.Authorize(now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr=%v, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrForbidden) {
				t.Errorf("expected ErrForbidden, got %v", err)
			}
		})
	}
}
