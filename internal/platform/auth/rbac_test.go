package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		roles   []string
		allowed bool
	}{
		{"matching role", []string{RoleNurse}, true},
		{"second allowed role", []string{RolePhysician}, true},
		{"admin bypass", []string{RoleAdmin}, true},
		{"other role", []string{RoleScheduler}, false},
		{"no roles", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := contextWithRoles(tt.roles...)
			err := RequireRole(RoleNurse, RolePhysician)(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})(c)

			if tt.allowed && err != nil {
				t.Errorf("expected access, got %v", err)
			}
			if !tt.allowed {
				httpErr, ok := err.(*echo.HTTPError)
				if !ok || httpErr.Code != http.StatusForbidden {
					t.Errorf("expected 403, got %v", err)
				}
			}
		})
	}
}

func TestHasRole(t *testing.T) {
	if !HasRole([]string{"registrar"}, "registrar") {
		t.Error("expected registrar to match")
	}
	if HasRole([]string{"registrar"}, "nurse") {
		t.Error("expected registrar not to match nurse")
	}
	if !HasRole([]string{"admin"}, "nurse") {
		t.Error("expected admin to match anything")
	}
}
