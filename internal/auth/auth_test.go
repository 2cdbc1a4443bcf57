package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bms-dashboard/internal/model"
	"bms-dashboard/internal/store"
)

func newManager(t *testing.T) (*Manager, *model.User) {
	t.Helper()
	mem := store.NewMemoryStore()

	hash, err := HashPassword("admin123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := model.User{Name: "Admin User", Email: "admin@voltas.com", PasswordHash: hash, Role: model.RoleAdmin}
	if err := mem.CreateUser(context.Background(), &user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	return NewManager(mem, "test-secret", 60), &user
}

func TestLogin_TokenRoundTrip(t *testing.T) {
	m, user := newManager(t)

	token, got, err := m.Login(context.Background(), "admin@voltas.com", "admin123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Expected user %d, got %d", user.ID, got.ID)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != user.Email || claims.Role != model.RoleAdmin {
		t.Errorf("Claims do not match user: %+v", claims)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	m, _ := newManager(t)

	if _, _, err := m.Login(context.Background(), "admin@voltas.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	// Unknown user and wrong password are indistinguishable to the caller.
	if _, _, err := m.Login(context.Background(), "nobody@voltas.com", "admin123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestValidateToken_RejectsTampering(t *testing.T) {
	m, user := newManager(t)
	other := NewManager(nil, "different-secret", 60)

	token, err := other.GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Error("Expected validation failure for token signed with another secret")
	}
	if _, err := m.ValidateToken("not-a-token"); err == nil {
		t.Error("Expected validation failure for garbage token")
	}
}

func TestMiddleware(t *testing.T) {
	m, user := newManager(t)
	token, err := m.GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFrom(r.Context())
	})
	handler := m.Middleware(next)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"bad token", "Bearer garbage", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range tests {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.name, tc.status, rec.Code)
		}
		if tc.status == http.StatusOK && (seen == nil || seen.UserID != user.ID) {
			t.Errorf("%s: claims not propagated: %+v", tc.name, seen)
		}
	}
}

func TestRequireRole(t *testing.T) {
	admin := &Claims{UserID: 1, Role: model.RoleAdmin}
	guest := &Claims{UserID: 2, Role: model.RoleGuest}

	if err := RequireRole(admin, model.RoleAdmin); err != nil {
		t.Errorf("Admin should pass admin check: %v", err)
	}
	if err := RequireRole(guest, model.RoleAdmin, model.RoleOperator); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for guest, got %v", err)
	}
	if err := RequireRole(nil, model.RoleAdmin); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for nil claims, got %v", err)
	}
}
