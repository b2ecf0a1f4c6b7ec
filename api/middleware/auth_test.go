package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/dormstay-backend/pkg/auth"
	"github.com/angelmondragon/dormstay-backend/pkg/config"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	"github.com/google/uuid"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

type capturedScope struct {
	user   string
	role   string
	branch string
}

func captureHandler(c *capturedScope) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.user = UserIDFromContext(r.Context())
		c.role = RoleFromContext(r.Context())
		c.branch = BranchIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, nil)(captureHandler(&capturedScope{}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, nil)(captureHandler(&capturedScope{}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsStaffBranch(t *testing.T) {
	branchID := uuid.New()
	token := mintTestToken(t, enums.UserRoleStaff, &branchID)

	var captured capturedScope
	handler := Auth(testJWT, nil)(captureHandler(&captured))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user == "" {
		t.Fatal("expected user id in context")
	}
	if captured.role != string(enums.UserRoleStaff) {
		t.Fatalf("expected role staff got %s", captured.role)
	}
	if captured.branch != branchID.String() {
		t.Fatalf("expected branch %s got %s", branchID, captured.branch)
	}
}

func TestAuthAdminWithoutBranchSeesAll(t *testing.T) {
	token := mintTestToken(t, enums.UserRoleAdmin, nil)

	var captured capturedScope
	handler := Auth(testJWT, nil)(captureHandler(&captured))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.branch != "" {
		t.Fatalf("expected empty branch got %s", captured.branch)
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name    string
		handler http.Handler
		role    string
		want    int
	}{
		{name: "admin only admits admin", handler: RequireRole(nil, enums.UserRoleAdmin)(captureHandler(&capturedScope{})), role: "admin", want: http.StatusOK},
		{name: "admin only rejects staff", handler: RequireRole(nil, enums.UserRoleAdmin)(captureHandler(&capturedScope{})), role: "staff", want: http.StatusForbidden},
		{name: "operator admits staff", handler: RequireOperator(nil)(captureHandler(&capturedScope{})), role: "staff", want: http.StatusOK},
		{name: "operator admits admin", handler: RequireOperator(nil)(captureHandler(&capturedScope{})), role: "admin", want: http.StatusOK},
		{name: "operator rejects tenant", handler: RequireOperator(nil)(captureHandler(&capturedScope{})), role: "tenant", want: http.StatusForbidden},
		{name: "operator rejects anonymous", handler: RequireOperator(nil)(captureHandler(&capturedScope{})), role: "", want: http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(req.Context(), tc.role))
		resp := httptest.NewRecorder()
		tc.handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, resp.Code)
		}
	}
}

func mintTestToken(t *testing.T, role enums.UserRole, branchID *uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID:   uuid.New(),
		Role:     role,
		BranchID: branchID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
