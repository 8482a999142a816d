package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/pennywise-app/pennywise/internal/app"
	"github.com/pennywise-app/pennywise/internal/auth"
	"github.com/pennywise-app/pennywise/internal/rbac"
	"github.com/pennywise-app/pennywise/internal/shared"
	_ "github.com/pennywise-app/pennywise/testing"
)

type memoryAuthRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (r *memoryAuthRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if r.user == nil || r.user.Email != email {
		return nil, shared.ErrInvalidCredentials
	}
	return r.user, nil
}

func (r *memoryAuthRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	r.sessions[id] = userID
	return nil
}

func (r *memoryAuthRepo) DeleteSession(ctx context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

type singlePrincipal struct{ p rbac.Principal }

func (s singlePrincipal) FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error) {
	if id != s.p.ID {
		return rbac.Principal{}, rbac.ErrNotFound
	}
	return s.p, nil
}

type grantSet struct{ perms map[string]bool }

func (g grantSet) HasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	return g.perms[permission], nil
}

func (g grantSet) HasAnyPermission(ctx context.Context, userID int64, permissions []string) (bool, error) {
	for _, p := range permissions {
		if g.perms[p] {
			return true, nil
		}
	}
	return false, nil
}

func (g grantSet) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	return false, nil
}

func newStack(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := shared.NewSessionManager(client, "pennywise_session", "e2e-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("e2e-csrf-secret")

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo := &memoryAuthRepo{
		user: &auth.User{
			ID:           7,
			Email:        "alice@example.com",
			PasswordHash: string(hash),
			LegacyRole:   rbac.LegacyRoleUser,
			IsActive:     true,
		},
		sessions: map[string]int64{},
	}
	authHandler := auth.NewHandler(logger, auth.NewService(repo), sessions, csrf)

	guard := rbac.Guard{
		Principals: singlePrincipal{p: rbac.Principal{ID: 7, LegacyRole: rbac.LegacyRoleUser}},
		Authorizer: grantSet{perms: map[string]bool{rbac.PermReportsView: true}},
		Logger:     logger,
	}

	r := chi.NewRouter()
	for _, mw := range app.MiddlewareStack(app.MiddlewareConfig{
		Logger:         logger,
		SessionManager: sessions,
		CSRFManager:    csrf,
	}) {
		r.Use(mw)
	}
	r.Route("/auth", authHandler.MountRoutes)
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(rbac.PermReportsView))
		r.Get("/reports", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Post("/reports", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(rbac.PermRolesManage))
		r.Get("/roles", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return server, &http.Client{Jar: jar}
}

func TestLoginGuardedAccessAndLogout(t *testing.T) {
	server, client := newStack(t)

	// Guarded route before login: no session user, so 401.
	resp, err := client.Get(server.URL + "/reports")
	if err != nil {
		t.Fatalf("pre-login request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 before login, got %d", resp.StatusCode)
	}

	// Login is exempt from CSRF since the client holds no token yet.
	body := bytes.NewBufferString(`{"email":"alice@example.com","password":"hunter22"}`)
	resp, err = client.Post(server.URL+"/auth/login", "application/json", body)
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	var loginResp struct {
		UserID    int64  `json:"user_id"`
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from login, got %d", resp.StatusCode)
	}
	if loginResp.UserID != 7 {
		t.Fatalf("expected user 7, got %d", loginResp.UserID)
	}
	if loginResp.CSRFToken == "" {
		t.Fatal("expected a csrf token in the login response")
	}

	// Session cookie now carries the principal through the guard.
	resp, err = client.Get(server.URL + "/reports")
	if err != nil {
		t.Fatalf("guarded request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after login, got %d", resp.StatusCode)
	}

	// Mutations without the CSRF header are refused.
	req, err := http.NewRequest(http.MethodPost, server.URL+"/reports", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("post without token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", resp.StatusCode)
	}

	// Same mutation with the token succeeds.
	req, err = http.NewRequest(http.MethodPost, server.URL+"/reports", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set(shared.CSRFHeader, loginResp.CSRFToken)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("post with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 with csrf token, got %d", resp.StatusCode)
	}

	// Logout destroys the session.
	req, err = http.NewRequest(http.MethodPost, server.URL+"/auth/logout", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set(shared.CSRFHeader, loginResp.CSRFToken)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("logout request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 from logout, got %d", resp.StatusCode)
	}

	resp, err = client.Get(server.URL + "/reports")
	if err != nil {
		t.Fatalf("post-logout request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestGuardDeniesMissingGrant(t *testing.T) {
	server, client := newStack(t)

	body := bytes.NewBufferString(`{"email":"alice@example.com","password":"hunter22"}`)
	resp, err := client.Post(server.URL+"/auth/login", "application/json", body)
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from login, got %d", resp.StatusCode)
	}

	// The stack only grants reports:view; any other permission is denied.
	resp, err = client.Get(server.URL + "/roles")
	if err != nil {
		t.Fatalf("guarded request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for missing grant, got %d", resp.StatusCode)
	}
}
