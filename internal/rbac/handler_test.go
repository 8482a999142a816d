package rbac

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-app/pennywise/internal/shared"
)

type stubEnqueuer struct {
	calls int
	err   error
}

func (e *stubEnqueuer) EnqueueReconcile(ctx context.Context) error {
	e.calls++
	return e.err
}

func newTestRouter(t *testing.T, repo *memoryRepo, enqueuer TaskEnqueuer) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, nil, logger)
	guard := Guard{
		Principals: &fakePrincipalStore{principals: map[int64]Principal{
			1: {ID: 1, LegacyRole: LegacyRoleAdmin},
			7: {ID: 7, LegacyRole: LegacyRoleUser},
		}},
		Authorizer: svc,
		Logger:     logger,
	}
	h := NewHandler(logger, svc, NewReconciler(repo, logger), enqueuer, guard)

	r := chi.NewRouter()
	r.Route("/roles", h.MountRoles)
	r.Route("/permissions", h.MountPermissions)
	r.Route("/admin", h.MountAdmin)
	return r
}

func adminRepo(t *testing.T) *memoryRepo {
	t.Helper()
	repo := seededRepo(t)
	admin, err := repo.GetRoleByName(context.Background(), RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, repo.AssignUserRole(context.Background(), 1, admin.ID))
	return repo
}

func doJSON(t *testing.T, router http.Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	sess := &shared.Session{}
	if userID != "" {
		sess.SetUser(userID)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateRoleAndDuplicate(t *testing.T) {
	repo := adminRepo(t)
	router := newTestRouter(t, repo, nil)

	rec := doJSON(t, router, http.MethodPost, "/roles", `{"name":"auditor","description":"read only"}`, "1")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"auditor"`)

	rec = doJSON(t, router, http.MethodPost, "/roles", `{"name":"Auditor"}`, "1")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Duplicate Name")
}

func TestHandlerDeleteRoleInUse(t *testing.T) {
	repo := adminRepo(t)
	ctx := context.Background()
	role, err := repo.CreateRole(ctx, "auditor", "", false)
	require.NoError(t, err)
	require.NoError(t, repo.AssignUserRole(ctx, 7, role.ID))
	router := newTestRouter(t, repo, nil)

	rec := doJSON(t, router, http.MethodDelete, "/roles/"+itoa64(role.ID), "", "1")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Role In Use")
	require.Contains(t, rec.Body.String(), "7")
}

func TestHandlerUpdateMissingRole(t *testing.T) {
	repo := adminRepo(t)
	router := newTestRouter(t, repo, nil)

	rec := doJSON(t, router, http.MethodPut, "/roles/9999", `{"name":"ghost"}`, "1")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRolesForbiddenWithoutGrant(t *testing.T) {
	repo := adminRepo(t)
	router := newTestRouter(t, repo, nil)

	rec := doJSON(t, router, http.MethodGet, "/roles", "", "7")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerRolesUnauthenticated(t *testing.T) {
	repo := adminRepo(t)
	router := newTestRouter(t, repo, nil)

	rec := doJSON(t, router, http.MethodGet, "/roles", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerSetRolePermissions(t *testing.T) {
	repo := adminRepo(t)
	ctx := context.Background()
	role, err := repo.CreateRole(ctx, "auditor", "", false)
	require.NoError(t, err)
	perms, err := repo.ListPermissions(ctx)
	require.NoError(t, err)
	router := newTestRouter(t, repo, nil)

	body := `{"permission_ids":[` + itoa64(perms[0].ID) + `]}`
	rec := doJSON(t, router, http.MethodPut, "/roles/"+itoa64(role.ID)+"/permissions", body, "1")
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.NoError(t, repo.AssignUserRole(ctx, 7, role.ID))
	names, err := repo.UserPermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{perms[0].Name}, names)
}

func TestHandlerReconcileInline(t *testing.T) {
	repo := adminRepo(t)
	router := newTestRouter(t, repo, nil)

	rec := doJSON(t, router, http.MethodPost, "/admin/reconcile", "", "1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"done"`)
}

func TestHandlerReconcileEnqueued(t *testing.T) {
	repo := adminRepo(t)
	enq := &stubEnqueuer{}
	router := newTestRouter(t, repo, enq)

	rec := doJSON(t, router, http.MethodPost, "/admin/reconcile", "", "1")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"queued"`)
	require.Equal(t, 1, enq.calls)
}

func TestHandlerReconcileQueueDown(t *testing.T) {
	repo := adminRepo(t)
	enq := &stubEnqueuer{err: errors.New("redis down")}
	router := newTestRouter(t, repo, enq)

	rec := doJSON(t, router, http.MethodPost, "/admin/reconcile", "", "1")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerReconcileNonAdmin(t *testing.T) {
	repo := adminRepo(t)
	router := newTestRouter(t, repo, nil)

	rec := doJSON(t, router, http.MethodPost, "/admin/reconcile", "", "7")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerListPermissionsIncludesCategory(t *testing.T) {
	repo := adminRepo(t)
	router := newTestRouter(t, repo, nil)

	rec := doJSON(t, router, http.MethodGet, "/permissions", "", "1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"category":"roles"`)
}

func itoa64(n int64) string {
	return strconv.FormatInt(n, 10)
}
