package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pennywise-app/pennywise/internal/platform/httpx"
)

// TaskEnqueuer submits a reconciliation run to the background worker. When
// absent the handler runs the routine inline.
type TaskEnqueuer interface {
	EnqueueReconcile(ctx context.Context) error
}

// Handler exposes the administrative surface: roles, permissions, role
// assignments and the reconciliation trigger.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	reconciler *Reconciler
	enqueuer   TaskEnqueuer
	guard      Guard
	validate   *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, reconciler *Reconciler, enqueuer TaskEnqueuer, guard Guard) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		reconciler: reconciler,
		enqueuer:   enqueuer,
		guard:      guard,
		validate:   validator.New(),
	}
}

// MountRoles registers the role management routes.
func (h *Handler) MountRoles(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(PermRolesRead))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}/users", h.listRoleUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(PermRolesManage))
		r.Post("/", h.createRole)
		r.Put("/{roleID}", h.updateRole)
		r.Delete("/{roleID}", h.deleteRole)
		r.Put("/{roleID}/permissions", h.setRolePermissions)
		r.Post("/{roleID}/permissions/{permissionID}", h.assignPermission)
		r.Delete("/{roleID}/permissions/{permissionID}", h.removePermission)
	})
}

// MountPermissions registers the permission catalog routes.
func (h *Handler) MountPermissions(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(PermPermissionsRead))
		r.Get("/", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(PermPermissionsManage))
		r.Post("/", h.createPermission)
	})
}

// MountAdmin registers the reconciliation trigger behind the coarse admin
// gate.
func (h *Handler) MountAdmin(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAdmin)
		r.Post("/reconcile", h.reconcile)
	})
}

type roleResponse struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	IsSystem      bool    `json:"is_system"`
	PermissionIDs []int64 `json:"permission_ids"`
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type rolePayload struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

type permissionPayload struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

type rolePermissionsPayload struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"required"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), h.actorID(r), payload.Name, payload.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.UpdateRole(r.Context(), h.actorID(r), roleID, payload.Name, payload.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), h.actorID(r), roleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var payload rolePermissionsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), h.actorID(r), roleID, payload.PermissionIDs); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	permID, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.AssignPermissionToRole(r.Context(), h.actorID(r), roleID, permID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	permID, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.RemovePermissionFromRole(r.Context(), h.actorID(r), roleID, permID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoleUsers(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	userIDs, err := h.service.GetUsersByRole(r.Context(), roleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if userIDs == nil {
		userIDs = []int64{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_ids": userIDs})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{ID: p.ID, Name: p.Name, Description: p.Description, Category: p.Category()})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var payload permissionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), h.actorID(r), payload.Name, payload.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionResponse{ID: perm.ID, Name: perm.Name, Description: perm.Description, Category: perm.Category()})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueReconcile(r.Context()); err != nil {
			h.logger.Error("enqueue reconcile", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	if err := h.reconciler.Run(r.Context()); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "done"})
}

func (h *Handler) actorID(r *http.Request) int64 {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p.ID
	}
	return 0
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var inUse *RoleInUseError
	switch {
	case errors.As(err, &inUse):
		httpx.Problem(w, http.StatusConflict, "Role In Use",
			fmt.Sprintf("role is still assigned to users %v", inUse.UserIDs))
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate Name", "")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, ErrUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Authorization Unavailable", "")
	default:
		h.logger.Error("rbac handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toRoleResponse(role Role) roleResponse {
	ids := role.PermissionIDs
	if ids == nil {
		ids = []int64{}
	}
	return roleResponse{
		ID:            role.ID,
		Name:          role.Name,
		Description:   role.Description,
		IsSystem:      role.IsSystem,
		PermissionIDs: ids,
	}
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", param+" must be a positive integer")
		return 0, false
	}
	return id, true
}
