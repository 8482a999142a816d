package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pennywise-app/pennywise/internal/platform/httpx"
	"github.com/pennywise-app/pennywise/internal/rbac"
)

// Handler manages user administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     *rbac.Service
	guard    rbac.Guard
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbacService *rbac.Service, guard rbac.Guard) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		rbac:     rbacService,
		guard:    guard,
		validate: validator.New(),
	}
}

// MountRoutes registers user administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(rbac.PermUsersRead))
		r.Get("/", h.listUsers)
		r.Get("/{userID}/roles", h.listUserRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(rbac.PermUsersManageRoles))
		r.Post("/{userID}/roles", h.assignRole)
		r.Delete("/{userID}/roles/{roleID}", h.removeRole)
	})
}

type userResponse struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	LegacyRole string `json:"legacy_role"`
	IsActive   bool   `json:"is_active"`
}

type assignRolePayload struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, userResponse{ID: u.ID, Email: u.Email, Name: u.Name, LegacyRole: u.LegacyRole, IsActive: u.IsActive})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	if _, err := h.service.GetUser(r.Context(), userID); err != nil {
		h.respondError(w, err)
		return
	}
	roles, err := h.rbac.GetUserRoles(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	type roleResponse struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse{ID: role.ID, Name: role.Name})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	var payload assignRolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.rbac.AssignRoleToUser(r.Context(), h.actorID(r), userID, payload.RoleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.rbac.RemoveRoleFromUser(r.Context(), h.actorID(r), userID, roleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) actorID(r *http.Request) int64 {
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
		return p.ID
	}
	return 0
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	default:
		h.logger.Error("users handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", param+" must be a positive integer")
		return 0, false
	}
	return id, true
}
