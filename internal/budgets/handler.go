package budgets

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pennywise-app/pennywise/internal/platform/httpx"
	"github.com/pennywise-app/pennywise/internal/rbac"
)

const monthLayout = "2006-01"

// Handler manages budget endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    rbac.Guard
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers budget routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuthenticated)
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/summary", h.summary)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireOwnerOrPermission(rbac.PermBudgetsReadAll, h.owner))
		r.Get("/{budgetID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireOwnerOrPermission(rbac.PermBudgetsManageAll, h.owner))
		r.Put("/{budgetID}", h.update)
		r.Delete("/{budgetID}", h.remove)
	})
}

type budgetPayload struct {
	Category   string `json:"category" validate:"required,max=64"`
	Month      string `json:"month" validate:"required"`
	LimitCents int64  `json:"limit_cents" validate:"required,gt=0"`
	Currency   string `json:"currency" validate:"required,len=3,alpha"`
}

type budgetResponse struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	Category   string `json:"category"`
	Month      string `json:"month"`
	LimitCents int64  `json:"limit_cents"`
	Currency   string `json:"currency"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	list, err := h.service.ListByUser(r.Context(), p.ID)
	if err != nil {
		h.logger.Error("list budgets", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]budgetResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toResponse(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	b, ok := h.decode(w, r)
	if !ok {
		return
	}
	b.UserID = p.ID
	created, err := h.service.Create(r.Context(), p.ID, b)
	if err != nil {
		h.logger.Error("create budget", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	month := r.URL.Query().Get("month")
	if month == "" {
		month = time.Now().UTC().Format(monthLayout)
	}
	if _, err := time.Parse(monthLayout, month); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "month must be YYYY-MM")
		return
	}
	rows, err := h.service.Summary(r.Context(), p.ID, month)
	if err != nil {
		h.logger.Error("budget summary", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if rows == nil {
		rows = []SummaryRow{}
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(b))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	current, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	b, ok := h.decode(w, r)
	if !ok {
		return
	}
	b.ID = id
	b.UserID = current.UserID
	updated, err := h.service.Update(r.Context(), h.actorID(r), b)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), h.actorID(r), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) owner(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "budgetID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, rbac.ErrNotFound
	}
	ownerID, err := h.service.OwnerID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, rbac.ErrNotFound
		}
		return 0, err
	}
	return ownerID, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Budget, bool) {
	var payload budgetPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return Budget{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Budget{}, false
	}
	if _, err := time.Parse(monthLayout, payload.Month); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "month must be YYYY-MM")
		return Budget{}, false
	}
	return Budget{
		Category:   payload.Category,
		Month:      payload.Month,
		LimitCents: payload.LimitCents,
		Currency:   payload.Currency,
	}, true
}

func (h *Handler) actorID(r *http.Request) int64 {
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
		return p.ID
	}
	return 0
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
		return
	}
	h.logger.Error("budgets handler", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "budgetID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "budgetID must be a positive integer")
		return 0, false
	}
	return id, true
}

func toResponse(b Budget) budgetResponse {
	return budgetResponse{
		ID:         b.ID,
		UserID:     b.UserID,
		Category:   b.Category,
		Month:      b.Month,
		LimitCents: b.LimitCents,
		Currency:   b.Currency,
	}
}
