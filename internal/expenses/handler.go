package expenses

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
	"github.com/pennywise-app/pennywise/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler manages expense endpoints.
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

// MountRoutes registers expense routes. Collection routes only need an
// authenticated principal; item routes run through the ownership guard so
// users reach their own entries without a permission join while
// cross-user access falls back to the catalog permissions.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuthenticated)
		r.Get("/", h.list)
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(rbac.PermExpensesReadAll))
		r.Get("/all", h.listAll)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireOwnerOrPermission(rbac.PermExpensesReadAll, h.owner))
		r.Get("/{expenseID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireOwnerOrPermission(rbac.PermExpensesManageAll, h.owner))
		r.Put("/{expenseID}", h.update)
		r.Delete("/{expenseID}", h.remove)
	})
}

type expensePayload struct {
	Category    string `json:"category" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3,alpha"`
	SpentOn     string `json:"spent_on" validate:"required"`
}

type expenseResponse struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	SpentOn     string `json:"spent_on"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	page, perPage := pageParams(r)
	list, err := h.service.ListByUser(r.Context(), p.ID, perPage, (page-1)*perPage)
	if err != nil {
		h.logger.Error("list expenses", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(list))
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	list, err := h.service.ListAll(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.logger.Error("list all expenses", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(list))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	exp, ok := h.decode(w, r)
	if !ok {
		return
	}
	exp.UserID = p.ID
	created, err := h.service.Create(r.Context(), p.ID, exp)
	if err != nil {
		h.logger.Error("create expense", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	exp, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(exp))
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
	exp, ok := h.decode(w, r)
	if !ok {
		return
	}
	exp.ID = id
	exp.UserID = current.UserID
	updated, err := h.service.Update(r.Context(), h.actorID(r), exp)
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

// owner feeds the ownership guard. Missing expenses surface as
// rbac.ErrNotFound so the guard renders 404 rather than 503.
func (h *Handler) owner(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "expenseID"), 10, 64)
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

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Expense, bool) {
	var payload expensePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return Expense{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Expense{}, false
	}
	spentOn, err := time.Parse(dateLayout, payload.SpentOn)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "spent_on must be YYYY-MM-DD")
		return Expense{}, false
	}
	return Expense{
		Category:    payload.Category,
		Description: payload.Description,
		AmountCents: payload.AmountCents,
		Currency:    payload.Currency,
		SpentOn:     spentOn,
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
	h.logger.Error("expenses handler", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "expenseID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "expenseID must be a positive integer")
		return 0, false
	}
	return id, true
}

func pageParams(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	pg := shared.NewPagination(page, perPage, 0)
	return pg.Page, pg.PerPage
}

func toResponses(list []Expense) []expenseResponse {
	out := make([]expenseResponse, 0, len(list))
	for _, exp := range list {
		out = append(out, toResponse(exp))
	}
	return out
}

func toResponse(exp Expense) expenseResponse {
	return expenseResponse{
		ID:          exp.ID,
		UserID:      exp.UserID,
		Category:    exp.Category,
		Description: exp.Description,
		AmountCents: exp.AmountCents,
		Currency:    exp.Currency,
		SpentOn:     exp.SpentOn.Format(dateLayout),
	}
}
