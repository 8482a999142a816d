package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pennywise-app/pennywise/internal/audit"
	"github.com/pennywise-app/pennywise/internal/auth"
	"github.com/pennywise-app/pennywise/internal/budgets"
	"github.com/pennywise-app/pennywise/internal/expenses"
	"github.com/pennywise-app/pennywise/internal/observability"
	"github.com/pennywise-app/pennywise/internal/rbac"
	"github.com/pennywise-app/pennywise/internal/shared"
	"github.com/pennywise-app/pennywise/internal/users"
	"github.com/pennywise-app/pennywise/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	AuthHandler     *auth.Handler
	UsersHandler    *users.Handler
	RBACHandler     *rbac.Handler
	ExpensesHandler *expenses.Handler
	BudgetsHandler  *budgets.Handler
	AuditHandler    *audit.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.RBACHandler != nil {
		r.Route("/roles", params.RBACHandler.MountRoles)
		r.Route("/permissions", params.RBACHandler.MountPermissions)
		r.Route("/admin", params.RBACHandler.MountAdmin)
	}
	if params.ExpensesHandler != nil {
		r.Route("/expenses", params.ExpensesHandler.MountRoutes)
	}
	if params.BudgetsHandler != nil {
		r.Route("/budgets", params.BudgetsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
