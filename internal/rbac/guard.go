package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/pennywise-app/pennywise/internal/platform/httpx"
	"github.com/pennywise-app/pennywise/internal/shared"
)

// Authorizer answers permission and role membership questions for a user.
// *Service satisfies it; tests substitute fakes.
type Authorizer interface {
	HasPermission(ctx context.Context, userID int64, permission string) (bool, error)
	HasAnyPermission(ctx context.Context, userID int64, permissions []string) (bool, error)
	HasRole(ctx context.Context, userID int64, roleName string) (bool, error)
}

// PrincipalStore resolves a session user ID to a live principal. It must
// return ErrNotFound for a missing or deactivated user so the guard can
// treat the session as stale rather than the store as down.
type PrincipalStore interface {
	FindPrincipal(ctx context.Context, id int64) (Principal, error)
}

// DecisionObserver receives the outcome of every guard decision.
type DecisionObserver interface {
	AuthzDecision(outcome string)
}

// Guard decision outcomes reported to the observer.
const (
	DecisionPermitted       = "permitted"
	DecisionDenied          = "denied"
	DecisionUnauthenticated = "unauthenticated"
	DecisionUnavailable     = "unavailable"
)

// OwnerResolver extracts the owner ID of the resource addressed by the
// request, typically with one lookup on the resource repository.
type OwnerResolver func(r *http.Request) (int64, error)

// Guard wires the request-gating predicates used ahead of every handler.
// Each guard resolves the principal explicitly and runs to completion
// before the gated handler; there is no ambient current-user state.
type Guard struct {
	Principals PrincipalStore
	Authorizer Authorizer
	Logger     *slog.Logger
	Observer   DecisionObserver
}

// RequireAuthenticated admits any request with a resolvable principal and
// stores it in the context. A session pointing at a missing user is treated
// as stale (401); a failing principal store is an outage (503). The two
// must never share semantics or monitoring cannot tell a logout from a
// down database.
func (g Guard) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.principal(r)
		if err != nil {
			g.deny(w, err, "")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// RequirePermission admits authenticated principals holding the named
// permission.
func (g Guard) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := g.principal(r)
			if err != nil {
				g.deny(w, err, "")
				return
			}
			ok, err := g.Authorizer.HasPermission(r.Context(), p.ID, permission)
			if err != nil {
				g.deny(w, fmt.Errorf("%w: %v", ErrUnavailable, err), "")
				return
			}
			if !ok {
				g.deny(w, ErrForbidden, permission)
				return
			}
			g.observe(DecisionPermitted)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAnyPermission admits principals holding at least one of the named
// permissions. The denial names the full candidate list, not which checks
// failed, so callers cannot enumerate held permissions by probing.
func (g Guard) RequireAnyPermission(permissions ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(permissions)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := g.principal(r)
			if err != nil {
				g.deny(w, err, "")
				return
			}
			ok, err := g.Authorizer.HasAnyPermission(r.Context(), p.ID, required)
			if err != nil {
				g.deny(w, fmt.Errorf("%w: %v", ErrUnavailable, err), "")
				return
			}
			if !ok {
				g.deny(w, ErrForbidden, strings.Join(required, ", "))
				return
			}
			g.observe(DecisionPermitted)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole admits principals holding the named role regardless of its
// permission set.
func (g Guard) RequireRole(roleName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := g.principal(r)
			if err != nil {
				g.deny(w, err, "")
				return
			}
			ok, err := g.Authorizer.HasRole(r.Context(), p.ID, roleName)
			if err != nil {
				g.deny(w, fmt.Errorf("%w: %v", ErrUnavailable, err), "")
				return
			}
			if !ok {
				g.deny(w, ErrForbidden, "role "+roleName)
				return
			}
			g.observe(DecisionPermitted)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin is the coarse backward-compatible admin gate: the legacy
// role flag is honored directly, with the RBAC admin role as fallback for
// principals already migrated off the flag.
func (g Guard) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.principal(r)
		if err != nil {
			g.deny(w, err, "")
			return
		}
		if !p.IsLegacyAdmin() {
			ok, err := g.Authorizer.HasRole(r.Context(), p.ID, RoleAdmin)
			if err != nil {
				g.deny(w, fmt.Errorf("%w: %v", ErrUnavailable, err), "")
				return
			}
			if !ok {
				g.deny(w, ErrForbidden, "role "+RoleAdmin)
				return
			}
		}
		g.observe(DecisionPermitted)
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// RequireOwnerOrPermission admits the resource owner immediately, with no
// permission join on the common self-service path, and falls back to the
// single-permission check for cross-user access.
func (g Guard) RequireOwnerOrPermission(permission string, owner OwnerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := g.principal(r)
			if err != nil {
				g.deny(w, err, "")
				return
			}
			ownerID, err := owner(r)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					httpx.Problem(w, http.StatusNotFound, "Not Found", "")
					return
				}
				g.deny(w, fmt.Errorf("%w: %v", ErrUnavailable, err), "")
				return
			}
			if ownerID == p.ID {
				g.observe(DecisionPermitted)
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
				return
			}
			ok, err := g.Authorizer.HasPermission(r.Context(), p.ID, permission)
			if err != nil {
				g.deny(w, fmt.Errorf("%w: %v", ErrUnavailable, err), "")
				return
			}
			if !ok {
				g.deny(w, ErrForbidden, permission)
				return
			}
			g.observe(DecisionPermitted)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// principal resolves the requesting principal from the session and the
// principal store.
func (g Guard) principal(r *http.Request) (Principal, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return Principal{}, ErrUnauthenticated
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return Principal{}, ErrUnauthenticated
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if g.Logger != nil {
			g.Logger.Warn("guard: malformed session user id", slog.String("value", raw))
		}
		return Principal{}, ErrUnauthenticated
	}
	p, err := g.Principals.FindPrincipal(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Stale session, not an outage.
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return p, nil
}

// deny writes the structured refusal. Denials are always a positive result
// of a completed check; infrastructure failures take the 503 path instead.
func (g Guard) deny(w http.ResponseWriter, err error, required string) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		g.observe(DecisionUnauthenticated)
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
	case errors.Is(err, ErrUnavailable):
		g.observe(DecisionUnavailable)
		if g.Logger != nil {
			g.Logger.Error("guard: authorization check failed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusServiceUnavailable, "Authorization Unavailable", "")
	default:
		g.observe(DecisionDenied)
		detail := ""
		if required != "" {
			detail = "requires " + required
		}
		httpx.Problem(w, http.StatusForbidden, "Forbidden", detail)
	}
}

func (g Guard) observe(outcome string) {
	if g.Observer != nil {
		g.Observer.AuthzDecision(outcome)
	}
}
