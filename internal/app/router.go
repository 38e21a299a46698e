package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/bizportal/portal/internal/audit"
	"github.com/bizportal/portal/internal/auth"
	"github.com/bizportal/portal/internal/contracts"
	"github.com/bizportal/portal/internal/dashboard"
	"github.com/bizportal/portal/internal/invoicing"
	"github.com/bizportal/portal/internal/observability"
	"github.com/bizportal/portal/internal/onboarding"
	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/recruiting"
	"github.com/bizportal/portal/internal/rfp"
	"github.com/bizportal/portal/internal/sales"
	"github.com/bizportal/portal/internal/shiftreports"
	"github.com/bizportal/portal/internal/users"
	"github.com/bizportal/portal/jobs"
)

// Check reports whether a backing service is reachable.
type Check func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger    *slog.Logger
	Config    *Config
	Metrics   *observability.Metrics
	Principal auth.PrincipalResolver
	RBAC      rbac.Middleware

	// Ready holds named dependency checks run by /readyz.
	Ready map[string]Check

	AuthHandler         *auth.Handler
	UsersHandler        *users.Handler
	AccessHandler       *rbac.Handler
	SalesHandler        *sales.Handler
	RFPHandler          *rfp.Handler
	ContractsHandler    *contracts.Handler
	RecruitingHandler   *recruiting.Handler
	OnboardingHandler   *onboarding.Handler
	InvoicingHandler    *invoicing.Handler
	ShiftReportsHandler *shiftreports.Handler
	DashboardHandler    *dashboard.Handler
	AuditHandler        *audit.Handler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Logger, params.Ready))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(params.Principal))

			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.AccessHandler != nil {
				r.With(params.RBAC.RequireAny(rbac.PermUsersManage)).Route("/roles", params.AccessHandler.MountRoles)
				r.With(params.RBAC.RequireAny(rbac.PermUsersManage)).Route("/permissions", params.AccessHandler.MountPermissions)
			}
			if params.SalesHandler != nil {
				r.Route("/sales", params.SalesHandler.MountRoutes)
			}
			if params.RFPHandler != nil {
				r.Route("/rfps", params.RFPHandler.MountRoutes)
			}
			if params.ContractsHandler != nil {
				r.Route("/contracts", params.ContractsHandler.MountRoutes)
			}
			r.Route("/hr", func(r chi.Router) {
				if params.RecruitingHandler != nil {
					r.Route("/requisitions", params.RecruitingHandler.MountRoutes)
				}
				if params.OnboardingHandler != nil {
					r.Route("/new-hires", params.OnboardingHandler.MountNewHires)
					r.Route("/checklist-items", params.OnboardingHandler.MountChecklistItems)
				}
			})
			if params.InvoicingHandler != nil {
				r.Route("/invoices", params.InvoicingHandler.MountRoutes)
			}
			if params.ShiftReportsHandler != nil {
				r.Route("/shift-reports", params.ShiftReportsHandler.MountRoutes)
			}
			if params.DashboardHandler != nil {
				r.Route("/dashboard", params.DashboardHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.With(params.RBAC.RequireAny(rbac.PermJobsRead)).Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}

const readyTimeout = 3 * time.Second

func readiness(logger *slog.Logger, checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		var (
			mu      sync.Mutex
			failed  bool
			results = make(map[string]string, len(checks))
		)
		var g errgroup.Group
		for name, check := range checks {
			g.Go(func() error {
				err := check(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed = true
					results[name] = "unavailable"
					logger.Warn("readiness check failed", slog.String("dependency", name), slog.Any("error", err))
					return nil
				}
				results[name] = "ok"
				return nil
			})
		}
		_ = g.Wait()

		if failed {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": results})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": results})
	}
}
