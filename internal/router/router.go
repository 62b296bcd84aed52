package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/GregMSThompson/finance-sync/internal/handlers"
	"github.com/GregMSThompson/finance-sync/internal/middleware"
)

func NewRouter(deps *handlers.Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewLoggerMiddleware(deps.Log).LoggerMiddleware)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", healthz)

	ush := handlers.NewUserHandlers(deps)
	cnh := handlers.NewConnectionHandlers(deps)
	ach := handlers.NewAccountHandlers(deps)
	txh := handlers.NewTransactionHandlers(deps)
	cth := handlers.NewCategoryHandlers(deps)
	rlh := handlers.NewRuleHandlers(deps)
	sth := handlers.NewSettingsHandlers(deps)

	auth := middleware.NewMiddleware(deps.Firebase)
	r.Group(func(r chi.Router) {
		r.Use(auth.FirebaseAuth)

		r.Mount("/users", ush.UserRoutes())
		r.Mount("/providers", cnh.ProviderRoutes())
		r.Mount("/connections", cnh.ConnectionRoutes())
		r.Mount("/accounts", ach.AccountRoutes())
		r.Mount("/transactions", txh.TransactionRoutes())
		r.Mount("/categories", cth.CategoryRoutes())
		r.Mount("/rules", rlh.RuleRoutes())
		r.Mount("/admin", sth.AdminRoutes())
	})
	return r
}

// NewHealthRouter serves only the liveness probe, for processes without an API.
func NewHealthRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", healthz)
	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
