package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brightfields/schoolbank-backend/api/controllers"
	banking "github.com/brightfields/schoolbank-backend/api/controllers/banking"
	"github.com/brightfields/schoolbank-backend/api/middleware"
	"github.com/brightfields/schoolbank-backend/internal/accounts"
	"github.com/brightfields/schoolbank-backend/internal/ledger"
	"github.com/brightfields/schoolbank-backend/internal/loans"
	"github.com/brightfields/schoolbank-backend/internal/maintenance"
	"github.com/brightfields/schoolbank-backend/internal/overdue"
	"github.com/brightfields/schoolbank-backend/pkg/config"
	"github.com/brightfields/schoolbank-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          pinger
	Redis       pinger
	Accounts    *accounts.Service
	Loans       *loans.Service
	Ledger      *ledger.Service
	Overdue     *overdue.Collector
	Maintenance *maintenance.Service
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
	)

	r.Get("/healthz", controllers.Healthz(deps.Config, deps.Logger, deps.DB, deps.Redis))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", banking.CreateAccount(deps.Accounts, deps.Logger))
			r.Post("/{accountID}/deactivate", banking.DeactivateAccount(deps.Accounts, deps.Logger))
			r.Post("/{accountID}/reactivate", banking.ReactivateAccount(deps.Accounts, deps.Logger))
			r.Get("/{accountID}/transactions", banking.ListAccountTransactions(deps.Ledger, deps.Logger))
		})

		r.Route("/pupils/{pupilID}", func(r chi.Router) {
			r.Get("/account", banking.GetAccount(deps.Accounts, deps.Logger))
			r.Get("/account/summary", banking.GetSummary(deps.Accounts, deps.Logger))
			r.Get("/loans", banking.ListLoans(deps.Loans, deps.Logger))
			r.Get("/transactions", banking.ListPupilTransactions(deps.Ledger, deps.Logger))
			r.Post("/overdue/process", banking.ProcessOverdue(deps.Overdue, deps.Logger))
		})

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", banking.CreateLoan(deps.Loans, deps.Logger))
			r.Post("/{loanID}/cancel", banking.CancelLoan(deps.Ledger, deps.Logger))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", banking.CreateTransaction(deps.Ledger, deps.Logger))
			r.Post("/{transactionID}/revert", banking.RevertTransaction(deps.Ledger, deps.Logger))
		})

		r.Post("/overdue/process-all", banking.ProcessAllOverdue(deps.Overdue, deps.Logger))

		r.Route("/admin", func(r chi.Router) {
			r.Post("/transactions/purge", banking.PurgeTransactions(deps.Maintenance, deps.Logger))
			r.Post("/accounts/reset-balances", banking.ResetBalances(deps.Maintenance, deps.Logger))
		})
	})

	return r
}
