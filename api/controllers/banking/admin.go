package banking

import (
	"net/http"

	"github.com/brightfields/schoolbank-backend/api/responses"
	"github.com/brightfields/schoolbank-backend/internal/maintenance"
	"github.com/brightfields/schoolbank-backend/pkg/logger"
)

// PurgeTransactions wipes the transaction log in bounded batches.
func PurgeTransactions(svc *maintenance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		purged, err := svc.PurgeTransactions(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"purged": purged})
	}
}

// ResetBalances zeroes every account balance in bounded batches.
func ResetBalances(svc *maintenance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reset, err := svc.ResetBalances(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"reset": reset})
	}
}
