package banking

import (
	"net/http"

	"github.com/brightfields/schoolbank-backend/api/responses"
	"github.com/brightfields/schoolbank-backend/internal/overdue"
	"github.com/brightfields/schoolbank-backend/pkg/logger"
)

// ProcessOverdue sweeps one pupil's overdue loans.
func ProcessOverdue(collector *overdue.Collector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pupilID, err := parseUUIDParam(r, "pupilID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := collector.Process(r.Context(), pupilID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ProcessAllOverdue sweeps every pupil holding overdue loans.
func ProcessAllOverdue(collector *overdue.Collector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := collector.ProcessAll(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
