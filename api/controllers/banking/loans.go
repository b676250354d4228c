package banking

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brightfields/schoolbank-backend/api/responses"
	"github.com/brightfields/schoolbank-backend/api/validators"
	"github.com/brightfields/schoolbank-backend/internal/ledger"
	"github.com/brightfields/schoolbank-backend/internal/loans"
	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
	"github.com/brightfields/schoolbank-backend/pkg/logger"
)

type createLoanRequest struct {
	PupilID       string  `json:"pupil_id" validate:"required,uuid"`
	Amount        int64   `json:"amount" validate:"required,gt=0"`
	Purpose       string  `json:"purpose" validate:"required,min=1,max=255"`
	RepaymentDate string  `json:"repayment_date" validate:"required"`
	AcademicYear  *string `json:"academic_year,omitempty" validate:"omitempty,max=16"`
	Term          *string `json:"term,omitempty" validate:"omitempty,max=32"`
}

// CreateLoan disburses a loan into the pupil's account.
func CreateLoan(svc *loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLoanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pupilID, err := uuid.Parse(req.PupilID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pupil id"))
			return
		}
		repaymentDate, err := time.Parse(time.RFC3339, req.RepaymentDate)
		if err != nil {
			// date-only input is accepted for convenience
			repaymentDate, err = time.Parse("2006-01-02", req.RepaymentDate)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid repayment date"))
				return
			}
		}

		loan, err := svc.Create(r.Context(), loans.CreateInput{
			PupilID:       pupilID,
			Amount:        req.Amount,
			Purpose:       req.Purpose,
			RepaymentDate: repaymentDate.UTC(),
			AcademicYear:  req.AcademicYear,
			Term:          req.Term,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, loan)
	}
}

// ListLoans returns the pupil's loans; ?active=true narrows to open ones.
func ListLoans(svc *loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pupilID, err := parseUUIDParam(r, "pupilID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var list any
		if r.URL.Query().Get("active") == "true" {
			list, err = svc.ListActive(r.Context(), pupilID)
		} else {
			list, err = svc.List(r.Context(), pupilID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// CancelLoan settles an active loan from the account balance.
func CancelLoan(svc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := parseUUIDParam(r, "loanID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := svc.CancelLoan(r.Context(), loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loan)
	}
}
