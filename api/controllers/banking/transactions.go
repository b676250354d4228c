package banking

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brightfields/schoolbank-backend/api/responses"
	"github.com/brightfields/schoolbank-backend/api/validators"
	"github.com/brightfields/schoolbank-backend/internal/ledger"
	"github.com/brightfields/schoolbank-backend/pkg/enums"
	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
	"github.com/brightfields/schoolbank-backend/pkg/logger"
)

type createTransactionRequest struct {
	PupilID         string  `json:"pupil_id" validate:"required,uuid"`
	Type            string  `json:"type" validate:"required,oneof=deposit withdrawal loan_disbursement loan_repayment"`
	Amount          int64   `json:"amount" validate:"required,gt=0"`
	Description     string  `json:"description,omitempty" validate:"omitempty,max=255"`
	TransactionDate *string `json:"transaction_date,omitempty"`
	AcademicYear    *string `json:"academic_year,omitempty" validate:"omitempty,max=16"`
	Term            *string `json:"term,omitempty" validate:"omitempty,max=32"`
}

// CreateTransaction records a ledger operation. Deposits run loan allocation.
func CreateTransaction(svc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTransactionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pupilID, err := uuid.Parse(req.PupilID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pupil id"))
			return
		}
		txType, err := enums.ParseTransactionType(req.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction type"))
			return
		}

		input := ledger.RecordInput{
			PupilID:      pupilID,
			Type:         txType,
			Amount:       req.Amount,
			Description:  req.Description,
			AcademicYear: req.AcademicYear,
			Term:         req.Term,
		}
		if req.TransactionDate != nil {
			when, err := time.Parse(time.RFC3339, *req.TransactionDate)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction date"))
				return
			}
			input.TransactionDate = &when
		}

		result, err := svc.Record(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListAccountTransactions returns an account's entries in ledger order.
func ListAccountTransactions(svc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := parseUUIDParam(r, "accountID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txns, err := svc.ListByAccount(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txns)
	}
}

// ListPupilTransactions returns a pupil's entries in ledger order.
func ListPupilTransactions(svc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pupilID, err := parseUUIDParam(r, "pupilID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txns, err := svc.ListByPupil(r.Context(), pupilID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txns)
	}
}

// RevertTransaction undoes a single ledger entry.
func RevertTransaction(svc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transactionID, err := parseUUIDParam(r, "transactionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Revert(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
