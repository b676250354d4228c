package enums

import "fmt"

// TransactionType maps to the transaction_type_enum enum in Postgres.
type TransactionType string

const (
	TransactionTypeDeposit          TransactionType = "deposit"
	TransactionTypeWithdrawal       TransactionType = "withdrawal"
	TransactionTypeLoanDisbursement TransactionType = "loan_disbursement"
	TransactionTypeLoanRepayment    TransactionType = "loan_repayment"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypeWithdrawal,
	TransactionTypeLoanDisbursement,
	TransactionTypeLoanRepayment,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical transaction type enum.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsCredit reports whether the type increases the account balance.
// Deposits and loan disbursements credit; withdrawals and loan repayments debit.
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeLoanDisbursement
}

// Inverse returns the type used to record a reversal of this type.
func (t TransactionType) Inverse() TransactionType {
	switch t {
	case TransactionTypeDeposit:
		return TransactionTypeWithdrawal
	case TransactionTypeWithdrawal:
		return TransactionTypeDeposit
	case TransactionTypeLoanDisbursement:
		return TransactionTypeLoanRepayment
	case TransactionTypeLoanRepayment:
		return TransactionTypeLoanDisbursement
	}
	return t
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
