package enums

import "fmt"

// LoanStatus maps to the loan_status_enum enum in Postgres.
type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusPaid      LoanStatus = "paid"
	LoanStatusCancelled LoanStatus = "cancelled"
)

var validLoanStatuses = []LoanStatus{
	LoanStatusActive,
	LoanStatusPaid,
	LoanStatusCancelled,
}

// String implements fmt.Stringer.
func (s LoanStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s LoanStatus) IsValid() bool {
	for _, candidate := range validLoanStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further repayment can change the loan.
// Cancelled is terminal; paid loans can reopen when a repayment is reverted.
func (s LoanStatus) IsTerminal() bool {
	return s == LoanStatusCancelled
}

// ParseLoanStatus converts raw input into a LoanStatus.
func ParseLoanStatus(value string) (LoanStatus, error) {
	for _, candidate := range validLoanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loan status %q", value)
}
