package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
)

// EffectiveFee is the adjusted fee when set, the assigned fee otherwise.
func EffectiveFee(a FeeAssignment) decimal.Decimal {
	if a.AdjustedFee.Valid {
		return a.AdjustedFee.Decimal
	}
	return a.AssignedFee
}

// PaidTotal sums the amounts of the payments that are not cancelled.
func PaidTotal(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if !p.Cancelled {
			total = total.Add(p.AmountPaid)
		}
	}
	return total
}

// UnpaidAmount is max(0, effective fee - paid total). It is never negative,
// even when the fee was adjusted below what was already paid.
func UnpaidAmount(a FeeAssignment, payments []Payment) decimal.Decimal {
	due := EffectiveFee(a).Sub(PaidTotal(payments))
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// DeriveStatus applies the status rule. A zero fee is Paid since nothing is owed.
func DeriveStatus(fee, paid decimal.Decimal) Status {
	switch {
	case paid.GreaterThanOrEqual(fee):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}

// NewBalance computes the derived totals of an assignment.
func NewBalance(a FeeAssignment, payments []Payment) Balance {
	return Balance{
		Assignment:   a,
		EffectiveFee: EffectiveFee(a),
		Paid:         PaidTotal(payments),
		Due:          UnpaidAmount(a, payments),
	}
}

// Outstanding is what an assignment still owes, as input to Allocate.
type Outstanding struct {
	AssignmentID string
	StudentID    string
	Unpaid       decimal.Decimal
}

// Allocation is the share of a payment applied to one assignment.
type Allocation struct {
	AssignmentID string
	Amount       decimal.Decimal
}

var (
	ErrNoAssignments       = core.NewValidationError(nil, core.FieldError{Field: "fee_assignment_ids", Error: "at least one fee assignment is required"})
	ErrDuplicateAssignment = core.NewValidationError(nil, core.FieldError{Field: "fee_assignment_ids", Error: "fee assignments must be unique"})
	ErrAmountNotPositive   = core.NewValidationError(nil, core.FieldError{Field: "amount", Error: "amount must be greater than zero"})
	ErrCrossStudent        = core.NewRuleError("all fee assignments must belong to the same student")
)

// Allocate spreads total over the assignments in the given order, giving each at most its unpaid amount
// and skipping those with nothing due. The allocated amounts always add up to total exactly.
// Nothing is allocated when total exceeds the sum of unpaid amounts.
func Allocate(items []Outstanding, total decimal.Decimal) ([]Allocation, error) {
	if len(items) == 0 {
		return nil, ErrNoAssignments
	}
	if !total.IsPositive() {
		return nil, ErrAmountNotPositive
	}

	seen := make(map[string]bool, len(items))
	totalDue := decimal.Zero
	for _, it := range items {
		if seen[it.AssignmentID] {
			return nil, ErrDuplicateAssignment
		}
		seen[it.AssignmentID] = true
		if it.StudentID != items[0].StudentID {
			return nil, ErrCrossStudent
		}
		if it.Unpaid.IsPositive() {
			totalDue = totalDue.Add(it.Unpaid)
		}
	}
	if total.GreaterThan(totalDue) {
		return nil, core.NewRuleError(fmt.Sprintf("amount exceeds total due (%s)", totalDue.StringFixed(core.MoneyPlaces)))
	}

	remaining := total
	allocs := make([]Allocation, 0, len(items))
	for _, it := range items {
		if !remaining.IsPositive() {
			break
		}
		if !it.Unpaid.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, it.Unpaid)
		allocs = append(allocs, Allocation{AssignmentID: it.AssignmentID, Amount: take})
		remaining = remaining.Sub(take)
	}
	return allocs, nil
}
