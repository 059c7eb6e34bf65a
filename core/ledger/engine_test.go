package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestUnpaidAmount(t *testing.T) {
	a := FeeAssignment{AssignedFee: dec("1000")}
	payments := []Payment{
		{AmountPaid: dec("300")},
		{AmountPaid: dec("200"), Cancelled: true},
	}

	assert.Equal(t, "700", UnpaidAmount(a, payments).String())

	a.AdjustedFee = decimal.NullDecimal{Decimal: dec("400"), Valid: true}
	assert.Equal(t, "100", UnpaidAmount(a, payments).String())

	// adjusted below what was paid: nothing due, never negative
	a.AdjustedFee = decimal.NullDecimal{Decimal: dec("250"), Valid: true}
	assert.True(t, UnpaidAmount(a, payments).IsZero())
	assert.Equal(t, "300", NewBalance(a, payments).Paid.String())
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		fee, paid string
		want      Status
	}{
		{"1000", "0", StatusUnpaid},
		{"1000", "0.01", StatusPartiallyPaid},
		{"1000", "1000", StatusPaid},
		{"1000", "1200", StatusPaid},
		{"0", "0", StatusPaid},
	}
	for _, tt := range tests {
		t.Run(tt.fee+"/"+tt.paid, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(dec(tt.fee), dec(tt.paid)))
		})
	}
}

func TestAllocate(t *testing.T) {
	items := []Outstanding{
		{AssignmentID: "a1", StudentID: "s1", Unpaid: dec("500")},
		{AssignmentID: "a2", StudentID: "s1", Unpaid: dec("0")},
		{AssignmentID: "a3", StudentID: "s1", Unpaid: dec("300")},
	}

	t.Run("in order", func(t *testing.T) {
		allocs, err := Allocate(items, dec("600"))
		require.NoError(t, err)
		require.Len(t, allocs, 2)
		assert.Equal(t, "a1", allocs[0].AssignmentID)
		assert.Equal(t, "500", allocs[0].Amount.String())
		assert.Equal(t, "a3", allocs[1].AssignmentID)
		assert.Equal(t, "100", allocs[1].Amount.String())
	})

	t.Run("stops when exhausted", func(t *testing.T) {
		allocs, err := Allocate(items, dec("120.50"))
		require.NoError(t, err)
		require.Len(t, allocs, 1)
		assert.Equal(t, "120.5", allocs[0].Amount.String())
	})

	t.Run("exact total", func(t *testing.T) {
		allocs, err := Allocate(items, dec("800"))
		require.NoError(t, err)
		sum := decimal.Zero
		for _, a := range allocs {
			sum = sum.Add(a.Amount)
		}
		assert.Equal(t, "800", sum.String())
	})

	t.Run("errors", func(t *testing.T) {
		_, err := Allocate(nil, dec("1"))
		assert.Equal(t, ErrNoAssignments, err)

		_, err = Allocate(items, dec("0"))
		assert.Equal(t, ErrAmountNotPositive, err)

		_, err = Allocate(items, dec("800.01"))
		require.IsType(t, &core.RuleError{}, err)
		assert.Equal(t, "amount exceeds total due (800.00)", err.Error())

		_, err = Allocate(append(items, Outstanding{AssignmentID: "a4", StudentID: "s2", Unpaid: dec("1")}), dec("1"))
		assert.Equal(t, ErrCrossStudent, err)

		_, err = Allocate(append(items, items[0]), dec("1"))
		assert.Equal(t, ErrDuplicateAssignment, err)
	})
}
