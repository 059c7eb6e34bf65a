package ledger_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/student"
	dummydb "github.com/trezcool/feeledger/storage/database/dummy"
	"github.com/trezcool/feeledger/tests"
)

type ledgerFixture struct {
	svc     *ledger.Service
	repo    ledger.Repository
	stdRepo student.Repository
}

func newLedgerFixture(t *testing.T) ledgerFixture {
	t.Helper()
	validate, _ := testutil.NewValidator()
	db := dummydb.Open()
	repo := dummydb.NewLedgerRepository(db)
	return ledgerFixture{
		svc:     ledger.NewService(repo, validate, ledger.DefaultReceiptSequence),
		repo:    repo,
		stdRepo: dummydb.NewStudentRepository(db),
	}
}

func cash(amount string, ids ...string) ledger.NewPayment {
	return ledger.NewPayment{
		FeeAssignmentIDs: ids,
		PaymentDate:      core.NewDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		Method:           ledger.MethodCash,
		Amount:           testutil.Money(amount),
	}
}

func (f ledgerFixture) status(t *testing.T, id string) ledger.Status {
	t.Helper()
	a, err := f.repo.GetAssignment(context.Background(), id)
	require.NoError(t, err)
	return a.Status
}

// failingStatusRepo fails the failAt-th status write of every transaction.
type failingStatusRepo struct {
	ledger.Repository
	failAt int
	writes *int
}

func (repo failingStatusRepo) Atomic(ctx context.Context, fn func(repo ledger.Repository) error) error {
	var writes int
	return repo.Repository.Atomic(ctx, func(tx ledger.Repository) error {
		return fn(failingStatusRepo{Repository: tx, failAt: repo.failAt, writes: &writes})
	})
}

func (repo failingStatusRepo) SetAssignmentStatus(ctx context.Context, id string, status ledger.Status, at time.Time) error {
	*repo.writes++
	if *repo.writes == repo.failAt {
		return errors.New("connection reset by peer")
	}
	return repo.Repository.SetAssignmentStatus(ctx, id, status, at)
}

func TestService_AssignGrade(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	testutil.CreateStudent(t, f.stdRepo, "A1", "One", "5", "5s1", true)
	testutil.CreateStudent(t, f.stdRepo, "A2", "Two", "5", "5s2", true)
	testutil.CreateStudent(t, f.stdRepo, "A3", "Gone", "5", "5s2", false)

	res, err := f.svc.AssignGrade(ctx, ledger.AssignGrade{AcademicYear: "2024", Grade: "5", AssignedFee: testutil.Money("1000")})
	require.NoError(t, err)
	assert.Equal(t, ledger.AssignGradeResult{Created: 2}, res)

	res, err = f.svc.AssignGrade(ctx, ledger.AssignGrade{AcademicYear: "2024", Grade: "5", AssignedFee: testutil.Money("1200")})
	require.NoError(t, err)
	assert.Equal(t, ledger.AssignGradeResult{Skipped: 2}, res)

	_, err = f.svc.AssignGrade(ctx, ledger.AssignGrade{AcademicYear: "2024", Grade: "9", AssignedFee: testutil.Money("1000")})
	assert.IsType(t, &core.RuleError{}, err)

	balances, err := f.svc.Balances(ctx, ledger.AssignmentFilter{Grade: "5"})
	require.NoError(t, err)
	require.Len(t, balances, 2)
	for _, b := range balances {
		assert.Equal(t, "1000", b.Due.String())
		assert.Equal(t, ledger.StatusUnpaid, b.Assignment.Status)
	}
}

func TestService_RecordPayment(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	s := testutil.CreateStudent(t, f.stdRepo, "A1", "One", "5", "5s1", true)
	other := testutil.CreateStudent(t, f.stdRepo, "A2", "Two", "5", "5s1", true)
	a2023 := testutil.CreateAssignment(t, f.repo, s, "2023", "500")
	a2024 := testutil.CreateAssignment(t, f.repo, s, "2024", "300")
	aOther := testutil.CreateAssignment(t, f.repo, other, "2024", "300")

	t.Run("rejected payments store nothing", func(t *testing.T) {
		_, err := f.svc.RecordPayment(ctx, cash("900", a2023.ID, a2024.ID))
		assert.IsType(t, &core.RuleError{}, err)
		_, err = f.svc.RecordPayment(ctx, cash("100", a2023.ID, aOther.ID))
		assert.Equal(t, ledger.ErrCrossStudent, err)

		payments, err := f.svc.QueryPayments(ctx, ledger.PaymentFilter{})
		require.NoError(t, err)
		assert.Empty(t, payments)
	})

	t.Run("a failure after the first writes rolls everything back", func(t *testing.T) {
		validate, _ := testutil.NewValidator()
		failing := ledger.NewService(failingStatusRepo{Repository: f.repo, failAt: 2}, validate, ledger.DefaultReceiptSequence)

		_, err := failing.RecordPayment(ctx, cash("600", a2023.ID, a2024.ID))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset by peer")

		payments, err := f.svc.QueryPayments(ctx, ledger.PaymentFilter{})
		require.NoError(t, err)
		assert.Empty(t, payments)
		assert.Equal(t, ledger.StatusUnpaid, f.status(t, a2023.ID))
		assert.Equal(t, ledger.StatusUnpaid, f.status(t, a2024.ID))
	})

	t.Run("split under one receipt", func(t *testing.T) {
		payments, err := f.svc.RecordPayment(ctx, cash("600", a2023.ID, a2024.ID))
		require.NoError(t, err)
		require.Len(t, payments, 2)
		assert.Equal(t, "F0000001", payments[0].ReceiptNumber, "rolled back payments do not use up a receipt number")
		assert.Equal(t, payments[0].ReceiptNumber, payments[1].ReceiptNumber)
		assert.Equal(t, "500", payments[0].AmountPaid.String())
		assert.Equal(t, "100", payments[1].AmountPaid.String())
		assert.True(t, payments[0].IsRealized, "cash is always realized")

		assert.Equal(t, ledger.StatusPaid, f.status(t, a2023.ID))
		assert.Equal(t, ledger.StatusPartiallyPaid, f.status(t, a2024.ID))
	})

	t.Run("paid assignments are skipped", func(t *testing.T) {
		payments, err := f.svc.RecordPayment(ctx, cash("200", a2023.ID, a2024.ID))
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, a2024.ID, payments[0].FeeAssignmentID)
		assert.Equal(t, "F0000002", payments[0].ReceiptNumber)
		assert.Equal(t, ledger.StatusPaid, f.status(t, a2024.ID))
	})
}

func TestService_RecordPayment_concurrentReceipts(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	s := testutil.CreateStudent(t, f.stdRepo, "A1", "One", "5", "5s1", true)
	a := testutil.CreateAssignment(t, f.repo, s, "2024", "1000")

	const n = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		receipts []string
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payments, err := f.svc.RecordPayment(ctx, cash("10", a.ID))
			if assert.NoError(t, err) {
				mu.Lock()
				receipts = append(receipts, payments[0].ReceiptNumber)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Strings(receipts)
	require.Len(t, receipts, n)
	for i, r := range receipts {
		assert.Equal(t, ledger.DefaultReceiptSequence.Format(int64(i+1)), r)
	}

	b, err := f.svc.Ledger(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "800", b.Due.String())
}

func TestService_adjustCancelDelete(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	s := testutil.CreateStudent(t, f.stdRepo, "A1", "One", "5", "5s1", true)
	a := testutil.CreateAssignment(t, f.repo, s, "2024", "1000")

	payments, err := f.svc.RecordPayment(ctx, cash("400", a.ID))
	require.NoError(t, err)
	p := payments[0]

	// fee lowered below what was paid: Paid, nothing due, nothing refunded
	adjusted, err := f.svc.AdjustFee(ctx, a.ID, ledger.AdjustFee{AdjustedFee: testutil.Money("300"), Reason: "scholarship"})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, adjusted.Status)
	l, err := f.svc.Ledger(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, l.Due.IsZero())
	assert.Equal(t, "400", l.Paid.String())

	_, err = f.svc.AdjustFee(ctx, a.ID, ledger.AdjustFee{AdjustedFee: testutil.Money("1000"), Reason: " "})
	assert.Error(t, err)
	_, err = f.svc.AdjustFee(ctx, a.ID, ledger.AdjustFee{AdjustedFee: testutil.Money("1000"), Reason: "reverted"})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartiallyPaid, f.status(t, a.ID))

	cancelled, err := f.svc.CancelPayment(ctx, p.ID, ledger.CancelPayment{Reason: "bounced"}, "clerk-1")
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled)
	assert.Equal(t, "clerk-1", cancelled.CancelledBy.String)
	assert.Equal(t, ledger.StatusUnpaid, f.status(t, a.ID))

	_, err = f.svc.CancelPayment(ctx, p.ID, ledger.CancelPayment{Reason: "again"}, "clerk-1")
	assert.Equal(t, ledger.ErrAlreadyCancelled, err)
	assert.Equal(t, ledger.ErrCancelledNoDelete, f.svc.DeletePayment(ctx, p.ID))

	// payments of soft-deleted assignments stay listed
	require.NoError(t, f.svc.DeleteAssignment(ctx, a.ID))
	listed, err := f.svc.QueryPayments(ctx, ledger.PaymentFilter{StudentID: s.ID})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].AssignmentDeleted)

	_, err = f.svc.RecordPayment(ctx, cash("10", a.ID))
	assert.Equal(t, ledger.ErrAssignmentNotFound, err)
}

func TestService_CancelPayment_paidInFull(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	s := testutil.CreateStudent(t, f.stdRepo, "A1", "One", "5", "5s1", true)
	a := testutil.CreateAssignment(t, f.repo, s, "2024", "1000")

	payments, err := f.svc.RecordPayment(ctx, cash("1000", a.ID))
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, ledger.StatusPaid, f.status(t, a.ID))

	_, err = f.svc.CancelPayment(ctx, payments[0].ID, ledger.CancelPayment{Reason: "cheque bounced"}, "clerk-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusUnpaid, f.status(t, a.ID))

	l, err := f.svc.Ledger(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", l.Due.String())
	assert.True(t, l.Paid.IsZero())
}
