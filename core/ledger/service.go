package ledger

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/student"
)

var (
	NowFunc = func() time.Time { return time.Now().UTC() } // mockable

	// errors
	ErrAssignmentNotFound = core.NewNotFoundError("fee assignment not found")
	ErrPaymentNotFound    = core.NewNotFoundError("payment not found")
	ErrAlreadyCancelled   = core.NewRuleError("payment is already cancelled")
	ErrCancelledReadOnly  = core.NewRuleError("a cancelled payment cannot be changed")
	ErrCancelledNoDelete  = core.NewRuleError("a cancelled payment cannot be deleted")
)

type (
	// Repository is the ledger's persistence layer.
	// Methods called on the repo passed to the Atomic callback run in the same transaction;
	// GetAssignment and GetPayment lock the rows they read until the transaction ends.
	Repository interface {
		Atomic(ctx context.Context, fn func(repo Repository) error) error

		ActiveStudentsInGrade(ctx context.Context, grade string) ([]student.Student, error)
		Grades(ctx context.Context) ([]string, error)

		// CreateAssignments skips the (student, academic year) pairs that already exist
		// and returns the number of assignments actually created.
		CreateAssignments(ctx context.Context, assignments []FeeAssignment) (int, error)
		// GetAssignment also finds soft-deleted assignments.
		GetAssignment(ctx context.Context, id string) (FeeAssignment, error)
		QueryAssignments(ctx context.Context, filter AssignmentFilter, orderings ...core.DBOrdering) ([]FeeAssignment, error)
		UpdateAssignmentFee(ctx context.Context, a FeeAssignment) error
		SetAssignmentStatus(ctx context.Context, id string, status Status, at time.Time) error
		SoftDeleteAssignment(ctx context.Context, id string, at time.Time) error

		// LockReceipts serializes receipt issuing until the end of the current transaction.
		LockReceipts(ctx context.Context) error
		LastReceiptNumber(ctx context.Context, seq ReceiptSequence) (string, error)
		CreatePayments(ctx context.Context, payments []Payment) error
		GetPayment(ctx context.Context, id string) (Payment, error)
		PaymentsForAssignments(ctx context.Context, ids ...string) (map[string][]Payment, error)
		QueryPayments(ctx context.Context, filter PaymentFilter, orderings ...core.DBOrdering) ([]Payment, error)
		UpdatePayment(ctx context.Context, p Payment) error
		DeletePayment(ctx context.Context, id string) error
	}

	// Service is the single write path for assignments and payments; it keeps the stored status in sync.
	Service struct {
		repo     Repository
		validate *validator.Validate
		receipts ReceiptSequence
	}
)

func NewService(repo Repository, validate *validator.Validate, receipts ReceiptSequence) *Service {
	return &Service{repo: repo, validate: validate, receipts: receipts}
}

func (svc *Service) Receipts() ReceiptSequence { return svc.receipts }

// Fee Assignments

// AssignGrade assigns a fee for an academic year to every active student of a grade.
// Students who already have an assignment for that year are skipped.
func (svc *Service) AssignGrade(ctx context.Context, ag AssignGrade) (AssignGradeResult, error) {
	ag.Clean()
	if err := svc.validate.Struct(ag); err != nil {
		return AssignGradeResult{}, err
	}

	var res AssignGradeResult
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		students, err := repo.ActiveStudentsInGrade(ctx, ag.Grade)
		if err != nil {
			return errors.Wrap(err, "finding active students")
		}
		if len(students) == 0 {
			return core.NewRuleError("no active students found in grade " + ag.Grade)
		}

		now := NowFunc()
		status := DeriveStatus(ag.AssignedFee, decimal.Zero)
		assignments := make([]FeeAssignment, 0, len(students))
		for _, std := range students {
			assignments = append(assignments, FeeAssignment{
				ID:           uuid.New().String(),
				StudentID:    std.ID,
				AcademicYear: ag.AcademicYear,
				AssignedFee:  ag.AssignedFee,
				Status:       status,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}
		created, err := repo.CreateAssignments(ctx, assignments)
		if err != nil {
			return errors.Wrap(err, "creating fee assignments")
		}
		res = AssignGradeResult{Created: created, Skipped: len(assignments) - created}
		return nil
	})
	return res, err
}

// AdjustFee overrides the fee of an assignment and recomputes its status.
// Lowering the fee below what was already paid is accepted: nothing is due and nothing is refunded.
func (svc *Service) AdjustFee(ctx context.Context, id string, af AdjustFee) (FeeAssignment, error) {
	af.Reason = core.CleanString(af.Reason)
	if err := svc.validate.Struct(af); err != nil {
		return FeeAssignment{}, err
	}

	var a FeeAssignment
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		if a, err = liveAssignment(ctx, repo, id); err != nil {
			return err
		}
		a.AdjustedFee = decimal.NullDecimal{Decimal: af.AdjustedFee, Valid: true}
		a.AdjustmentReason = null.StringFrom(af.Reason)
		a.UpdatedAt = NowFunc()
		if err = repo.UpdateAssignmentFee(ctx, a); err != nil {
			return errors.Wrap(err, "updating fee")
		}
		a, err = svc.recomputeStatus(ctx, repo, a.ID)
		return err
	})
	return a, err
}

// DeleteAssignment soft deletes an assignment. Its payments are kept for audit.
func (svc *Service) DeleteAssignment(ctx context.Context, id string) error {
	return svc.repo.Atomic(ctx, func(repo Repository) error {
		if _, err := liveAssignment(ctx, repo, id); err != nil {
			return err
		}
		return errors.Wrap(repo.SoftDeleteAssignment(ctx, id, NowFunc()), "deleting fee assignment")
	})
}

// GetAssignment finds an assignment, soft-deleted ones included.
func (svc *Service) GetAssignment(ctx context.Context, id string) (FeeAssignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

func (svc *Service) QueryAssignments(ctx context.Context, filter AssignmentFilter, orderings ...core.DBOrdering) ([]FeeAssignment, error) {
	filter.Clean()
	return svc.repo.QueryAssignments(ctx, filter, orderings...)
}

// Grades lists the distinct grades students are currently in.
func (svc *Service) Grades(ctx context.Context) ([]string, error) {
	return svc.repo.Grades(ctx)
}

// Ledger returns an assignment with its payment history and derived totals.
func (svc *Service) Ledger(ctx context.Context, id string) (Ledger, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Ledger{}, err
	}
	byAssignment, err := svc.repo.PaymentsForAssignments(ctx, a.ID)
	if err != nil {
		return Ledger{}, errors.Wrap(err, "finding payments")
	}
	payments := byAssignment[a.ID]
	if payments == nil {
		payments = []Payment{}
	}
	return Ledger{Balance: NewBalance(a, payments), Payments: payments}, nil
}

// Balances computes the totals of every assignment matching filter.
func (svc *Service) Balances(ctx context.Context, filter AssignmentFilter, orderings ...core.DBOrdering) ([]Balance, error) {
	assignments, err := svc.QueryAssignments(ctx, filter, orderings...)
	if err != nil {
		return nil, errors.Wrap(err, "querying fee assignments")
	}
	if len(assignments) == 0 {
		return []Balance{}, nil
	}
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.ID)
	}
	byAssignment, err := svc.repo.PaymentsForAssignments(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "finding payments")
	}
	balances := make([]Balance, 0, len(assignments))
	for _, a := range assignments {
		balances = append(balances, NewBalance(a, byAssignment[a.ID]))
	}
	return balances, nil
}

// OutstandingForStudent lists the student's assignments that still have something due, oldest year first.
func (svc *Service) OutstandingForStudent(ctx context.Context, studentID string) ([]Balance, error) {
	filter := AssignmentFilter{StudentID: studentID, Statuses: OpenStatuses}
	balances, err := svc.Balances(ctx, filter, core.DBOrdering{Field: "academic_year", Ascending: true})
	if err != nil {
		return nil, err
	}
	due := balances[:0]
	for _, b := range balances {
		if b.Due.IsPositive() {
			due = append(due, b)
		}
	}
	return due, nil
}

// Payments

// RecordPayment allocates a payment over the given assignments, in order, under a single new receipt number.
// Either every payment row and status update is stored, or none is.
func (svc *Service) RecordPayment(ctx context.Context, np NewPayment) ([]Payment, error) {
	np.Clean()
	if err := svc.validate.Struct(np); err != nil {
		return nil, err
	}

	var payments []Payment
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		// always taken before any row lock
		if err := repo.LockReceipts(ctx); err != nil {
			return errors.Wrap(err, "locking receipts")
		}

		items := make([]Outstanding, 0, len(np.FeeAssignmentIDs))
		assignments := make([]FeeAssignment, 0, len(np.FeeAssignmentIDs))
		for _, id := range np.FeeAssignmentIDs {
			a, err := liveAssignment(ctx, repo, id)
			if err != nil {
				return err
			}
			assignments = append(assignments, a)
		}
		byAssignment, err := repo.PaymentsForAssignments(ctx, np.FeeAssignmentIDs...)
		if err != nil {
			return errors.Wrap(err, "finding payments")
		}
		for _, a := range assignments {
			items = append(items, Outstanding{
				AssignmentID: a.ID,
				StudentID:    a.StudentID,
				Unpaid:       UnpaidAmount(a, byAssignment[a.ID]),
			})
		}

		allocs, err := Allocate(items, np.Amount)
		if err != nil {
			return err
		}

		last, err := repo.LastReceiptNumber(ctx, svc.receipts)
		if err != nil {
			return errors.Wrap(err, "finding last receipt number")
		}
		receipt := svc.receipts.Next(last)

		now := NowFunc()
		payments = make([]Payment, 0, len(allocs))
		for _, alloc := range allocs {
			payments = append(payments, Payment{
				ID:              uuid.New().String(),
				FeeAssignmentID: alloc.AssignmentID,
				ReceiptNumber:   receipt,
				PaymentDate:     np.PaymentDate.Time,
				AmountPaid:      alloc.Amount,
				Method:          np.Method,
				ReferenceNumber: stringNull(np.ReferenceNumber),
				DepositDate:     np.DepositDate.NullTime(),
				BankName:        stringNull(np.BankName),
				ChequeNo:        stringNull(np.ChequeNo),
				IsRealized:      np.IsRealized,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
		if err = repo.CreatePayments(ctx, payments); err != nil {
			return errors.Wrap(err, "creating payments")
		}

		for _, alloc := range allocs {
			if _, err = svc.recomputeStatus(ctx, repo, alloc.AssignmentID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// UpdatePayment changes a payment that is not cancelled. The new amount may not exceed
// what the assignment's other payments leave unpaid.
func (svc *Service) UpdatePayment(ctx context.Context, id string, up UpdatePayment) (Payment, error) {
	up.Clean()
	if err := svc.validate.Struct(up); err != nil {
		return Payment{}, err
	}

	var p Payment
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		if p, err = repo.GetPayment(ctx, id); err != nil {
			return err
		}
		if p.Cancelled {
			return ErrCancelledReadOnly
		}

		a, err := repo.GetAssignment(ctx, p.FeeAssignmentID)
		if err != nil {
			return errors.Wrap(err, "finding fee assignment")
		}
		byAssignment, err := repo.PaymentsForAssignments(ctx, a.ID)
		if err != nil {
			return errors.Wrap(err, "finding payments")
		}
		others := make([]Payment, 0, len(byAssignment[a.ID]))
		for _, other := range byAssignment[a.ID] {
			if other.ID != p.ID {
				others = append(others, other)
			}
		}
		if allowed := UnpaidAmount(a, others); up.Amount.GreaterThan(allowed) {
			return core.NewRuleError("amount exceeds total due (" + allowed.StringFixed(core.MoneyPlaces) + ")")
		}

		p.PaymentDate = up.PaymentDate.Time
		p.Method = up.Method
		p.AmountPaid = up.Amount
		p.ReferenceNumber = stringNull(up.ReferenceNumber)
		p.DepositDate = up.DepositDate.NullTime()
		p.BankName = stringNull(up.BankName)
		p.ChequeNo = stringNull(up.ChequeNo)
		p.IsRealized = up.IsRealized
		p.UpdatedAt = NowFunc()
		if err = repo.UpdatePayment(ctx, p); err != nil {
			return errors.Wrap(err, "updating payment")
		}
		_, err = svc.recomputeStatus(ctx, repo, a.ID)
		return err
	})
	return p, err
}

// CancelPayment cancels a payment for good and recomputes the status of its assignment.
func (svc *Service) CancelPayment(ctx context.Context, id string, cp CancelPayment, actorID string) (Payment, error) {
	cp.Reason = core.CleanString(cp.Reason)
	if err := svc.validate.Struct(cp); err != nil {
		return Payment{}, err
	}

	var p Payment
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		if p, err = repo.GetPayment(ctx, id); err != nil {
			return err
		}
		if p.Cancelled {
			return ErrAlreadyCancelled
		}

		now := NowFunc()
		p.Cancelled = true
		p.CancellationDate = null.TimeFrom(now)
		p.CancellationReason = null.StringFrom(cp.Reason)
		p.CancelledBy = stringNull(actorID)
		p.UpdatedAt = now
		if err = repo.UpdatePayment(ctx, p); err != nil {
			return errors.Wrap(err, "cancelling payment")
		}
		_, err = svc.recomputeStatus(ctx, repo, p.FeeAssignmentID)
		return err
	})
	return p, err
}

// DeletePayment removes a payment recorded by mistake. Cancelled payments are kept for audit.
func (svc *Service) DeletePayment(ctx context.Context, id string) error {
	return svc.repo.Atomic(ctx, func(repo Repository) error {
		p, err := repo.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if p.Cancelled {
			return ErrCancelledNoDelete
		}
		if _, err = repo.GetAssignment(ctx, p.FeeAssignmentID); err != nil {
			return errors.Wrap(err, "finding fee assignment")
		}
		if err = repo.DeletePayment(ctx, id); err != nil {
			return errors.Wrap(err, "deleting payment")
		}
		_, err = svc.recomputeStatus(ctx, repo, p.FeeAssignmentID)
		return err
	})
}

func (svc *Service) GetPayment(ctx context.Context, id string) (Payment, error) {
	return svc.repo.GetPayment(ctx, id)
}

func (svc *Service) QueryPayments(ctx context.Context, filter PaymentFilter, orderings ...core.DBOrdering) ([]Payment, error) {
	filter.Clean()
	return svc.repo.QueryPayments(ctx, filter, orderings...)
}

// recomputeStatus derives the status of an assignment from its payments and stores it when it changed.
// It must run in the transaction that changed the payments or the fee.
func (svc *Service) recomputeStatus(ctx context.Context, repo Repository, id string) (FeeAssignment, error) {
	a, err := repo.GetAssignment(ctx, id)
	if err != nil {
		return FeeAssignment{}, errors.Wrap(err, "finding fee assignment")
	}
	byAssignment, err := repo.PaymentsForAssignments(ctx, id)
	if err != nil {
		return FeeAssignment{}, errors.Wrap(err, "finding payments")
	}

	status := DeriveStatus(EffectiveFee(a), PaidTotal(byAssignment[id]))
	if status == a.Status {
		return a, nil
	}
	a.Status = status
	a.UpdatedAt = NowFunc()
	if err = repo.SetAssignmentStatus(ctx, id, status, a.UpdatedAt); err != nil {
		return FeeAssignment{}, errors.Wrap(err, "updating status")
	}
	return a, nil
}

// liveAssignment finds an assignment that is not soft-deleted.
func liveAssignment(ctx context.Context, repo Repository, id string) (FeeAssignment, error) {
	a, err := repo.GetAssignment(ctx, id)
	if err != nil {
		return FeeAssignment{}, err
	}
	if a.IsDeleted() {
		return FeeAssignment{}, ErrAssignmentNotFound
	}
	return a, nil
}

func stringNull(s string) null.String {
	return null.NewString(s, s != "")
}
