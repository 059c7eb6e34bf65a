package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/student"
)

type ledgerRepository struct {
	db   *DB
	inTx bool
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *DB) ledger.Repository {
	return &ledgerRepository{db: db}
}

var (
	assignmentOrderings = map[string]comparator[ledger.FeeAssignment]{
		"academic_year": func(a, b ledger.FeeAssignment) int { return compareStrings(a.AcademicYear, b.AcademicYear) },
		"assigned_fee":  func(a, b ledger.FeeAssignment) int { return a.AssignedFee.Cmp(b.AssignedFee) },
		"status":        func(a, b ledger.FeeAssignment) int { return compareStrings(string(a.Status), string(b.Status)) },
		"student_name": func(a, b ledger.FeeAssignment) int {
			return compareStrings(strings.ToLower(a.Student.Name), strings.ToLower(b.Student.Name))
		},
		"admission_number": func(a, b ledger.FeeAssignment) int {
			return compareStrings(a.Student.AdmissionNumber, b.Student.AdmissionNumber)
		},
		"created_at": func(a, b ledger.FeeAssignment) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	}

	paymentOrderings = map[string]comparator[ledger.Payment]{
		"payment_date":   func(a, b ledger.Payment) int { return compareTimes(a.PaymentDate, b.PaymentDate) },
		"receipt_number": func(a, b ledger.Payment) int { return compareReceipts(a.ReceiptNumber, b.ReceiptNumber) },
		"amount_paid":    func(a, b ledger.Payment) int { return a.AmountPaid.Cmp(b.AmountPaid) },
		"created_at":     func(a, b ledger.Payment) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	}
)

// compareReceipts orders receipts by length first so that numbers outgrowing their width sort last.
func compareReceipts(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return compareStrings(a, b)
}

func (repo *ledgerRepository) Atomic(ctx context.Context, fn func(repo ledger.Repository) error) error {
	return repo.db.atomic(repo.inTx, func() error {
		return fn(&ledgerRepository{db: repo.db, inTx: true})
	})
}

func (repo *ledgerRepository) ActiveStudentsInGrade(ctx context.Context, grade string) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := make([]student.Student, 0)
	for _, s := range repo.db.students {
		if s.IsActive && s.Grade == grade {
			students = append(students, s)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].AdmissionNumber < students[j].AdmissionNumber })
	return students, nil
}

func (repo *ledgerRepository) Grades(ctx context.Context) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[string]bool)
	grades := make([]string, 0)
	for _, s := range repo.db.students {
		if !seen[s.Grade] {
			seen[s.Grade] = true
			grades = append(grades, s.Grade)
		}
	}
	sort.Slice(grades, func(i, j int) bool { return student.GradeRank(grades[i]) < student.GradeRank(grades[j]) })
	return grades, nil
}

func (repo *ledgerRepository) CreateAssignments(ctx context.Context, assignments []ledger.FeeAssignment) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing := make(map[[2]string]bool, len(repo.db.assignments))
	for _, a := range repo.db.assignments {
		existing[[2]string{a.StudentID, a.AcademicYear}] = true
	}
	created := 0
	for _, a := range assignments {
		key := [2]string{a.StudentID, a.AcademicYear}
		if existing[key] {
			continue
		}
		existing[key] = true
		a.Student = student.Student{}
		repo.db.assignments[a.ID] = a
		created++
	}
	return created, nil
}

// withStudent must be called with the read lock held.
func (repo *ledgerRepository) withStudent(a ledger.FeeAssignment) ledger.FeeAssignment {
	a.Student = repo.db.students[a.StudentID]
	return a
}

func (repo *ledgerRepository) GetAssignment(ctx context.Context, id string) (ledger.FeeAssignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return repo.withStudent(a), nil
	}
	return ledger.FeeAssignment{}, ledger.ErrAssignmentNotFound
}

func hasStatus(statuses []ledger.Status, status ledger.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (repo *ledgerRepository) QueryAssignments(ctx context.Context, filter ledger.AssignmentFilter, orderings ...core.DBOrdering) ([]ledger.FeeAssignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	assignments := make([]ledger.FeeAssignment, 0)
	for _, a := range repo.db.assignments {
		a = repo.withStudent(a)
		std := a.Student
		switch {
		case a.IsDeleted() && !filter.IncludeDeleted,
			filter.StudentID != "" && a.StudentID != filter.StudentID,
			filter.AcademicYear != "" && a.AcademicYear != filter.AcademicYear,
			filter.Grade != "" && std.Grade != filter.Grade,
			filter.Class != "" && std.Class != filter.Class,
			len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, a.Status),
			filter.ActiveStudents != nil && std.IsActive != *filter.ActiveStudents:
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(std.AdmissionNumber), search) &&
			!strings.Contains(strings.ToLower(std.Name), search) &&
			!strings.Contains(strings.ToLower(std.Grade), search) {
			continue
		}
		assignments = append(assignments, a)
	}
	sortRows(assignments, orderings, assignmentOrderings,
		core.DBOrdering{Field: "academic_year"}, core.DBOrdering{Field: "admission_number", Ascending: true})
	return assignments, nil
}

func (repo *ledgerRepository) UpdateAssignmentFee(ctx context.Context, a ledger.FeeAssignment) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.assignments[a.ID]
	if !ok {
		return ledger.ErrAssignmentNotFound
	}
	orig.AdjustedFee = a.AdjustedFee
	orig.AdjustmentReason = a.AdjustmentReason
	orig.UpdatedAt = a.UpdatedAt
	repo.db.assignments[a.ID] = orig
	return nil
}

func (repo *ledgerRepository) SetAssignmentStatus(ctx context.Context, id string, status ledger.Status, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	a, ok := repo.db.assignments[id]
	if !ok {
		return ledger.ErrAssignmentNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	repo.db.assignments[id] = a
	return nil
}

func (repo *ledgerRepository) SoftDeleteAssignment(ctx context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	a, ok := repo.db.assignments[id]
	if !ok {
		return ledger.ErrAssignmentNotFound
	}
	a.DeletedAt.SetValid(at)
	a.UpdatedAt = at
	repo.db.assignments[id] = a
	return nil
}

// LockReceipts is a no-op: transactions are already serialized.
func (repo *ledgerRepository) LockReceipts(ctx context.Context) error {
	return nil
}

func (repo *ledgerRepository) LastReceiptNumber(ctx context.Context, seq ledger.ReceiptSequence) (string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	receipts := make([]string, 0, len(repo.db.payments))
	for _, p := range repo.db.payments {
		receipts = append(receipts, p.ReceiptNumber)
	}
	return seq.GreatestReceipt(receipts), nil
}

func (repo *ledgerRepository) CreatePayments(ctx context.Context, payments []ledger.Payment) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, p := range payments {
		for _, other := range repo.db.payments {
			if other.ReceiptNumber == p.ReceiptNumber && other.FeeAssignmentID == p.FeeAssignmentID {
				return core.NewConflictError(nil)
			}
		}
	}
	for _, p := range payments {
		p.AcademicYear, p.AssignmentDeleted, p.Student = "", false, student.Student{}
		repo.db.payments[p.ID] = p
	}
	return nil
}

// withAssignment must be called with the read lock held.
func (repo *ledgerRepository) withAssignment(p ledger.Payment) ledger.Payment {
	a := repo.db.assignments[p.FeeAssignmentID]
	p.AcademicYear = a.AcademicYear
	p.AssignmentDeleted = a.IsDeleted()
	p.Student = repo.db.students[a.StudentID]
	return p
}

func (repo *ledgerRepository) GetPayment(ctx context.Context, id string) (ledger.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.payments[id]; ok {
		return repo.withAssignment(p), nil
	}
	return ledger.Payment{}, ledger.ErrPaymentNotFound
}

func (repo *ledgerRepository) PaymentsForAssignments(ctx context.Context, ids ...string) (map[string][]ledger.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	byAssignment := make(map[string][]ledger.Payment, len(ids))
	for _, p := range repo.db.payments {
		if wanted[p.FeeAssignmentID] {
			byAssignment[p.FeeAssignmentID] = append(byAssignment[p.FeeAssignmentID], repo.withAssignment(p))
		}
	}
	for id := range byAssignment {
		sortRows(byAssignment[id], nil, paymentOrderings,
			core.DBOrdering{Field: "payment_date", Ascending: true}, core.DBOrdering{Field: "receipt_number", Ascending: true})
	}
	return byAssignment, nil
}

func (repo *ledgerRepository) QueryPayments(ctx context.Context, filter ledger.PaymentFilter, orderings ...core.DBOrdering) ([]ledger.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	payments := make([]ledger.Payment, 0)
	for _, p := range repo.db.payments {
		p = repo.withAssignment(p)
		switch {
		case filter.StudentID != "" && p.Student.ID != filter.StudentID,
			filter.FeeAssignmentID != "" && p.FeeAssignmentID != filter.FeeAssignmentID,
			filter.ReceiptNumber != "" && p.ReceiptNumber != filter.ReceiptNumber,
			filter.Method != "" && p.Method != filter.Method,
			filter.Cancelled != nil && p.Cancelled != *filter.Cancelled,
			!filter.DateFrom.IsZero() && p.PaymentDate.Before(filter.DateFrom),
			!filter.DateTo.IsZero() && p.PaymentDate.After(filter.DateTo):
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.ReceiptNumber), search) &&
			!strings.Contains(strings.ToLower(p.Student.AdmissionNumber), search) &&
			!strings.Contains(strings.ToLower(p.Student.Name), search) {
			continue
		}
		payments = append(payments, p)
	}
	sortRows(payments, orderings, paymentOrderings,
		core.DBOrdering{Field: "payment_date"}, core.DBOrdering{Field: "receipt_number"})
	return payments, nil
}

func (repo *ledgerRepository) UpdatePayment(ctx context.Context, p ledger.Payment) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.payments[p.ID]
	if !ok {
		return ledger.ErrPaymentNotFound
	}
	// immutable columns
	p.FeeAssignmentID = orig.FeeAssignmentID
	p.ReceiptNumber = orig.ReceiptNumber
	p.CreatedAt = orig.CreatedAt
	p.AcademicYear, p.AssignmentDeleted, p.Student = "", false, student.Student{}
	repo.db.payments[p.ID] = p
	return nil
}

func (repo *ledgerRepository) DeletePayment(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.payments[id]; !ok {
		return ledger.ErrPaymentNotFound
	}
	delete(repo.db.payments, id)
	return nil
}

// PaidTotal is a test helper summing the non-cancelled payments of an assignment.
func (db *DB) PaidTotal(assignmentID string) decimal.Decimal {
	db.RLock()
	defer db.RUnlock()

	total := decimal.Zero
	for _, p := range db.payments {
		if p.FeeAssignmentID == assignmentID && !p.Cancelled {
			total = total.Add(p.AmountPaid)
		}
	}
	return total
}
