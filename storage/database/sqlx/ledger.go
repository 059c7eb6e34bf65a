package sqlxrepos

import (
	"context"
	"database/sql"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/student"
)

// receiptLockKey identifies the advisory lock serializing receipt numbers.
const receiptLockKey = 7340031

var (
	assignmentColumns = []string{
		"id", "student_id", "academic_year", "assigned_fee", "adjusted_fee", "adjustment_reason",
		"status", "created_at", "updated_at", "deleted_at",
	}
	paymentColumns = []string{
		"id", "fee_assignment_id", "receipt_number", "payment_date", "amount_paid", "payment_method",
		"reference_number", "deposit_date", "bank_name", "cheque_no", "is_realized", "cancelled",
		"cancellation_date", "cancellation_reason", "cancelled_by", "created_at", "updated_at",
	}

	assignmentSelect = "SELECT " + columns("a", "", assignmentColumns...) + ", " + columns("s", "student", studentColumns...) +
		" FROM fee_assignments a JOIN students s ON s.id = a.student_id"
	paymentSelect = "SELECT " + columns("p", "", paymentColumns...) +
		`, a.academic_year AS "academic_year", a.deleted_at IS NOT NULL AS "assignment_deleted", ` +
		columns("s", "student", studentColumns...) +
		" FROM payments p JOIN fee_assignments a ON a.id = p.fee_assignment_id JOIN students s ON s.id = a.student_id"

	assignmentOrderings = map[string]string{
		"academic_year":    "a.academic_year",
		"assigned_fee":     "a.assigned_fee",
		"status":           "a.status",
		"student_name":     "lower(s.name)",
		"admission_number": "s.admission_number",
		"created_at":       "a.created_at",
	}
	paymentOrderings = map[string]string{
		"payment_date":   "p.payment_date",
		"receipt_number": "p.receipt_number",
		"amount_paid":    "p.amount_paid",
		"created_at":     "p.created_at",
	}
)

type assignmentRow struct {
	ID               string              `db:"id"`
	StudentID        string              `db:"student_id"`
	AcademicYear     string              `db:"academic_year"`
	AssignedFee      decimal.Decimal     `db:"assigned_fee"`
	AdjustedFee      decimal.NullDecimal `db:"adjusted_fee"`
	AdjustmentReason null.String         `db:"adjustment_reason"`
	Status           string              `db:"status"`
	CreatedAt        time.Time           `db:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at"`
	DeletedAt        null.Time           `db:"deleted_at"`
	Student          studentRow          `db:"student"`
}

func (r assignmentRow) toAssignment() ledger.FeeAssignment {
	return ledger.FeeAssignment{
		ID:               r.ID,
		StudentID:        r.StudentID,
		AcademicYear:     r.AcademicYear,
		AssignedFee:      r.AssignedFee,
		AdjustedFee:      r.AdjustedFee,
		AdjustmentReason: r.AdjustmentReason,
		Status:           ledger.Status(r.Status),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
		DeletedAt:        r.DeletedAt,
		Student:          r.Student.toStudent(),
	}
}

type paymentRow struct {
	ID                 string          `db:"id"`
	FeeAssignmentID    string          `db:"fee_assignment_id"`
	ReceiptNumber      string          `db:"receipt_number"`
	PaymentDate        core.Date       `db:"payment_date"`
	AmountPaid         decimal.Decimal `db:"amount_paid"`
	Method             string          `db:"payment_method"`
	ReferenceNumber    null.String     `db:"reference_number"`
	DepositDate        core.Date       `db:"deposit_date"`
	BankName           null.String     `db:"bank_name"`
	ChequeNo           null.String     `db:"cheque_no"`
	IsRealized         bool            `db:"is_realized"`
	Cancelled          bool            `db:"cancelled"`
	CancellationDate   null.Time       `db:"cancellation_date"`
	CancellationReason null.String     `db:"cancellation_reason"`
	CancelledBy        null.String     `db:"cancelled_by"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
	AcademicYear       string          `db:"academic_year"`
	AssignmentDeleted  bool            `db:"assignment_deleted"`
	Student            studentRow      `db:"student"`
}

func (r paymentRow) toPayment() ledger.Payment {
	return ledger.Payment{
		ID:                 r.ID,
		FeeAssignmentID:    r.FeeAssignmentID,
		ReceiptNumber:      r.ReceiptNumber,
		PaymentDate:        r.PaymentDate.Time,
		AmountPaid:         r.AmountPaid,
		Method:             ledger.Method(r.Method),
		ReferenceNumber:    r.ReferenceNumber,
		DepositDate:        r.DepositDate.NullTime(),
		BankName:           r.BankName,
		ChequeNo:           r.ChequeNo,
		IsRealized:         r.IsRealized,
		Cancelled:          r.Cancelled,
		CancellationDate:   r.CancellationDate,
		CancellationReason: r.CancellationReason,
		CancelledBy:        r.CancelledBy,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
		AcademicYear:       r.AcademicYear,
		AssignmentDeleted:  r.AssignmentDeleted,
		Student:            r.Student.toStudent(),
	}
}

type ledgerRepository struct {
	conn
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *sqlx.DB) ledger.Repository {
	return &ledgerRepository{conn: newConn(db)}
}

func (repo *ledgerRepository) Atomic(ctx context.Context, fn func(repo ledger.Repository) error) error {
	return repo.atomic(ctx, func(tx conn) error {
		return fn(&ledgerRepository{conn: tx})
	})
}

func (repo *ledgerRepository) ActiveStudentsInGrade(ctx context.Context, grade string) ([]student.Student, error) {
	var rows []studentRow
	q := "SELECT " + columns("s", "", studentColumns...) +
		" FROM students s WHERE s.is_active AND s.current_grade = ? ORDER BY s.admission_number"
	if err := repo.selectAll(ctx, &rows, q, grade); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	return toStudents(rows), nil
}

func (repo *ledgerRepository) Grades(ctx context.Context) ([]string, error) {
	grades := make([]string, 0)
	q := "SELECT current_grade FROM students GROUP BY current_grade ORDER BY " + gradeRank("current_grade")
	err := repo.selectAll(ctx, &grades, q)
	return grades, errors.Wrap(err, "selecting grades")
}

func (repo *ledgerRepository) CreateAssignments(ctx context.Context, assignments []ledger.FeeAssignment) (int, error) {
	created := 0
	for _, a := range assignments {
		n, err := repo.exec(ctx, `
			INSERT INTO fee_assignments (
				id, student_id, academic_year, assigned_fee, adjusted_fee, adjustment_reason, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (student_id, academic_year) DO NOTHING`,
			a.ID, a.StudentID, a.AcademicYear, a.AssignedFee, a.AdjustedFee, a.AdjustmentReason, string(a.Status),
			a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return 0, core.TrapUniqueViolation(err, "inserting fee assignment")
		}
		created += int(n)
	}
	return created, nil
}

func (repo *ledgerRepository) GetAssignment(ctx context.Context, id string) (ledger.FeeAssignment, error) {
	if !isUUID(id) {
		return ledger.FeeAssignment{}, ledger.ErrAssignmentNotFound
	}
	var row assignmentRow
	if err := repo.get(ctx, &row, assignmentSelect+" WHERE a.id = ?"+repo.lockClause("a"), id); err != nil {
		if err == sql.ErrNoRows {
			return ledger.FeeAssignment{}, ledger.ErrAssignmentNotFound
		}
		return ledger.FeeAssignment{}, errors.Wrap(err, "selecting fee assignment")
	}
	return row.toAssignment(), nil
}

func (repo *ledgerRepository) QueryAssignments(ctx context.Context, filter ledger.AssignmentFilter, orderings ...core.DBOrdering) ([]ledger.FeeAssignment, error) {
	var w where
	if !filter.IncludeDeleted {
		w.add("a.deleted_at IS NULL")
	}
	w.search(filter.Search, "s.admission_number", "s.name", "s.current_grade")
	if filter.StudentID != "" {
		if !isUUID(filter.StudentID) {
			return []ledger.FeeAssignment{}, nil
		}
		w.add("a.student_id = ?", filter.StudentID)
	}
	if filter.AcademicYear != "" {
		w.add("a.academic_year = ?", filter.AcademicYear)
	}
	if filter.Grade != "" {
		w.add("s.current_grade = ?", filter.Grade)
	}
	if filter.Class != "" {
		w.add("s.current_class = ?", filter.Class)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		w.add("a.status = ANY(?)", pq.Array(statuses))
	}
	if filter.ActiveStudents != nil {
		w.add("s.is_active = ?", *filter.ActiveStudents)
	}

	q := assignmentSelect + w.String() + " ORDER BY " +
		core.OrderingClause(orderings, assignmentOrderings, "a.academic_year DESC, s.admission_number ASC")
	var rows []assignmentRow
	if err := repo.selectAll(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting fee assignments")
	}
	assignments := make([]ledger.FeeAssignment, 0, len(rows))
	for _, r := range rows {
		assignments = append(assignments, r.toAssignment())
	}
	return assignments, nil
}

func (repo *ledgerRepository) UpdateAssignmentFee(ctx context.Context, a ledger.FeeAssignment) error {
	n, err := repo.exec(ctx, "UPDATE fee_assignments SET adjusted_fee = ?, adjustment_reason = ?, updated_at = ? WHERE id = ?",
		a.AdjustedFee, a.AdjustmentReason, a.UpdatedAt, a.ID)
	if err != nil {
		return errors.Wrap(err, "updating fee assignment")
	}
	if n == 0 {
		return ledger.ErrAssignmentNotFound
	}
	return nil
}

func (repo *ledgerRepository) SetAssignmentStatus(ctx context.Context, id string, status ledger.Status, at time.Time) error {
	n, err := repo.exec(ctx, "UPDATE fee_assignments SET status = ?, updated_at = ? WHERE id = ?", string(status), at, id)
	if err != nil {
		return errors.Wrap(err, "updating status")
	}
	if n == 0 {
		return ledger.ErrAssignmentNotFound
	}
	return nil
}

func (repo *ledgerRepository) SoftDeleteAssignment(ctx context.Context, id string, at time.Time) error {
	n, err := repo.exec(ctx, "UPDATE fee_assignments SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL", at, at, id)
	if err != nil {
		return errors.Wrap(err, "deleting fee assignment")
	}
	if n == 0 {
		return ledger.ErrAssignmentNotFound
	}
	return nil
}

func (repo *ledgerRepository) LockReceipts(ctx context.Context) error {
	if !repo.inTx {
		return errors.New("receipts can only be locked in a transaction")
	}
	_, err := repo.ext.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", receiptLockKey)
	return errors.Wrap(err, "taking receipt lock")
}

func (repo *ledgerRepository) LastReceiptNumber(ctx context.Context, seq ledger.ReceiptSequence) (string, error) {
	var last string
	err := repo.get(ctx, &last, `
		SELECT receipt_number FROM payments WHERE receipt_number ~ ?
		ORDER BY length(receipt_number) DESC, receipt_number DESC LIMIT 1`,
		"^"+regexp.QuoteMeta(seq.Prefix)+"[0-9]+$",
	)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return last, errors.Wrap(err, "selecting last receipt number")
}

func (repo *ledgerRepository) CreatePayments(ctx context.Context, payments []ledger.Payment) error {
	for _, p := range payments {
		_, err := repo.exec(ctx, `
			INSERT INTO payments (
				id, fee_assignment_id, receipt_number, payment_date, amount_paid, payment_method,
				reference_number, deposit_date, bank_name, cheque_no, is_realized, cancelled,
				cancellation_date, cancellation_reason, cancelled_by, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.FeeAssignmentID, p.ReceiptNumber, core.NewDate(p.PaymentDate), p.AmountPaid, string(p.Method),
			p.ReferenceNumber, core.NewDate(p.DepositDate.Time), p.BankName, p.ChequeNo, p.IsRealized, p.Cancelled,
			p.CancellationDate, p.CancellationReason, p.CancelledBy, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return core.TrapUniqueViolation(err, "inserting payment")
		}
	}
	return nil
}

func (repo *ledgerRepository) GetPayment(ctx context.Context, id string) (ledger.Payment, error) {
	if !isUUID(id) {
		return ledger.Payment{}, ledger.ErrPaymentNotFound
	}
	var row paymentRow
	if err := repo.get(ctx, &row, paymentSelect+" WHERE p.id = ?"+repo.lockClause("p"), id); err != nil {
		if err == sql.ErrNoRows {
			return ledger.Payment{}, ledger.ErrPaymentNotFound
		}
		return ledger.Payment{}, errors.Wrap(err, "selecting payment")
	}
	return row.toPayment(), nil
}

func (repo *ledgerRepository) queryPayments(ctx context.Context, w where, order string) ([]ledger.Payment, error) {
	var rows []paymentRow
	if err := repo.selectAll(ctx, &rows, paymentSelect+w.String()+" ORDER BY "+order, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting payments")
	}
	payments := make([]ledger.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.toPayment())
	}
	return payments, nil
}

func (repo *ledgerRepository) PaymentsForAssignments(ctx context.Context, ids ...string) (map[string][]ledger.Payment, error) {
	byAssignment := make(map[string][]ledger.Payment, len(ids))
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return byAssignment, nil
	}
	var w where
	w.add("p.fee_assignment_id = ANY(?::uuid[])", pq.Array(valid))
	payments, err := repo.queryPayments(ctx, w, "p.payment_date, length(p.receipt_number), p.receipt_number")
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		byAssignment[p.FeeAssignmentID] = append(byAssignment[p.FeeAssignmentID], p)
	}
	return byAssignment, nil
}

func (repo *ledgerRepository) QueryPayments(ctx context.Context, filter ledger.PaymentFilter, orderings ...core.DBOrdering) ([]ledger.Payment, error) {
	var w where
	w.search(filter.Search, "p.receipt_number", "s.admission_number", "s.name")
	if filter.StudentID != "" {
		if !isUUID(filter.StudentID) {
			return []ledger.Payment{}, nil
		}
		w.add("a.student_id = ?", filter.StudentID)
	}
	if filter.FeeAssignmentID != "" {
		if !isUUID(filter.FeeAssignmentID) {
			return []ledger.Payment{}, nil
		}
		w.add("p.fee_assignment_id = ?", filter.FeeAssignmentID)
	}
	if filter.ReceiptNumber != "" {
		w.add("p.receipt_number = ?", filter.ReceiptNumber)
	}
	if filter.Method != "" {
		w.add("p.payment_method = ?", string(filter.Method))
	}
	if filter.Cancelled != nil {
		w.add("p.cancelled = ?", *filter.Cancelled)
	}
	if !filter.DateFrom.IsZero() {
		w.add("p.payment_date >= ?", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		w.add("p.payment_date <= ?", filter.DateTo)
	}
	order := core.OrderingClause(orderings, paymentOrderings, "p.payment_date DESC, length(p.receipt_number) DESC, p.receipt_number DESC")
	return repo.queryPayments(ctx, w, order)
}

func (repo *ledgerRepository) UpdatePayment(ctx context.Context, p ledger.Payment) error {
	n, err := repo.exec(ctx, `
		UPDATE payments SET
			payment_date = ?, amount_paid = ?, payment_method = ?, reference_number = ?, deposit_date = ?,
			bank_name = ?, cheque_no = ?, is_realized = ?, cancelled = ?, cancellation_date = ?,
			cancellation_reason = ?, cancelled_by = ?, updated_at = ?
		WHERE id = ?`,
		core.NewDate(p.PaymentDate), p.AmountPaid, string(p.Method), p.ReferenceNumber, core.NewDate(p.DepositDate.Time),
		p.BankName, p.ChequeNo, p.IsRealized, p.Cancelled, p.CancellationDate,
		p.CancellationReason, p.CancelledBy, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return errors.Wrap(err, "updating payment")
	}
	if n == 0 {
		return ledger.ErrPaymentNotFound
	}
	return nil
}

func (repo *ledgerRepository) DeletePayment(ctx context.Context, id string) error {
	n, err := repo.exec(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting payment")
	}
	if n == 0 {
		return ledger.ErrPaymentNotFound
	}
	return nil
}
