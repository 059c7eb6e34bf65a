package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/student"
)

// Status is the derived payment state of a FeeAssignment.
type Status string

const (
	StatusUnpaid        Status = "Unpaid"
	StatusPartiallyPaid Status = "Partially Paid"
	StatusPaid          Status = "Paid"
)

// OpenStatuses are the statuses of assignments that still have something due.
var OpenStatuses = []Status{StatusUnpaid, StatusPartiallyPaid}

// Method is how a payment was made.
type Method string

const (
	MethodCash   Method = "Cash"
	MethodCheque Method = "Cheque"
	MethodOnline Method = "Online"
)

var Methods = []Method{MethodCash, MethodCheque, MethodOnline}

func (m Method) IsValid() bool {
	for _, mtd := range Methods {
		if m == mtd {
			return true
		}
	}
	return false
}

// FeeAssignment links a student to an academic year's fee obligation.
type FeeAssignment struct {
	ID               string              `json:"id"`
	StudentID        string              `json:"student_id"`
	AcademicYear     string              `json:"academic_year"`
	AssignedFee      decimal.Decimal     `json:"assigned_fee"`
	AdjustedFee      decimal.NullDecimal `json:"adjusted_fee"`
	AdjustmentReason null.String         `json:"adjustment_reason"`
	Status           Status              `json:"status"`
	CreatedAt        time.Time           `json:"created_at"` // UTC
	UpdatedAt        time.Time           `json:"updated_at"` // UTC
	DeletedAt        null.Time           `json:"deleted_at"` // UTC

	// read-only, filled in by queries
	Student student.Student `json:"student"`
}

func (a FeeAssignment) IsDeleted() bool { return a.DeletedAt.Valid }

// Payment is one payment transaction against exactly one FeeAssignment.
type Payment struct {
	ID                 string          `json:"id"`
	FeeAssignmentID    string          `json:"fee_assignment_id"`
	ReceiptNumber      string          `json:"receipt_number"`
	PaymentDate        time.Time       `json:"payment_date"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	Method             Method          `json:"payment_method"`
	ReferenceNumber    null.String     `json:"reference_number"`
	DepositDate        null.Time       `json:"deposit_date"`
	BankName           null.String     `json:"bank_name"`
	ChequeNo           null.String     `json:"cheque_no"`
	IsRealized         bool            `json:"is_realized"`
	Cancelled          bool            `json:"cancelled"`
	CancellationDate   null.Time       `json:"cancellation_date"`
	CancellationReason null.String     `json:"cancellation_reason"`
	CancelledBy        null.String     `json:"cancelled_by"`
	CreatedAt          time.Time       `json:"created_at"` // UTC
	UpdatedAt          time.Time       `json:"updated_at"` // UTC

	// read-only, filled in by queries
	AcademicYear      string          `json:"academic_year"`
	AssignmentDeleted bool            `json:"assignment_deleted"`
	Student           student.Student `json:"student"`
}

// Balance is an assignment with its derived totals.
type Balance struct {
	Assignment   FeeAssignment   `json:"fee_assignment"`
	EffectiveFee decimal.Decimal `json:"effective_fee"`
	Paid         decimal.Decimal `json:"paid"`
	Due          decimal.Decimal `json:"due"`
}

// Ledger is the full payment history of an assignment.
type Ledger struct {
	Balance
	Payments []Payment `json:"payments"`
}

// AssignGrade contains information needed to assign a fee to every active student of a grade.
type AssignGrade struct {
	AcademicYear string          `json:"academic_year" validate:"required,academicyear"`
	Grade        string          `json:"grade" validate:"required,grade"`
	AssignedFee  decimal.Decimal `json:"assigned_fee" validate:"moneyorzero"`
}

func (ag *AssignGrade) Clean() {
	ag.AcademicYear = core.CleanString(ag.AcademicYear)
	ag.Grade = core.CleanString(ag.Grade)
}

type AssignGradeResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// AdjustFee overrides the assigned fee of a single assignment.
type AdjustFee struct {
	AdjustedFee decimal.Decimal `json:"adjusted_fee" validate:"moneyorzero"`
	Reason      string          `json:"adjustment_reason" validate:"required,notblank"`
}

// NewPayment contains information needed to record a payment split across assignments.
// The assignments are paid in the given order.
type NewPayment struct {
	FeeAssignmentIDs []string        `json:"fee_assignment_ids" validate:"required,min=1,unique,dive,required"`
	PaymentDate      core.Date       `json:"payment_date" validate:"required"`
	Method           Method          `json:"payment_method" validate:"required,paymethod"`
	Amount           decimal.Decimal `json:"amount" validate:"money"`
	ReferenceNumber  string          `json:"reference_number"`
	DepositDate      core.Date       `json:"deposit_date"`
	BankName         string          `json:"bank_name"`
	ChequeNo         string          `json:"cheque_no"`
	IsRealized       bool            `json:"is_realized"`
}

func (np *NewPayment) Clean() {
	np.ReferenceNumber = core.CleanString(np.ReferenceNumber)
	np.BankName = core.CleanString(np.BankName)
	np.ChequeNo = core.CleanString(np.ChequeNo)
	if np.Method == MethodCash {
		np.IsRealized = true
	}
}

// UpdatePayment defines what may be changed on a payment that is not cancelled.
type UpdatePayment struct {
	PaymentDate     core.Date       `json:"payment_date" validate:"required"`
	Method          Method          `json:"payment_method" validate:"required,paymethod"`
	Amount          decimal.Decimal `json:"amount" validate:"money"`
	ReferenceNumber string          `json:"reference_number"`
	DepositDate     core.Date       `json:"deposit_date"`
	BankName        string          `json:"bank_name"`
	ChequeNo        string          `json:"cheque_no"`
	IsRealized      bool            `json:"is_realized"`
}

func (up *UpdatePayment) Clean() {
	up.ReferenceNumber = core.CleanString(up.ReferenceNumber)
	up.BankName = core.CleanString(up.BankName)
	up.ChequeNo = core.CleanString(up.ChequeNo)
	if up.Method == MethodCash {
		up.IsRealized = true
	}
}

type CancelPayment struct {
	Reason string `json:"cancellation_reason" validate:"required,notblank"`
}

// AssignmentFilter: all set fields are ANDed.
// Search does a case-insensitive match on the student's admission number, name or grade.
type AssignmentFilter struct {
	Search         string   `query:"search"`
	StudentID      string   `query:"student_id"`
	AcademicYear   string   `query:"academic_year"`
	Grade          string   `query:"grade"`
	Class          string   `query:"class"`
	Statuses       []Status `query:"status"`
	ActiveStudents *bool    `query:"active"`
	IncludeDeleted bool     `query:"include_deleted"`
}

func (f *AssignmentFilter) Clean() {
	f.Search = core.CleanString(f.Search)
	f.AcademicYear = core.CleanString(f.AcademicYear)
	f.Grade = core.CleanString(f.Grade)
	f.Class = core.CleanString(f.Class)
}

// PaymentFilter: all set fields are ANDed.
// Payments of soft-deleted assignments are always included.
type PaymentFilter struct {
	Search          string    `query:"search"`
	StudentID       string    `query:"student_id"`
	FeeAssignmentID string    `query:"fee_assignment_id"`
	ReceiptNumber   string    `query:"receipt_number"`
	Method          Method    `query:"payment_method"`
	Cancelled       *bool     `query:"cancelled"`
	DateFrom        time.Time `query:"date_from"`
	DateTo          time.Time `query:"date_to"`
}

func (f *PaymentFilter) Clean() {
	f.Search = core.CleanString(f.Search)
	f.ReceiptNumber = core.CleanString(f.ReceiptNumber)
}
