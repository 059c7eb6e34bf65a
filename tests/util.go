package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/student"
	"github.com/trezcool/feeledger/core/user"
)

// NewConfig returns the configuration used by tests, independent of the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		TestMode:         true,
		AppName:          "Fee Ledger",
		SecretKey:        "secret",
		DefaultFromEmail: mail.Address{Name: "Fee Ledger", Address: "noreply@localhost"},
		Server: core.ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
			FrontendURL:               "http://localhost:3000",
			ShutdownTimeout:           time.Second,
		},
		Ledger: core.LedgerConfig{ReceiptPrefix: "F", ReceiptWidth: 7, Currency: "Rs."},
		Report: core.ReportConfig{SchoolName: "Test School", PageSize: "A4"},
	}
}

// NewValidator returns a validator with every custom validation of the app registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	student.InitValidators(validate, translator)
	ledger.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	access user.Access,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if access == nil {
		access = user.RoleBased{Grants: user.CapabilitySet{}}
	}
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Access:    access,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo student.Repository, admissionNumber, name, grade, class string, isActive bool) student.Student {
	now := time.Now().UTC()
	s, err := repo.CreateStudent(context.Background(), student.Student{
		ID:              uuid.New().String(),
		AdmissionNumber: admissionNumber,
		Name:            name,
		ContactNumber:   "0771234567",
		Grade:           grade,
		Class:           class,
		IsActive:        isActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return s
}

// CreateAssignment assigns fee to the student for academicYear, with no payments yet.
func CreateAssignment(t *testing.T, repo ledger.Repository, s student.Student, academicYear, fee string) ledger.FeeAssignment {
	now := time.Now().UTC()
	amount := decimal.RequireFromString(fee)
	a := ledger.FeeAssignment{
		ID:           uuid.New().String(),
		StudentID:    s.ID,
		AcademicYear: academicYear,
		AssignedFee:  amount,
		Status:       ledger.DeriveStatus(amount, decimal.Zero),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	n, err := repo.CreateAssignments(context.Background(), []ledger.FeeAssignment{a})
	if err != nil || n != 1 {
		t.Fatalf("CreateAssignment() failed: created %d, %v", n, err)
	}
	a.Student = s
	return a
}

// Money parses a decimal amount, for test tables.
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
