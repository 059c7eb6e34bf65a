package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
)

// SearchLimit caps the quick search used when picking the student a payment is for.
const SearchLimit = 10

var (
	NowFunc = func() time.Time { return time.Now().UTC() } // mockable

	// errors
	ErrNotFound                = core.NewNotFoundError("student not found")
	ErrAdmissionNumberExists   = errors.New("a student with this admission number already exists")
	ErrSiblingNotFound         = errors.New("no student with this admission number")
	ErrHasPayments             = core.NewRuleError("a student with recorded payments cannot be deleted")
	ErrAlreadyUpgraded         = core.NewRuleError("students were already upgraded for this academic year")
	errAdmissionNumberExistsFE = core.FieldError{Field: "admission_number", Error: ErrAdmissionNumberExists.Error()}
)

type (
	// Repository is the students' persistence layer.
	// Methods called on the repo passed to the Atomic callback run in the same transaction.
	Repository interface {
		Atomic(ctx context.Context, fn func(repo Repository) error) error

		CreateStudent(ctx context.Context, s Student) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		GetStudentByAdmissionNumber(ctx context.Context, admissionNumber string) (Student, error)
		QueryStudents(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Student, error)
		Classes(ctx context.Context, grade string) ([]string, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
		DeleteStudent(ctx context.Context, id string) error
		HasPayments(ctx context.Context, id string) (bool, error)

		// ActiveStudentsForUpdate locks the active students until the transaction ends.
		ActiveStudentsForUpdate(ctx context.Context) ([]Student, error)
		UpdatePlacements(ctx context.Context, students []Student, at time.Time) error
		// RecordUpgrade returns a core.ConflictError when the academic year was already recorded.
		RecordUpgrade(ctx context.Context, rec UpgradeRecord) error
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) checkSibling(ctx context.Context, repo Repository, admissionNumber string) error {
	if admissionNumber == "" {
		return nil
	}
	if _, err := repo.GetStudentByAdmissionNumber(ctx, admissionNumber); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "sibling_admission_number", Error: ErrSiblingNotFound.Error()})
		}
		return errors.Wrap(err, "finding sibling")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Student{}, err
	}

	var std Student
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		if _, err := repo.GetStudentByAdmissionNumber(ctx, ns.AdmissionNumber); err == nil {
			return core.NewValidationError(nil, errAdmissionNumberExistsFE)
		} else if errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "checking admission number")
		}
		if err := svc.checkSibling(ctx, repo, ns.SiblingAdmissionNumber); err != nil {
			return err
		}

		now := NowFunc()
		isActive := true
		if ns.IsActive != nil {
			isActive = *ns.IsActive
		}
		var err error
		std, err = repo.CreateStudent(ctx, Student{
			ID:                     uuid.New().String(),
			AdmissionNumber:        ns.AdmissionNumber,
			Name:                   ns.Name,
			ContactNumber:          ns.ContactNumber,
			Grade:                  ns.Grade,
			Class:                  ns.Class,
			IsActive:               isActive,
			SiblingAdmissionNumber: null.NewString(ns.SiblingAdmissionNumber, ns.SiblingAdmissionNumber != ""),
			CreatedAt:              now,
			UpdatedAt:              now,
		})
		if _, ok := errors.Cause(err).(*core.ConflictError); ok {
			return core.NewValidationError(nil, errAdmissionNumberExistsFE)
		}
		return errors.Wrap(err, "creating student")
	})
	return std, err
}

func (svc *Service) Get(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Student, error) {
	filter.Clean()
	return svc.repo.QueryStudents(ctx, filter, orderings...)
}

// Search finds active students for the payment form.
func (svc *Service) Search(ctx context.Context, search, grade, class string) ([]Student, error) {
	active := true
	filter := QueryFilter{Search: search, Grade: grade, Class: class, IsActive: &active, Limit: SearchLimit}
	return svc.Query(ctx, filter, core.DBOrdering{Field: "name", Ascending: true})
}

// Classes lists the distinct classes of a grade ("" for every grade).
func (svc *Service) Classes(ctx context.Context, grade string) ([]string, error) {
	return svc.repo.Classes(ctx, core.CleanString(grade))
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	us.Clean()
	if err := svc.validate.Struct(us); err != nil {
		return Student{}, err
	}

	var std Student
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		if std, err = repo.GetStudent(ctx, id); err != nil {
			return err
		}
		if us.SiblingAdmissionNumber == std.AdmissionNumber {
			return core.NewValidationError(nil, core.FieldError{Field: "sibling_admission_number", Error: "a student cannot be their own sibling"})
		}
		if err = svc.checkSibling(ctx, repo, us.SiblingAdmissionNumber); err != nil {
			return err
		}

		std.Name = us.Name
		std.ContactNumber = us.ContactNumber
		std.Grade = us.Grade
		std.Class = us.Class
		std.IsActive = us.IsActive
		std.SiblingAdmissionNumber = null.NewString(us.SiblingAdmissionNumber, us.SiblingAdmissionNumber != "")
		std.UpdatedAt = NowFunc()
		std, err = repo.UpdateStudent(ctx, std)
		return errors.Wrap(err, "updating student")
	})
	return std, err
}

// Delete removes a student who never paid anything. Payment history is never dropped.
func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.Atomic(ctx, func(repo Repository) error {
		if _, err := repo.GetStudent(ctx, id); err != nil {
			return err
		}
		paid, err := repo.HasPayments(ctx, id)
		if err != nil {
			return errors.Wrap(err, "checking payments")
		}
		if paid {
			return ErrHasPayments
		}
		return errors.Wrap(repo.DeleteStudent(ctx, id), "deleting student")
	})
}

// Upgrade moves every active student to the next grade for an academic year.
// It runs once per academic year and is all-or-nothing: on any failure no student changes.
func (svc *Service) Upgrade(ctx context.Context, req UpgradeRequest) (UpgradeResult, error) {
	req.AcademicYear = core.CleanString(req.AcademicYear)
	if err := svc.validate.Struct(req); err != nil {
		return UpgradeResult{}, err
	}

	res := UpgradeResult{AcademicYear: req.AcademicYear}
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		students, err := repo.ActiveStudentsForUpdate(ctx)
		if err != nil {
			return errors.Wrap(err, "finding active students")
		}

		changed := make([]Student, 0, len(students))
		for _, std := range students {
			upgraded, err := Upgrade(std)
			if err != nil {
				return errors.Wrapf(err, "upgrading student %s", std.AdmissionNumber)
			}
			if upgraded.Grade == std.Grade && upgraded.Class == std.Class {
				continue
			}
			changed = append(changed, upgraded)
		}

		now := NowFunc()
		if err = repo.RecordUpgrade(ctx, UpgradeRecord{AcademicYear: req.AcademicYear, Students: len(changed), CreatedAt: now}); err != nil {
			if _, ok := errors.Cause(err).(*core.ConflictError); ok {
				return ErrAlreadyUpgraded
			}
			return errors.Wrap(err, "recording upgrade")
		}
		if err = repo.UpdatePlacements(ctx, changed, now); err != nil {
			return errors.Wrap(err, "updating students")
		}

		res.Upgraded = len(changed)
		res.Unchanged = len(students) - len(changed)
		return nil
	})
	if err != nil {
		return UpgradeResult{}, err
	}
	return res, nil
}
