package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/student"
)

type studentRepository struct {
	db   *DB
	inTx bool
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

var studentOrderings = map[string]comparator[student.Student]{
	"admission_number": func(a, b student.Student) int { return compareStrings(a.AdmissionNumber, b.AdmissionNumber) },
	"name":             func(a, b student.Student) int { return compareStrings(strings.ToLower(a.Name), strings.ToLower(b.Name)) },
	"current_grade":    func(a, b student.Student) int { return student.GradeRank(a.Grade) - student.GradeRank(b.Grade) },
	"current_class":    func(a, b student.Student) int { return compareStrings(a.Class, b.Class) },
	"is_active":        func(a, b student.Student) int { return compareBools(a.IsActive, b.IsActive) },
	"created_at":       func(a, b student.Student) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

func (repo *studentRepository) Atomic(ctx context.Context, fn func(repo student.Repository) error) error {
	return repo.db.atomic(repo.inTx, func() error {
		return fn(&studentRepository{db: repo.db, inTx: true})
	})
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, other := range repo.db.students {
		if other.AdmissionNumber == s.AdmissionNumber {
			return student.Student{}, core.NewConflictError(student.ErrAdmissionNumberExists)
		}
	}
	repo.db.students[s.ID] = s
	return s, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.students[id]; ok {
		return s, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) GetStudentByAdmissionNumber(ctx context.Context, admissionNumber string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, s := range repo.db.students {
		if s.AdmissionNumber == admissionNumber {
			return s, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func matchesStudent(s student.Student, search string) bool {
	search = strings.ToLower(search)
	return strings.Contains(strings.ToLower(s.AdmissionNumber), search) ||
		strings.Contains(strings.ToLower(s.Name), search) ||
		strings.Contains(strings.ToLower(s.ContactNumber), search)
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, orderings ...core.DBOrdering) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := make([]student.Student, 0)
	for _, s := range repo.db.students {
		if filter.Search != "" && !matchesStudent(s, filter.Search) {
			continue
		}
		if filter.Grade != "" && s.Grade != filter.Grade {
			continue
		}
		if filter.Class != "" && s.Class != filter.Class {
			continue
		}
		if filter.IsActive != nil && s.IsActive != *filter.IsActive {
			continue
		}
		students = append(students, s)
	}
	sortRows(students, orderings, studentOrderings, core.DBOrdering{Field: "admission_number", Ascending: true})
	if filter.Limit > 0 && len(students) > filter.Limit {
		students = students[:filter.Limit]
	}
	return students, nil
}

func (repo *studentRepository) Classes(ctx context.Context, grade string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[string]bool)
	classes := make([]string, 0)
	for _, s := range repo.db.students {
		if (grade != "" && s.Grade != grade) || seen[s.Class] {
			continue
		}
		seen[s.Class] = true
		classes = append(classes, s.Class)
	}
	sort.Strings(classes)
	return classes, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.students[s.ID]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	s.AdmissionNumber = orig.AdmissionNumber
	s.CreatedAt = orig.CreatedAt
	repo.db.students[s.ID] = s
	return s, nil
}

// DeleteStudent also removes the student's fee assignments.
func (repo *studentRepository) DeleteStudent(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.students, id)
	for aid, a := range repo.db.assignments {
		if a.StudentID == id {
			delete(repo.db.assignments, aid)
		}
	}
	return nil
}

func (repo *studentRepository) HasPayments(ctx context.Context, id string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, p := range repo.db.payments {
		if a, ok := repo.db.assignments[p.FeeAssignmentID]; ok && a.StudentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (repo *studentRepository) ActiveStudentsForUpdate(ctx context.Context) ([]student.Student, error) {
	active := true
	return repo.QueryStudents(ctx, student.QueryFilter{IsActive: &active})
}

func (repo *studentRepository) UpdatePlacements(ctx context.Context, students []student.Student, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, s := range students {
		orig, ok := repo.db.students[s.ID]
		if !ok {
			return student.ErrNotFound
		}
		orig.Grade = s.Grade
		orig.Class = s.Class
		orig.UpdatedAt = at
		repo.db.students[s.ID] = orig
	}
	return nil
}

func (repo *studentRepository) RecordUpgrade(ctx context.Context, rec student.UpgradeRecord) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.upgrades[rec.AcademicYear]; ok {
		return core.NewConflictError(student.ErrAlreadyUpgraded)
	}
	repo.db.upgrades[rec.AcademicYear] = rec
	return nil
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
