package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/student"
)

var studentColumns = []string{
	"id", "admission_number", "name", "contact_number", "current_grade", "current_class",
	"is_active", "sibling_admission_number", "created_at", "updated_at",
}

type studentRow struct {
	ID                     string      `db:"id"`
	AdmissionNumber        string      `db:"admission_number"`
	Name                   string      `db:"name"`
	ContactNumber          string      `db:"contact_number"`
	Grade                  string      `db:"current_grade"`
	Class                  string      `db:"current_class"`
	IsActive               bool        `db:"is_active"`
	SiblingAdmissionNumber null.String `db:"sibling_admission_number"`
	CreatedAt              time.Time   `db:"created_at"`
	UpdatedAt              time.Time   `db:"updated_at"`
}

func (r studentRow) toStudent() student.Student {
	return student.Student{
		ID:                     r.ID,
		AdmissionNumber:        r.AdmissionNumber,
		Name:                   r.Name,
		ContactNumber:          r.ContactNumber,
		Grade:                  r.Grade,
		Class:                  r.Class,
		IsActive:               r.IsActive,
		SiblingAdmissionNumber: r.SiblingAdmissionNumber,
		CreatedAt:              r.CreatedAt.UTC(),
		UpdatedAt:              r.UpdatedAt.UTC(),
	}
}

func toStudents(rows []studentRow) []student.Student {
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toStudent())
	}
	return students
}

var studentOrderings = map[string]string{
	"admission_number": "s.admission_number",
	"name":             "lower(s.name)",
	"current_grade":    gradeRank("s.current_grade"),
	"current_class":    "s.current_class",
	"is_active":        "s.is_active",
	"created_at":       "s.created_at",
}

type studentRepository struct {
	conn
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{conn: newConn(db)}
}

func (repo *studentRepository) Atomic(ctx context.Context, fn func(repo student.Repository) error) error {
	return repo.atomic(ctx, func(tx conn) error {
		return fn(&studentRepository{conn: tx})
	})
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	_, err := repo.exec(ctx, `
		INSERT INTO students (
			id, admission_number, name, contact_number, current_grade, current_class,
			is_active, sibling_admission_number, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.AdmissionNumber, s.Name, s.ContactNumber, s.Grade, s.Class,
		s.IsActive, s.SiblingAdmissionNumber, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return student.Student{}, core.TrapUniqueViolation(err, "inserting student")
	}
	return s, nil
}

func (repo *studentRepository) getOne(ctx context.Context, cond string, arg interface{}) (student.Student, error) {
	var row studentRow
	err := repo.get(ctx, &row, "SELECT "+columns("s", "", studentColumns...)+" FROM students s WHERE "+cond, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "selecting student")
	}
	return row.toStudent(), nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	if !isUUID(id) {
		return student.Student{}, student.ErrNotFound
	}
	return repo.getOne(ctx, "s.id = ?", id)
}

func (repo *studentRepository) GetStudentByAdmissionNumber(ctx context.Context, admissionNumber string) (student.Student, error) {
	return repo.getOne(ctx, "s.admission_number = ?", admissionNumber)
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, orderings ...core.DBOrdering) ([]student.Student, error) {
	var w where
	w.search(filter.Search, "s.admission_number", "s.name", "s.contact_number")
	if filter.Grade != "" {
		w.add("s.current_grade = ?", filter.Grade)
	}
	if filter.Class != "" {
		w.add("s.current_class = ?", filter.Class)
	}
	if filter.IsActive != nil {
		w.add("s.is_active = ?", *filter.IsActive)
	}
	q := "SELECT " + columns("s", "", studentColumns...) + " FROM students s" + w.String() +
		" ORDER BY " + core.OrderingClause(orderings, studentOrderings, "s.admission_number ASC")
	if filter.Limit > 0 {
		q += " LIMIT ?"
		w.args = append(w.args, filter.Limit)
	}

	var rows []studentRow
	if err := repo.selectAll(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	return toStudents(rows), nil
}

func (repo *studentRepository) Classes(ctx context.Context, grade string) ([]string, error) {
	var w where
	if grade != "" {
		w.add("current_grade = ?", grade)
	}
	classes := make([]string, 0)
	err := repo.selectAll(ctx, &classes, "SELECT DISTINCT current_class FROM students"+w.String()+" ORDER BY current_class", w.args...)
	return classes, errors.Wrap(err, "selecting classes")
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	n, err := repo.exec(ctx, `
		UPDATE students SET
			name = ?, contact_number = ?, current_grade = ?, current_class = ?,
			is_active = ?, sibling_admission_number = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.ContactNumber, s.Grade, s.Class, s.IsActive, s.SiblingAdmissionNumber, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return s, nil
}

// DeleteStudent also removes the student's fee assignments (ON DELETE CASCADE).
func (repo *studentRepository) DeleteStudent(ctx context.Context, id string) error {
	_, err := repo.exec(ctx, "DELETE FROM students WHERE id = ?", id)
	return errors.Wrap(err, "deleting student")
}

func (repo *studentRepository) HasPayments(ctx context.Context, id string) (bool, error) {
	var found bool
	err := repo.get(ctx, &found, `
		SELECT EXISTS (
			SELECT 1 FROM payments p JOIN fee_assignments a ON a.id = p.fee_assignment_id WHERE a.student_id = ?
		)`, id)
	return found, errors.Wrap(err, "checking payments")
}

func (repo *studentRepository) ActiveStudentsForUpdate(ctx context.Context) ([]student.Student, error) {
	var rows []studentRow
	q := "SELECT " + columns("s", "", studentColumns...) + " FROM students s WHERE s.is_active ORDER BY s.admission_number" +
		repo.lockClause("s")
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting active students")
	}
	return toStudents(rows), nil
}

func (repo *studentRepository) UpdatePlacements(ctx context.Context, students []student.Student, at time.Time) error {
	for _, s := range students {
		n, err := repo.exec(ctx, "UPDATE students SET current_grade = ?, current_class = ?, updated_at = ? WHERE id = ?",
			s.Grade, s.Class, at, s.ID)
		if err != nil {
			return errors.Wrapf(err, "updating student %s", s.AdmissionNumber)
		}
		if n == 0 {
			return student.ErrNotFound
		}
	}
	return nil
}

func (repo *studentRepository) RecordUpgrade(ctx context.Context, rec student.UpgradeRecord) error {
	_, err := repo.exec(ctx, "INSERT INTO student_upgrades (academic_year, students, created_at) VALUES (?, ?, ?)",
		rec.AcademicYear, rec.Students, rec.CreatedAt)
	return core.TrapUniqueViolation(err, "recording upgrade")
}
