package student

import (
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
)

// GradeAL is the last grade; students stay in it once there.
const GradeAL = "A/L"

// Grades are ordered from first to last.
var Grades = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", GradeAL}

var leadingNumberRegex = regexp.MustCompile(`^(\d{1,2})(.*)$`)

func IsGrade(grade string) bool {
	return gradeIndex(grade) >= 0
}

// GradeRank is the position of grade in Grades, -1 when unknown.
func GradeRank(grade string) int {
	return gradeIndex(grade)
}

func gradeIndex(grade string) int {
	for i, g := range Grades {
		if g == grade {
			return i
		}
	}
	return -1
}

// NextGrade returns the grade following grade. GradeAL is its own successor.
func NextGrade(grade string) (string, error) {
	i := gradeIndex(grade)
	if i < 0 {
		return "", errors.Errorf("unknown grade %q", grade)
	}
	if i == len(Grades)-1 {
		return grade, nil
	}
	return Grades[i+1], nil
}

// NextClass renames a class for the move from oldGrade to newGrade: a leading number equal to oldGrade
// becomes newGrade and the rest of the label is kept ("5s2" -> "6s2").
// Labels are left alone when either grade is GradeAL, the class naming differs there.
func NextClass(oldGrade, newGrade, class string) string {
	if oldGrade == GradeAL || newGrade == GradeAL {
		return class
	}
	m := leadingNumberRegex.FindStringSubmatch(class)
	if m == nil {
		return class
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || strconv.Itoa(n) != oldGrade {
		return class
	}
	next := newGrade
	for len(next) < len(m[1]) { // keep zero padding ("05s1" -> "06s1")
		next = "0" + next
	}
	return next + m[2]
}

// Upgrade moves a student to the next grade and renames their class accordingly.
func Upgrade(s Student) (Student, error) {
	next, err := NextGrade(s.Grade)
	if err != nil {
		return Student{}, err
	}
	s.Class = NextClass(s.Grade, next, s.Class)
	s.Grade = next
	return s, nil
}

type Student struct {
	ID                     string      `json:"id"`
	AdmissionNumber        string      `json:"admission_number"`
	Name                   string      `json:"name"`
	ContactNumber          string      `json:"contact_number"`
	Grade                  string      `json:"current_grade"`
	Class                  string      `json:"current_class"`
	IsActive               bool        `json:"is_active"`
	SiblingAdmissionNumber null.String `json:"sibling_admission_number"`
	CreatedAt              time.Time   `json:"created_at"` // UTC
	UpdatedAt              time.Time   `json:"updated_at"` // UTC
}

// NewStudent contains information needed to register a student.
type NewStudent struct {
	AdmissionNumber        string `json:"admission_number" validate:"required,notblank,max=50"`
	Name                   string `json:"name" validate:"required,notblank,max=255"`
	ContactNumber          string `json:"contact_number" validate:"required,notblank,max=20"`
	Grade                  string `json:"current_grade" validate:"required,grade"`
	Class                  string `json:"current_class" validate:"required,notblank,max=50"`
	IsActive               *bool  `json:"is_active"`
	SiblingAdmissionNumber string `json:"sibling_admission_number" validate:"omitempty,max=50"`
}

func (ns *NewStudent) Clean() {
	ns.AdmissionNumber = core.CleanString(ns.AdmissionNumber)
	ns.Name = core.CleanString(ns.Name)
	ns.ContactNumber = core.CleanString(ns.ContactNumber)
	ns.Grade = core.CleanString(ns.Grade)
	ns.Class = core.CleanString(ns.Class)
	ns.SiblingAdmissionNumber = core.CleanString(ns.SiblingAdmissionNumber)
}

// UpdateStudent defines what may be changed on a student. The admission number never changes.
type UpdateStudent struct {
	Name                   string `json:"name" validate:"required,notblank,max=255"`
	ContactNumber          string `json:"contact_number" validate:"required,notblank,max=20"`
	Grade                  string `json:"current_grade" validate:"required,grade"`
	Class                  string `json:"current_class" validate:"required,notblank,max=50"`
	IsActive               bool   `json:"is_active"`
	SiblingAdmissionNumber string `json:"sibling_admission_number" validate:"omitempty,max=50"`
}

func (us *UpdateStudent) Clean() {
	us.Name = core.CleanString(us.Name)
	us.ContactNumber = core.CleanString(us.ContactNumber)
	us.Grade = core.CleanString(us.Grade)
	us.Class = core.CleanString(us.Class)
	us.SiblingAdmissionNumber = core.CleanString(us.SiblingAdmissionNumber)
}

// UpgradeRequest starts the yearly upgrade of every active student.
type UpgradeRequest struct {
	AcademicYear string `json:"academic_year" validate:"required,academicyear"`
}

type UpgradeResult struct {
	AcademicYear string `json:"academic_year"`
	Upgraded     int    `json:"upgraded"`
	Unchanged    int    `json:"unchanged"`
}

// UpgradeRecord marks an academic year as upgraded.
type UpgradeRecord struct {
	AcademicYear string
	Students     int
	CreatedAt    time.Time
}

// QueryFilter: all set fields are ANDed.
// Search does a case-insensitive match on one of Student.AdmissionNumber, Student.Name or Student.ContactNumber.
type QueryFilter struct {
	Search   string `query:"search"`
	Grade    string `query:"grade"`
	Class    string `query:"class"`
	IsActive *bool  `query:"is_active"`
	Limit    int    `query:"limit"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Grade = core.CleanString(qf.Grade)
	qf.Class = core.CleanString(qf.Class)
	if qf.Limit < 0 {
		qf.Limit = 0
	}
}
