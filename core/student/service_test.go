package student_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/student"
	dummydb "github.com/trezcool/feeledger/storage/database/dummy"
	"github.com/trezcool/feeledger/tests"
)

func newService(t *testing.T) (*student.Service, student.Repository) {
	validate, _ := testutil.NewValidator()
	repo := dummydb.NewStudentRepository(dummydb.Open())
	return student.NewService(repo, validate), repo
}

func TestService_Create(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	std, err := svc.Create(ctx, student.NewStudent{
		AdmissionNumber: " A1 ",
		Name:            "  Nimal   Perera ",
		ContactNumber:   "0771234567",
		Grade:           "5",
		Class:           "5s1",
	})
	require.NoError(t, err)
	assert.Equal(t, "A1", std.AdmissionNumber)
	assert.True(t, std.IsActive, "students are active by default")
	assert.False(t, std.SiblingAdmissionNumber.Valid)

	inactive := false
	sibling, err := svc.Create(ctx, student.NewStudent{
		AdmissionNumber:        "A2",
		Name:                   "Kamal Perera",
		ContactNumber:          "0771234567",
		Grade:                  "3",
		Class:                  "3s1",
		IsActive:               &inactive,
		SiblingAdmissionNumber: "A1",
	})
	require.NoError(t, err)
	assert.False(t, sibling.IsActive)
	assert.Equal(t, "A1", sibling.SiblingAdmissionNumber.String)

	_, err = svc.Create(ctx, student.NewStudent{AdmissionNumber: "A1", Name: "X", ContactNumber: "1", Grade: "5", Class: "5s1"})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))

	_, err = svc.Update(ctx, std.ID, student.UpdateStudent{
		Name: std.Name, ContactNumber: std.ContactNumber, Grade: "5", Class: "5s1", IsActive: true,
		SiblingAdmissionNumber: "A1",
	})
	require.True(t, errors.As(err, &verr), "a student cannot be their own sibling")
}

func TestService_Search(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	for i := 0; i < student.SearchLimit+2; i++ {
		testutil.CreateStudent(t, repo, fmt.Sprintf("B%02d", i), fmt.Sprintf("Perera %02d", i), "4", "4s1", true)
	}
	testutil.CreateStudent(t, repo, "C1", "Perera Inactive", "4", "4s1", false)

	found, err := svc.Search(ctx, "perera", "4", "")
	require.NoError(t, err)
	assert.Len(t, found, student.SearchLimit)
	for _, s := range found {
		assert.True(t, s.IsActive)
	}
	assert.Equal(t, "Perera 00", found[0].Name)
}

func TestService_Upgrade(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	s := testutil.CreateStudent(t, repo, "A1", "One", "10", "10-B", true)

	res, err := svc.Upgrade(ctx, student.UpgradeRequest{AcademicYear: "2025"})
	require.NoError(t, err)
	assert.Equal(t, student.UpgradeResult{AcademicYear: "2025", Upgraded: 1}, res)

	_, err = svc.Upgrade(ctx, student.UpgradeRequest{AcademicYear: "2025"})
	assert.Equal(t, student.ErrAlreadyUpgraded, err)

	res, err = svc.Upgrade(ctx, student.UpgradeRequest{AcademicYear: "2026"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upgraded)

	got, err := repo.GetStudent(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, student.GradeAL, got.Grade)
	assert.Equal(t, "11-B", got.Class)
}

// failingPlacements writes the first student of a batch, then fails.
type failingPlacements struct {
	student.Repository
}

func (repo failingPlacements) Atomic(ctx context.Context, fn func(repo student.Repository) error) error {
	return repo.Repository.Atomic(ctx, func(tx student.Repository) error {
		return fn(failingPlacements{tx})
	})
}

func (repo failingPlacements) UpdatePlacements(ctx context.Context, students []student.Student, at time.Time) error {
	if err := repo.Repository.UpdatePlacements(ctx, students[:1], at); err != nil {
		return err
	}
	return errors.New("connection reset by peer")
}

func TestService_Upgrade_allOrNothing(t *testing.T) {
	validate, _ := testutil.NewValidator()
	repo := dummydb.NewStudentRepository(dummydb.Open())
	ctx := context.Background()
	students := []student.Student{
		testutil.CreateStudent(t, repo, "A1", "One", "5", "5s2", true),
		testutil.CreateStudent(t, repo, "A2", "Two", "6", "6s1", true),
		testutil.CreateStudent(t, repo, "A3", "Three", "9", "9A", true),
	}

	_, err := student.NewService(failingPlacements{repo}, validate).Upgrade(ctx, student.UpgradeRequest{AcademicYear: "2025"})
	require.Error(t, err)
	for _, s := range students {
		got, err := repo.GetStudent(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.Grade, got.Grade, s.AdmissionNumber)
		assert.Equal(t, s.Class, got.Class, s.AdmissionNumber)
	}

	// the failed run is not recorded, so the year can be retried
	res, err := student.NewService(repo, validate).Upgrade(ctx, student.UpgradeRequest{AcademicYear: "2025"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Upgraded)
	got, err := repo.GetStudent(ctx, students[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "6", got.Grade)
	assert.Equal(t, "6s2", got.Class)
}
