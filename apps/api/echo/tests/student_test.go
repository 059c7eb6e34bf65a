package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/student"
	"github.com/trezcool/feeledger/core/user"
	"github.com/trezcool/feeledger/tests"
)

func Test_studentApi_crud(t *testing.T) {
	app := setup(t)
	_, token := app.clerk(t, "Registrar", "registrar@test.lk",
		user.Capability{Module: user.ModuleStudents, Action: user.ActionView},
		user.Capability{Module: user.ModuleStudents, Action: user.ActionAdd},
		user.Capability{Module: user.ModuleStudents, Action: user.ActionEdit},
		user.Capability{Module: user.ModuleStudents, Action: user.ActionDelete},
	)
	_, viewerToken := app.clerk(t, "Viewer", "viewer@test.lk",
		user.Capability{Module: user.ModuleStudents, Action: user.ActionView},
	)
	newStudent := `{"admission_number":"A100","name":"Nimal Perera","contact_number":"0771234567","current_grade":"5","current_class":"5s2"}`

	tests := []httpTest{
		{
			name:     "add without capability",
			method:   http.MethodPost,
			path:     "/v1/students",
			token:    viewerToken,
			body:     []byte(newStudent),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "unknown grade",
			method:   http.MethodPost,
			path:     "/v1/students",
			token:    token,
			body:     []byte(`{"admission_number":"A101","name":"X","contact_number":"1","current_grade":"13","current_class":"13A"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"current_grade":"must be one of ` + strings.Join(student.Grades, ", ") + `"}`),
		},
		{
			name:     "unknown sibling",
			method:   http.MethodPost,
			path:     "/v1/students",
			token:    token,
			body:     []byte(`{"admission_number":"A101","name":"X","contact_number":"1","current_grade":"5","current_class":"5s1","sibling_admission_number":"Z999"}`),
			wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, app, tests)

	var created student.Student
	t.Run("create", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/students", token, []byte(newStudent))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &created)
		assert.Equal(t, "A100", created.AdmissionNumber)
		assert.True(t, created.IsActive)

		rec = app.do(http.MethodPost, "/v1/students", token, []byte(newStudent))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"admission_number":"a student with this admission number already exists"}`, rec.Body.String())
	})

	t.Run("query", func(t *testing.T) {
		testutil.CreateStudent(t, app.stdRepo, "A200", "Kamal Silva", "5", "5s1", true)
		testutil.CreateStudent(t, app.stdRepo, "A300", "Sunil Perera", "6", "6s1", false)

		rec := app.do(http.MethodGet, "/v1/students?search=perera&is_active=true", viewerToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var students []student.Student
		unmarshal(t, rec, &students)
		require.Len(t, students, 1)
		assert.Equal(t, created.ID, students[0].ID)

		rec = app.do(http.MethodGet, "/v1/students?grade=5&ordering=-admission_number", viewerToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &students)
		require.Len(t, students, 2)
		assert.Equal(t, "A200", students[0].AdmissionNumber)

		rec = app.do(http.MethodGet, "/v1/students/classes?grade=5", viewerToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `["5s1","5s2"]`, rec.Body.String())
	})

	t.Run("update", func(t *testing.T) {
		body := `{"name":"Nimal Perera","contact_number":"0770000000","current_grade":"5","current_class":"5s3","is_active":true,"sibling_admission_number":"A200"}`
		rec := app.do(http.MethodPut, "/v1/students/"+created.ID, token, []byte(body))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated student.Student
		unmarshal(t, rec, &updated)
		assert.Equal(t, "5s3", updated.Class)
		assert.Equal(t, "A200", updated.SiblingAdmissionNumber.String)
		assert.Equal(t, "A100", updated.AdmissionNumber)

		rec = app.do(http.MethodGet, "/v1/students/unknown", token)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"student not found"}`, rec.Body.String())
	})

	t.Run("delete", func(t *testing.T) {
		paid := testutil.CreateStudent(t, app.stdRepo, "A400", "Paid Up", "7", "7s1", true)
		a := testutil.CreateAssignment(t, app.ledgerRepo, paid, "2024", "1000")
		require.NoError(t, app.ledgerRepo.CreatePayments(context.Background(), []ledger.Payment{{
			ID:              "p-1",
			FeeAssignmentID: a.ID,
			ReceiptNumber:   "F0000001",
			PaymentDate:     a.CreatedAt,
			AmountPaid:      testutil.Money("100"),
			Method:          ledger.MethodCash,
			IsRealized:      true,
		}}))

		rec := app.do(http.MethodDelete, "/v1/students/"+paid.ID, token)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.JSONEq(t, `{"error":"a student with recorded payments cannot be deleted"}`, rec.Body.String())

		rec = app.do(http.MethodDelete, "/v1/students/"+created.ID, token)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = app.do(http.MethodGet, "/v1/students/"+created.ID, token)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_studentApi_upgrade(t *testing.T) {
	app := setup(t)
	_, adminToken := app.superAdmin(t)
	_, viewerToken := app.clerk(t, "Viewer", "viewer@test.lk",
		user.Capability{Module: user.ModuleStudents, Action: user.ActionView},
	)
	s5 := testutil.CreateStudent(t, app.stdRepo, "A1", "Five", "5", "5s2", true)
	s11 := testutil.CreateStudent(t, app.stdRepo, "A2", "Eleven", "11", "11s2", true)
	sAL := testutil.CreateStudent(t, app.stdRepo, "A3", "Senior", student.GradeAL, "Maths", true)
	left := testutil.CreateStudent(t, app.stdRepo, "A4", "Left", "3", "3s1", false)

	rec := app.do(http.MethodPost, "/v1/students/upgrade", viewerToken, []byte(`{"academic_year":"2025"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodPost, "/v1/students/upgrade", adminToken, []byte(`{"academic_year":"25"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"academic_year":"must be a 4 digit year"}`, rec.Body.String())

	rec = app.do(http.MethodPost, "/v1/students/upgrade", adminToken, []byte(`{"academic_year":"2025"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"academic_year":"2025","upgraded":2,"unchanged":1}`, rec.Body.String())

	for _, tt := range []struct {
		std         student.Student
		grade, clss string
	}{
		{s5, "6", "6s2"},
		{s11, student.GradeAL, "11s2"},
		{sAL, student.GradeAL, "Maths"},
		{left, "3", "3s1"},
	} {
		got, err := app.stdRepo.GetStudent(context.Background(), tt.std.ID)
		require.NoError(t, err)
		assert.Equal(t, tt.grade, got.Grade, tt.std.AdmissionNumber)
		assert.Equal(t, tt.clss, got.Class, tt.std.AdmissionNumber)
	}

	// once per academic year
	rec = app.do(http.MethodPost, "/v1/students/upgrade", adminToken, []byte(`{"academic_year":"2025"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"students were already upgraded for this academic year"}`, rec.Body.String())
	got, err := app.stdRepo.GetStudent(context.Background(), s5.ID)
	require.NoError(t, err)
	assert.Equal(t, "6", got.Grade)
}
