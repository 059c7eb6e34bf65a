package report

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/student"
)

func balance(std student.Student, due string) ledger.Balance {
	return ledger.Balance{
		Assignment: ledger.FeeAssignment{StudentID: std.ID, Student: std},
		Due:        decimal.RequireFromString(due),
	}
}

func sampleReport() DueReport {
	a := student.Student{ID: "1", AdmissionNumber: "A1", Name: "Nimal", Grade: "6", Class: "6s2"}
	b := student.Student{ID: "2", AdmissionNumber: "A2", Name: "Amal", Grade: "6", Class: "6s2"}
	c := student.Student{ID: "3", AdmissionNumber: "A3", Name: "Kamal", Grade: "6", Class: "6s1"}
	rows := Rows([]ledger.Balance{balance(a, "500"), balance(b, "100"), balance(a, "300"), balance(c, "250.5")})
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.DueAmount)
	}
	return DueReport{
		Grade:       "6",
		Class:       AllClasses,
		GeneratedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Students:    rows,
		Total:       total,
	}
}

func TestRows(t *testing.T) {
	a := student.Student{ID: "1", AdmissionNumber: "A1", Name: "Nimal", Grade: "10", Class: "10s1"}
	b := student.Student{ID: "2", AdmissionNumber: "A2", Name: "Amal", Grade: "9", Class: "9s1"}
	c := student.Student{ID: "3", AdmissionNumber: "A3", Name: "Paid Up", Grade: "9", Class: "9s1"}

	rows := Rows([]ledger.Balance{balance(a, "500"), balance(b, "100"), balance(a, "300"), balance(c, "0")})
	require.Len(t, rows, 2, "students owing nothing are left out")
	assert.Equal(t, "A2", rows[0].AdmissionNumber, "grade 9 sorts before grade 10")
	assert.Equal(t, "A1", rows[1].AdmissionNumber)
	assert.Equal(t, "800", rows[1].DueAmount.String())
}

func TestGroupByClass(t *testing.T) {
	groups := GroupByClass(sampleReport().Students)
	require.Len(t, groups, 2)
	assert.Equal(t, "6s1", groups[0].Class)
	assert.Equal(t, "250.5", groups[0].Total.String())
	assert.Equal(t, "6s2", groups[1].Class)
	require.Len(t, groups[1].Students, 2)
	assert.Equal(t, "Amal", groups[1].Students[0].Name)
	assert.Equal(t, "900", groups[1].Total.String())
}

func TestRenderXLSX(t *testing.T) {
	rep := sampleReport()
	var buf bytes.Buffer
	require.NoError(t, RenderXLSX(&buf, rep, RenderOptions{SchoolName: "Test School", Currency: "Rs."}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Due Report")
	require.NoError(t, err)
	require.Len(t, rows, 3+len(rep.Students)+1)
	assert.Equal(t, "Due Report - Grade 6 - Class ALL", rows[0][0])
	assert.Equal(t, xlsxHeaders, rows[2])
	assert.Equal(t, "A3", rows[3][0])

	last := rows[len(rows)-1]
	assert.Equal(t, "Total", last[4])
	assert.Equal(t, "1150.5", last[5])
}

func TestRenderPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPDF(&buf, sampleReport(), RenderOptions{SchoolName: "Test School", PageSize: "A4", Currency: "Rs."}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	// long reports paginate
	many := sampleReport()
	many.Students = nil
	for i := 0; i < 120; i++ {
		many.Students = append(many.Students, DueRow{AdmissionNumber: fmt.Sprintf("B%03d", i), Name: "Student", Class: "6s1", DueAmount: decimal.NewFromInt(10)})
	}
	buf.Reset()
	require.NoError(t, RenderPDF(&buf, many, RenderOptions{PageSize: "A4"}))
	assert.True(t, bytes.Contains(buf.Bytes(), []byte("/Type /Pages")))

	buf.Reset()
	require.NoError(t, RenderPDF(&buf, DueReport{Grade: "6", Class: AllClasses}, RenderOptions{PageSize: "A4"}))
	assert.NotZero(t, buf.Len())
}
