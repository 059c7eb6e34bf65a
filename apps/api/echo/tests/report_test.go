package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/report"
	"github.com/trezcool/feeledger/core/user"
	"github.com/trezcool/feeledger/tests"
)

func Test_reportApi(t *testing.T) {
	app := setup(t)
	_, token := app.clerk(t, "Cashier", "cashier@test.lk",
		user.Capability{Module: user.ModulePayments, Action: user.ActionView},
	)
	_, nobodyToken := app.clerk(t, "Nobody", "nobody@test.lk")

	s1 := testutil.CreateStudent(t, app.stdRepo, "A1", "Nimal", "6", "6s1", true)
	s2 := testutil.CreateStudent(t, app.stdRepo, "A2", "Kamal", "6", "6s2", true)
	s3 := testutil.CreateStudent(t, app.stdRepo, "A3", "Sunil", "6", "6s2", false)
	testutil.CreateAssignment(t, app.ledgerRepo, s1, "2023", "500")
	testutil.CreateAssignment(t, app.ledgerRepo, s1, "2024", "300")
	paid := testutil.CreateAssignment(t, app.ledgerRepo, s2, "2024", "300")
	testutil.CreateAssignment(t, app.ledgerRepo, s3, "2024", "300")
	require.NoError(t, app.ledgerRepo.CreatePayments(context.Background(), []ledger.Payment{{
		ID:              "p-1",
		FeeAssignmentID: paid.ID,
		ReceiptNumber:   "F0000001",
		PaymentDate:     paid.CreatedAt,
		AmountPaid:      testutil.Money("300"),
		Method:          ledger.MethodCash,
		IsRealized:      true,
	}}))
	require.NoError(t, app.ledgerRepo.SetAssignmentStatus(context.Background(), paid.ID, ledger.StatusPaid, paid.CreatedAt))

	rec := app.do(http.MethodGet, "/v1/due-reports?grade=6", nobodyToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	t.Run("due", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/due-reports?grade=6&class=ALL", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var rep report.DueReport
		unmarshal(t, rec, &rep)
		require.Len(t, rep.Students, 1, "paid up and inactive students owe nothing")
		assert.Equal(t, "A1", rep.Students[0].AdmissionNumber)
		assert.Equal(t, "800", rep.Students[0].DueAmount.String())
		assert.Equal(t, "800", rep.Total.String())

		rec = app.do(http.MethodGet, "/v1/due-reports?grade=6&class=6s2", token)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &rep)
		assert.Empty(t, rep.Students)

		rec = app.do(http.MethodGet, "/v1/due-reports?grade=14", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("generate", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/due-reports/generate", token, []byte(`{"grade":"6","class":"ALL","format":"csv"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		for format, contentType := range map[string]string{
			"pdf":  "application/pdf",
			"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		} {
			rec := app.do(http.MethodPost, "/v1/due-reports/generate", token, []byte(`{"grade":"6","class":"ALL","format":"`+format+`"}`))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, contentType, rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename=")
			assert.NotEmpty(t, rec.Body.Bytes())
		}
	})

	t.Run("email", func(t *testing.T) {
		app.mailSvc.Reset()
		rec := app.do(http.MethodPost, "/v1/due-reports/email", token, []byte(`{"grade":"6","format":"xlsx","to":["not-an-email"]}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, app.mailSvc.Sent())

		rec = app.do(http.MethodPost, "/v1/due-reports/email", token, []byte(`{"grade":"6","format":"pdf","to":["Principal@School.lk"]}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		sent := app.mailSvc.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "principal@school.lk", sent[0].To[0].Address)
		require.Len(t, sent[0].Attachments, 1)
	})
}
