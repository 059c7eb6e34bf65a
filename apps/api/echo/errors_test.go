package echoapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	logsvc "github.com/trezcool/feeledger/services/logger"
	"github.com/trezcool/feeledger/tests"
)

func Test_appHTTPErrorHandler(t *testing.T) {
	conf := testutil.NewConfig()
	_, translator := testutil.NewValidator()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	var shutdowns int
	handler := newAppHTTPErrorHandler(logger, translator, func() { shutdowns++ })

	tests := []struct {
		name     string
		err      error
		debug    bool
		wantCode int
		wantBody string
	}{
		{"http error", errHttpForbidden, false, http.StatusForbidden, `{"error":"permission denied"}`},
		{"malformed body date", echo.NewHTTPError(http.StatusBadRequest, "parse error").SetInternal(&json.UnmarshalTypeError{Type: reflect.TypeOf(core.Date{}), Field: "payment_date"}), false, http.StatusBadRequest, `{"payment_date":"must be a date (YYYY-MM-DD)"}`},
		{"field errors", core.NewValidationError(nil, core.FieldError{Field: "amount", Error: "too low"}), false, http.StatusBadRequest, `{"amount":"too low"}`},
		{"rule", errors.Wrap(core.NewRuleError("nope"), "doing x"), false, http.StatusUnprocessableEntity, `{"error":"nope"}`},
		{"not found", core.NewNotFoundError("student not found"), false, http.StatusNotFound, `{"error":"student not found"}`},
		{"forbidden", core.NewForbiddenError("cannot grant"), false, http.StatusForbidden, `{"error":"cannot grant"}`},
		{"conflict", core.NewConflictError(errors.New("taken")), false, http.StatusConflict, `{"error":"taken"}`},
		{"internal", errors.New("db down"), false, http.StatusInternalServerError, `{"error":"Internal Server Error"}`},
		{"internal in debug", errors.New("db down"), true, http.StatusInternalServerError, `{"error":"db down"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Debug = tt.debug
			rec := httptest.NewRecorder()
			ctx := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			handler(tt.err, ctx)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
	assert.Zero(t, shutdowns)

	e := echo.New()
	ctx := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	handler(errors.Wrap(core.NewShutdownError("database connection closed"), "beginning transaction"), ctx)
	assert.Equal(t, 1, shutdowns)
}

type recordingLogger struct {
	core.Logger
	args [][]interface{}
}

func (l *recordingLogger) Error(msg string, args ...interface{}) {
	l.args = append(l.args, args)
}

func Test_appHTTPErrorHandler_logsLedgerContext(t *testing.T) {
	_, translator := testutil.NewValidator()
	logger := &recordingLogger{}
	handler := newAppHTTPErrorHandler(logger, translator, func() {})

	e := echo.New()
	ctx := e.NewContext(httptest.NewRequest(http.MethodPost, "/v1/payments/p-1/cancel", nil), httptest.NewRecorder())
	ctx.SetPath("/v1/payments/:id/cancel")
	ctx.SetParamNames("id")
	ctx.SetParamValues("p-1")

	handler(errors.New("db down"), ctx)
	require.Len(t, logger.args, 1)
	var fields core.Fields
	for _, arg := range logger.args[0] {
		if f, ok := arg.(core.Fields); ok {
			fields = f
		}
	}
	assert.Equal(t, core.Fields{"route": "/v1/payments/:id/cancel", "payment_id": "p-1"}, fields)

	// handled errors are not logged
	handler(core.NewRuleError("already cancelled"), ctx)
	assert.Len(t, logger.args, 1)
}
