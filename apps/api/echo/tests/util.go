package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/feeledger/apps/api/echo"
	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/report"
	"github.com/trezcool/feeledger/core/student"
	"github.com/trezcool/feeledger/core/user"
	"github.com/trezcool/feeledger/services/email"
	"github.com/trezcool/feeledger/services/logger"
	"github.com/trezcool/feeledger/storage/database/dummy"
	"github.com/trezcool/feeledger/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// testApp is a server backed by an in-memory database.
type testApp struct {
	Server
	conf       *core.Config
	usrRepo    user.Repository
	stdRepo    student.Repository
	ledgerRepo ledger.Repository
	mailSvc    *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := testutil.NewConfig()
	validate, translator := testutil.NewValidator()

	// set up DB & repos
	db := dummydb.Open()
	app := &testApp{
		conf:       conf,
		usrRepo:    dummydb.NewUserRepository(db),
		stdRepo:    dummydb.NewStudentRepository(db),
		ledgerRepo: dummydb.NewLedgerRepository(db),
		mailSvc:    emailsvc.NewConsoleServiceMock(conf),
	}

	// set up services
	ledgerSvc := ledger.NewService(app.ledgerRepo, validate, ledger.ReceiptSequence{
		Prefix: conf.Ledger.ReceiptPrefix,
		Width:  conf.Ledger.ReceiptWidth,
	})
	app.Server = NewServer(&Options{
		Conf:           conf,
		Logger:         logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc: user.NewService(app.usrRepo, user.Options{
			Validate:    validate,
			MailSvc:     app.mailSvc,
			Tokens:      user.NewResetTokens(conf.SecretKey, conf.Server.PasswordResetTimeoutDelta),
			FrontendURL: conf.Server.FrontendURL,
			AppName:     conf.AppName,
		}),
		StudentSvc: student.NewService(app.stdRepo, validate),
		LedgerSvc:  ledgerSvc,
		ReportSvc: report.NewService(ledgerSvc, report.Options{
			Validate:   validate,
			MailSvc:    app.mailSvc,
			SchoolName: conf.Report.SchoolName,
			PageSize:   conf.Report.PageSize,
			Currency:   conf.Ledger.Currency,
		}),
	})
	return app
}

// superAdmin creates a super admin and returns them with their token.
func (app *testApp) superAdmin(t *testing.T) (user.User, string) {
	usr := testutil.CreateUser(t, app.usrRepo, "Admin", "admin@test.lk", "", user.SuperAdmin{}, true)
	return usr, app.getToken(t, usr)
}

// clerk creates an active role-based user holding caps.
func (app *testApp) clerk(t *testing.T, name, email string, caps ...user.Capability) (user.User, string) {
	usr := testutil.CreateUser(t, app.usrRepo, name, email, "", user.RoleBased{Grants: user.NewCapabilitySet(caps...)}, true)
	return usr, app.getToken(t, usr)
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(app.conf, GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// do serves the request and returns the recorded response.
func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
