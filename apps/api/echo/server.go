package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/report"
	"github.com/trezcool/feeledger/core/student"
	"github.com/trezcool/feeledger/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
		// SignalShutdown is called when a handler hits a core shutdown error.
		SignalShutdown func()

		UserSvc    *user.Service
		StudentSvc *student.Service
		LedgerSvc  *ledger.Service
		ReportSvc  *report.Service
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {}
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{conf.Server.FrontendURL},
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	}))

	s.app.Validator = requestValidator{validate: s.opts.Validate}
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))
	authed := []echo.MiddlewareFunc{jwt, contextUserMiddleware(s.opts.UserSvc)}

	registerAuthAPI(v1, authed, conf, s.opts.UserSvc)
	registerUserAPI(v1.Group("/users", authed...), s.opts.UserSvc)
	registerStudentAPI(v1.Group("/students", authed...), s.opts.StudentSvc)
	registerAssignmentAPI(v1.Group("/fee-assignments", authed...), s.opts.LedgerSvc)
	registerPaymentAPI(v1.Group("/payments", authed...), s.opts.LedgerSvc, s.opts.StudentSvc)
	registerReportAPI(v1.Group("/due-reports", authed...), s.opts.ReportSvc)
}

// requestValidator plugs the app's validator into echo.Context.Validate.
type requestValidator struct {
	validate *validator.Validate
}

func (rv requestValidator) Validate(i interface{}) error {
	return rv.validate.Struct(i)
}

func (s *server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.opts.Logger.Fatal("server stopped", err)
	}
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
