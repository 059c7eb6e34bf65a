package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/student"
	"github.com/trezcool/feeledger/core/user"
)

type paymentApi struct {
	svc        *ledger.Service
	studentSvc *student.Service
}

func registerPaymentAPI(g *echo.Group, svc *ledger.Service, studentSvc *student.Service) {
	api := paymentApi{svc: svc, studentSvc: studentSvc}

	view := requireCapability(user.ModulePayments, user.ActionView)
	g.GET("", api.query, view)
	g.POST("", api.create, requireCapability(user.ModulePayments, user.ActionAdd))

	// payment entry helpers
	g.GET("/search-students", api.searchStudents, view)
	g.GET("/student-assignments/:studentId", api.studentAssignments, view)

	g.GET("/:id", api.retrieve, view)
	g.PUT("/:id", api.update, requireCapability(user.ModulePayments, user.ActionEdit))
	g.DELETE("/:id", api.destroy, requireCapability(user.ModulePayments, user.ActionDelete))
	g.POST("/:id/cancel", api.cancel, requireCapability(user.ModulePayments, user.ActionEdit))
}

func (api *paymentApi) query(ctx echo.Context) error {
	filter, err := bindPaymentFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	payments, err := api.svc.QueryPayments(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []ledger.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

// create records a payment split over the given assignments; one payment is returned per assignment paid.
func (api *paymentApi) create(ctx echo.Context) error {
	var data ledger.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	payments, err := api.svc.RecordPayment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, payments)
}

func (api *paymentApi) searchStudents(ctx echo.Context) error {
	students, err := api.studentSvc.Search(
		ctx.Request().Context(), ctx.QueryParam("search"), ctx.QueryParam("grade"), ctx.QueryParam("class"),
	)
	if err != nil {
		return errors.Wrap(err, "searching students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

// studentAssignments lists what the student still owes, oldest academic year first.
func (api *paymentApi) studentAssignments(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	s, err := api.studentSvc.Get(reqCtx, ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	balances, err := api.svc.OutstandingForStudent(reqCtx, s.ID)
	if err != nil {
		return errors.Wrap(err, "listing outstanding assignments")
	}
	return ctx.JSON(http.StatusOK, balances)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.GetPayment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding payment by ID")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) update(ctx echo.Context) error {
	var data ledger.UpdatePayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePayment")
	}
	p, err := api.svc.UpdatePayment(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating payment")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) cancel(ctx echo.Context) error {
	var data ledger.CancelPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CancelPayment")
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, err := api.svc.CancelPayment(ctx.Request().Context(), ctx.Param("id"), data, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "cancelling payment")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeletePayment(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting payment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
