package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/user"
)

type assignmentApi struct {
	svc *ledger.Service
}

func registerAssignmentAPI(g *echo.Group, svc *ledger.Service) {
	api := assignmentApi{svc: svc}

	g.GET("", api.query, requireCapability(user.ModuleFeeAssignment, user.ActionView))
	g.GET("/grades", api.grades, requireCapability(user.ModuleFeeAssignment, user.ActionView))
	g.POST("/grade", api.assignGrade, requireCapability(user.ModuleFeeAssignment, user.ActionAdd))

	g.GET("/:id", api.retrieve, requireCapability(user.ModuleFeeAssignment, user.ActionView))
	g.PUT("/:id", api.adjust, requireCapability(user.ModuleFeeAssignment, user.ActionEdit))
	g.DELETE("/:id", api.destroy, requireCapability(user.ModuleFeeAssignment, user.ActionDelete))
}

// query lists the assignments with their paid and due totals.
func (api *assignmentApi) query(ctx echo.Context) error {
	filter, err := bindAssignmentFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	balances, err := api.svc.Balances(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying fee assignments")
	}
	return ctx.JSON(http.StatusOK, balances)
}

func (api *assignmentApi) grades(ctx echo.Context) error {
	grades, err := api.svc.Grades(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing grades")
	}
	if grades == nil {
		grades = []string{}
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *assignmentApi) assignGrade(ctx echo.Context) error {
	var data ledger.AssignGrade
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignGrade")
	}
	res, err := api.svc.AssignGrade(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "assigning grade")
	}
	return ctx.JSON(http.StatusCreated, res)
}

// retrieve returns the ledger of the assignment: its payments and totals.
func (api *assignmentApi) retrieve(ctx echo.Context) error {
	l, err := api.svc.Ledger(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "building ledger")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *assignmentApi) adjust(ctx echo.Context) error {
	var data ledger.AdjustFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AdjustFee")
	}
	a, err := api.svc.AdjustFee(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adjusting fee")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteAssignment(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting fee assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
