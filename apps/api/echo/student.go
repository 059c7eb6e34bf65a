package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core/student"
	"github.com/trezcool/feeledger/core/user"
)

type studentApi struct {
	svc *student.Service
}

func registerStudentAPI(g *echo.Group, svc *student.Service) {
	api := studentApi{svc: svc}

	g.GET("", api.query, requireCapability(user.ModuleStudents, user.ActionView))
	g.POST("", api.create, requireCapability(user.ModuleStudents, user.ActionAdd))
	g.GET("/classes", api.classes, requireCapability(user.ModuleStudents, user.ActionView))
	g.POST("/upgrade", api.upgrade, requireCapability(user.ModuleUpgrading, user.ActionEdit))

	g.GET("/:id", api.retrieve, requireCapability(user.ModuleStudents, user.ActionView))
	g.PUT("/:id", api.update, requireCapability(user.ModuleStudents, user.ActionEdit))
	g.DELETE("/:id", api.destroy, requireCapability(user.ModuleStudents, user.ActionDelete))
}

func (api *studentApi) query(ctx echo.Context) error {
	filter, err := bindStudentFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) classes(ctx echo.Context) error {
	classes, err := api.svc.Classes(ctx.Request().Context(), ctx.QueryParam("grade"))
	if err != nil {
		return errors.Wrap(err, "listing classes")
	}
	if classes == nil {
		classes = []string{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *studentApi) upgrade(ctx echo.Context) error {
	var data student.UpgradeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpgradeRequest")
	}
	res, err := api.svc.Upgrade(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "upgrading students")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) update(ctx echo.Context) error {
	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	s, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}
