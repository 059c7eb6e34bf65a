package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core/report"
	"github.com/trezcool/feeledger/core/user"
)

type reportApi struct {
	svc *report.Service
}

func registerReportAPI(g *echo.Group, svc *report.Service) {
	api := reportApi{svc: svc}

	view := requireCapability(user.ModulePayments, user.ActionView)
	g.GET("", api.due, view)
	g.POST("/generate", api.generate, view)
	g.POST("/email", api.email, view)
}

func (api *reportApi) due(ctx echo.Context) error {
	rep, err := api.svc.Due(ctx.Request().Context(), bindDueFilter(ctx))
	if err != nil {
		return errors.Wrap(err, "building due report")
	}
	return ctx.JSON(http.StatusOK, rep)
}

// generate downloads the due report as a PDF or XLSX file.
func (api *reportApi) generate(ctx echo.Context) error {
	var data report.GenerateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}
	doc, err := api.svc.Generate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "generating due report")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.Filename))
	return ctx.Blob(http.StatusOK, doc.ContentType, doc.Content)
}

func (api *reportApi) email(ctx echo.Context) error {
	var data report.EmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailRequest")
	}
	if err := api.svc.Email(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "emailing due report")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "The due report has been sent."})
}
