package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core/user"
)

// requireCapability lets through the users allowed to perform action in module.
func requireCapability(module user.Module, action user.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if usr.Allows(module, action) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// selfOrCapability lets users reach their own record (:id), and the others only with the capability.
func selfOrCapability(module user.Module, action user.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if ctx.Param("id") == usr.ID || usr.Allows(module, action) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
