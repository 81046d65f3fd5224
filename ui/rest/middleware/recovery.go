package middleware

import (
	"fmt"

	pkgError "github.com/Zer0phucks/devconsul/pkg/error"
	"github.com/Zer0phucks/devconsul/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Recovery converts handler panics into JSON error responses. Typed
// errors keep their own status code and error code.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			logrus.Errorf("[REST] Panic recovered: %v (%s %s)", recovered, ctx.Method(), ctx.Path())

			res := utils.ResponseData{
				Status:  500,
				Code:    "INTERNAL_SERVER_ERROR",
				Message: fmt.Sprintf("%v", recovered),
			}
			if generic, ok := recovered.(pkgError.GenericError); ok {
				res.Status = generic.StatusCode()
				res.Code = generic.ErrCode()
				res.Message = generic.Error()
			}

			_ = ctx.Status(res.Status).JSON(res)
		}()

		return ctx.Next()
	}
}
