package httpapi

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"go.uber.org/zap"
)

const genericServerError = "Error interno del servidor"

// NewErrorHandler maps error categories to HTTP statuses. Internal errors keep
// their localized generic message; the cause is logged, never serialized.
func NewErrorHandler(logger *zap.Logger, debug bool) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		if debug {
			fmt.Println("======= HTTP ERROR ======")
			fmt.Println(print.MaybePrettyJSON(err))
			fmt.Println("=========================")
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			status := statusFor(richErr.Category)

			body := fiber.Map{"message": richErr.Message}
			if errs, ok := richErr.Metadata["errors"]; ok && status == fiber.StatusUnprocessableEntity {
				body["errors"] = errs
			}

			if status >= fiber.StatusInternalServerError {
				logger.Error("request failed",
					zap.String("path", c.Path()),
					zap.String("text_code", richErr.TextCode),
					zap.Error(err),
				)
				if richErr.Message == "" {
					body["message"] = genericServerError
				}
			}

			return c.Status(status).JSON(body)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"message": fiberErr.Message})
		}

		logger.Error("unhandled request error",
			zap.String("path", c.Path()),
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": genericServerError,
		})
	}
}

func statusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryValidation:
		return fiber.StatusUnprocessableEntity
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
