package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/shramik/internal/services"
	"github.com/example/shramik/internal/utils"
)

var serviceStatus = []struct {
	kind   error
	status int
}{
	{services.ErrValidation, fiber.StatusBadRequest},
	{services.ErrNotFound, fiber.StatusNotFound},
	{services.ErrForbidden, fiber.StatusForbidden},
	{services.ErrApplicationNotAccepted, fiber.StatusConflict},
	{services.ErrShiftAlreadyOngoing, fiber.StatusConflict},
	{services.ErrNoActiveShift, fiber.StatusConflict},
	{services.ErrDuplicateRating, fiber.StatusConflict},
	{services.ErrOtpInvalid, fiber.StatusUnprocessableEntity},
	{services.ErrOtpExpired, fiber.StatusUnprocessableEntity},
}

// writeServiceError renders a services error as
// {success:false, error:{code, message}} with a matching status.
func writeServiceError(c *fiber.Ctx, err error) error {
	for _, m := range serviceStatus {
		if errors.Is(err, m.kind) {
			return c.Status(m.status).JSON(errorBody(m.kind.Error(), services.UserMessage(err)))
		}
	}

	utils.Logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody(services.ErrPersistence.Error(), "internal error"))
}

func errorBody(code, message string) fiber.Map {
	return fiber.Map{
		"success": false,
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	}
}

// ErrorHandler renders errors that escape handlers in the same shape.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorBody(codeForStatus(fe.Code), fe.Message))
	}
	utils.Logger.WithError(err).WithField("path", c.Path()).Error("unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody("internal_error", "internal error"))
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusForbidden:
		return "forbidden"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusConflict:
		return "conflict"
	case fiber.StatusTooManyRequests:
		return "too_many_requests"
	case fiber.StatusServiceUnavailable:
		return "unavailable"
	default:
		if status >= 500 {
			return "internal_error"
		}
		return "error"
	}
}
