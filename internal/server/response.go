package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// APIResponse is the envelope for every JSON reply.
type APIResponse struct {
	Data  any        `json:"data"`
	Error *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func success(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(APIResponse{Data: data})
}

func failure(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{Error: &ErrorInfo{
		Code:    errorCode(status),
		Message: message,
	}})
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case fiber.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	default:
		return "ERROR"
	}
}

// errorHandler renders errors that escape handlers, including fiber's own
// 404 and 405, in the envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	return failure(c, status, err.Error())
}
