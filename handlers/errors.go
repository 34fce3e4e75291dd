package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"knowledge_backend/models"
	"knowledge_backend/pkg/logging"
	"knowledge_backend/services"
)

// ErrorHandler renders every error returned by a handler in the standard
// envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code, msg = fe.Code, fe.Message
	case errors.Is(err, services.ErrNotFound):
		code, msg = fiber.StatusNotFound, "Document not found"
	case errors.Is(err, services.ErrInvalidInput):
		code, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrIngestionInProgress):
		code, msg = fiber.StatusConflict, err.Error()
	case errors.Is(err, services.ErrFileMissing):
		code, msg = fiber.StatusGone, "Document file missing"
	case errors.Is(err, services.ErrNotConfigured):
		msg = err.Error()
	}
	if code >= fiber.StatusInternalServerError {
		logging.Logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(models.StandardResponse{Code: code, Message: msg})
}

func ok(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(models.StandardResponse{Code: status, Message: "ok", Data: data})
}
