package api

import (
	"errors"
	"fmt"
	"log/slog"

	"chatanything/types"

	"github.com/gofiber/fiber/v2"
)

func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiErr Error
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Code).JSON(apiErr)
	}
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}

	apiErr = NewError(statusFor(err), err.Error())
	slog.Default().Error("request failed",
		"method", c.Method(),
		"path", c.Path(),
		"code", apiErr.Code,
		"err", apiErr.Message,
	)
	return c.Status(apiErr.Code).JSON(apiErr)
}

func statusFor(err error) int {
	var (
		fiberErr      *fiber.Error
		extractErr    *types.ExtractionError
		storageErr    *types.StorageError
		searchErr     *types.SearchServiceError
		completionErr *types.CompletionServiceError
	)
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &extractErr):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &storageErr), errors.As(err, &searchErr), errors.As(err, &completionErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrUnsupportedFile(filename string, c types.Category) Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: fmt.Sprintf("file %q is not a valid %s upload (accepted: %v)", filename, c, c.Extensions()),
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
