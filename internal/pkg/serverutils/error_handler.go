package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"deep-research-agent/pkg/validation"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var requestValidator = validator.New()

// ValidateRequest runs the struct's validate tags and returns a 400 fiber
// error listing every failed field.
func ValidateRequest(req interface{}) error {
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			messages = append(messages, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return fiber.NewError(fiber.StatusBadRequest, strings.Join(messages, "; "))
}

// StatusFor maps an error returned by a handler to an HTTP status.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	if errors.Is(err, validation.ErrInvalidInput) {
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// ErrorHandlerMiddleware turns handler errors into the response envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := StatusFor(err)
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "internal server error"
		}
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}
