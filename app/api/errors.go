package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"manualqa/types"
)

// ErrorHandler translates errors escaping a handler into JSON responses.
// Domain errors map onto their status codes; anything unrecognized becomes
// a 500 with a generic message so internals never leak to the client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiError, ok := err.(Error); ok {
		return c.Status(apiError.Code).JSON(apiError)
	}
	if valError, ok := err.(types.ValidationError); ok {
		return c.Status(valError.Status).JSON(valError)
	}

	var dimErr *types.DimensionMismatchError
	if errors.As(err, &dimErr) {
		return respond(c, NewError(fiber.StatusBadRequest, dimErr.Error()))
	}
	var embErr *types.EmbeddingError
	if errors.As(err, &embErr) {
		return respond(c, NewError(fiber.StatusBadGateway, embErr.Error()))
	}

	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		return respond(c, NewError(fiber.StatusBadRequest, err.Error()))
	case errors.Is(err, types.ErrNotFound):
		return respond(c, NewError(fiber.StatusNotFound, err.Error()))
	case errors.Is(err, types.ErrConflict):
		return respond(c, NewError(fiber.StatusConflict, err.Error()))
	case errors.Is(err, types.ErrTimeout):
		return respond(c, NewError(fiber.StatusGatewayTimeout, err.Error()))
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return respond(c, NewError(fiberErr.Code, fiberErr.Message))
	}
	return respond(c, NewError(fiber.StatusInternalServerError, "internal server error"))
}

func respond(c *fiber.Ctx, e Error) error {
	return c.Status(e.Code).JSON(e)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
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

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
