package api

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/DurbeKK/maid-tg-bot/internal/service"
)

// ProcessRequest runs steps in order and stops at the first error.
func ProcessRequest[T any](e echo.Context, req *T, steps ...func(echo.Context, *T) error) error {
	for _, step := range steps {
		if err := step(e, req); err != nil {
			return err
		}
	}
	return nil
}

func bindStep[T any](e echo.Context, req *T) error {
	if err := e.Bind(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "invalid request body")
	}
	return nil
}

func validateStep[T any](e echo.Context, req *T) error {
	if err := e.Validate(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, errors.Wrap(err, "request validation failed").Error())
	}
	return nil
}

// decodeRequest binds path, query and body into req and validates it.
func decodeRequest[T any](e echo.Context, req *T) *service.Error {
	err := ProcessRequest(e, req, bindStep[T], validateStep[T])
	if err == nil {
		return nil
	}

	var se *service.Error
	if errors.As(err, &se) {
		return se
	}
	return service.NewError(service.ErrorCodeInvalidBody, err.Error())
}
