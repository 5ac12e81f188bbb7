package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/apperror"
	"storefront/internal/dto"

	"github.com/labstack/echo/v4"
)

var statusByKind = map[apperror.Kind]int{
	apperror.KindValidation:        http.StatusBadRequest,
	apperror.KindNotFound:          http.StatusNotFound,
	apperror.KindForbidden:         http.StatusForbidden,
	apperror.KindConflict:          http.StatusConflict,
	apperror.KindInsufficientStock: http.StatusConflict,
	apperror.KindInvalidVoucher:    http.StatusUnprocessableEntity,
	apperror.KindGateway:           http.StatusBadGateway,
	apperror.KindConfiguration:     http.StatusInternalServerError,
	apperror.KindInternal:          http.StatusInternalServerError,
}

// HTTPErrorHandler renders every error as {"error", "code", "details"}.
// Internal causes are logged and never echoed to the caller.
func HTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := dto.ErrorResponse{Error: "internal server error", Code: string(apperror.KindInternal)}

		var httpErr *echo.HTTPError
		var appErr *apperror.Error
		switch {
		case errors.As(err, &httpErr):
			status = httpErr.Code
			body.Code = http.StatusText(status)
			if msg, ok := httpErr.Message.(string); ok {
				body.Error = msg
			} else {
				body.Error = http.StatusText(status)
			}
		case errors.As(err, &appErr):
			status = statusByKind[appErr.Kind]
			if status == 0 {
				status = http.StatusInternalServerError
			}
			body.Code = string(appErr.Kind)
			if status < http.StatusInternalServerError {
				body.Error = appErr.Message
				body.Details = appErr.Details
			}
			if appErr.Kind == apperror.KindGateway {
				body.Error = appErr.Message
			}
		}

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", status,
				"error", err,
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error("write error response", "error", err)
		}
	}
}
