package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gopkg.in/go-playground/validator.v9"

	"github.com/icon-project/goagree/common/errors"
)

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func statusOf(code errors.Code) int {
	switch code {
	case errors.NotFoundError:
		return http.StatusNotFound
	case errors.IllegalArgumentError, errors.InvalidMessageError, errors.UnknownAuthorityError,
		errors.InvalidSignatureError, errors.StaleMessageError:
		return http.StatusBadRequest
	case errors.InvalidStateError, errors.AbortedError:
		return http.StatusConflict
	case errors.TimeoutError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorHandler renders coded errors as ErrorResponse. Errors raised by
// echo itself keep the default rendering.
func HTTPErrorHandler(err error, c echo.Context) {
	if _, ok := err.(*echo.HTTPError); ok {
		c.Echo().DefaultHTTPErrorHandler(err, c)
		return
	}
	if _, ok := err.(validator.ValidationErrors); ok {
		err = errors.IllegalArgumentError.Wrap(err, "invalid request")
	}
	if c.Response().Committed {
		return
	}
	code := errors.CodeOf(err)
	status := statusOf(code)
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("request %s failed err=%+v", c.Path(), err)
	}
	if err := c.JSON(status, &ErrorResponse{Code: int(code), Message: err.Error()}); err != nil {
		c.Logger().Error(err)
	}
}
