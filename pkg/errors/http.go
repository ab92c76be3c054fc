package errors

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ToHTTPStatus converts an error code to an HTTP status code.
func ToHTTPStatus(code string) int {
	httpStatus, _ := GetCodeMapping(code)
	return httpStatus
}

// ToHTTPError converts err to an echo HTTP error.
func ToHTTPError(err error) *echo.HTTPError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if As(err, &appErr) {
		return echo.NewHTTPError(ToHTTPStatus(appErr.Code()), echo.Map{
			"error": appErr.Message(),
			"code":  appErr.Code(),
		})
	}

	if echoErr, ok := err.(*echo.HTTPError); ok {
		return echoErr
	}

	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
