package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	errNoFormData       = echo.NewHTTPError(http.StatusBadRequest, "no form data available")
	errHistoryDisabled  = echo.NewHTTPError(http.StatusNotFound, "generation history is not enabled")
	errGenerationFailed = errors.New("error generating document")
)

func appHTTPErrorHandler(err error, c echo.Context) {
	var code int
	var message interface{}

	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		if herr.Internal != nil {
			if inner, ok := herr.Internal.(*echo.HTTPError); ok {
				herr = inner
			}
		}
		code = herr.Code
		message = herr.Message
	} else { // any other error is a server error
		code = http.StatusInternalServerError
		message = http.StatusText(http.StatusInternalServerError)
	}

	if c.Echo().Debug {
		message = err.Error()
	}
	if m, ok := message.(string); ok {
		message = echo.Map{"error": m}
	}

	// Send response
	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, message)
		}
		if err != nil {
			c.Echo().Logger.Error(err)
		}
	}
}
