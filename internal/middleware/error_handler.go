package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"emi_billing_app/internal/services"
)

// CustomErrorHandler maps service errors to JSON responses. Validation
// and signature failures are client errors, gateway failures surface as
// bad gateway so callers know to retry.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "something went wrong"

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		}
	} else {
		switch services.KindOf(err) {
		case services.ErrKindValidation:
			code = http.StatusBadRequest
			message = err.Error()
		case services.ErrKindSignature:
			code = http.StatusBadRequest
			message = err.Error()
		case services.ErrKindNotFound:
			code = http.StatusNotFound
			message = err.Error()
		case services.ErrKindForbidden:
			code = http.StatusForbidden
			message = err.Error()
		case services.ErrKindGateway:
			code = http.StatusBadGateway
			message = err.Error()
		}
	}

	if code == http.StatusInternalServerError {
		c.Logger().Error(err)
	}

	_ = c.JSON(code, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
