package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"emi_billing_app/internal/services"
)

// RequireCourseAccess returns a middleware that gates content routes on
// the access decision for the :courseID path parameter. Denials carry the
// verdict so the client can explain what to pay.
func RequireCourseAccess(access *services.AccessService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := UserID(c)
			if userID == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			courseID, err := strconv.ParseUint(c.Param("courseID"), 10, 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid course ID")
			}

			decision, err := access.CheckCourseAccess(c.Request().Context(), userID, uint(courseID), time.Now())
			if err != nil {
				return err
			}

			if !decision.HasAccess {
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"success": false,
					"error":   "course access denied",
					"access":  decision,
				})
			}

			c.Set("accessDecision", decision)
			return next(c)
		}
	}
}
