package middleware

import (
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"emi_billing_app/internal/models"
)

// RequireAuth returns a middleware that verifies Firebase bearer tokens
// and resolves the application user. First-time callers are provisioned
// from the token claims.
func RequireAuth(authClient *auth.Client, db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authClient == nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "authentication not configured")
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			decodedToken, err := authClient.VerifyIDToken(c.Request().Context(), tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			var user models.User
			err = db.WithContext(c.Request().Context()).
				Where("firebase_uid = ?", decodedToken.UID).
				First(&user).Error
			if err == gorm.ErrRecordNotFound {
				user = models.User{FirebaseUID: decodedToken.UID}
				if email, ok := decodedToken.Claims["email"].(string); ok {
					user.Email = email
				}
				if name, ok := decodedToken.Claims["name"].(string); ok {
					user.Name = name
				}
				if err := db.WithContext(c.Request().Context()).Create(&user).Error; err != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "failed to provision user")
				}
			} else if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve user")
			}

			c.Set("userID", user.ID)
			c.Set("user", &user)

			return next(c)
		}
	}
}

// UserID extracts the authenticated user's ID from the request context
func UserID(c echo.Context) uint {
	if id, ok := c.Get("userID").(uint); ok {
		return id
	}
	return 0
}
