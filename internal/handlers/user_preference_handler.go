package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"emi_billing_app/internal/middleware"
	"emi_billing_app/internal/models"
)

// UserPreferenceHandler manages the caller's notification channel settings
type UserPreferenceHandler struct {
	db *gorm.DB
}

func NewUserPreferenceHandler(db *gorm.DB) *UserPreferenceHandler {
	return &UserPreferenceHandler{db: db}
}

// GetPreference returns the caller's notification preference, with
// defaults when none is stored yet
func (h *UserPreferenceHandler) GetPreference(c echo.Context) error {
	userID := middleware.UserID(c)

	var pref models.UserNotifPreference
	err := h.db.WithContext(c.Request().Context()).Where("user_id = ?", userID).First(&pref).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return err
		}
		pref = models.UserNotifPreference{
			UserID:             userID,
			Channel:            models.NotificationChannelEmail,
			WhatsappTargetType: models.WhatsappTargetTypePersonal,
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    pref,
	})
}

type updatePreferenceRequest struct {
	Channel            string `json:"channel"`
	WhatsappTargetType string `json:"whatsapp_target_type"`
	WhatsappGroupID    string `json:"whatsapp_group_id"`
}

// UpdatePreference upserts the caller's notification preference
func (h *UserPreferenceHandler) UpdatePreference(c echo.Context) error {
	userID := middleware.UserID(c)

	var req updatePreferenceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	channel := models.NotificationChannel(req.Channel)
	switch channel {
	case models.NotificationChannelEmail, models.NotificationChannelWhatsapp, models.NotificationChannelNone:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification channel")
	}

	var pref models.UserNotifPreference
	err := h.db.WithContext(c.Request().Context()).Where("user_id = ?", userID).First(&pref).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return err
		}
		pref = models.UserNotifPreference{UserID: userID}
	}

	pref.Channel = channel
	if req.WhatsappTargetType != "" {
		pref.WhatsappTargetType = req.WhatsappTargetType
	}
	pref.WhatsappGroupID = req.WhatsappGroupID

	if err := h.db.WithContext(c.Request().Context()).Save(&pref).Error; err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    pref,
	})
}
