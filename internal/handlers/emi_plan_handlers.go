package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"emi_billing_app/internal/middleware"
	"emi_billing_app/internal/models"
	"emi_billing_app/internal/services"
)

// EmiPlanHandler exposes a learner's EMI plan and its computed status
type EmiPlanHandler struct {
	db  *gorm.DB
	emi *services.EmiService
}

func NewEmiPlanHandler(db *gorm.DB, emi *services.EmiService) *EmiPlanHandler {
	return &EmiPlanHandler{db: db, emi: emi}
}

// GetPlanForCourse returns the caller's plan for a course with schedule
// and computed status
func (h *EmiPlanHandler) GetPlanForCourse(c echo.Context) error {
	courseID, err := strconv.ParseUint(c.Param("courseID"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid course ID")
	}

	var plan models.EMIPlan
	err = h.db.WithContext(c.Request().Context()).
		Preload("Installments").
		Preload("LockHistory").
		Where("user_id = ? AND course_id = ?", middleware.UserID(c), uint(courseID)).
		First(&plan).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return services.NotFoundError("no EMI plan for course %d", courseID)
		}
		return err
	}

	status := plan.CalculateStatus(time.Now())

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"plan":   plan,
			"status": status,
		},
	})
}

// ListPlans returns all of the caller's plans with computed status
func (h *EmiPlanHandler) ListPlans(c echo.Context) error {
	var plans []models.EMIPlan
	err := h.db.WithContext(c.Request().Context()).
		Preload("Installments").
		Where("user_id = ?", middleware.UserID(c)).
		Order("created_at desc").
		Find(&plans).Error
	if err != nil {
		return err
	}

	now := time.Now()
	items := make([]map[string]interface{}, 0, len(plans))
	for i := range plans {
		items = append(items, map[string]interface{}{
			"plan":   plans[i],
			"status": plans[i].CalculateStatus(now),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    items,
	})
}

// AdminHandler exposes operational repair and sweep endpoints
type AdminHandler struct {
	emi *services.EmiService
}

func NewAdminHandler(emi *services.EmiService) *AdminHandler {
	return &AdminHandler{emi: emi}
}

type repairRequest struct {
	UserID   uint `json:"user_id"`
	CourseID uint `json:"course_id"`
}

// RepairEmiStatus recomputes one plan's status from its installments and
// fixes drift in the plan and enrollment rows
func (h *AdminHandler) RepairEmiStatus(c echo.Context) error {
	var req repairRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == 0 || req.CourseID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and course_id are required")
	}

	result, err := h.emi.FixEmiStatus(c.Request().Context(), req.UserID, req.CourseID, time.Now())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    result,
	})
}

// RepairAllEmiStatuses runs the repair across every active or locked plan
func (h *AdminHandler) RepairAllEmiStatuses(c echo.Context) error {
	result, err := h.emi.FixAllEmiInconsistencies(c.Request().Context(), time.Now())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    result,
	})
}

// RunOverdueSweep triggers the overdue sweep immediately, outside its
// schedule
func (h *AdminHandler) RunOverdueSweep(c echo.Context) error {
	result, err := h.emi.ProcessOverdueEmis(c.Request().Context(), time.Now())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    result,
	})
}
