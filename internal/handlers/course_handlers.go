package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"emi_billing_app/internal/middleware"
	"emi_billing_app/internal/models"
	"emi_billing_app/internal/services"
)

const courseEmiCacheTTL = 10 * time.Minute

// CourseHandler exposes course catalog and content endpoints
type CourseHandler struct {
	db     *gorm.DB
	cache  *services.RedisCache
	access *services.AccessService
}

func NewCourseHandler(db *gorm.DB, cache *services.RedisCache, access *services.AccessService) *CourseHandler {
	return &CourseHandler{db: db, cache: cache, access: access}
}

// courseEmiDetails is the public EMI offer for one course
type courseEmiDetails struct {
	CourseID      uint    `json:"course_id"`
	CourseName    string  `json:"course_name"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	EmiAvailable  bool    `json:"emi_available"`
	MonthlyAmount float64 `json:"monthly_amount,omitempty"`
	TotalEmis     int     `json:"total_emis,omitempty"`
	TotalAmount   float64 `json:"total_amount,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// GetEmiDetails returns a course's price and EMI offer. Public, cached.
func (h *CourseHandler) GetEmiDetails(c echo.Context) error {
	courseID, err := strconv.ParseUint(c.Param("courseID"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid course ID")
	}

	ctx := c.Request().Context()
	cacheKey := fmt.Sprintf("course:%d:emi_details", courseID)

	fetch := func() (courseEmiDetails, error) {
		var course models.Course
		if err := h.db.WithContext(ctx).First(&course, uint(courseID)).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return courseEmiDetails{}, services.NotFoundError("course %d not found", courseID)
			}
			return courseEmiDetails{}, err
		}

		details := courseEmiDetails{
			CourseID:   course.ID,
			CourseName: course.Name,
			Price:      course.Price,
			Currency:   course.Currency,
		}
		if terms, err := course.EmiTerms(); err == nil {
			details.EmiAvailable = true
			details.MonthlyAmount = terms.MonthlyAmount
			details.TotalEmis = terms.Months
			details.TotalAmount = terms.TotalAmount
			details.Notes = course.Emi.Notes
		}
		return details, nil
	}

	var details courseEmiDetails
	if h.cache != nil {
		details, err = services.GetOrSet(h.cache, ctx, cacheKey, courseEmiCacheTTL, fetch)
	} else {
		details, err = fetch()
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    details,
	})
}

// CheckAccess returns the caller's access verdict for a course
func (h *CourseHandler) CheckAccess(c echo.Context) error {
	courseID, err := strconv.ParseUint(c.Param("courseID"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid course ID")
	}

	decision, err := h.access.CheckCourseAccess(c.Request().Context(), middleware.UserID(c), uint(courseID), time.Now())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    decision,
	})
}

// GetContent serves course content. The access middleware has already
// admitted the caller by the time this runs.
func (h *CourseHandler) GetContent(c echo.Context) error {
	courseID, err := strconv.ParseUint(c.Param("courseID"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid course ID")
	}

	var course models.Course
	if err := h.db.WithContext(c.Request().Context()).First(&course, uint(courseID)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return services.NotFoundError("course %d not found", courseID)
		}
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"course_id":   course.ID,
			"course_name": course.Name,
			"duration":    course.Duration,
			"access":      c.Get("accessDecision"),
		},
	})
}
