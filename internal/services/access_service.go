package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"emi_billing_app/internal/models"
)

// Access reasons returned by CheckCourseAccess.
const (
	AccessReasonFullPayment     = "full_payment"
	AccessReasonEmiActive       = "emi_active"
	AccessReasonEmiOverdue      = "emi_overdue"
	AccessReasonEmiLocked       = "emi_locked"
	AccessReasonPaymentRequired = "payment_required"
)

// AccessDecision is the verdict for one learner and course
type AccessDecision struct {
	HasAccess     bool              `json:"has_access"`
	Reason        string            `json:"reason"`
	EmiStatus     *models.EmiStatus `json:"emi_status,omitempty"`
	OverdueCount  int               `json:"overdue_count,omitempty"`
	OverdueAmount float64           `json:"overdue_amount,omitempty"`
}

// AccessService decides whether a learner may view course content.
// Decisions are always computed from current rows, never cached, so a
// payment or a lock takes effect on the next request.
type AccessService struct {
	db *gorm.DB
}

func NewAccessService(db *gorm.DB) *AccessService {
	return &AccessService{db: db}
}

// CheckCourseAccess evaluates, in order: a completed full payment grants
// unconditional access; an EMI plan is judged by its computed status; no
// payment record at all means payment is required.
func (s *AccessService) CheckCourseAccess(ctx context.Context, userID, courseID uint, now time.Time) (*AccessDecision, error) {
	var fullPayments int64
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("user_id = ? AND course_id = ? AND payment_type = ? AND payment_status = ?",
			userID, courseID, models.PaymentTypeFull, models.PaymentStatusCompleted).
		Count(&fullPayments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check payments: %w", err)
	}
	if fullPayments > 0 {
		return &AccessDecision{HasAccess: true, Reason: AccessReasonFullPayment}, nil
	}

	var enrollment models.Enrollment
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &AccessDecision{HasAccess: false, Reason: AccessReasonPaymentRequired}, nil
		}
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if enrollment.EmiPlanID == nil {
		// Enrolled without a plan and without a completed full payment
		// should not happen, but deny rather than guess.
		return &AccessDecision{HasAccess: false, Reason: AccessReasonPaymentRequired}, nil
	}

	var plan models.EMIPlan
	err = s.db.WithContext(ctx).Preload("Installments").First(&plan, *enrollment.EmiPlanID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch EMI plan %d: %w", *enrollment.EmiPlanID, err)
	}

	status := plan.CalculateStatus(now)
	decision := &AccessDecision{
		HasAccess:     status.HasAccessToContent,
		EmiStatus:     &status,
		OverdueCount:  status.OverdueCount,
		OverdueAmount: status.TotalOverdue,
	}

	switch {
	case plan.Status == models.PlanStatusLocked:
		decision.Reason = AccessReasonEmiLocked
	case status.HasOverduePayments:
		decision.Reason = AccessReasonEmiOverdue
	default:
		decision.Reason = AccessReasonEmiActive
	}
	return decision, nil
}
