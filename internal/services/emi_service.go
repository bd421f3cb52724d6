package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"emi_billing_app/internal/models"
)

const (
	// GracePeriodDays is the window after an installment's due date during
	// which non-payment does not yet count as "late" for access purposes.
	GracePeriodDays = 3

	// ReminderWindowDays is the look-ahead window for payment reminders.
	ReminderWindowDays = 5
)

// EmiService owns the installment plan lifecycle: schedule generation,
// the overdue sweep, lock/unlock transitions and drift repair.
type EmiService struct {
	db       *gorm.DB
	notifier Notifier
}

func NewEmiService(db *gorm.DB, notifier Notifier) *EmiService {
	return &EmiService{db: db, notifier: notifier}
}

// BuildInstallments generates the installment sequence for a plan.
// Installment 1 is already paid (captured at purchase time) with its due
// date at the purchase instant; installments 2..N fall on the chosen due
// day of subsequent months, clamped to shorter months, each with a grace
// period of GracePeriodDays after its due date.
func BuildInstallments(terms models.EmiTerms, dueDay int, purchasedAt time.Time) []models.Installment {
	installments := make([]models.Installment, 0, terms.Months)

	paidAt := purchasedAt
	installments = append(installments, models.Installment{
		Sequence:    1,
		MonthName:   MonthName(purchasedAt),
		DueDate:     purchasedAt,
		Amount:      terms.MonthlyAmount,
		Status:      models.InstallmentStatusPaid,
		PaymentDate: &paidAt,
	})

	for seq := 2; seq <= terms.Months; seq++ {
		dueDate := NextDueDate(purchasedAt, dueDay, seq-1)
		installments = append(installments, models.Installment{
			Sequence:       seq,
			MonthName:      MonthName(dueDate),
			DueDate:        dueDate,
			GracePeriodEnd: dueDate.Add(GracePeriodDays * 24 * time.Hour),
			Amount:         terms.MonthlyAmount,
			Status:         models.InstallmentStatusPending,
		})
	}

	return installments
}

// CreateEmiPlan persists a new plan for the learner and enrolls them with
// active access, in one transaction so a reader never observes a plan
// without its owning enrollment.
func (s *EmiService) CreateEmiPlan(ctx context.Context, user *models.User, course *models.Course, dueDay int, terms models.EmiTerms, purchasedAt time.Time) (*models.EMIPlan, error) {
	if dueDay < 1 || dueDay > 31 {
		return nil, ValidationError("invalid EMI due day %d (must be 1-31)", dueDay)
	}
	if terms.MonthlyAmount*float64(terms.Months) != terms.TotalAmount {
		return nil, ValidationError("EMI terms do not reconcile: %d x %.2f != %.2f",
			terms.Months, terms.MonthlyAmount, terms.TotalAmount)
	}

	plan := &models.EMIPlan{
		UserID:         user.ID,
		CourseID:       course.ID,
		CourseName:     course.Name,
		TotalAmount:    terms.TotalAmount,
		MonthlyAmount:  terms.MonthlyAmount,
		EmiPeriod:      terms.Months,
		SelectedDueDay: dueDay,
		StartDate:      purchasedAt,
		Status:         models.PlanStatusActive,
		Installments:   BuildInstallments(terms, dueDay, purchasedAt),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(plan).Error; err != nil {
			return fmt.Errorf("failed to create EMI plan: %w", err)
		}

		enrollment := models.Enrollment{
			UserID:       user.ID,
			CourseID:     course.ID,
			CourseName:   course.Name,
			EmiPlanID:    &plan.ID,
			AccessStatus: models.AccessStatusActive,
		}
		if err := tx.Create(&enrollment).Error; err != nil {
			return fmt.Errorf("failed to create enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return plan, nil
}

// MarkInstallmentPaid sets one specific installment paid, gated on its
// current status so a duplicate reconciliation is a no-op.
func (s *EmiService) MarkInstallmentPaid(ctx context.Context, planID uint, sequence int, paidAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Installment{}).
		Where("emi_plan_id = ? AND sequence = ? AND status <> ?", planID, sequence, models.InstallmentStatusPaid).
		Updates(map[string]interface{}{
			"status":       models.InstallmentStatusPaid,
			"payment_date": paidAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark installment %d/%d paid: %w", planID, sequence, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// PlanSweepResult reports what one sweep pass changed on a single plan
type PlanSweepResult struct {
	MarkedLate int  `json:"marked_late"`
	Locked     bool `json:"locked"`
	Unlocked   bool `json:"unlocked"`
}

// Changed reports whether the pass wrote anything.
func (r PlanSweepResult) Changed() bool {
	return r.MarkedLate > 0 || r.Locked || r.Unlocked
}

// ProcessPlan advances one plan's time-dependent state:
//  1. pending installments past their grace period become late
//  2. an active plan with overdue payments is locked
//  3. a locked plan with no overdue payments is unlocked
//
// Rules 2 and 3 are mutually exclusive per pass, and a plan already in the
// correct state performs no write.
func (s *EmiService) ProcessPlan(ctx context.Context, plan *models.EMIPlan, now time.Time) (PlanSweepResult, error) {
	result := PlanSweepResult{}

	var lateIDs []uint
	for i := range plan.Installments {
		inst := &plan.Installments[i]
		if inst.Status == models.InstallmentStatusPending && now.After(inst.GracePeriodEnd) {
			lateIDs = append(lateIDs, inst.ID)
			inst.Status = models.InstallmentStatusLate
		}
	}
	if len(lateIDs) > 0 {
		err := s.db.WithContext(ctx).Model(&models.Installment{}).
			Where("id IN ? AND status = ?", lateIDs, models.InstallmentStatusPending).
			Update("status", models.InstallmentStatusLate).Error
		if err != nil {
			return result, fmt.Errorf("failed to mark installments late for plan %d: %w", plan.ID, err)
		}
		result.MarkedLate = len(lateIDs)
	}

	status := plan.CalculateStatus(now)

	if plan.Status == models.PlanStatusActive && status.HasOverduePayments {
		reason := fmt.Sprintf("Auto-locked: %d overdue EMI(s)", status.OverdueCount)
		if err := s.lockPlan(ctx, plan, status, reason, now); err != nil {
			return result, err
		}
		result.Locked = true
	} else if plan.Status == models.PlanStatusLocked && !status.HasOverduePayments {
		if err := s.unlockPlan(ctx, plan, now); err != nil {
			return result, err
		}
		result.Unlocked = true
	}

	return result, nil
}

func (s *EmiService) lockPlan(ctx context.Context, plan *models.EMIPlan, status models.EmiStatus, reason string, now time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(plan).Update("status", models.PlanStatusLocked).Error; err != nil {
			return err
		}
		entry := models.LockHistoryEntry{
			EmiPlanID:    plan.ID,
			LockDate:     now,
			OverdueCount: status.OverdueCount,
			Reason:       reason,
			LockedBy:     "system",
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return tx.Model(&models.Enrollment{}).
			Where("user_id = ? AND course_id = ?", plan.UserID, plan.CourseID).
			Update("access_status", models.AccessStatusLocked).Error
	})
	if err != nil {
		return fmt.Errorf("failed to lock plan %d: %w", plan.ID, err)
	}
	plan.Status = models.PlanStatusLocked

	s.notifier.Notify(ctx, plan.UserID, NotificationKindLock, NotificationData{
		"course_name":    plan.CourseName,
		"overdue_count":  status.OverdueCount,
		"overdue_amount": status.TotalOverdue,
	})
	return nil
}

func (s *EmiService) unlockPlan(ctx context.Context, plan *models.EMIPlan, now time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(plan).Update("status", models.PlanStatusActive).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.LockHistoryEntry{}).
			Where("emi_plan_id = ? AND unlock_date IS NULL", plan.ID).
			Update("unlock_date", now).Error; err != nil {
			return err
		}
		return tx.Model(&models.Enrollment{}).
			Where("user_id = ? AND course_id = ?", plan.UserID, plan.CourseID).
			Update("access_status", models.AccessStatusActive).Error
	})
	if err != nil {
		return fmt.Errorf("failed to unlock plan %d: %w", plan.ID, err)
	}
	plan.Status = models.PlanStatusActive

	s.notifier.Notify(ctx, plan.UserID, NotificationKindUnlock, NotificationData{
		"course_name": plan.CourseName,
	})
	return nil
}

// SweepResult summarizes one full overdue pass
type SweepResult struct {
	Processed  int `json:"processed"`
	MarkedLate int `json:"marked_late"`
	Locked     int `json:"locked"`
	Unlocked   int `json:"unlocked"`
	Errors     int `json:"errors"`
}

// ProcessOverdueEmis is the sweep: it advances every active or locked
// plan. A failure on one plan is logged and counted, never aborts the
// rest. Running it twice with no elapsed time produces no extra writes.
func (s *EmiService) ProcessOverdueEmis(ctx context.Context, now time.Time) (SweepResult, error) {
	result := SweepResult{}

	var plans []models.EMIPlan
	err := s.db.WithContext(ctx).
		Preload("Installments").
		Preload("LockHistory").
		Where("status IN ?", []models.PlanStatus{models.PlanStatusActive, models.PlanStatusLocked}).
		Find(&plans).Error
	if err != nil {
		return result, fmt.Errorf("failed to fetch plans for sweep: %w", err)
	}

	for i := range plans {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		planResult, err := s.ProcessPlan(ctx, &plans[i], now)
		result.Processed++
		result.MarkedLate += planResult.MarkedLate
		if planResult.Locked {
			result.Locked++
		}
		if planResult.Unlocked {
			result.Unlocked++
		}
		if err != nil {
			log.Printf("Sweep failed for plan %d: %v", plans[i].ID, err)
			result.Errors++
		}
	}

	return result, nil
}

// SendPaymentReminders notifies learners about pending installments due
// within the look-ahead window. At-least-once: reminders are not
// deduplicated at this layer.
func (s *EmiService) SendPaymentReminders(ctx context.Context, now time.Time) (int, error) {
	windowEnd := now.AddDate(0, 0, ReminderWindowDays)

	var plans []models.EMIPlan
	err := s.db.WithContext(ctx).
		Preload("Installments", "status = ? AND due_date >= ? AND due_date <= ?",
			models.InstallmentStatusPending, now, windowEnd).
		Where("status = ?", models.PlanStatusActive).
		Find(&plans).Error
	if err != nil {
		return 0, fmt.Errorf("failed to fetch upcoming installments: %w", err)
	}

	sent := 0
	for i := range plans {
		for _, inst := range plans[i].Installments {
			s.notifier.Notify(ctx, plans[i].UserID, NotificationKindReminder, NotificationData{
				"course_name": plans[i].CourseName,
				"amount":      inst.Amount,
				"due_date":    inst.DueDate.Format("02 Jan 2006"),
			})
			sent++
		}
	}

	return sent, nil
}

// RepairResult reports what a single-plan repair corrected
type RepairResult struct {
	PlanUpdated bool              `json:"plan_updated"`
	UserUpdated bool              `json:"user_updated"`
	PlanStatus  models.PlanStatus `json:"plan_status"`
	EmiStatus   models.EmiStatus  `json:"emi_status"`
}

// FixEmiStatus recomputes a plan's correct state from the calculator and
// corrects any drift between installment statuses, plan status and the
// enrollment's access status. Safe to re-run from any partial state: this
// is how inconsistencies left by a crash between the sweep's writes heal.
func (s *EmiService) FixEmiStatus(ctx context.Context, userID, courseID uint, now time.Time) (RepairResult, error) {
	result := RepairResult{}

	var plan models.EMIPlan
	err := s.db.WithContext(ctx).
		Preload("Installments").
		Preload("LockHistory").
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&plan).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return result, NotFoundError("no EMI plan found for user %d course %d", userID, courseID)
		}
		return result, fmt.Errorf("failed to fetch EMI plan: %w", err)
	}

	var lateIDs []uint
	for i := range plan.Installments {
		inst := &plan.Installments[i]
		if inst.Status == models.InstallmentStatusPending && now.After(inst.GracePeriodEnd) {
			lateIDs = append(lateIDs, inst.ID)
			inst.Status = models.InstallmentStatusLate
		}
	}
	if len(lateIDs) > 0 {
		err := s.db.WithContext(ctx).Model(&models.Installment{}).
			Where("id IN ? AND status = ?", lateIDs, models.InstallmentStatusPending).
			Update("status", models.InstallmentStatusLate).Error
		if err != nil {
			return result, fmt.Errorf("failed to mark installments late: %w", err)
		}
		result.PlanUpdated = true
	}

	status := plan.CalculateStatus(now)

	correct := models.PlanStatusActive
	if status.HasOverduePayments {
		correct = models.PlanStatusLocked
	}

	if plan.Status != correct {
		if correct == models.PlanStatusLocked {
			entry := models.LockHistoryEntry{
				EmiPlanID:    plan.ID,
				LockDate:     now,
				OverdueCount: status.OverdueCount,
				Reason:       "Repair: EMI status correction",
				LockedBy:     "system",
			}
			if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
				return result, fmt.Errorf("failed to append lock history: %w", err)
			}
		} else {
			err := s.db.WithContext(ctx).Model(&models.LockHistoryEntry{}).
				Where("emi_plan_id = ? AND unlock_date IS NULL", plan.ID).
				Update("unlock_date", now).Error
			if err != nil {
				return result, fmt.Errorf("failed to close lock history: %w", err)
			}
		}
		if err := s.db.WithContext(ctx).Model(&plan).Update("status", correct).Error; err != nil {
			return result, fmt.Errorf("failed to correct plan status: %w", err)
		}
		plan.Status = correct
		result.PlanUpdated = true
	}

	correctAccess := models.AccessStatusActive
	if correct == models.PlanStatusLocked {
		correctAccess = models.AccessStatusLocked
	}

	var enrollment models.Enrollment
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return result, fmt.Errorf("failed to fetch enrollment: %w", err)
	}
	if err == nil && enrollment.AccessStatus != correctAccess {
		err := s.db.WithContext(ctx).Model(&enrollment).
			Update("access_status", correctAccess).Error
		if err != nil {
			return result, fmt.Errorf("failed to correct enrollment access: %w", err)
		}
		result.UserUpdated = true
	}

	result.PlanStatus = correct
	result.EmiStatus = plan.CalculateStatus(now)
	return result, nil
}

// BulkRepairResult summarizes a full repair pass
type BulkRepairResult struct {
	Total  int `json:"total"`
	Fixed  int `json:"fixed"`
	Errors int `json:"errors"`
}

// FixAllEmiInconsistencies runs the repair across every active or locked
// plan, isolating per-plan failures.
func (s *EmiService) FixAllEmiInconsistencies(ctx context.Context, now time.Time) (BulkRepairResult, error) {
	result := BulkRepairResult{}

	var plans []models.EMIPlan
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.PlanStatus{models.PlanStatusActive, models.PlanStatusLocked}).
		Find(&plans).Error
	if err != nil {
		return result, fmt.Errorf("failed to fetch plans for repair: %w", err)
	}

	result.Total = len(plans)
	for i := range plans {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		repair, err := s.FixEmiStatus(ctx, plans[i].UserID, plans[i].CourseID, now)
		if err != nil {
			log.Printf("Repair failed for plan %d: %v", plans[i].ID, err)
			result.Errors++
			continue
		}
		if repair.PlanUpdated || repair.UserUpdated {
			result.Fixed++
		}
	}

	return result, nil
}
