package services

import (
	"context"
	"testing"
	"time"

	"emi_billing_app/internal/models"
)

func TestCheckCourseAccess(t *testing.T) {
	db := newTestDB(t)
	access := NewAccessService(db)
	emi := NewEmiService(db, &stubNotifier{})
	user, course := seedUserAndCourse(t, db)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	t.Run("no payment record", func(t *testing.T) {
		decision, err := access.CheckCourseAccess(ctx, user.ID, course.ID, now)
		if err != nil {
			t.Fatalf("CheckCourseAccess failed: %v", err)
		}
		if decision.HasAccess || decision.Reason != AccessReasonPaymentRequired {
			t.Errorf("decision = %+v; want denied with payment_required", decision)
		}
	})

	t.Run("completed full payment grants access", func(t *testing.T) {
		payment := models.Payment{
			UserID: user.ID, CourseID: course.ID, Amount: 12000,
			PaymentType: models.PaymentTypeFull, PaymentStatus: models.PaymentStatusCompleted,
			ReceiptID: "receipt_access_full",
		}
		if err := db.Create(&payment).Error; err != nil {
			t.Fatalf("failed to seed payment: %v", err)
		}

		decision, err := access.CheckCourseAccess(ctx, user.ID, course.ID, now)
		if err != nil {
			t.Fatalf("CheckCourseAccess failed: %v", err)
		}
		if !decision.HasAccess || decision.Reason != AccessReasonFullPayment {
			t.Errorf("decision = %+v; want granted via full_payment", decision)
		}

		if err := db.Unscoped().Delete(&payment).Error; err != nil {
			t.Fatalf("failed to remove payment: %v", err)
		}
	})

	t.Run("pending full payment does not grant access", func(t *testing.T) {
		payment := models.Payment{
			UserID: user.ID, CourseID: course.ID, Amount: 12000,
			PaymentType: models.PaymentTypeFull, PaymentStatus: models.PaymentStatusPending,
			ReceiptID: "receipt_access_pending",
		}
		if err := db.Create(&payment).Error; err != nil {
			t.Fatalf("failed to seed payment: %v", err)
		}

		decision, err := access.CheckCourseAccess(ctx, user.ID, course.ID, now)
		if err != nil {
			t.Fatalf("CheckCourseAccess failed: %v", err)
		}
		if decision.HasAccess {
			t.Errorf("decision = %+v; want denied for pending payment", decision)
		}

		if err := db.Unscoped().Delete(&payment).Error; err != nil {
			t.Fatalf("failed to remove payment: %v", err)
		}
	})

	t.Run("emi plan lifecycle", func(t *testing.T) {
		plan, err := emi.CreateEmiPlan(ctx, &user, &course, 15, testTerms(), time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("CreateEmiPlan failed: %v", err)
		}

		// Before anything is overdue (Jan 20): active
		decision, err := access.CheckCourseAccess(ctx, user.ID, course.ID, time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("CheckCourseAccess failed: %v", err)
		}
		if !decision.HasAccess || decision.Reason != AccessReasonEmiActive {
			t.Errorf("decision = %+v; want granted via emi_active", decision)
		}

		// Past installment 2's grace (Mar 1) but before the sweep: overdue,
		// access still granted
		decision, err = access.CheckCourseAccess(ctx, user.ID, course.ID, now)
		if err != nil {
			t.Fatalf("CheckCourseAccess failed: %v", err)
		}
		if !decision.HasAccess || decision.Reason != AccessReasonEmiOverdue {
			t.Errorf("decision = %+v; want granted via emi_overdue", decision)
		}
		if decision.OverdueCount != 1 || decision.OverdueAmount != 1000 {
			t.Errorf("overdue = %d/%v; want 1/1000", decision.OverdueCount, decision.OverdueAmount)
		}

		// After the sweep locks the plan: denied
		if _, err := emi.ProcessOverdueEmis(ctx, now); err != nil {
			t.Fatalf("sweep failed: %v", err)
		}
		decision, err = access.CheckCourseAccess(ctx, user.ID, course.ID, now)
		if err != nil {
			t.Fatalf("CheckCourseAccess failed: %v", err)
		}
		if decision.HasAccess || decision.Reason != AccessReasonEmiLocked {
			t.Errorf("decision = %+v; want denied via emi_locked", decision)
		}

		// Paying the overdue installment and unlocking restores access
		if _, err := emi.MarkInstallmentPaid(ctx, plan.ID, 2, now); err != nil {
			t.Fatalf("MarkInstallmentPaid failed: %v", err)
		}
		if _, err := emi.FixEmiStatus(ctx, user.ID, course.ID, now); err != nil {
			t.Fatalf("FixEmiStatus failed: %v", err)
		}
		decision, err = access.CheckCourseAccess(ctx, user.ID, course.ID, now)
		if err != nil {
			t.Fatalf("CheckCourseAccess failed: %v", err)
		}
		if !decision.HasAccess || decision.Reason != AccessReasonEmiActive {
			t.Errorf("decision = %+v; want granted via emi_active after repair", decision)
		}
	})
}
