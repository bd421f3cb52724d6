package services

import (
	"context"
	"testing"
	"time"

	"emi_billing_app/internal/models"
)

func testTerms() models.EmiTerms {
	return models.EmiTerms{MonthlyAmount: 1000, Months: 12, TotalAmount: 12000}
}

func TestBuildInstallments(t *testing.T) {
	purchasedAt := time.Date(2026, time.January, 10, 14, 30, 0, 0, time.UTC)
	installments := BuildInstallments(testTerms(), 15, purchasedAt)

	if len(installments) != 12 {
		t.Fatalf("got %d installments; want 12", len(installments))
	}

	first := installments[0]
	if first.Status != models.InstallmentStatusPaid {
		t.Errorf("first installment status = %s; want paid", first.Status)
	}
	if first.PaymentDate == nil || !first.PaymentDate.Equal(purchasedAt) {
		t.Errorf("first installment payment date = %v; want %v", first.PaymentDate, purchasedAt)
	}
	if first.MonthName != "January" {
		t.Errorf("first installment month = %q; want January", first.MonthName)
	}

	second := installments[1]
	wantDue := time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC)
	if !second.DueDate.Equal(wantDue) {
		t.Errorf("second installment due = %v; want %v", second.DueDate, wantDue)
	}
	wantGrace := wantDue.Add(3 * 24 * time.Hour)
	if !second.GracePeriodEnd.Equal(wantGrace) {
		t.Errorf("second installment grace end = %v; want %v", second.GracePeriodEnd, wantGrace)
	}
	if second.Status != models.InstallmentStatusPending {
		t.Errorf("second installment status = %s; want pending", second.Status)
	}

	last := installments[11]
	wantLastDue := time.Date(2026, time.December, 15, 0, 0, 0, 0, time.UTC)
	if !last.DueDate.Equal(wantLastDue) {
		t.Errorf("last installment due = %v; want %v", last.DueDate, wantLastDue)
	}

	var total float64
	for _, inst := range installments {
		total += inst.Amount
	}
	if total != 12000 {
		t.Errorf("installments sum to %v; want 12000", total)
	}
}

func TestBuildInstallmentsClampsShortMonths(t *testing.T) {
	purchasedAt := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)
	installments := BuildInstallments(models.EmiTerms{MonthlyAmount: 2000, Months: 4, TotalAmount: 8000}, 31, purchasedAt)

	wantDues := []time.Time{
		purchasedAt,
		time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC),
	}
	for i, want := range wantDues {
		if !installments[i].DueDate.Equal(want) {
			t.Errorf("installment %d due = %v; want %v", i+1, installments[i].DueDate, want)
		}
	}
}

func TestCreateEmiPlan(t *testing.T) {
	db := newTestDB(t)
	notifier := &stubNotifier{}
	svc := NewEmiService(db, notifier)
	user, course := seedUserAndCourse(t, db)
	ctx := context.Background()

	purchasedAt := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	plan, err := svc.CreateEmiPlan(ctx, &user, &course, 15, testTerms(), purchasedAt)
	if err != nil {
		t.Fatalf("CreateEmiPlan failed: %v", err)
	}

	if plan.Status != models.PlanStatusActive {
		t.Errorf("plan status = %s; want active", plan.Status)
	}

	var persisted models.EMIPlan
	if err := db.Preload("Installments").First(&persisted, plan.ID).Error; err != nil {
		t.Fatalf("failed to reload plan: %v", err)
	}
	if len(persisted.Installments) != 12 {
		t.Errorf("persisted %d installments; want 12", len(persisted.Installments))
	}

	var enrollment models.Enrollment
	if err := db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).First(&enrollment).Error; err != nil {
		t.Fatalf("enrollment not created: %v", err)
	}
	if enrollment.EmiPlanID == nil || *enrollment.EmiPlanID != plan.ID {
		t.Errorf("enrollment plan link = %v; want %d", enrollment.EmiPlanID, plan.ID)
	}
	if enrollment.AccessStatus != models.AccessStatusActive {
		t.Errorf("enrollment access = %s; want active", enrollment.AccessStatus)
	}
}

func TestCreateEmiPlanValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewEmiService(db, &stubNotifier{})
	user, course := seedUserAndCourse(t, db)
	ctx := context.Background()
	now := time.Now()

	if _, err := svc.CreateEmiPlan(ctx, &user, &course, 0, testTerms(), now); !IsKind(err, ErrKindValidation) {
		t.Errorf("due day 0: got %v; want validation error", err)
	}
	if _, err := svc.CreateEmiPlan(ctx, &user, &course, 32, testTerms(), now); !IsKind(err, ErrKindValidation) {
		t.Errorf("due day 32: got %v; want validation error", err)
	}

	badTerms := models.EmiTerms{MonthlyAmount: 1000, Months: 12, TotalAmount: 11000}
	if _, err := svc.CreateEmiPlan(ctx, &user, &course, 15, badTerms, now); !IsKind(err, ErrKindValidation) {
		t.Errorf("non-reconciling terms: got %v; want validation error", err)
	}
}

func TestMarkInstallmentPaidIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewEmiService(db, &stubNotifier{})
	user, course := seedUserAndCourse(t, db)
	ctx := context.Background()

	plan, err := svc.CreateEmiPlan(ctx, &user, &course, 15, testTerms(), time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CreateEmiPlan failed: %v", err)
	}

	paidAt := time.Date(2026, time.February, 14, 0, 0, 0, 0, time.UTC)
	changed, err := svc.MarkInstallmentPaid(ctx, plan.ID, 2, paidAt)
	if err != nil {
		t.Fatalf("MarkInstallmentPaid failed: %v", err)
	}
	if !changed {
		t.Fatal("first MarkInstallmentPaid reported no change")
	}

	changed, err = svc.MarkInstallmentPaid(ctx, plan.ID, 2, paidAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("second MarkInstallmentPaid failed: %v", err)
	}
	if changed {
		t.Fatal("second MarkInstallmentPaid should be a no-op")
	}

	var inst models.Installment
	if err := db.Where("emi_plan_id = ? AND sequence = ?", plan.ID, 2).First(&inst).Error; err != nil {
		t.Fatalf("failed to reload installment: %v", err)
	}
	if inst.Status != models.InstallmentStatusPaid {
		t.Errorf("installment status = %s; want paid", inst.Status)
	}
	if inst.PaymentDate == nil || !inst.PaymentDate.Equal(paidAt) {
		t.Errorf("payment date = %v; want %v (first write wins)", inst.PaymentDate, paidAt)
	}
}

func TestSweepLocksAndUnlocks(t *testing.T) {
	db := newTestDB(t)
	notifier := &stubNotifier{}
	svc := NewEmiService(db, notifier)
	user, course := seedUserAndCourse(t, db)
	ctx := context.Background()

	purchasedAt := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	plan, err := svc.CreateEmiPlan(ctx, &user, &course, 15, testTerms(), purchasedAt)
	if err != nil {
		t.Fatalf("CreateEmiPlan failed: %v", err)
	}

	// Past installment 2's grace period (due Feb 15, grace ends Feb 18)
	now := time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC)

	result, err := svc.ProcessOverdueEmis(ctx, now)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.MarkedLate != 1 || result.Locked != 1 {
		t.Fatalf("sweep = %+v; want 1 marked late, 1 locked", result)
	}

	var reloaded models.EMIPlan
	if err := db.Preload("Installments").Preload("LockHistory").First(&reloaded, plan.ID).Error; err != nil {
		t.Fatalf("failed to reload plan: %v", err)
	}
	if reloaded.Status != models.PlanStatusLocked {
		t.Errorf("plan status = %s; want locked", reloaded.Status)
	}
	open := reloaded.OpenLockEntry()
	if open == nil {
		t.Fatal("no open lock history entry after lock")
	}
	if open.OverdueCount != 1 || open.LockedBy != "system" {
		t.Errorf("lock entry = %+v; want overdue 1 locked by system", open)
	}

	var enrollment models.Enrollment
	if err := db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).First(&enrollment).Error; err != nil {
		t.Fatalf("failed to reload enrollment: %v", err)
	}
	if enrollment.AccessStatus != models.AccessStatusLocked {
		t.Errorf("enrollment access = %s; want locked", enrollment.AccessStatus)
	}
	if notifier.countOf(NotificationKindLock) != 1 {
		t.Errorf("lock notifications = %d; want 1", notifier.countOf(NotificationKindLock))
	}

	// Second pass at the same instant changes nothing
	result, err = svc.ProcessOverdueEmis(ctx, now)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if result.MarkedLate != 0 || result.Locked != 0 || result.Unlocked != 0 {
		t.Fatalf("second sweep = %+v; want no changes", result)
	}

	// Paying the overdue installment unlocks on the next pass
	if _, err := svc.MarkInstallmentPaid(ctx, plan.ID, 2, now); err != nil {
		t.Fatalf("MarkInstallmentPaid failed: %v", err)
	}
	result, err = svc.ProcessOverdueEmis(ctx, now)
	if err != nil {
		t.Fatalf("third sweep failed: %v", err)
	}
	if result.Unlocked != 1 {
		t.Fatalf("third sweep = %+v; want 1 unlocked", result)
	}

	if err := db.Preload("LockHistory").First(&reloaded, plan.ID).Error; err != nil {
		t.Fatalf("failed to reload plan: %v", err)
	}
	if reloaded.Status != models.PlanStatusActive {
		t.Errorf("plan status after unlock = %s; want active", reloaded.Status)
	}
	if reloaded.OpenLockEntry() != nil {
		t.Error("lock history entry still open after unlock")
	}

	if err := db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).First(&enrollment).Error; err != nil {
		t.Fatalf("failed to reload enrollment: %v", err)
	}
	if enrollment.AccessStatus != models.AccessStatusActive {
		t.Errorf("enrollment access after unlock = %s; want active", enrollment.AccessStatus)
	}
	if notifier.countOf(NotificationKindUnlock) != 1 {
		t.Errorf("unlock notifications = %d; want 1", notifier.countOf(NotificationKindUnlock))
	}
}

func TestSendPaymentReminders(t *testing.T) {
	db := newTestDB(t)
	notifier := &stubNotifier{}
	svc := NewEmiService(db, notifier)
	user, course := seedUserAndCourse(t, db)
	ctx := context.Background()

	purchasedAt := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	if _, err := svc.CreateEmiPlan(ctx, &user, &course, 15, testTerms(), purchasedAt); err != nil {
		t.Fatalf("CreateEmiPlan failed: %v", err)
	}

	// Feb 12: installment 2 (due Feb 15) is inside the 5-day window
	sent, err := svc.SendPaymentReminders(ctx, time.Date(2026, time.February, 12, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("SendPaymentReminders failed: %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d; want 1", sent)
	}
	if notifier.countOf(NotificationKindReminder) != 1 {
		t.Errorf("reminder notifications = %d; want 1", notifier.countOf(NotificationKindReminder))
	}

	// Feb 1: nothing due within the window
	sent, err = svc.SendPaymentReminders(ctx, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("SendPaymentReminders failed: %v", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d; want 0", sent)
	}
}

func TestFixEmiStatusRepairsDrift(t *testing.T) {
	db := newTestDB(t)
	svc := NewEmiService(db, &stubNotifier{})
	user, course := seedUserAndCourse(t, db)
	ctx := context.Background()

	purchasedAt := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	plan, err := svc.CreateEmiPlan(ctx, &user, &course, 15, testTerms(), purchasedAt)
	if err != nil {
		t.Fatalf("CreateEmiPlan failed: %v", err)
	}

	// Simulate drift: an installment way past grace, but the plan and
	// enrollment were never locked (crash between writes)
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	repair, err := svc.FixEmiStatus(ctx, user.ID, course.ID, now)
	if err != nil {
		t.Fatalf("FixEmiStatus failed: %v", err)
	}
	if !repair.PlanUpdated || !repair.UserUpdated {
		t.Errorf("repair = %+v; want plan and user updated", repair)
	}
	if repair.PlanStatus != models.PlanStatusLocked {
		t.Errorf("repaired status = %s; want locked", repair.PlanStatus)
	}

	// Re-running on the corrected state is a no-op
	repair, err = svc.FixEmiStatus(ctx, user.ID, course.ID, now)
	if err != nil {
		t.Fatalf("second FixEmiStatus failed: %v", err)
	}
	if repair.PlanUpdated || repair.UserUpdated {
		t.Errorf("second repair = %+v; want no changes", repair)
	}

	// Paying everything overdue repairs back to active
	if _, err := svc.MarkInstallmentPaid(ctx, plan.ID, 2, now); err != nil {
		t.Fatalf("MarkInstallmentPaid failed: %v", err)
	}
	repair, err = svc.FixEmiStatus(ctx, user.ID, course.ID, now)
	if err != nil {
		t.Fatalf("third FixEmiStatus failed: %v", err)
	}
	if repair.PlanStatus != models.PlanStatusActive {
		t.Errorf("repaired status = %s; want active", repair.PlanStatus)
	}

	var enrollment models.Enrollment
	if err := db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).First(&enrollment).Error; err != nil {
		t.Fatalf("failed to reload enrollment: %v", err)
	}
	if enrollment.AccessStatus != models.AccessStatusActive {
		t.Errorf("enrollment access = %s; want active", enrollment.AccessStatus)
	}
}

func TestFixEmiStatusMissingPlan(t *testing.T) {
	db := newTestDB(t)
	svc := NewEmiService(db, &stubNotifier{})

	_, err := svc.FixEmiStatus(context.Background(), 999, 999, time.Now())
	if !IsKind(err, ErrKindNotFound) {
		t.Errorf("got %v; want not found error", err)
	}
}

func TestFixAllEmiInconsistencies(t *testing.T) {
	db := newTestDB(t)
	svc := NewEmiService(db, &stubNotifier{})
	user, course := seedUserAndCourse(t, db)
	ctx := context.Background()

	purchasedAt := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	if _, err := svc.CreateEmiPlan(ctx, &user, &course, 15, testTerms(), purchasedAt); err != nil {
		t.Fatalf("CreateEmiPlan failed: %v", err)
	}

	result, err := svc.FixAllEmiInconsistencies(ctx, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FixAllEmiInconsistencies failed: %v", err)
	}
	if result.Total != 1 || result.Fixed != 1 || result.Errors != 0 {
		t.Errorf("result = %+v; want total 1 fixed 1", result)
	}
}
