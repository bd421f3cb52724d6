package models

import (
	"time"

	"gorm.io/gorm"
)

// PlanStatus is the lock state of an EMI plan. Plans re-enter "active"
// when overdue installments get paid.
type PlanStatus string

const (
	PlanStatusActive PlanStatus = "active"
	PlanStatusLocked PlanStatus = "locked"
)

// InstallmentStatus is the lifecycle state of a single scheduled due item
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusLate    InstallmentStatus = "late"
)

// EMIPlan is one installment schedule per (learner, course) enrollment.
// The schedule itself (due dates, amounts) is immutable once generated;
// only installment statuses, the plan status and the lock history change.
type EMIPlan struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID     uint   `gorm:"index" json:"user_id"`
	CourseID   uint   `gorm:"index" json:"course_id"`
	CourseName string `gorm:"type:varchar(255)" json:"course_name"`

	TotalAmount    float64    `gorm:"type:decimal(15,2)" json:"total_amount"`
	MonthlyAmount  float64    `gorm:"type:decimal(15,2)" json:"monthly_amount"`
	EmiPeriod      int        `json:"emi_period"` // number of installments
	SelectedDueDay int        `json:"selected_due_day"`
	StartDate      time.Time  `json:"start_date"`
	Status         PlanStatus `gorm:"type:varchar(20);index" json:"status"`

	// Relationships
	Installments []Installment      `gorm:"foreignKey:EmiPlanID" json:"installments,omitempty"`
	LockHistory  []LockHistoryEntry `gorm:"foreignKey:EmiPlanID" json:"lock_history,omitempty"`
	User         User               `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Course       Course             `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}

// Installment is one scheduled due amount within an EMI plan
type Installment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	EmiPlanID      uint              `gorm:"index" json:"emi_plan_id"`
	Sequence       int               `json:"sequence"`
	MonthName      string            `gorm:"type:varchar(20)" json:"month_name"`
	DueDate        time.Time         `json:"due_date"`
	GracePeriodEnd time.Time         `json:"grace_period_end"`
	Amount         float64           `gorm:"type:decimal(15,2)" json:"amount"`
	Status         InstallmentStatus `gorm:"type:varchar(20)" json:"status"`
	PaymentDate    *time.Time        `json:"payment_date,omitempty"`
}

// LockHistoryEntry is an append-only audit record of a plan lock.
// An absent UnlockDate means the plan is still locked under this entry;
// at most one open entry exists at a time.
type LockHistoryEntry struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	EmiPlanID    uint       `gorm:"index" json:"emi_plan_id"`
	LockDate     time.Time  `json:"lock_date"`
	OverdueCount int        `json:"overdue_count"`
	Reason       string     `gorm:"type:varchar(255)" json:"reason"`
	LockedBy     string     `gorm:"type:varchar(50)" json:"locked_by"`
	UnlockDate   *time.Time `json:"unlock_date,omitempty"`
}

// EmiStatus is a point-in-time snapshot of a plan's standing. It is the
// single source of truth for "is this plan in good standing": the sweep,
// the repair operation and the access decision point all consume it.
type EmiStatus struct {
	OverdueCount       int        `json:"overdue_count"`
	TotalOverdue       float64    `json:"total_overdue"`
	HasOverduePayments bool       `json:"has_overdue_payments"`
	HasAccessToContent bool       `json:"has_access_to_content"`
	PaidCount          int        `json:"paid_count"`
	NextDueAmount      *float64   `json:"next_due_amount,omitempty"`
	NextDueDate        *time.Time `json:"next_due_date,omitempty"`
}

// CalculateStatus derives the plan's standing at the given instant.
// Pure: it reads the plan and writes nothing.
//
// An installment is overdue when it is unpaid and its grace period has
// ended. A pending installment inside its grace window counts toward
// nothing; one past its grace window counts as overdue but does not block
// access until the sweep marks it late.
func (p *EMIPlan) CalculateStatus(now time.Time) EmiStatus {
	status := EmiStatus{}
	lateCount := 0

	var nextDue *Installment
	for i := range p.Installments {
		inst := &p.Installments[i]

		if inst.Status == InstallmentStatusPaid {
			status.PaidCount++
			continue
		}

		if now.After(inst.GracePeriodEnd) {
			status.OverdueCount++
			status.TotalOverdue += inst.Amount
		}
		if inst.Status == InstallmentStatusLate {
			lateCount++
		}

		if nextDue == nil || inst.DueDate.Before(nextDue.DueDate) {
			nextDue = inst
		}
	}

	status.HasOverduePayments = status.OverdueCount > 0
	status.HasAccessToContent = p.Status == PlanStatusActive && lateCount == 0

	if nextDue != nil {
		amount := nextDue.Amount
		due := nextDue.DueDate
		status.NextDueAmount = &amount
		status.NextDueDate = &due
	}

	return status
}

// OpenLockEntry returns the current open lock-history entry, or nil.
func (p *EMIPlan) OpenLockEntry() *LockHistoryEntry {
	for i := range p.LockHistory {
		if p.LockHistory[i].UnlockDate == nil {
			return &p.LockHistory[i]
		}
	}
	return nil
}
