package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentType distinguishes a one-shot full purchase from an installment payment
type PaymentType string

const (
	PaymentTypeFull PaymentType = "full"
	PaymentTypeEmi  PaymentType = "emi"
)

// PaymentStatus is the lifecycle state of a purchase attempt.
// Status moves pending -> completed or pending -> failed, both terminal.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment records one purchase attempt against the gateway. Rows are never
// deleted; they are the audit trail. Only reconciliation mutates them, and
// only through a conditional pending-gated update.
type Payment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID     uint   `gorm:"index" json:"user_id"`
	CourseID   uint   `gorm:"index" json:"course_id"`
	CourseName string `gorm:"type:varchar(255)" json:"course_name"`

	Amount        float64       `gorm:"type:decimal(15,2)" json:"amount"`
	Currency      string        `gorm:"type:varchar(10);default:'INR'" json:"currency"`
	PaymentType   PaymentType   `gorm:"type:varchar(20)" json:"payment_type"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);index" json:"payment_status"`
	PaymentMethod string        `gorm:"type:varchar(50)" json:"payment_method"`

	ReceiptID        string `gorm:"type:varchar(100);uniqueIndex" json:"receipt_id"`
	GatewayOrderID   string `gorm:"type:varchar(100);index" json:"gateway_order_id"`
	GatewayPaymentID string `gorm:"type:varchar(100)" json:"gateway_payment_id"`
	GatewaySignature string `gorm:"type:varchar(255)" json:"-"`

	// EMI fields. EmiDueDay is set on the first (plan-creating) payment.
	// EmiPlanID + EmiSequence are set on subsequent installment payments and
	// identify exactly which installment this payment satisfies.
	EmiDueDay   *int  `json:"emi_due_day,omitempty"`
	EmiPlanID   *uint `gorm:"index" json:"emi_plan_id,omitempty"`
	EmiSequence *int  `json:"emi_sequence,omitempty"`

	ErrorCode        string `gorm:"type:varchar(100)" json:"error_code,omitempty"`
	ErrorDescription string `gorm:"type:text" json:"error_description,omitempty"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Course Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}
