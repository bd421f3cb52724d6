package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// WebhookOutcome classifies how a verified gateway delivery was handled
type WebhookOutcome string

const (
	WebhookOutcomeProcessed   WebhookOutcome = "processed"
	WebhookOutcomeDuplicate   WebhookOutcome = "duplicate"
	WebhookOutcomeNotFound    WebhookOutcome = "not_found"
	WebhookOutcomeUnprocessed WebhookOutcome = "unprocessed"
)

// WebhookEvent is the audit log of gateway webhook deliveries. A row is
// written for every delivery that passed signature verification, whatever
// the processing outcome.
type WebhookEvent struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	EventType        string          `gorm:"type:varchar(100);index" json:"event_type"`
	GatewayOrderID   string          `gorm:"type:varchar(100);index" json:"gateway_order_id"`
	GatewayPaymentID string          `gorm:"type:varchar(100)" json:"gateway_payment_id"`
	Payload          json.RawMessage `gorm:"type:jsonb" json:"payload"`
	Outcome          WebhookOutcome  `gorm:"type:varchar(30)" json:"outcome"`
	Notes            string          `gorm:"type:text" json:"notes"`
}
