package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// EmiConfig is the admin-defined installment configuration for a course
type EmiConfig struct {
	IsAvailable    bool    `gorm:"default:false" json:"is_available"`
	DurationMonths int     `json:"duration_months"`
	MonthlyAmount  float64 `gorm:"type:decimal(15,2)" json:"monthly_amount"`
	TotalAmount    float64 `gorm:"type:decimal(15,2)" json:"total_amount"`
	Notes          string  `gorm:"type:text" json:"notes"`
}

// Course captures exactly the catalog fields the billing engine needs:
// price, EMI configuration and the enrollment counter. The catalog's full
// schema stays with the catalog service.
type Course struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name            string    `gorm:"type:varchar(255);uniqueIndex" json:"name"`
	Duration        string    `gorm:"type:varchar(50)" json:"duration"` // e.g. "1 year"
	Price           float64   `gorm:"type:decimal(15,2)" json:"price"`
	Currency        string    `gorm:"type:varchar(10);default:'INR'" json:"currency"`
	Emi             EmiConfig `gorm:"embedded;embeddedPrefix:emi_" json:"emi"`
	EnrollmentCount int       `gorm:"default:0" json:"enrollment_count"`
}

// EmiTerms is the resolved installment offer for an EMI-enabled course.
type EmiTerms struct {
	MonthlyAmount float64 `json:"monthly_amount"`
	Months        int     `json:"months"`
	TotalAmount   float64 `json:"total_amount"`
	Notes         string  `json:"notes,omitempty"`
}

// EmiTerms validates the course's EMI configuration and resolves it into
// concrete terms. The monthly amount times the installment count must
// reconcile with the total amount.
func (c *Course) EmiTerms() (EmiTerms, error) {
	if !c.Emi.IsAvailable {
		return EmiTerms{}, fmt.Errorf("EMI is not available for course %q", c.Name)
	}
	if c.Emi.DurationMonths <= 0 || c.Emi.MonthlyAmount <= 0 {
		return EmiTerms{}, fmt.Errorf("EMI configuration for course %q is incomplete", c.Name)
	}

	total := c.Emi.TotalAmount
	if total == 0 {
		total = c.Price
	}
	if c.Emi.MonthlyAmount*float64(c.Emi.DurationMonths) != total {
		return EmiTerms{}, fmt.Errorf("EMI configuration for course %q does not reconcile: %d x %.2f != %.2f",
			c.Name, c.Emi.DurationMonths, c.Emi.MonthlyAmount, total)
	}

	return EmiTerms{
		MonthlyAmount: c.Emi.MonthlyAmount,
		Months:        c.Emi.DurationMonths,
		TotalAmount:   total,
		Notes:         c.Emi.Notes,
	}, nil
}
