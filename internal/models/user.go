package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a learner in the system
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name           string `gorm:"type:varchar(255)" json:"name"`
	Email          string `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Mobile         string `gorm:"type:varchar(50)" json:"mobile"`
	FirebaseUID    string `gorm:"type:varchar(128);uniqueIndex" json:"firebase_uid"`
	RegisterNumber string `gorm:"type:varchar(50)" json:"register_number"`

	// Relationships
	Enrollments []Enrollment `gorm:"foreignKey:UserID" json:"enrollments,omitempty"`
	Payments    []Payment    `gorm:"foreignKey:UserID" json:"payments,omitempty"`
}

// AccessStatus represents whether a learner may consume course content
type AccessStatus string

const (
	AccessStatusActive AccessStatus = "active"
	AccessStatusLocked AccessStatus = "locked"
)

// Enrollment links a learner to a course. AccessStatus must stay consistent
// with the associated EMI plan's lock state; the sweep and reconciliation
// both enforce that.
type Enrollment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID       uint         `gorm:"index;uniqueIndex:idx_enrollments_user_course" json:"user_id"`
	CourseID     uint         `gorm:"index;uniqueIndex:idx_enrollments_user_course" json:"course_id"`
	CourseName   string       `gorm:"type:varchar(255)" json:"course_name"`
	EmiPlanID    *uint        `gorm:"index" json:"emi_plan_id,omitempty"`
	AccessStatus AccessStatus `gorm:"type:varchar(20);default:'active'" json:"access_status"`

	// Relationships
	User    User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Course  Course   `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	EmiPlan *EMIPlan `gorm:"foreignKey:EmiPlanID" json:"emi_plan,omitempty"`
}
