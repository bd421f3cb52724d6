package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"emi_billing_app/internal/models"
)

var testDBCounter int64

// newTestDB opens an isolated in-memory database with the full schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// stubNotifier records notification kinds instead of delivering anything
type stubNotifier struct {
	mu   sync.Mutex
	sent []NotificationKind
	fail bool
}

func (n *stubNotifier) Send(ctx context.Context, userID uint, kind NotificationKind, data NotificationData) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("delivery refused")
	}
	n.sent = append(n.sent, kind)
	return nil
}

func (n *stubNotifier) Notify(ctx context.Context, userID uint, kind NotificationKind, data NotificationData) {
	_ = n.Send(ctx, userID, kind, data)
}

func (n *stubNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotificationKind, len(n.sent))
	copy(out, n.sent)
	return out
}

func (n *stubNotifier) countOf(kind NotificationKind) int {
	count := 0
	for _, k := range n.kinds() {
		if k == kind {
			count++
		}
	}
	return count
}

// seedUserAndCourse creates a learner and an EMI-enabled course
// (12 installments of 1000, total 12000)
func seedUserAndCourse(t *testing.T, db *gorm.DB) (models.User, models.Course) {
	t.Helper()

	user := models.User{
		Name:        "Asha Nair",
		Email:       fmt.Sprintf("asha%d@example.com", atomic.AddInt64(&testDBCounter, 1)),
		Mobile:      "09876543210",
		FirebaseUID: fmt.Sprintf("uid-%d", testDBCounter),
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	course := models.Course{
		Name:     fmt.Sprintf("Full Stack Bootcamp %d", testDBCounter),
		Duration: "1 year",
		Price:    12000,
		Currency: "INR",
		Emi: models.EmiConfig{
			IsAvailable:    true,
			DurationMonths: 12,
			MonthlyAmount:  1000,
			TotalAmount:    12000,
		},
	}
	if err := db.Create(&course).Error; err != nil {
		t.Fatalf("failed to seed course: %v", err)
	}

	return user, course
}
