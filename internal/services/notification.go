package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"emi_billing_app/internal/models"
)

// NotificationKind enumerates the billing notifications the engine emits
type NotificationKind string

const (
	NotificationKindWelcome  NotificationKind = "welcome"
	NotificationKindReminder NotificationKind = "reminder"
	NotificationKindLock     NotificationKind = "lock"
	NotificationKindUnlock   NotificationKind = "unlock"
)

// NotificationData carries the template fields for one notification
type NotificationData map[string]interface{}

// Notifier is the notification capability. Send reports delivery
// failures; Notify is fire-and-forget for callers whose transaction must
// not depend on delivery.
type Notifier interface {
	Send(ctx context.Context, userID uint, kind NotificationKind, data NotificationData) error
	Notify(ctx context.Context, userID uint, kind NotificationKind, data NotificationData)
}

// NotificationService routes notifications to email or WhatsApp based on
// the learner's stored preference.
type NotificationService struct {
	db    *gorm.DB
	email *EmailService
	waha  *WahaService
}

func NewNotificationService(db *gorm.DB, email *EmailService, waha *WahaService) *NotificationService {
	return &NotificationService{db: db, email: email, waha: waha}
}

// Send delivers one notification to one learner. Missing preference rows
// default to email.
func (s *NotificationService) Send(ctx context.Context, userID uint, kind NotificationKind, data NotificationData) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return fmt.Errorf("notification: user %d not found: %w", userID, err)
	}

	channel := models.NotificationChannelEmail
	var pref models.UserNotifPreference
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error
	if err == nil {
		channel = pref.Channel
	} else if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("notification: failed to load preference for user %d: %w", userID, err)
	}

	subject, body := renderNotification(kind, user.Name, data)

	switch channel {
	case models.NotificationChannelEmail:
		if user.Email == "" {
			return fmt.Errorf("notification: user %d has no email address", userID)
		}
		return s.email.SendEmail([]string{user.Email}, subject, body)
	case models.NotificationChannelWhatsapp:
		chatId := user.Mobile
		if pref.WhatsappTargetType == models.WhatsappTargetTypeGroup {
			chatId = pref.WhatsappGroupID
			if chatId == "" {
				return fmt.Errorf("notification: user %d prefers a group but has no group ID", userID)
			}
			if !strings.HasSuffix(chatId, "@g.us") {
				chatId = chatId + "@g.us"
			}
		}
		return s.waha.SendMessage(chatId, body)
	case models.NotificationChannelNone:
		log.Printf("Notification disabled (none) for user %d, skipping %s", userID, kind)
		return nil
	default:
		log.Printf("Unsupported notification channel %s for user %d, skipping %s", channel, userID, kind)
		return nil
	}
}

// Notify is the fire-and-forget entry point used by reconciliation and the
// sweep: a delivery failure is logged and swallowed.
func (s *NotificationService) Notify(ctx context.Context, userID uint, kind NotificationKind, data NotificationData) {
	if err := s.Send(ctx, userID, kind, data); err != nil {
		log.Printf("Failed to send %s notification to user %d: %v", kind, userID, err)
	}
}

func renderNotification(kind NotificationKind, name string, data NotificationData) (subject, body string) {
	courseName, _ := data["course_name"].(string)

	switch kind {
	case NotificationKindWelcome:
		subject = fmt.Sprintf("Welcome to %s", courseName)
		body = fmt.Sprintf("Hi %s,\n\nYour enrollment in %s is confirmed.", name, courseName)
		if isEmi, _ := data["is_emi"].(bool); isEmi {
			body += fmt.Sprintf("\n\nYour EMI schedule: %v installments of %v. Next due date: %v.",
				data["emi_total_months"], data["emi_monthly_amount"], data["next_due_date"])
		}
		body += "\n\nAs per our policy, this course is non-refundable."
	case NotificationKindReminder:
		subject = fmt.Sprintf("Payment reminder for %s", courseName)
		body = fmt.Sprintf("Hi %s,\n\nYour installment of %v for %s is due on %v. Please pay before the grace period ends to keep your access.",
			name, data["amount"], courseName, data["due_date"])
	case NotificationKindLock:
		subject = fmt.Sprintf("Course access locked: %s", courseName)
		body = fmt.Sprintf("Hi %s,\n\nYour access to %s has been locked due to %v overdue installment(s) totaling %v. Pay the overdue amount to restore access.",
			name, courseName, data["overdue_count"], data["overdue_amount"])
	case NotificationKindUnlock:
		subject = fmt.Sprintf("Course access restored: %s", courseName)
		body = fmt.Sprintf("Hi %s,\n\nYour payments are up to date and your access to %s has been restored.", name, courseName)
	default:
		subject = "Notification"
		body = fmt.Sprintf("Hi %s,\n\nYou have a new notification for %s.", name, courseName)
	}

	return subject, body
}
