package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"emi_billing_app/internal/models"
)

// PaymentService creates gateway orders and reconciles captured payments
// (synchronous verification and asynchronous webhooks) into durable state:
// payment completion, enrollment, plan creation. All reconciliation is
// gated on the Payment's pending status so duplicate deliveries are no-ops.
type PaymentService struct {
	db       *gorm.DB
	gateway  PaymentGateway
	emi      *EmiService
	notifier Notifier
}

func NewPaymentService(db *gorm.DB, gateway PaymentGateway, emi *EmiService, notifier Notifier) *PaymentService {
	return &PaymentService{db: db, gateway: gateway, emi: emi, notifier: notifier}
}

// CreateOrderInput is a purchase initiation request
type CreateOrderInput struct {
	UserID      uint
	CourseID    uint
	Amount      float64
	PaymentType models.PaymentType
	EmiDueDay   int
}

// EmiPreview summarizes the installment offer returned with an EMI order
type EmiPreview struct {
	MonthlyAmount float64   `json:"monthly_amount"`
	TotalEmis     int       `json:"total_emis"`
	NextDueDate   time.Time `json:"next_due_date"`
}

// CreateOrderResult carries the created gateway order and pending payment
type CreateOrderResult struct {
	Payment    *models.Payment `json:"payment"`
	Order      *GatewayOrder   `json:"order"`
	Course     *models.Course  `json:"course"`
	EmiPreview *EmiPreview     `json:"emi_preview,omitempty"`
}

// CreatePurchaseOrder validates purchaser/course eligibility, creates a
// gateway order for the expected amount and persists a pending Payment
// keyed by a unique receipt identifier.
func (s *PaymentService) CreatePurchaseOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.PaymentType != models.PaymentTypeFull && in.PaymentType != models.PaymentTypeEmi {
		return nil, ValidationError("invalid payment type %q", in.PaymentType)
	}
	if in.PaymentType == models.PaymentTypeEmi && (in.EmiDueDay < 1 || in.EmiDueDay > 31) {
		return nil, ValidationError("invalid EMI due day %d (must be 1-31)", in.EmiDueDay)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, in.UserID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NotFoundError("user %d not found", in.UserID)
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	var course models.Course
	if err := s.db.WithContext(ctx).First(&course, in.CourseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NotFoundError("course %d not found", in.CourseID)
		}
		return nil, fmt.Errorf("failed to fetch course: %w", err)
	}

	var enrolled int64
	err := s.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("user_id = ? AND course_id = ?", in.UserID, in.CourseID).
		Count(&enrolled).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if enrolled > 0 {
		return nil, ValidationError("user already enrolled in this course")
	}

	var expectedAmount float64
	var preview *EmiPreview
	if in.PaymentType == models.PaymentTypeEmi {
		terms, err := course.EmiTerms()
		if err != nil {
			return nil, ValidationError("%v", err)
		}
		expectedAmount = terms.MonthlyAmount
		if in.Amount != expectedAmount {
			return nil, ValidationError("first EMI amount must be %.2f", expectedAmount)
		}
		preview = &EmiPreview{
			MonthlyAmount: terms.MonthlyAmount,
			TotalEmis:     terms.Months,
			NextDueDate:   NextDueDate(time.Now(), in.EmiDueDay, 1),
		}
	} else {
		expectedAmount = course.Price
		if in.Amount != expectedAmount {
			return nil, ValidationError("amount does not match course price")
		}
	}

	receipt := "receipt_" + uuid.NewString()
	order, err := s.gateway.CreateOrder(expectedAmount, course.Currency, receipt, map[string]interface{}{
		"user_id":         fmt.Sprintf("%d", user.ID),
		"course_id":       fmt.Sprintf("%d", course.ID),
		"course_name":     course.Name,
		"register_number": user.RegisterNumber,
		"email":           user.Email,
	})
	if err != nil {
		return nil, GatewayError(err, "failed to create gateway order")
	}

	payment := &models.Payment{
		UserID:         user.ID,
		CourseID:       course.ID,
		CourseName:     course.Name,
		Amount:         expectedAmount,
		Currency:       course.Currency,
		PaymentType:    in.PaymentType,
		PaymentStatus:  models.PaymentStatusPending,
		ReceiptID:      receipt,
		GatewayOrderID: order.ID,
	}
	if in.PaymentType == models.PaymentTypeEmi {
		dueDay := in.EmiDueDay
		payment.EmiDueDay = &dueDay
	}
	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to persist payment record: %w", err)
	}

	return &CreateOrderResult{Payment: payment, Order: order, Course: &course, EmiPreview: preview}, nil
}

// CreateInstallmentOrder creates a gateway order for one specific unpaid
// installment of an existing plan. Reconciliation of this payment marks
// exactly that installment paid.
func (s *PaymentService) CreateInstallmentOrder(ctx context.Context, userID, planID uint, sequence int) (*CreateOrderResult, error) {
	var plan models.EMIPlan
	err := s.db.WithContext(ctx).Preload("Installments").First(&plan, planID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NotFoundError("EMI plan %d not found", planID)
		}
		return nil, fmt.Errorf("failed to fetch EMI plan: %w", err)
	}
	if plan.UserID != userID {
		return nil, ForbiddenError("EMI plan %d does not belong to this user", planID)
	}

	var installment *models.Installment
	for i := range plan.Installments {
		if plan.Installments[i].Sequence == sequence {
			installment = &plan.Installments[i]
			break
		}
	}
	if installment == nil {
		return nil, NotFoundError("installment %d not found on plan %d", sequence, planID)
	}
	if installment.Status == models.InstallmentStatusPaid {
		return nil, ValidationError("installment %d is already paid", sequence)
	}

	var course models.Course
	if err := s.db.WithContext(ctx).First(&course, plan.CourseID).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch course: %w", err)
	}

	receipt := "receipt_" + uuid.NewString()
	order, err := s.gateway.CreateOrder(installment.Amount, course.Currency, receipt, map[string]interface{}{
		"user_id":      fmt.Sprintf("%d", userID),
		"course_id":    fmt.Sprintf("%d", plan.CourseID),
		"emi_plan_id":  fmt.Sprintf("%d", planID),
		"emi_sequence": fmt.Sprintf("%d", sequence),
	})
	if err != nil {
		return nil, GatewayError(err, "failed to create gateway order")
	}

	seq := sequence
	payment := &models.Payment{
		UserID:         userID,
		CourseID:       plan.CourseID,
		CourseName:     plan.CourseName,
		Amount:         installment.Amount,
		Currency:       course.Currency,
		PaymentType:    models.PaymentTypeEmi,
		PaymentStatus:  models.PaymentStatusPending,
		ReceiptID:      receipt,
		GatewayOrderID: order.ID,
		EmiPlanID:      &planID,
		EmiSequence:    &seq,
	}
	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to persist payment record: %w", err)
	}

	return &CreateOrderResult{Payment: payment, Order: order, Course: &course}, nil
}

// VerifyPaymentInput is the checkout caller's post-capture submission
type VerifyPaymentInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	RefundRequested  bool
}

// ReconcileOutcome reports how a captured payment was applied
type ReconcileOutcome struct {
	AlreadyReconciled bool             `json:"already_reconciled"`
	Payment           *models.Payment  `json:"payment"`
	EmiPlan           *models.EMIPlan  `json:"emi_plan,omitempty"`
	InstallmentPaid   bool             `json:"installment_paid,omitempty"`
}

// VerifyPayment handles the synchronous verification path. The signature
// check fails closed: a bad signature is never accepted regardless of any
// other field, and nothing is mutated.
func (s *PaymentService) VerifyPayment(ctx context.Context, in VerifyPaymentInput) (*ReconcileOutcome, error) {
	if in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.Signature == "" {
		return nil, ValidationError("all verification fields are required")
	}
	if in.RefundRequested {
		return nil, ValidationError("refunds not permitted as per policy")
	}

	if !s.gateway.VerifyPaymentSignature(in.GatewayOrderID, in.GatewayPaymentID, in.Signature) {
		log.Printf("SECURITY: invalid payment signature for order %s", in.GatewayOrderID)
		return nil, SignatureError("invalid payment signature")
	}

	gatewayPayment, err := s.gateway.FetchPayment(in.GatewayPaymentID)
	if err != nil {
		return nil, GatewayError(err, "failed to fetch payment from gateway")
	}
	if gatewayPayment.Status != "captured" {
		return nil, GatewayError(nil, "payment not captured (status %q)", gatewayPayment.Status)
	}

	var payment models.Payment
	err = s.db.WithContext(ctx).
		Where("gateway_order_id = ?", in.GatewayOrderID).
		First(&payment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NotFoundError("payment record not found for order %s", in.GatewayOrderID)
		}
		return nil, fmt.Errorf("failed to fetch payment record: %w", err)
	}

	return s.reconcileCaptured(ctx, payment.ID, in.GatewayPaymentID, gatewayPayment.Method, in.Signature)
}

// reconcileCaptured converts a captured gateway payment into application
// state. The pending-gated conditional update makes it idempotent: of two
// racing callers exactly one observes RowsAffected > 0 and performs the
// enrollment side effects.
func (s *PaymentService) reconcileCaptured(ctx context.Context, paymentID uint, gatewayPaymentID, method, signature string) (*ReconcileOutcome, error) {
	now := time.Now()

	updates := map[string]interface{}{
		"payment_status":     models.PaymentStatusCompleted,
		"gateway_payment_id": gatewayPaymentID,
	}
	if method != "" {
		updates["payment_method"] = method
	}
	if signature != "" {
		updates["gateway_signature"] = signature
	}

	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND payment_status = ?", paymentID, models.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to complete payment %d: %w", paymentID, res.Error)
	}

	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, paymentID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload payment %d: %w", paymentID, err)
	}

	outcome := &ReconcileOutcome{Payment: &payment}
	if res.RowsAffected == 0 {
		// Already reconciled (duplicate webhook, or the racing caller won).
		outcome.AlreadyReconciled = true
		return outcome, nil
	}

	switch {
	case payment.EmiPlanID != nil && payment.EmiSequence != nil:
		paid, err := s.emi.MarkInstallmentPaid(ctx, *payment.EmiPlanID, *payment.EmiSequence, now)
		if err != nil {
			return nil, err
		}
		outcome.InstallmentPaid = paid

		// Re-evaluate immediately so an unlock does not wait for the next
		// sweep tick. Drift from a failure here heals on the next repair.
		if _, err := s.emi.FixEmiStatus(ctx, payment.UserID, payment.CourseID, now); err != nil {
			log.Printf("Post-payment repair failed for plan %d: %v", *payment.EmiPlanID, err)
		}

	case payment.PaymentType == models.PaymentTypeEmi:
		if err := s.enrollWithEmiPlan(ctx, &payment, outcome, now); err != nil {
			return nil, err
		}

	default:
		if err := s.enrollFullPayment(ctx, &payment); err != nil {
			return nil, err
		}
	}

	return outcome, nil
}

func (s *PaymentService) enrollWithEmiPlan(ctx context.Context, payment *models.Payment, outcome *ReconcileOutcome, now time.Time) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, payment.UserID).Error; err != nil {
		return fmt.Errorf("failed to fetch user %d: %w", payment.UserID, err)
	}
	var course models.Course
	if err := s.db.WithContext(ctx).First(&course, payment.CourseID).Error; err != nil {
		return fmt.Errorf("failed to fetch course %d: %w", payment.CourseID, err)
	}

	terms, err := course.EmiTerms()
	if err != nil {
		return fmt.Errorf("cannot create EMI plan for payment %d: %w", payment.ID, err)
	}
	if payment.EmiDueDay == nil {
		return fmt.Errorf("payment %d has no EMI due day", payment.ID)
	}
	dueDay := *payment.EmiDueDay

	plan, err := s.emi.CreateEmiPlan(ctx, &user, &course, dueDay, terms, now)
	if err != nil {
		return err
	}
	outcome.EmiPlan = plan

	if err := s.incrementEnrollmentCount(ctx, course.ID); err != nil {
		return err
	}

	s.notifier.Notify(ctx, user.ID, NotificationKindWelcome, NotificationData{
		"course_name":        course.Name,
		"course_duration":    course.Duration,
		"amount_paid":        payment.Amount,
		"total_amount":       terms.TotalAmount,
		"is_emi":             true,
		"emi_total_months":   terms.Months,
		"emi_monthly_amount": terms.MonthlyAmount,
		"next_due_date":      NextDueDate(now, dueDay, 1).Format("02 Jan 2006"),
	})
	return nil
}

func (s *PaymentService) enrollFullPayment(ctx context.Context, payment *models.Payment) error {
	enrollment := models.Enrollment{
		UserID:       payment.UserID,
		CourseID:     payment.CourseID,
		CourseName:   payment.CourseName,
		AccessStatus: models.AccessStatusActive,
	}
	if err := s.db.WithContext(ctx).Create(&enrollment).Error; err != nil {
		return fmt.Errorf("failed to create enrollment: %w", err)
	}

	if err := s.incrementEnrollmentCount(ctx, payment.CourseID); err != nil {
		return err
	}

	s.notifier.Notify(ctx, payment.UserID, NotificationKindWelcome, NotificationData{
		"course_name": payment.CourseName,
		"amount_paid": payment.Amount,
		"is_emi":      false,
	})
	return nil
}

func (s *PaymentService) incrementEnrollmentCount(ctx context.Context, courseID uint) error {
	err := s.db.WithContext(ctx).Model(&models.Course{}).
		Where("id = ?", courseID).
		UpdateColumn("enrollment_count", gorm.Expr("enrollment_count + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment enrollment count: %w", err)
	}
	return nil
}

// Webhook envelope shapes, per the gateway's delivery format.
type webhookPaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Method           string `json:"method"`
	Amount           int64  `json:"amount"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type webhookOrderEntity struct {
	ID         string `json:"id"`
	AmountPaid int64  `json:"amount_paid"`
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity webhookPaymentEntity `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity webhookOrderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// WebhookResult is the acknowledged outcome of one webhook delivery
type WebhookResult struct {
	Event   string                `json:"event"`
	Outcome models.WebhookOutcome `json:"outcome"`
	Message string                `json:"message,omitempty"`
}

// HandleWebhook verifies and reconciles one asynchronous gateway delivery.
// A missing payment record is acknowledged (not errored) so the gateway
// stops retrying; only signature failures and malformed bodies reject.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if signature == "" {
		return nil, SignatureError("missing webhook signature")
	}
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		log.Printf("SECURITY: invalid webhook signature")
		return nil, SignatureError("invalid webhook signature")
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, ValidationError("malformed webhook body")
	}

	result := &WebhookResult{Event: envelope.Event}
	paymentEntity := envelope.Payload.Payment.Entity
	orderEntity := envelope.Payload.Order.Entity

	switch envelope.Event {
	case "payment.captured":
		s.handlePaymentCaptured(ctx, paymentEntity, result)
	case "payment.failed":
		s.handlePaymentFailed(ctx, paymentEntity, result)
	case "order.paid":
		s.handleOrderPaid(ctx, orderEntity, result)
	default:
		result.Outcome = models.WebhookOutcomeUnprocessed
		result.Message = fmt.Sprintf("event %s received but not processed", envelope.Event)
	}

	s.recordWebhookEvent(ctx, envelope.Event, paymentEntity, orderEntity, body, result)
	return result, nil
}

func (s *PaymentService) handlePaymentCaptured(ctx context.Context, entity webhookPaymentEntity, result *WebhookResult) {
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Where("gateway_order_id = ? AND payment_status = ?", entity.OrderID, models.PaymentStatusPending).
		First(&payment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// Already reconciled, or the record is missing. Acknowledge so
			// the gateway does not retry indefinitely.
			result.Outcome = models.WebhookOutcomeNotFound
			result.Message = fmt.Sprintf("no pending payment for order %s", entity.OrderID)
			return
		}
		result.Outcome = models.WebhookOutcomeUnprocessed
		result.Message = fmt.Sprintf("lookup failed: %v", err)
		return
	}

	outcome, err := s.reconcileCaptured(ctx, payment.ID, entity.ID, entity.Method, "")
	if err != nil {
		log.Printf("Webhook reconciliation failed for payment %d: %v", payment.ID, err)
		result.Outcome = models.WebhookOutcomeUnprocessed
		result.Message = fmt.Sprintf("reconciliation failed: %v", err)
		return
	}

	if outcome.AlreadyReconciled {
		result.Outcome = models.WebhookOutcomeDuplicate
		result.Message = "payment already reconciled"
	} else {
		result.Outcome = models.WebhookOutcomeProcessed
	}
}

func (s *PaymentService) handlePaymentFailed(ctx context.Context, entity webhookPaymentEntity, result *WebhookResult) {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("gateway_order_id = ? AND payment_status = ?", entity.OrderID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status":    models.PaymentStatusFailed,
			"error_code":        entity.ErrorCode,
			"error_description": entity.ErrorDescription,
		})
	if res.Error != nil {
		result.Outcome = models.WebhookOutcomeUnprocessed
		result.Message = fmt.Sprintf("failed to mark payment failed: %v", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		result.Outcome = models.WebhookOutcomeNotFound
		result.Message = fmt.Sprintf("no pending payment for order %s", entity.OrderID)
		return
	}
	result.Outcome = models.WebhookOutcomeProcessed
}

func (s *PaymentService) handleOrderPaid(ctx context.Context, entity webhookOrderEntity, result *WebhookResult) {
	// Confirmation-only event: verify the order maps to a known payment
	// and record it, without mutating anything.
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Where("gateway_order_id = ?", entity.ID).
		First(&payment).Error
	if err != nil {
		result.Outcome = models.WebhookOutcomeNotFound
		result.Message = fmt.Sprintf("order paid but no payment record for %s", entity.ID)
		return
	}
	result.Outcome = models.WebhookOutcomeProcessed
	result.Message = fmt.Sprintf("order confirmed, payment status %s", payment.PaymentStatus)
}

func (s *PaymentService) recordWebhookEvent(ctx context.Context, event string, paymentEntity webhookPaymentEntity, orderEntity webhookOrderEntity, body []byte, result *WebhookResult) {
	orderID := paymentEntity.OrderID
	if orderID == "" {
		orderID = orderEntity.ID
	}
	record := models.WebhookEvent{
		EventType:        event,
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentEntity.ID,
		Payload:          json.RawMessage(body),
		Outcome:          result.Outcome,
		Notes:            result.Message,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		log.Printf("Failed to record webhook event %s: %v", event, err)
	}
}

// PaymentSummary aggregates a learner's payment history
type PaymentSummary struct {
	TotalPayments int64   `json:"total_payments"`
	TotalSpent    float64 `json:"total_spent"`
	Completed     int64   `json:"completed"`
	Pending       int64   `json:"pending"`
}

// PaymentHistory is one page of a learner's payments plus summary
type PaymentHistory struct {
	Payments   []models.Payment `json:"payments"`
	Summary    PaymentSummary   `json:"summary"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
}

// GetUserPayments returns a learner's payment history with optional status
// filtering and pagination.
func (s *PaymentService) GetUserPayments(ctx context.Context, userID uint, page, limit int, status string) (*PaymentHistory, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 5
	}

	query := s.db.WithContext(ctx).Model(&models.Payment{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("payment_status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}

	var payments []models.Payment
	err := query.Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payments: %w", err)
	}

	summary := PaymentSummary{TotalPayments: total}
	err = s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("user_id = ? AND payment_status = ?", userID, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&summary.TotalSpent).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}
	s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("user_id = ? AND payment_status = ?", userID, models.PaymentStatusCompleted).
		Count(&summary.Completed)
	s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("user_id = ? AND payment_status = ?", userID, models.PaymentStatusPending).
		Count(&summary.Pending)

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages == 0 {
		totalPages = 1
	}

	return &PaymentHistory{
		Payments:   payments,
		Summary:    summary,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// GetUserPaymentByID returns one payment owned by the learner.
func (s *PaymentService) GetUserPaymentByID(ctx context.Context, userID, paymentID uint) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", paymentID, userID).
		First(&payment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NotFoundError("payment not found or unauthorized")
		}
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}
	return &payment, nil
}
