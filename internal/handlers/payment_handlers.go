package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"emi_billing_app/internal/middleware"
	"emi_billing_app/internal/models"
	"emi_billing_app/internal/services"
)

// PaymentHandler exposes order creation, verification and history endpoints
type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createOrderRequest struct {
	CourseID    uint    `json:"course_id"`
	Amount      float64 `json:"amount"`
	PaymentType string  `json:"payment_type"`
	EmiDueDay   int     `json:"emi_due_day"`
}

// CreateOrder starts a purchase: full payment or first EMI installment
func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.payments.CreatePurchaseOrder(c.Request().Context(), services.CreateOrderInput{
		UserID:      middleware.UserID(c),
		CourseID:    req.CourseID,
		Amount:      req.Amount,
		PaymentType: models.PaymentType(req.PaymentType),
		EmiDueDay:   req.EmiDueDay,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    result,
	})
}

type createInstallmentOrderRequest struct {
	EmiPlanID uint `json:"emi_plan_id"`
	Sequence  int  `json:"sequence"`
}

// CreateInstallmentOrder starts payment of one unpaid installment
func (h *PaymentHandler) CreateInstallmentOrder(c echo.Context) error {
	var req createInstallmentOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.payments.CreateInstallmentOrder(c.Request().Context(), middleware.UserID(c), req.EmiPlanID, req.Sequence)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    result,
	})
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
	RefundRequested  bool   `json:"refund_requested"`
}

// VerifyPayment reconciles a captured payment submitted by the checkout client
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	var req verifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	outcome, err := h.payments.VerifyPayment(c.Request().Context(), services.VerifyPaymentInput{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
		RefundRequested:  req.RefundRequested,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    outcome,
	})
}

// ListPayments returns the caller's payment history with summary
func (h *PaymentHandler) ListPayments(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	status := c.QueryParam("status")

	history, err := h.payments.GetUserPayments(c.Request().Context(), middleware.UserID(c), page, limit, status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    history,
	})
}

// GetPayment returns one payment owned by the caller
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	paymentID, err := strconv.ParseUint(c.Param("paymentID"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment ID")
	}

	payment, err := h.payments.GetUserPaymentByID(c.Request().Context(), middleware.UserID(c), uint(paymentID))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    payment,
	})
}
