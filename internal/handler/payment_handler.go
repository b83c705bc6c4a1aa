package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"paycore/internal/apperr"
	"paycore/internal/domain"
	"paycore/internal/middleware"
	"paycore/internal/service"
)

type PaymentHandler struct {
	svc *service.PaymentService
}

func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type checkoutRequest struct {
	OrderID  string                   `json:"order_id" binding:"required"`
	Provider string                   `json:"provider"`
	Amount   decimal.Decimal          `json:"amount"`
	Currency string                   `json:"currency"`
	Checkout *service.CheckoutDetails `json:"checkout"`
}

// CreateIntent opens a checkout for the provider named in the body.
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req checkoutRequest
	if !bindJSON(c, &req) {
		return
	}
	p, ok := domain.ParseProvider(req.Provider)
	if !ok {
		respondError(c, apperr.Newf(apperr.Invalid, "unknown payment provider %q", req.Provider))
		return
	}
	h.create(c, p, req)
}

// Checkout is CreateIntent with the provider fixed by the path.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	p, ok := providerParam(c)
	if !ok {
		return
	}
	var req checkoutRequest
	if !bindJSON(c, &req) {
		return
	}
	h.create(c, p, req)
}

func (h *PaymentHandler) create(c *gin.Context, p domain.Provider, req checkoutRequest) {
	intent, err := h.svc.CreateIntent(c.Request.Context(), service.CreateIntentInput{
		OrderID:  req.OrderID,
		UserID:   middleware.GetUserID(c),
		Provider: p,
		Amount:   req.Amount,
		Currency: req.Currency,
		Checkout: req.Checkout,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"intent":      intent,
		"payment_url": intent.PaymentURL,
	})
}

// Verify polls the provider for an order the customer just returned from.
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req struct {
		OrderID string `json:"order_id" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	intent, err := h.svc.VerifyByOrder(c.Request.Context(), req.OrderID, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intent": intent})
}

func (h *PaymentHandler) VerifyExternal(c *gin.Context) {
	p, ok := providerParam(c)
	if !ok {
		return
	}
	intent, err := h.svc.VerifyByExternalID(c.Request.Context(), p, c.Param("externalId"), middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intent": intent})
}

func (h *PaymentHandler) Status(c *gin.Context) {
	intent, err := h.svc.Status(c.Request.Context(), c.Param("orderId"), middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intent": intent})
}

type adminActionRequest struct {
	OrderID string          `json:"order_id" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason"`
}

// adminTarget binds the body and checks the order's intent belongs to the path provider.
func (h *PaymentHandler) adminTarget(c *gin.Context) (adminActionRequest, bool) {
	var req adminActionRequest
	p, ok := providerParam(c)
	if !ok || !bindJSON(c, &req) {
		return req, false
	}
	intent, err := h.svc.Status(c.Request.Context(), req.OrderID, 0, true)
	if err != nil {
		respondError(c, err)
		return req, false
	}
	if intent.Provider != p {
		respondError(c, apperr.Newf(apperr.Invalid, "order %s was paid with %s", req.OrderID, intent.Provider))
		return req, false
	}
	return req, true
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	req, ok := h.adminTarget(c)
	if !ok {
		return
	}
	intent, err := h.svc.Refund(c.Request.Context(), req.OrderID, req.Amount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intent": intent})
}

func (h *PaymentHandler) Cancel(c *gin.Context) {
	req, ok := h.adminTarget(c)
	if !ok {
		return
	}
	intent, err := h.svc.Cancel(c.Request.Context(), req.OrderID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intent": intent})
}

// Replay re-applies order projections that did not commit. ?limit= caps the batch.
func (h *PaymentHandler) Replay(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	report, err := h.svc.ReplayProjections(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
