package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"paycore/internal/apperr"
	"paycore/internal/service"
	"paycore/pkg/payment"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	svc *service.PaymentService
}

func NewWebhookHandler(svc *service.PaymentService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// Handle answers 401 for unauthenticated deliveries, 200 for anything the engine accepted or
// chose to ignore, and 5xx when the provider should retry.
func (h *WebhookHandler) Handle(c *gin.Context) {
	p, ok := providerParam(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	out, err := h.svc.HandleWebhook(c.Request.Context(), p, payment.WebhookRequest{
		Body:   body,
		Header: c.Request.Header,
		Query:  c.Request.URL.Query(),
	})
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.WebhookValidationFailed, apperr.NotFound:
			respondError(c, err)
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": apperr.PublicMessage(err)})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "result": out.Result})
}
