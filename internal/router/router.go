package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paycore/config"
	"paycore/internal/events"
	"paycore/internal/handler"
	"paycore/internal/lock"
	"paycore/internal/middleware"
	"paycore/internal/repository"
	"paycore/internal/service"
	"paycore/internal/ws"
	"paycore/pkg/payment"
)

// Deps are the collaborators main chooses from configuration. Nil values fall back to the
// in-process implementations.
type Deps struct {
	Log       *zap.Logger
	Registry  *payment.Registry
	Locker    lock.Locker
	Publisher events.Publisher
}

func Setup(cfg *config.Config, db *gorm.DB, deps Deps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	registry := deps.Registry
	if registry == nil {
		registry = payment.DefaultRegistry(cfg.Payment.ProviderTimeout)
	}

	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.RequestLogger(log))
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(300, 60*time.Second)))

	hub := ws.NewHub()
	publishers := events.Multi{hub}
	if deps.Publisher != nil {
		publishers = append(publishers, deps.Publisher)
	}

	settingsSvc := service.NewSettingsService(repository.NewSettingRepository(db), registry)
	paymentSvc := service.NewPaymentService(db, settingsSvc, deps.Locker, publishers, cfg.Payment, log)

	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	webhookHandler := handler.NewWebhookHandler(paymentSvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)

	authMw := middleware.AuthRequired(&cfg.JWT)
	adminMw := middleware.AdminRequired()
	checkoutLimit := middleware.RateLimitByUser(middleware.NewInMemoryRateLimiter(20, time.Minute))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api/v1")
	{
		payments := api.Group("/payments")
		// provider callbacks authenticate by signature, not by token
		payments.POST("/:provider/webhook", webhookHandler.Handle)

		user := payments.Group("")
		user.Use(authMw)
		{
			user.POST("/intent", checkoutLimit, paymentHandler.CreateIntent)
			user.POST("/verify", paymentHandler.Verify)
			user.POST("/:provider/checkout", checkoutLimit, paymentHandler.Checkout)
			user.POST("/:provider/charge", checkoutLimit, paymentHandler.Checkout)
			user.GET("/:provider/verify/:externalId", paymentHandler.VerifyExternal)
			user.GET("/intents/:orderId", paymentHandler.Status)
		}

		admin := payments.Group("")
		admin.Use(authMw, adminMw)
		{
			admin.POST("/:provider/refund", paymentHandler.Refund)
			admin.POST("/:provider/cancel", paymentHandler.Cancel)
			admin.POST("/reconcile/replay", paymentHandler.Replay)
			admin.GET("/settings", settingsHandler.List)
			admin.GET("/settings/:provider", settingsHandler.Get)
			admin.PUT("/settings/:provider", settingsHandler.Update)
		}
	}

	snapshot := func(ctx context.Context, orderID string, userID uint, admin bool) (any, error) {
		return paymentSvc.Status(ctx, orderID, userID, admin)
	}
	r.GET("/ws/payments", ws.ServePaymentStatus(&cfg.JWT, hub, snapshot, log))

	return r
}
