// Package webhook receives payment gateway notifications under /v0/webhooks.
package webhook

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/purchase"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// maxNotificationBytes caps the accepted notification body.
const maxNotificationBytes = 64 << 10

// defaultVerifyTimeout bounds the gateway lookup made to verify a notification.
const defaultVerifyTimeout = 5 * time.Second

// notifyTimeout bounds the asynchronous buyer notification.
const notifyTimeout = 30 * time.Second

// Deps are the services behind the webhook endpoint.
type Deps struct {
	Payment   config.PaymentConfig
	Purchases *purchase.Service
	Notifier  purchase.Notifier
}

// RegisterWebhookRoutes mounts the payment notification route.
func RegisterWebhookRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.Purchases == nil {
		return
	}
	h := NewHandler(deps)
	r.POST("/v0/webhooks/payment/:secret", h.Payment)
}

// Handler applies gateway notifications to purchases.
type Handler struct {
	purchases     *purchase.Service
	notifier      purchase.Notifier
	secret        string
	verify        bool
	verifyTimeout time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(deps Deps) *Handler {
	timeout := deps.Payment.RequestTimeout
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &Handler{
		purchases:     deps.Purchases,
		notifier:      deps.Notifier,
		secret:        strings.TrimSpace(deps.Payment.WebhookSecret),
		verify:        deps.Payment.VerifyNotifications,
		verifyTimeout: timeout,
	}
}

// Payment handles one gateway notification.
// Business rejections are acknowledged with 200 so the gateway stops redelivering.
// Transient failures answer 500 so the gateway retries.
func (h *Handler) Payment(c *gin.Context) {
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(h.secret)) != 1 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	body, errRead := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes))
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	conf, errParse := payment.ParseNotification(body)
	if errParse != nil {
		apiutil.HandleServiceError(c, errParse)
		return
	}

	entry := log.WithFields(log.Fields{
		"payment_id": conf.PaymentID,
		"status":     conf.Status,
		"trace_id":   apiutil.TraceID(c),
	})

	if h.verify && conf.Succeeded() {
		if reason := h.verifyConfirmation(c.Request.Context(), conf); reason != "" {
			entry.WithField("reason", reason).Warn("webhook: notification rejected by gateway lookup")
			c.JSON(http.StatusOK, gin.H{"ok": false, "code": reason})
			return
		}
	}

	result, errConfirm := h.purchases.Confirm(c.Request.Context(), conf)
	if errConfirm != nil {
		switch apperr.KindOf(errConfirm) {
		case apperr.KindValidation, apperr.KindNotFound, apperr.KindStateConflict:
			entry.WithError(errConfirm).Warn("webhook: notification rejected")
			c.JSON(http.StatusOK, gin.H{"ok": false, "code": apperr.CodeOf(errConfirm)})
		default:
			entry.WithError(errConfirm).Error("webhook: confirm failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "trace_id": apiutil.TraceID(c)})
		}
		return
	}

	if !result.AlreadyProcessed && !result.Canceled && !result.Pending {
		h.notify(result)
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"already_processed": result.AlreadyProcessed,
		"cards_granted":     result.CardsGranted,
		"status":            result.Purchase.Status,
	})
}

// verifyConfirmation checks a success notification against the gateway.
// Lookup failures other than not-found let the notification through.
func (h *Handler) verifyConfirmation(ctx context.Context, conf payment.Confirmation) string {
	gw, ok := h.purchases.Gateway(payment.ProviderYooKassa)
	if !ok {
		return ""
	}
	lookupCtx, cancel := context.WithTimeout(ctx, h.verifyTimeout)
	defer cancel()
	remote, errLookup := gw.GetPayment(lookupCtx, conf.PaymentID)
	if errLookup != nil {
		if apperr.KindOf(errLookup) == apperr.KindNotFound {
			return apperr.CodeNotFound
		}
		log.WithError(errLookup).WithField("payment_id", conf.PaymentID).Warn("webhook: gateway lookup failed, accepting notification")
		return ""
	}
	if remote.Status != conf.Status {
		return "status_mismatch"
	}
	if remote.Amount != conf.Amount || !strings.EqualFold(remote.Currency, conf.Currency) {
		return apperr.CodeAmountMismatch
	}
	return ""
}

func (h *Handler) notify(result purchase.Result) {
	if h.notifier == nil {
		return
	}
	p := result.Purchase
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		h.notifier.NotifyPurchase(ctx, p)
	}()
}
