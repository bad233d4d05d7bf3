// Package purchase runs the package purchase workflow on top of the payment gateways.
package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/entitlement"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/retry"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/settings"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Failure reasons recorded on failed purchases.
const (
	ReasonCanceled       = "canceled"
	ReasonAmountMismatch = "amount_mismatch"
	ReasonExpired        = "expired"
	ReasonGatewayError   = "gateway_error"
)

// defaultGatewayTimeout bounds CreatePayment when no timeout is configured.
const defaultGatewayTimeout = 15 * time.Second

// Options configures a Service.
type Options struct {
	DefaultProvider string
	ReturnURL       string
	GatewayTimeout  time.Duration
}

// Service initiates and confirms package purchases.
type Service struct {
	db              *gorm.DB
	retry           retry.Policy
	settings        *settings.Store
	gateways        map[string]payment.Gateway
	defaultProvider string
	returnURL       string
	gatewayTimeout  time.Duration
	now             func() time.Time
	newKey          func() string
}

// NewService constructs a purchase service over the given gateways.
func NewService(db *gorm.DB, policy retry.Policy, store *settings.Store, gateways []payment.Gateway, opts Options) *Service {
	byName := make(map[string]payment.Gateway, len(gateways))
	for _, gw := range gateways {
		if gw != nil {
			byName[gw.Name()] = gw
		}
	}
	timeout := opts.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &Service{
		db:              db,
		retry:           policy,
		settings:        store,
		gateways:        byName,
		defaultProvider: strings.TrimSpace(opts.DefaultProvider),
		returnURL:       strings.TrimSpace(opts.ReturnURL),
		gatewayTimeout:  timeout,
		now:             func() time.Time { return time.Now().UTC() },
		newKey:          uuid.NewString,
	}
}

// DefaultProvider returns the provider used when a caller does not pick one.
func (s *Service) DefaultProvider() string { return s.defaultProvider }

// Gateway returns the gateway registered under name.
func (s *Service) Gateway(name string) (payment.Gateway, bool) {
	gw, ok := s.gateways[name]
	return gw, ok
}

// InitiateOptions selects the gateway for one purchase.
type InitiateOptions struct {
	Provider  string // Empty for the default provider.
	ReturnURL string // Empty for the configured return URL.
}

// Initiated is the outcome of a successful Initiate.
type Initiated struct {
	Purchase   models.Purchase
	Package    models.Package
	PaymentID  string
	PaymentURL string
}

// Initiate creates a pending purchase and registers the payment with the gateway.
// The pending row is committed before the gateway call so no database lock is
// held while waiting on the network. A gateway failure removes the row again.
func (s *Service) Initiate(ctx context.Context, userID, packageID uint64, opts InitiateOptions) (Initiated, error) {
	if userID == 0 {
		return Initiated{}, apperr.Validation(apperr.CodeInvalidInput, "user is required")
	}
	provider := strings.TrimSpace(opts.Provider)
	if provider == "" {
		provider = s.defaultProvider
	}
	gw, ok := s.gateways[provider]
	if !ok {
		return Initiated{}, apperr.Configuration(apperr.CodeInvalidInput, fmt.Sprintf("payment provider %q is not configured", provider))
	}
	returnURL := strings.TrimSpace(opts.ReturnURL)
	if returnURL == "" {
		returnURL = s.returnURL
	}

	pkg, errPkg := s.purchasablePackage(ctx, packageID)
	if errPkg != nil {
		return Initiated{}, errPkg
	}
	owned, errOwned := s.owns(ctx, userID, packageID)
	if errOwned != nil {
		return Initiated{}, errOwned
	}
	if owned {
		return Initiated{}, apperr.Conflict(apperr.CodeAlreadyOwned, "package already purchased")
	}

	row := models.Purchase{
		UserID:    userID,
		PackageID: pkg.ID,
		Amount:    pkg.Price,
		Currency:  pkg.Currency,
		Provider:  gw.Name(),
		Status:    models.PurchaseStatusPending,
	}
	errCreate := s.retry.Do(ctx, func(ctx context.Context) error {
		row.ID = 0
		return s.db.WithContext(ctx).Create(&row).Error
	})
	if errCreate != nil {
		log.WithFields(log.Fields{"user_id": userID, "package_id": packageID}).WithError(errCreate).Warn("purchase: create pending row failed")
		return Initiated{}, errCreate
	}
	fields := log.Fields{"purchase_id": row.ID, "user_id": userID, "package_id": packageID, "provider": provider}

	idempotenceKey := s.newKey()
	var handle payment.PaymentHandle
	errGateway := s.retry.Do(ctx, func(ctx context.Context) error {
		gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
		var errCall error
		handle, errCall = gw.CreatePayment(gwCtx, payment.PaymentRequest{
			Amount:      row.Amount,
			Currency:    row.Currency,
			Description: pkg.Name,
			ReturnURL:   returnURL,
			Metadata: map[string]string{
				"purchase_id": strconv.FormatUint(row.ID, 10),
				"user_id":     strconv.FormatUint(userID, 10),
				"package_id":  strconv.FormatUint(pkg.ID, 10),
			},
			IdempotenceKey: idempotenceKey,
		})
		return errCall
	})
	if errGateway != nil {
		s.discardPending(context.WithoutCancel(ctx), row.ID)
		log.WithFields(fields).WithError(errGateway).Warn("purchase: initiate failed")
		return Initiated{}, fmt.Errorf("purchase: create payment: %w", errGateway)
	}

	paymentID := handle.PaymentID
	updates := map[string]any{
		"payment_id":  paymentID,
		"payment_url": handle.ConfirmationURL,
	}
	if len(handle.Raw) > 0 && json.Valid(handle.Raw) {
		updates["metadata"] = datatypes.JSON(handle.Raw)
	}
	errSave := s.retry.Do(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return s.db.WithContext(ctx).Model(&models.Purchase{}).Where("id = ?", row.ID).Updates(updates).Error
	})
	if errSave != nil {
		log.WithFields(fields).WithField("payment_id", paymentID).WithError(errSave).Error("purchase: payment registered but handle not saved")
		return Initiated{}, errSave
	}
	row.PaymentID = &paymentID
	row.PaymentURL = handle.ConfirmationURL

	log.WithFields(fields).WithField("payment_id", paymentID).Info("purchase: initiated")
	return Initiated{Purchase: row, Package: pkg, PaymentID: paymentID, PaymentURL: handle.ConfirmationURL}, nil
}

// discardPending removes a pending row whose payment never reached the gateway.
// When the delete fails the row is marked failed so it is not counted as open.
func (s *Service) discardPending(ctx context.Context, purchaseID uint64) {
	errDelete := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).
			Where("id = ? AND status = ?", purchaseID, models.PurchaseStatusPending).
			Delete(&models.Purchase{}).Error
	})
	if errDelete == nil {
		return
	}
	if errFail := s.failIfPending(ctx, purchaseID, ReasonGatewayError); errFail != nil {
		log.WithField("purchase_id", purchaseID).WithError(errFail).Error("purchase: discard pending row failed")
	}
}

// Result is the outcome of Confirm.
type Result struct {
	Purchase         models.Purchase
	CardsGranted     int
	AlreadyProcessed bool // The payment had already granted its cards.
	Canceled         bool // The gateway reported a cancellation.
	Pending          bool // The gateway reported a non-final status.
}

// Confirm applies a gateway confirmation. Entitlements of a payment are granted at most once.
func (s *Service) Confirm(ctx context.Context, conf payment.Confirmation) (Result, error) {
	paymentID := strings.TrimSpace(conf.PaymentID)
	if paymentID == "" {
		return Result{}, apperr.Validation(apperr.CodeInvalidInput, "payment id is required")
	}
	row, errFind := s.findByPaymentID(ctx, paymentID)
	if errFind != nil {
		return Result{}, errFind
	}
	if row.IsSucceeded() {
		return Result{Purchase: row, AlreadyProcessed: true}, nil
	}

	switch {
	case conf.Canceled():
		if errFail := s.failIfPending(ctx, row.ID, ReasonCanceled); errFail != nil {
			return Result{}, errFail
		}
		updated, errReload := s.Get(ctx, row.ID)
		if errReload != nil {
			return Result{}, errReload
		}
		log.WithFields(log.Fields{"purchase_id": row.ID, "payment_id": paymentID}).Info("purchase: canceled at gateway")
		return Result{Purchase: updated, Canceled: true}, nil
	case !conf.Succeeded():
		return Result{Purchase: row, Pending: true}, nil
	}

	if conf.Amount != row.Amount || !strings.EqualFold(strings.TrimSpace(conf.Currency), row.Currency) {
		if errFail := s.markMismatch(ctx, row.ID); errFail != nil {
			return Result{}, errFail
		}
		log.WithFields(log.Fields{
			"purchase_id": row.ID,
			"payment_id":  paymentID,
			"expected":    fmt.Sprintf("%d %s", row.Amount, row.Currency),
			"got":         fmt.Sprintf("%d %s", conf.Amount, conf.Currency),
		}).Warn("purchase: amount mismatch")
		return Result{}, apperr.Conflict(apperr.CodeAmountMismatch, "payment amount does not match the purchase")
	}

	var result Result
	errRetry := s.retry.Do(ctx, func(ctx context.Context) error {
		result = Result{}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var locked models.Purchase
			if errLock := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, row.ID).Error; errLock != nil {
				return errLock
			}
			now := s.now()
			res := tx.Model(&models.Purchase{}).
				Where("id = ? AND status NOT IN ?", locked.ID, models.SucceededStatuses).
				Updates(map[string]any{
					"status":         models.PurchaseStatusSucceeded,
					"failure_reason": "",
					"confirmed_at":   now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				result.AlreadyProcessed = true
				result.Purchase = locked
				return nil
			}

			var pkg models.Package
			if errPkg := tx.Preload("Cards").First(&pkg, locked.PackageID).Error; errPkg != nil {
				return fmt.Errorf("purchase: load package %d: %w", locked.PackageID, errPkg)
			}
			cardIDs := make([]uint64, 0, len(pkg.Cards))
			for _, card := range pkg.Cards {
				cardIDs = append(cardIDs, card.ID)
			}
			granted, errGrant := entitlement.Grant(tx, locked.UserID, cardIDs, entitlement.GrantOptions{
				ExpiresAt: entitlement.ExpiryFor(now, pkg.AccessDays),
				GrantedAt: now,
				Source:    models.AccessSourcePurchase,
				SourceRef: strconv.FormatUint(locked.ID, 10),
			})
			if errGrant != nil {
				return errGrant
			}
			locked.Package = &pkg
			locked.Status = models.PurchaseStatusSucceeded
			locked.FailureReason = ""
			locked.ConfirmedAt = &now
			result.Purchase = locked
			result.CardsGranted = granted
			return nil
		})
	})
	if errRetry != nil {
		return Result{}, errRetry
	}
	if !result.AlreadyProcessed {
		log.WithFields(log.Fields{"purchase_id": result.Purchase.ID, "payment_id": paymentID, "cards": result.CardsGranted}).Info("purchase: confirmed")
	}
	return result, nil
}

// CheckPending verifies that a payment can still be accepted for the given amount.
func (s *Service) CheckPending(ctx context.Context, paymentID string, amount int64, currency string) error {
	row, errFind := s.findByPaymentID(ctx, strings.TrimSpace(paymentID))
	if errFind != nil {
		return errFind
	}
	if row.Status != models.PurchaseStatusPending {
		return apperr.Conflict(apperr.CodeConflict, "purchase is no longer pending")
	}
	if row.Amount != amount || !strings.EqualFold(strings.TrimSpace(currency), row.Currency) {
		return apperr.Conflict(apperr.CodeAmountMismatch, "payment amount does not match the purchase")
	}
	return nil
}

// MarkCompleted records that the buyer was notified about a succeeded purchase.
func (s *Service) MarkCompleted(ctx context.Context, purchaseID uint64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", purchaseID, models.PurchaseStatusSucceeded).
		Update("status", models.PurchaseStatusCompleted)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Get loads a purchase with its package.
func (s *Service) Get(ctx context.Context, id uint64) (models.Purchase, error) {
	var row models.Purchase
	if errFind := s.db.WithContext(ctx).Preload("Package").First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Purchase{}, apperr.NotFound(apperr.CodePurchaseNotFound, "purchase not found")
		}
		return models.Purchase{}, errFind
	}
	return row, nil
}

func (s *Service) purchasablePackage(ctx context.Context, packageID uint64) (models.Package, error) {
	var pkg models.Package
	if errFind := s.db.WithContext(ctx).First(&pkg, packageID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Package{}, apperr.NotFound(apperr.CodePackageNotFound, "package not found")
		}
		return models.Package{}, errFind
	}
	if !pkg.Purchasable(s.now()) {
		return models.Package{}, apperr.Conflict(apperr.CodePackageInactive, "package is not available")
	}
	if pkg.Currency == "" {
		pkg.Currency = models.DefaultCurrency
	}
	return pkg, nil
}

func (s *Service) owns(ctx context.Context, userID, packageID uint64) (bool, error) {
	var count int64
	errCount := s.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("user_id = ? AND package_id = ? AND status IN ?", userID, packageID, models.SucceededStatuses).
		Count(&count).Error
	return count > 0, errCount
}

func (s *Service) findByPaymentID(ctx context.Context, paymentID string) (models.Purchase, error) {
	var row models.Purchase
	if errFind := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Purchase{}, apperr.NotFound(apperr.CodePurchaseNotFound, "purchase not found")
		}
		return models.Purchase{}, errFind
	}
	return row, nil
}

func (s *Service) failIfPending(ctx context.Context, purchaseID uint64, reason string) error {
	return s.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", purchaseID, models.PurchaseStatusPending).
		Updates(map[string]any{"status": models.PurchaseStatusFailed, "failure_reason": reason}).Error
}

func (s *Service) markMismatch(ctx context.Context, purchaseID uint64) error {
	return s.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status NOT IN ?", purchaseID, models.SucceededStatuses).
		Updates(map[string]any{"status": models.PurchaseStatusFailed, "failure_reason": ReasonAmountMismatch}).Error
}
