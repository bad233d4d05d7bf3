package purchase

import (
	"context"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
)

// Notifier tells a buyer that a purchase succeeded.
type Notifier interface {
	NotifyPurchase(ctx context.Context, p models.Purchase)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, p models.Purchase)

// NotifyPurchase calls f.
func (f NotifierFunc) NotifyPurchase(ctx context.Context, p models.Purchase) { f(ctx, p) }
