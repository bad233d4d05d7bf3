package purchase

import (
	"context"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/settings"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 500
	maxSweepBatchesPerRun = 100
)

// PendingSweeper periodically fails pending purchases that were never paid.
type PendingSweeper struct {
	svc       *Service
	interval  time.Duration
	batchSize int
}

// NewPendingSweeper builds a sweeper over the purchase service.
func NewPendingSweeper(svc *Service, interval time.Duration) *PendingSweeper {
	if svc == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &PendingSweeper{svc: svc, interval: interval, batchSize: defaultSweepBatchSize}
}

// Start launches the sweep loop in a background goroutine.
func (p *PendingSweeper) Start(ctx context.Context) {
	if p == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go p.run(ctx)
	log.Infof("pending purchase sweeper started (interval=%s)", p.interval)
}

func (p *PendingSweeper) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.SweepOnce(ctx)
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// SweepOnce expires stale pending purchases and returns how many were failed.
func (p *PendingSweeper) SweepOnce(ctx context.Context) int64 {
	ttlMinutes := settings.DefaultPurchasePendingTTLMinutes
	if p.svc.settings != nil {
		ttlMinutes = p.svc.settings.Int(settings.PurchasePendingTTLMinutesKey, settings.DefaultPurchasePendingTTLMinutes)
	}
	if ttlMinutes <= 0 {
		return 0
	}
	cutoff := p.svc.now().Add(-time.Duration(ttlMinutes) * time.Minute)

	var total int64
	for i := 0; i < maxSweepBatchesPerRun; i++ {
		if ctx.Err() != nil {
			break
		}
		n, errBatch := p.expireBatch(ctx, cutoff)
		if errBatch != nil {
			log.WithError(errBatch).Warn("pending purchase sweeper: batch failed")
			break
		}
		total += n
		if n < int64(p.batchSize) {
			break
		}
	}
	if total > 0 {
		log.Infof("pending purchase sweeper: expired %d purchases (cutoff=%s)", total, cutoff.Format(time.RFC3339))
	}
	return total
}

func (p *PendingSweeper) expireBatch(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []uint64
	if errPluck := p.svc.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("status = ? AND created_at < ?", models.PurchaseStatusPending, cutoff).
		Order("created_at ASC").
		Limit(p.batchSize).
		Pluck("id", &ids).Error; errPluck != nil {
		return 0, errPluck
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := p.svc.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id IN ? AND status = ?", ids, models.PurchaseStatusPending).
		Updates(map[string]any{"status": models.PurchaseStatusFailed, "failure_reason": ReasonExpired})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
