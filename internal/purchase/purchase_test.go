package purchase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/db"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/retry"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/settings"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeGateway struct {
	mu       sync.Mutex
	name     string
	failures []error
	keys     []string
	requests []payment.PaymentRequest
	next     int
	onCreate func(ctx context.Context)
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) CreatePayment(ctx context.Context, req payment.PaymentRequest) (payment.PaymentHandle, error) {
	if g.onCreate != nil {
		g.onCreate(ctx)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys = append(g.keys, req.IdempotenceKey)
	g.requests = append(g.requests, req)
	if len(g.failures) > 0 {
		errFail := g.failures[0]
		g.failures = g.failures[1:]
		return payment.PaymentHandle{}, errFail
	}
	g.next++
	id := fmt.Sprintf("pay-%d", g.next)
	return payment.PaymentHandle{
		PaymentID:       id,
		Status:          payment.StatusPending,
		ConfirmationURL: "https://pay.example/" + id,
		Raw:             []byte(`{"id":"` + id + `"}`),
	}, nil
}

func (g *fakeGateway) GetPayment(context.Context, string) (payment.PaymentStatus, error) {
	return payment.PaymentStatus{}, payment.ErrLookupUnsupported
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:purchase_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

// openFileDB opens a WAL sqlite file with a real connection pool.
func openFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(filepath.Join(t.TempDir(), "purchase.db"), db.Options{MaxOpenConns: 8, Logger: logger.Discard})
	if errOpen != nil {
		t.Fatalf("open sqlite file: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

type fixture struct {
	conn *gorm.DB
	svc  *Service
	gw   *fakeGateway
	user models.User
	pkg  models.Package
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWith(t, openTestDB(t), retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

func newFixtureWith(t *testing.T, conn *gorm.DB, policy retry.Policy) fixture {
	t.Helper()
	store := settings.NewStore(conn)
	if errRefresh := store.Refresh(context.Background()); errRefresh != nil {
		t.Fatalf("refresh settings: %v", errRefresh)
	}
	gw := &fakeGateway{name: payment.ProviderYooKassa}
	svc := NewService(conn, policy, store, []payment.Gateway{gw}, Options{
		DefaultProvider: payment.ProviderYooKassa,
		ReturnURL:       "https://t.me/bgcards_bot",
	})

	card := models.Card{ID: 201, Title: "Blitz", Active: true}
	if errCard := conn.Create(&card).Error; errCard != nil {
		t.Fatalf("create card: %v", errCard)
	}
	pkg := models.Package{Name: "Blitz pack", Price: 500, Currency: "RUB", Active: true}
	if errPkg := conn.Create(&pkg).Error; errPkg != nil {
		t.Fatalf("create package: %v", errPkg)
	}
	if errAssoc := conn.Model(&pkg).Association("Cards").Append(&card); errAssoc != nil {
		t.Fatalf("attach card: %v", errAssoc)
	}
	user := models.User{TelegramID: 9001}
	if errUser := conn.Create(&user).Error; errUser != nil {
		t.Fatalf("create user: %v", errUser)
	}
	return fixture{conn: conn, svc: svc, gw: gw, user: user, pkg: pkg}
}

func (f fixture) hasAccess(t *testing.T, cardID uint64) bool {
	t.Helper()
	var count int64
	if errCount := f.conn.Model(&models.CardAccess{}).
		Where("user_id = ? AND card_id = ? AND active = ?", f.user.ID, cardID, true).
		Count(&count).Error; errCount != nil {
		t.Fatalf("count access: %v", errCount)
	}
	return count > 0
}

func (f fixture) reload(t *testing.T, id uint64) models.Purchase {
	t.Helper()
	var row models.Purchase
	if errFind := f.conn.First(&row, id).Error; errFind != nil {
		t.Fatalf("reload purchase: %v", errFind)
	}
	return row
}

func TestPurchasePackage500Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	initiated, errInit := f.svc.Initiate(ctx, f.user.ID, f.pkg.ID, InitiateOptions{})
	if errInit != nil {
		t.Fatalf("initiate: %v", errInit)
	}
	row := f.reload(t, initiated.Purchase.ID)
	if row.Status != models.PurchaseStatusPending || row.Amount != 500 || row.PaymentID == nil || *row.PaymentID != "pay-1" {
		t.Fatalf("unexpected pending purchase %+v", row)
	}
	if initiated.PaymentURL != "https://pay.example/pay-1" {
		t.Fatalf("unexpected payment url %q", initiated.PaymentURL)
	}
	req := f.gw.requests[0]
	if req.Amount != 500 || req.Metadata["purchase_id"] != fmt.Sprint(row.ID) || req.Metadata["package_id"] != fmt.Sprint(f.pkg.ID) || req.ReturnURL != "https://t.me/bgcards_bot" {
		t.Fatalf("unexpected gateway request %+v", req)
	}

	conf := payment.Confirmation{PaymentID: "pay-1", Amount: 500, Currency: "RUB", Status: payment.StatusSucceeded}
	result, errConfirm := f.svc.Confirm(ctx, conf)
	if errConfirm != nil {
		t.Fatalf("confirm: %v", errConfirm)
	}
	if result.AlreadyProcessed || result.CardsGranted != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !f.hasAccess(t, 201) {
		t.Fatalf("expected card 201 to be accessible")
	}
	row = f.reload(t, initiated.Purchase.ID)
	if row.Status != models.PurchaseStatusSucceeded || row.ConfirmedAt == nil {
		t.Fatalf("expected succeeded purchase, got %+v", row)
	}

	again, errAgain := f.svc.Confirm(ctx, conf)
	if errAgain != nil {
		t.Fatalf("duplicate confirm: %v", errAgain)
	}
	if !again.AlreadyProcessed || again.CardsGranted != 0 {
		t.Fatalf("expected already processed, got %+v", again)
	}
	var accessRows int64
	f.conn.Model(&models.CardAccess{}).Where("user_id = ?", f.user.ID).Count(&accessRows)
	if accessRows != 1 {
		t.Fatalf("expected exactly one access row, got %d", accessRows)
	}

	if _, errInit := f.svc.Initiate(ctx, f.user.ID, f.pkg.ID, InitiateOptions{}); apperr.CodeOf(errInit) != apperr.CodeAlreadyOwned {
		t.Fatalf("expected already_owned, got %v", errInit)
	}

	completed, errComplete := f.svc.MarkCompleted(ctx, row.ID)
	if errComplete != nil || !completed {
		t.Fatalf("expected mark completed, got %v err=%v", completed, errComplete)
	}
	if again, _ := f.svc.Confirm(ctx, conf); !again.AlreadyProcessed {
		t.Fatalf("expected completed purchase to count as processed")
	}
}

func TestConfirmAmountMismatchFailsPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	initiated, errInit := f.svc.Initiate(ctx, f.user.ID, f.pkg.ID, InitiateOptions{})
	if errInit != nil {
		t.Fatalf("initiate: %v", errInit)
	}

	_, errConfirm := f.svc.Confirm(ctx, payment.Confirmation{PaymentID: initiated.PaymentID, Amount: 400, Currency: "RUB", Status: payment.StatusSucceeded})
	if apperr.CodeOf(errConfirm) != apperr.CodeAmountMismatch || apperr.KindOf(errConfirm) != apperr.KindStateConflict {
		t.Fatalf("expected amount_mismatch, got %v", errConfirm)
	}
	row := f.reload(t, initiated.Purchase.ID)
	if row.Status != models.PurchaseStatusFailed || row.FailureReason != ReasonAmountMismatch {
		t.Fatalf("expected failed/amount_mismatch, got %s/%s", row.Status, row.FailureReason)
	}
	if f.hasAccess(t, 201) {
		t.Fatalf("expected no access after mismatch")
	}

	if _, errConfirm = f.svc.Confirm(ctx, payment.Confirmation{PaymentID: initiated.PaymentID, Amount: 500, Currency: "USD", Status: payment.StatusSucceeded}); apperr.CodeOf(errConfirm) != apperr.CodeAmountMismatch {
		t.Fatalf("expected currency mismatch to fail, got %v", errConfirm)
	}

	late, errLate := f.svc.Confirm(ctx, payment.Confirmation{PaymentID: initiated.PaymentID, Amount: 500, Currency: "rub", Status: payment.StatusSucceeded})
	if errLate != nil {
		t.Fatalf("late confirm: %v", errLate)
	}
	if late.CardsGranted != 1 || f.reload(t, initiated.Purchase.ID).Status != models.PurchaseStatusSucceeded {
		t.Fatalf("expected late confirmation to succeed, got %+v", late)
	}
}

func TestConfirmCanceledAndPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	initiated, errInit := f.svc.Initiate(ctx, f.user.ID, f.pkg.ID, InitiateOptions{})
	if errInit != nil {
		t.Fatalf("initiate: %v", errInit)
	}

	pending, errPending := f.svc.Confirm(ctx, payment.Confirmation{PaymentID: initiated.PaymentID, Amount: 500, Currency: "RUB", Status: payment.StatusWaitingForCapture})
	if errPending != nil || !pending.Pending {
		t.Fatalf("expected pending no-op, got %+v err=%v", pending, errPending)
	}

	canceled, errCancel := f.svc.Confirm(ctx, payment.Confirmation{PaymentID: initiated.PaymentID, Amount: 500, Currency: "RUB", Status: payment.StatusCanceled})
	if errCancel != nil || !canceled.Canceled {
		t.Fatalf("expected canceled result, got %+v err=%v", canceled, errCancel)
	}
	row := f.reload(t, initiated.Purchase.ID)
	if row.Status != models.PurchaseStatusFailed || row.FailureReason != ReasonCanceled {
		t.Fatalf("expected failed/canceled, got %s/%s", row.Status, row.FailureReason)
	}

	if _, errMissing := f.svc.Confirm(ctx, payment.Confirmation{PaymentID: "nope", Amount: 500, Currency: "RUB", Status: payment.StatusSucceeded}); apperr.CodeOf(errMissing) != apperr.CodePurchaseNotFound {
		t.Fatalf("expected purchase_not_found, got %v", errMissing)
	}
}

func TestInitiateGatewayFailureLeavesNoPurchase(t *testing.T) {
	f := newFixture(t)
	f.gw.failures = []error{apperr.Configuration(apperr.CodeInvalidInput, "gateway rejected")}

	_, errInit := f.svc.Initiate(context.Background(), f.user.ID, f.pkg.ID, InitiateOptions{})
	if apperr.KindOf(errInit) != apperr.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", errInit)
	}
	var count int64
	f.conn.Model(&models.Purchase{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no orphan purchase, got %d", count)
	}
}

func TestInitiateCommitsPendingRowBeforeGatewayCall(t *testing.T) {
	f := newFixture(t)
	var (
		visible  int64
		errCount error
	)
	f.gw.onCreate = func(ctx context.Context) {
		countCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		errCount = f.conn.WithContext(countCtx).Model(&models.Purchase{}).
			Where("user_id = ? AND status = ? AND payment_id IS NULL", f.user.ID, models.PurchaseStatusPending).
			Count(&visible).Error
	}

	if _, errInit := f.svc.Initiate(context.Background(), f.user.ID, f.pkg.ID, InitiateOptions{}); errInit != nil {
		t.Fatalf("initiate: %v", errInit)
	}
	if errCount != nil {
		t.Fatalf("expected the database to be free during the gateway call, got %v", errCount)
	}
	if visible != 1 {
		t.Fatalf("expected the committed pending row to be visible, got %d", visible)
	}
}

func TestConcurrentConfirmGrantsOnce(t *testing.T) {
	f := newFixtureWith(t, openFileDB(t), retry.Policy{Attempts: 50, BaseDelay: 2 * time.Millisecond, MaxDelay: 20 * time.Millisecond})
	ctx := context.Background()
	initiated, errInit := f.svc.Initiate(ctx, f.user.ID, f.pkg.ID, InitiateOptions{})
	if errInit != nil {
		t.Fatalf("initiate: %v", errInit)
	}
	conf := payment.Confirmation{PaymentID: initiated.PaymentID, Amount: 500, Currency: "RUB", Status: payment.StatusSucceeded}

	const callers = 10
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
		errs  []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, errConfirm := f.svc.Confirm(ctx, conf)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errConfirm != nil:
				errs = append(errs, errConfirm)
			case !result.AlreadyProcessed:
				fresh++
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected confirm errors: %v", errs)
	}
	if fresh != 1 {
		t.Fatalf("expected exactly one confirmation to grant cards, got %d", fresh)
	}
	if row := f.reload(t, initiated.Purchase.ID); row.Status != models.PurchaseStatusSucceeded {
		t.Fatalf("expected succeeded purchase, got %s", row.Status)
	}
	var accessRows int64
	f.conn.Model(&models.CardAccess{}).Where("user_id = ?", f.user.ID).Count(&accessRows)
	if accessRows != 1 {
		t.Fatalf("expected exactly one access row, got %d", accessRows)
	}
}

func TestInitiateRetriesTransientGatewayWithSameKey(t *testing.T) {
	f := newFixture(t)
	f.gw.failures = []error{apperr.Transient(errors.New("connection reset"))}

	initiated, errInit := f.svc.Initiate(context.Background(), f.user.ID, f.pkg.ID, InitiateOptions{})
	if errInit != nil {
		t.Fatalf("initiate: %v", errInit)
	}
	if len(f.gw.keys) != 2 || f.gw.keys[0] == "" || f.gw.keys[0] != f.gw.keys[1] {
		t.Fatalf("expected two calls with the same idempotence key, got %v", f.gw.keys)
	}
	var count int64
	f.conn.Model(&models.Purchase{}).Count(&count)
	if count != 1 || initiated.PaymentID == "" {
		t.Fatalf("expected exactly one purchase, got %d", count)
	}
}

func TestInitiateRejectsUnavailablePackages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, errInit := f.svc.Initiate(ctx, f.user.ID, 9999, InitiateOptions{}); apperr.CodeOf(errInit) != apperr.CodePackageNotFound {
		t.Fatalf("expected package_not_found, got %v", errInit)
	}
	if errUpdate := f.conn.Model(&f.pkg).Update("active", false).Error; errUpdate != nil {
		t.Fatalf("deactivate: %v", errUpdate)
	}
	if _, errInit := f.svc.Initiate(ctx, f.user.ID, f.pkg.ID, InitiateOptions{}); apperr.CodeOf(errInit) != apperr.CodePackageInactive {
		t.Fatalf("expected package_inactive, got %v", errInit)
	}
	if _, errInit := f.svc.Initiate(ctx, f.user.ID, f.pkg.ID, InitiateOptions{Provider: "stripe"}); apperr.KindOf(errInit) != apperr.KindConfiguration {
		t.Fatalf("expected configuration error for unknown provider, got %v", errInit)
	}
	if len(f.gw.requests) != 0 {
		t.Fatalf("expected no gateway calls, got %d", len(f.gw.requests))
	}
}

func TestCheckPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	initiated, errInit := f.svc.Initiate(ctx, f.user.ID, f.pkg.ID, InitiateOptions{})
	if errInit != nil {
		t.Fatalf("initiate: %v", errInit)
	}

	if errCheck := f.svc.CheckPending(ctx, initiated.PaymentID, 500, "RUB"); errCheck != nil {
		t.Fatalf("expected pending check to pass, got %v", errCheck)
	}
	if errCheck := f.svc.CheckPending(ctx, initiated.PaymentID, 499, "RUB"); apperr.CodeOf(errCheck) != apperr.CodeAmountMismatch {
		t.Fatalf("expected amount_mismatch, got %v", errCheck)
	}
	if errCheck := f.svc.CheckPending(ctx, "missing", 500, "RUB"); apperr.CodeOf(errCheck) != apperr.CodePurchaseNotFound {
		t.Fatalf("expected purchase_not_found, got %v", errCheck)
	}
	if _, errConfirm := f.svc.Confirm(ctx, payment.Confirmation{PaymentID: initiated.PaymentID, Amount: 500, Currency: "RUB", Status: payment.StatusSucceeded}); errConfirm != nil {
		t.Fatalf("confirm: %v", errConfirm)
	}
	if errCheck := f.svc.CheckPending(ctx, initiated.PaymentID, 500, "RUB"); apperr.CodeOf(errCheck) != apperr.CodeConflict {
		t.Fatalf("expected conflict for confirmed purchase, got %v", errCheck)
	}
}

func TestPendingSweeperExpiresStalePurchases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale, errInit := f.svc.Initiate(ctx, f.user.ID, f.pkg.ID, InitiateOptions{})
	if errInit != nil {
		t.Fatalf("initiate stale: %v", errInit)
	}
	fresh, errInit := f.svc.Initiate(ctx, f.user.ID, f.pkg.ID, InitiateOptions{})
	if errInit != nil {
		t.Fatalf("initiate fresh: %v", errInit)
	}
	old := time.Now().UTC().Add(-2 * time.Hour)
	if errUpdate := f.conn.Model(&models.Purchase{}).Where("id = ?", stale.Purchase.ID).UpdateColumn("created_at", old).Error; errUpdate != nil {
		t.Fatalf("age purchase: %v", errUpdate)
	}

	sweeper := NewPendingSweeper(f.svc, time.Minute)
	if n := sweeper.SweepOnce(ctx); n != 1 {
		t.Fatalf("expected 1 expired purchase, got %d", n)
	}
	if row := f.reload(t, stale.Purchase.ID); row.Status != models.PurchaseStatusFailed || row.FailureReason != ReasonExpired {
		t.Fatalf("expected failed/expired, got %s/%s", row.Status, row.FailureReason)
	}
	if row := f.reload(t, fresh.Purchase.ID); row.Status != models.PurchaseStatusPending {
		t.Fatalf("expected fresh purchase to stay pending, got %s", row.Status)
	}
}

func TestListPurchases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, errInit := f.svc.Initiate(ctx, f.user.ID, f.pkg.ID, InitiateOptions{}); errInit != nil {
		t.Fatalf("initiate: %v", errInit)
	}
	rows, total, errList := f.svc.List(ctx, ListFilter{Status: models.PurchaseStatusPending, UserID: f.user.ID})
	if errList != nil || total != 1 || len(rows) != 1 || rows[0].Package == nil {
		t.Fatalf("unexpected list result total=%d rows=%+v err=%v", total, rows, errList)
	}
	mine, errMine := f.svc.ListForUser(ctx, f.user.ID)
	if errMine != nil || len(mine) != 1 {
		t.Fatalf("expected one user purchase, got %d err=%v", len(mine), errMine)
	}
}
