package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/db"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:catalog_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

func strPtr(v string) *string { return &v }

func TestCardCRUD(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()

	if _, errCreate := svc.CreateCard(ctx, CardInput{}); apperr.KindOf(errCreate) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", errCreate)
	}
	if _, errCreate := svc.CreateCard(ctx, CardInput{Title: strPtr("Bear-off"), Difficulty: strPtr("extreme")}); apperr.KindOf(errCreate) != apperr.KindValidation {
		t.Fatalf("expected invalid difficulty, got %v", errCreate)
	}

	card, errCreate := svc.CreateCard(ctx, CardInput{
		Title:      strPtr(" Bear-off "),
		Answer:     strPtr("6/off 5/off"),
		Difficulty: strPtr("HARD"),
		Tags:       []string{"endgame", " ", "race"},
	})
	if errCreate != nil {
		t.Fatalf("create card: %v", errCreate)
	}
	if card.Title != "Bear-off" || card.Difficulty != models.DifficultyHard || !card.Active {
		t.Fatalf("unexpected card %+v", card)
	}
	if string(card.Tags) != `["endgame","race"]` {
		t.Fatalf("expected cleaned tags, got %s", card.Tags)
	}

	inactive := false
	updated, errUpdate := svc.UpdateCard(ctx, card.ID, CardInput{Description: strPtr("White to play 64"), Active: &inactive})
	if errUpdate != nil {
		t.Fatalf("update card: %v", errUpdate)
	}
	if updated.Description != "White to play 64" || updated.Active || updated.Title != "Bear-off" {
		t.Fatalf("unexpected updated card %+v", updated)
	}

	cards, total, errList := svc.ListCards(ctx, ListOptions{Query: "bear"})
	if errList != nil {
		t.Fatalf("list cards: %v", errList)
	}
	if total != 1 || len(cards) != 1 {
		t.Fatalf("expected 1 card, got %d", total)
	}

	if errDelete := svc.DeleteCard(ctx, card.ID); errDelete != nil {
		t.Fatalf("delete card: %v", errDelete)
	}
	if errDelete := svc.DeleteCard(ctx, card.ID); apperr.KindOf(errDelete) != apperr.KindNotFound {
		t.Fatalf("expected not found on second delete, got %v", errDelete)
	}
}

func TestPackageCardSetIsReplaced(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()

	var ids []uint64
	for i := 0; i < 3; i++ {
		card, errCreate := svc.CreateCard(ctx, CardInput{Title: strPtr(fmt.Sprintf("Card %d", i))})
		if errCreate != nil {
			t.Fatalf("create card: %v", errCreate)
		}
		ids = append(ids, card.ID)
	}

	price := int64(500)
	first := []uint64{ids[0], ids[1]}
	pkg, errCreate := svc.CreatePackage(ctx, PackageInput{Name: strPtr("Openings"), Price: &price, CardIDs: &first})
	if errCreate != nil {
		t.Fatalf("create package: %v", errCreate)
	}
	if len(pkg.Cards) != 2 || pkg.Currency != models.DefaultCurrency || !pkg.Active {
		t.Fatalf("unexpected package %+v", pkg)
	}

	second := []uint64{ids[2]}
	pkg, errUpdate := svc.UpdatePackage(ctx, pkg.ID, PackageInput{CardIDs: &second})
	if errUpdate != nil {
		t.Fatalf("update package: %v", errUpdate)
	}
	if len(pkg.Cards) != 1 || pkg.Cards[0].ID != ids[2] {
		t.Fatalf("expected card set replaced by %d, got %+v", ids[2], pkg.Cards)
	}

	missing := []uint64{ids[0], 9999}
	if _, errUpdate := svc.UpdatePackage(ctx, pkg.ID, PackageInput{CardIDs: &missing}); apperr.KindOf(errUpdate) != apperr.KindNotFound {
		t.Fatalf("expected not found card, got %v", errUpdate)
	}
	zero := int64(0)
	if _, errUpdate := svc.UpdatePackage(ctx, pkg.ID, PackageInput{Price: &zero}); apperr.KindOf(errUpdate) != apperr.KindValidation {
		t.Fatalf("expected validation error for zero price, got %v", errUpdate)
	}
}

func TestListPurchasableSkipsInactiveAndExpired(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()

	price := int64(300)
	inactive := false
	past := time.Now().Add(-time.Hour)
	if _, errCreate := svc.CreatePackage(ctx, PackageInput{Name: strPtr("Live"), Price: &price}); errCreate != nil {
		t.Fatalf("create live: %v", errCreate)
	}
	if _, errCreate := svc.CreatePackage(ctx, PackageInput{Name: strPtr("Off"), Price: &price, Active: &inactive}); errCreate != nil {
		t.Fatalf("create inactive: %v", errCreate)
	}
	if _, errCreate := svc.CreatePackage(ctx, PackageInput{Name: strPtr("Old"), Price: &price, ExpiresAt: &past}); errCreate != nil {
		t.Fatalf("create expired: %v", errCreate)
	}

	pkgs, errList := svc.ListPurchasable(ctx)
	if errList != nil {
		t.Fatalf("list purchasable: %v", errList)
	}
	if len(pkgs) != 1 || pkgs[0].Name != "Live" {
		t.Fatalf("expected only the live package, got %+v", pkgs)
	}
}

func TestDeletePackageRefusesWhenPurchased(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)
	ctx := context.Background()

	price := int64(100)
	pkg, errCreate := svc.CreatePackage(ctx, PackageInput{Name: strPtr("Sold"), Price: &price})
	if errCreate != nil {
		t.Fatalf("create package: %v", errCreate)
	}
	user := models.User{TelegramID: 77}
	if errUser := conn.Create(&user).Error; errUser != nil {
		t.Fatalf("create user: %v", errUser)
	}
	purchase := models.Purchase{UserID: user.ID, PackageID: pkg.ID, Amount: price, Currency: "RUB", Provider: "yookassa", Status: models.PurchaseStatusPending}
	if errPurchase := conn.Create(&purchase).Error; errPurchase != nil {
		t.Fatalf("create purchase: %v", errPurchase)
	}

	if errDelete := svc.DeletePackage(ctx, pkg.ID); apperr.KindOf(errDelete) != apperr.KindStateConflict {
		t.Fatalf("expected state conflict, got %v", errDelete)
	}
}
