package users

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
	dsn := fmt.Sprintf("file:users_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestUpsertCreatesThenRefreshes(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	first, err := Upsert(ctx, conn, Profile{TelegramID: 1001, Username: "@ann", FirstName: "Ann"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID == 0 || first.Username != "ann" {
		t.Fatalf("unexpected user: %+v", first)
	}

	second, err := Upsert(ctx, conn, Profile{TelegramID: 1001, Username: "ann_b", FirstName: "Anna"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same user id %d, got %d", first.ID, second.ID)
	}
	if second.Username != "ann_b" || second.FirstName != "Anna" {
		t.Fatalf("expected refreshed profile, got %+v", second)
	}

	var count int64
	conn.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 user, got %d", count)
	}
}

func TestUpsertRequiresTelegramID(t *testing.T) {
	conn := openTestDB(t)
	if _, err := Upsert(context.Background(), conn, Profile{}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFindByTelegramID(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	if _, err := FindByTelegramID(ctx, conn, 5); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	created, _ := Upsert(ctx, conn, Profile{TelegramID: 5})
	found, err := FindByTelegramID(ctx, conn, 5)
	if err != nil || found.ID != created.ID {
		t.Fatalf("expected user %d, got %+v %v", created.ID, found, err)
	}
}
