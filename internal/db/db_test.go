package db

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:db_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	return conn
}

func TestMigrateCreatesEntitlementTables(t *testing.T) {
	conn := openMemoryDB(t)

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	for _, table := range []string{"users", "cards", "card_accesses", "promo_codes", "promo_code_cards", "packages", "package_cards", "purchases", "favorites", "card_responses", "admins", "settings"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
	for _, column := range []string{"active", "expires_at", "granted_at", "source"} {
		if !conn.Migrator().HasColumn("card_accesses", column) {
			t.Fatalf("card_accesses missing column %s", column)
		}
	}
	if !conn.Migrator().HasIndex(&models.CardAccess{}, "idx_card_access_user_card") {
		t.Fatalf("expected unique (user, card) index on card_accesses")
	}
}

func TestMigrateRejectsDuplicateCardAccess(t *testing.T) {
	conn := openMemoryDB(t)
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	user := models.User{TelegramID: 42}
	card := models.Card{Title: "Opening 31"}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	if errCreate := conn.Create(&card).Error; errCreate != nil {
		t.Fatalf("create card: %v", errCreate)
	}

	now := time.Now().UTC()
	first := models.CardAccess{UserID: user.ID, CardID: card.ID, Active: true, GrantedAt: now, Source: models.AccessSourceAdmin}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create first access: %v", errCreate)
	}
	second := models.CardAccess{UserID: user.ID, CardID: card.ID, Active: true, GrantedAt: now, Source: models.AccessSourceAdmin}
	if errCreate := conn.Create(&second).Error; errCreate == nil {
		t.Fatalf("expected unique violation for duplicate (user, card)")
	}
}

func TestSeedAdminOnlyOnEmptyTable(t *testing.T) {
	conn := openMemoryDB(t)
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	created, errSeed := SeedAdmin(context.Background(), conn, "root", "changeme")
	if errSeed != nil || !created {
		t.Fatalf("expected admin to be seeded, created=%v err=%v", created, errSeed)
	}
	created, errSeed = SeedAdmin(context.Background(), conn, "other", "changeme")
	if errSeed != nil || created {
		t.Fatalf("expected no second seed, created=%v err=%v", created, errSeed)
	}

	var admin models.Admin
	if errFind := conn.Where("username = ?", "root").First(&admin).Error; errFind != nil {
		t.Fatalf("find admin: %v", errFind)
	}
	if !admin.IsSuperAdmin || admin.Password == "changeme" {
		t.Fatalf("expected hashed super admin, got %+v", admin)
	}
}

func TestDetectDialectFromDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/cards":    DialectPostgres,
		"host=localhost user=cards sslmode=disable": DialectPostgres,
		"file:cards.db":                     DialectSQLite,
		"sqlite://data/cards.db":            DialectSQLite,
		"cards.db":                          DialectSQLite,
	}
	for dsn, want := range cases {
		got, errDetect := detectDialectFromDSN(dsn)
		if errDetect != nil {
			t.Fatalf("detect %q: %v", dsn, errDetect)
		}
		if got != want {
			t.Fatalf("detect %q: expected %s, got %s", dsn, want, got)
		}
	}
	if _, errDetect := detectDialectFromDSN("mysql://cards"); errDetect == nil {
		t.Fatalf("expected error for mysql dsn")
	}
}

func TestEnsureSQLiteParamsKeepsExistingPragmas(t *testing.T) {
	got := ensureSQLiteParams("file:cards.db?_pragma=busy_timeout(100)")
	if strings.Count(got, "busy_timeout") != 1 {
		t.Fatalf("expected busy_timeout once, got %q", got)
	}
	for _, want := range []string{"_pragma=journal_mode(WAL)", "_pragma=foreign_keys(1)", "&_pragma="} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
}

func TestOpenSQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cards.db")
	conn, errOpen := Open("sqlite://"+path, Options{})
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	sqlDB, _ := conn.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	var fk int
	if errRow := conn.Raw("PRAGMA foreign_keys").Scan(&fk).Error; errRow != nil {
		t.Fatalf("read pragma: %v", errRow)
	}
	if fk != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fk)
	}
}
