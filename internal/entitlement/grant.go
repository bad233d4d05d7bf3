// Package entitlement stores per-user card access and answers access queries.
package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GrantOptions describes the access rows written by Grant.
type GrantOptions struct {
	ExpiresAt *time.Time // Nil for perpetual access.
	GrantedAt time.Time  // Defaults to now.
	Source    string     // promo, purchase or admin.
	SourceRef string     // Code or purchase reference.
}

// upsertColumns are refreshed when a (user, card) row already exists.
var upsertColumns = []string{"active", "granted_at", "source", "source_ref"}

// mergedExpirySQL keeps the later expiry while the existing row is still in
// force, NULL meaning never. A lapsed or revoked row takes the new expiry.
const mergedExpirySQL = `CASE
	WHEN card_accesses.active AND (card_accesses.expires_at IS NULL OR card_accesses.expires_at > ?) THEN
		CASE
			WHEN card_accesses.expires_at IS NULL OR excluded.expires_at IS NULL THEN NULL
			WHEN excluded.expires_at > card_accesses.expires_at THEN excluded.expires_at
			ELSE card_accesses.expires_at
		END
	ELSE excluded.expires_at
END`

func upsertAssignments(now time.Time) clause.Set {
	set := clause.AssignmentColumns(upsertColumns)
	return append(set, clause.Assignment{
		Column: clause.Column{Name: "expires_at"},
		Value:  gorm.Expr(mergedExpirySQL, now),
	})
}

// Grant upserts an active access row for every card in cardIDs.
// An existing live row never loses time: its expiry only moves later.
// It must run inside the caller's transaction so the grant commits or rolls
// back together with its accounting write. It returns the number of distinct
// cards granted.
func Grant(tx *gorm.DB, userID uint64, cardIDs []uint64, opts GrantOptions) (int, error) {
	if tx == nil {
		return 0, errors.New("entitlement: nil transaction")
	}
	if userID == 0 {
		return 0, errors.New("entitlement: missing user id")
	}
	grantedAt := opts.GrantedAt
	if grantedAt.IsZero() {
		grantedAt = time.Now().UTC()
	}

	assignments := upsertAssignments(grantedAt)
	granted := 0
	for _, cardID := range UniqueIDs(cardIDs) {
		row := models.CardAccess{
			UserID:    userID,
			CardID:    cardID,
			Active:    true,
			ExpiresAt: opts.ExpiresAt,
			GrantedAt: grantedAt,
			Source:    opts.Source,
			SourceRef: opts.SourceRef,
		}
		if errUpsert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "card_id"}},
			DoUpdates: assignments,
		}).Create(&row).Error; errUpsert != nil {
			return 0, fmt.Errorf("entitlement: grant card %d: %w", cardID, errUpsert)
		}
		granted++
	}
	return granted, nil
}

// ExpiryFor returns the expiry of a grant lasting accessDays from now, nil when perpetual.
func ExpiryFor(now time.Time, accessDays int) *time.Time {
	if accessDays <= 0 {
		return nil
	}
	exp := now.UTC().AddDate(0, 0, accessDays)
	return &exp
}

// UniqueIDs drops zero and duplicate ids while keeping order.
func UniqueIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
