package models

// All returns every model managed by migrations.
func All() []any {
	return []any{
		&User{},
		&Card{},
		&CardAccess{},
		&PromoCode{},
		&PromoRedemption{},
		&Package{},
		&Purchase{},
		&Favorite{},
		&CardResponse{},
		&Admin{},
		&Setting{},
	}
}
