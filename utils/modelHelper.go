package utils

import (
	"context"

	"github.com/West13lue/stock-cbd-manager-sub000/config"
)

/* DB fetching */

// fetch model from db
// (shop is used in query's WHERE, may return RecordNotFound)
func FetchModel[T any](ctx context.Context, shop string, id interface{}, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("shop = ?", shop)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, "id = ?", id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}
