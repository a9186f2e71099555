package utils

import (
	"context"
	"reflect"

	"github.com/West13lue/stock-cbd-manager-sub000/config"
)

func ValidateUnique[T any](ctx context.Context, shop string, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if exceptId == nil || reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, shop, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, shop, column+" = ? AND NOT id = ?", value, exceptId)
	}

	if err != nil {
		return err
	}
	if count > 0 {
		return ErrorDuplicateRecord
	}
	return nil
}

// count records, using WHERE shop = ? AND $condition
// shop can be blank for internal jobs
func ResourceCountWhere[T any](ctx context.Context, shop string, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if shop != "" {
		dbCtx = dbCtx.Where("shop = ?", shop)
	}
	dbCtx = dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
