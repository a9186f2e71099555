package utils

import (
	"context"

	"github.com/West13lue/stock-cbd-manager-sub000/appctx"
)

// Alias the shared context key type so existing code keeps working.
type contextKey = appctx.ContextKey

var (
	ContextKeyShop          = appctx.ContextKeyShop
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeySkipShopScope = appctx.ContextKeySkipShopScope
)

func GetShopFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyShop)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetShopInContext(ctx context.Context, shop string) context.Context {
	return appctx.Set(ctx, ContextKeyShop, shop)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

// SetSkipShopScopeInContext bypasses the shop guard for internal jobs
// (migrations, expiry sweeps, recounts) that operate across shops.
func SetSkipShopScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, ContextKeySkipShopScope, skip)
}
