package models

import (
	"context"
	"errors"
	"time"

	"github.com/West13lue/stock-cbd-manager-sub000/config"
	"github.com/West13lue/stock-cbd-manager-sub000/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductStockSummary is the per-product stock aggregate the engine reports
// into: total grams on hand and the weighted average cost per gram.
type ProductStockSummary struct {
	ID                 int             `gorm:"primary_key" json:"-"`
	Shop               string          `gorm:"size:255;not null;uniqueIndex:idx_stock_shop_product" json:"shop"`
	ProductId          string          `gorm:"size:255;not null;uniqueIndex:idx_stock_shop_product" json:"product_id"`
	TotalGrams         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_grams"`
	AverageCostPerGram decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"average_cost_per_gram"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockMovement is the append-only audit trail of quantity adjustments.
type StockMovement struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Shop      string          `gorm:"index;size:255;not null" json:"shop"`
	ProductId string          `gorm:"index;size:255;not null" json:"product_id"`
	Grams     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"grams"`
	Reason    string          `gorm:"size:255" json:"reason"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ApplyStockAdjustment applies a (gramsDelta, newAverageCost|unchanged)
// adjustment to the product's summary row, creating it on first receipt.
// A nil newAverageCost leaves the average untouched.
func ApplyStockAdjustment(tx *gorm.DB, shop string, productId string, gramsDelta decimal.Decimal, newAverageCost *decimal.Decimal) error {
	var summary ProductStockSummary
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shop = ? AND product_id = ?", shop, productId).
		First(&summary).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		summary = ProductStockSummary{Shop: shop, ProductId: productId}
	}

	summary.TotalGrams = summary.TotalGrams.Add(gramsDelta)
	if summary.TotalGrams.IsNegative() {
		return utils.ErrorInsufficientStock
	}
	if newAverageCost != nil {
		summary.AverageCostPerGram = *newAverageCost
	}

	if summary.ID == 0 {
		return tx.Create(&summary).Error
	}
	return tx.Model(&summary).
		Updates(map[string]interface{}{
			"total_grams":           summary.TotalGrams,
			"average_cost_per_gram": summary.AverageCostPerGram,
		}).Error
}

// GetProductStock returns the summary row for one product, zero-valued when
// the product has never been stocked.
func GetProductStock(ctx context.Context, productId string) (*ProductStockSummary, error) {
	db := config.GetDB()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}

	var summary ProductStockSummary
	err := db.WithContext(ctx).
		Where("shop = ? AND product_id = ?", shop, productId).
		First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ProductStockSummary{Shop: shop, ProductId: productId}, nil
		}
		return nil, err
	}
	return &summary, nil
}
