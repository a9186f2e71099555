package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/West13lue/stock-cbd-manager-sub000/config"
	"github.com/West13lue/stock-cbd-manager-sub000/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// Batch is one traceable lot of stock received at one time at one cost.
// Batches are never deleted; depleted and expired lots stay for traceability.
type Batch struct {
	ID        int    `gorm:"primary_key" json:"-"`
	BatchId   string `gorm:"size:36;not null;uniqueIndex:idx_batch_shop_bid" json:"id"`
	Shop      string `gorm:"index;size:255;not null;uniqueIndex:idx_batch_shop_bid" json:"shop"`
	ProductId string `gorm:"index;size:255;not null" json:"product_id"`
	// remaining usable quantity, decreases on consumption
	Grams decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"grams"`
	// immutable, the quantity received
	OriginalGrams decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"original_grams"`
	// immutable, the cost basis of this lot
	PricePerGram    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price_per_gram"`
	SupplierId      string          `gorm:"size:255" json:"supplier_id"`
	PurchaseOrderId *int            `gorm:"index;default:null" json:"purchase_order_id"`
	ExpiryDate      *time.Time      `gorm:"index;default:null" json:"expiry_date"`
	ExpiryType      ExpiryType      `gorm:"type:enum('None','DLC','DLUO');not null;default:'None'" json:"expiry_type"`
	Status          BatchStatus     `gorm:"type:enum('Active','Depleted','Expired');not null;default:'Active'" json:"status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBatch struct {
	ProductId       string          `json:"product_id" binding:"required"`
	Grams           decimal.Decimal `json:"grams" binding:"required"`
	PricePerGram    decimal.Decimal `json:"price_per_gram"`
	SupplierId      string          `json:"supplier_id"`
	PurchaseOrderId *int            `json:"purchase_order_id"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
	ExpiryType      ExpiryType      `json:"expiry_type" binding:"omitempty,expirytype"`
}

func (input NewBatch) validate() error {
	if strings.TrimSpace(input.ProductId) == "" {
		return utils.NewValidationError("product_id", "product is required")
	}
	if !input.Grams.IsPositive() {
		return utils.NewValidationError("grams", "grams must be positive")
	}
	if input.PricePerGram.IsNegative() {
		return utils.NewValidationError("price_per_gram", "price per gram cannot be negative")
	}
	if input.ExpiryType != "" && !input.ExpiryType.Valid() {
		return utils.NewValidationError("expiry_type", "invalid expiry type")
	}
	return nil
}

// BuildBatch constructs the lot record without persisting it. Each receipt is
// a distinct lot; no merging with existing lots even if product, price and
// supplier match.
func BuildBatch(shop string, input NewBatch) *Batch {
	expiryType := input.ExpiryType
	if expiryType == "" {
		expiryType = ExpiryTypeNone
	}
	return &Batch{
		BatchId:         uuid.NewString(),
		Shop:            shop,
		ProductId:       input.ProductId,
		Grams:           input.Grams,
		OriginalGrams:   input.Grams,
		PricePerGram:    input.PricePerGram,
		SupplierId:      input.SupplierId,
		PurchaseOrderId: input.PurchaseOrderId,
		ExpiryDate:      input.ExpiryDate,
		ExpiryType:      expiryType,
		Status:          BatchStatusActive,
	}
}

func CreateBatch(ctx context.Context, input *NewBatch) (*Batch, error) {
	db := config.GetDB()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	batch := BuildBatch(shop, *input)
	if err := db.WithContext(ctx).Create(batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

// GetBatch resolves a lot by its public uuid, scoped to the shop.
func GetBatch(ctx context.Context, batchId string) (*Batch, error) {
	db := config.GetDB()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}

	var batch Batch
	if err := db.WithContext(ctx).Where("shop = ? AND batch_id = ?", shop, batchId).
		First(&batch).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &batch, nil
}

// BatchConsumption records how much was taken from one lot.
type BatchConsumption struct {
	BatchId string          `json:"batch_id"`
	Grams   decimal.Decimal `json:"grams"`
}

type ConsumptionPlan struct {
	ConsumedFrom []BatchConsumption
	// Updated mirrors ConsumedFrom with the post-consumption lot state.
	Updated []*Batch
}

// planConsumption walks lots oldest-first and decides how much to take from
// each. Lots must already be sorted FIFO by created_at ascending. Returns
// InsufficientStock without touching anything when the active total is short.
func planConsumption(batches []*Batch, grams decimal.Decimal) (*ConsumptionPlan, error) {
	if !grams.IsPositive() {
		return nil, utils.NewValidationError("grams", "grams must be positive")
	}

	total := decimal.Zero
	for _, batch := range batches {
		total = total.Add(batch.Grams)
	}
	if total.LessThan(grams) {
		return nil, utils.ErrorInsufficientStock
	}

	plan := &ConsumptionPlan{}
	remaining := grams
	for _, batch := range batches {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(batch.Grams, remaining)
		if !take.IsPositive() {
			continue
		}
		batch.Grams = batch.Grams.Sub(take)
		if batch.Grams.IsZero() {
			batch.Status = BatchStatusDepleted
		}
		remaining = remaining.Sub(take)
		plan.ConsumedFrom = append(plan.ConsumedFrom, BatchConsumption{BatchId: batch.BatchId, Grams: take})
		plan.Updated = append(plan.Updated, batch)
	}
	return plan, nil
}

type ConsumeStockResult struct {
	ConsumedFrom []BatchConsumption `json:"consumed_from"`
	// RemainingShort is zero on success; shortfalls fail the whole request.
	RemainingShort decimal.Decimal `json:"remaining_short"`
}

// ConsumeStock depletes active lots for a product oldest-first. Either the
// whole request is satisfied or nothing changes. Consumption never alters
// the product's average cost.
func ConsumeStock(ctx context.Context, productId string, grams decimal.Decimal, reason string) (*ConsumeStockResult, error) {
	db := config.GetDB()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}
	if strings.TrimSpace(productId) == "" {
		return nil, utils.NewValidationError("product_id", "product is required")
	}

	// same cross-instance fencing as receiving: redis lock outside the
	// transaction, row locks on the lots inside it
	release, err := utils.ShopLock(ctx, shop, "consume", "models", "ConsumeStock")
	if err != nil {
		return nil, err
	}
	defer release()

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	var batches []*Batch
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shop = ? AND product_id = ? AND status = ? AND grams > 0", shop, productId, BatchStatusActive).
		Order("created_at ASC, id ASC").
		Find(&batches).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	plan, err := planConsumption(batches, grams)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, batch := range plan.Updated {
		if err := tx.WithContext(ctx).Model(batch).
			Updates(map[string]interface{}{"grams": batch.Grams, "status": batch.Status}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	// keep the stock summary's running total in step; consumption leaves the
	// average cost untouched
	if err := ApplyStockAdjustment(tx.WithContext(ctx), shop, productId, grams.Neg(), nil); err != nil {
		tx.Rollback()
		return nil, err
	}

	movement := StockMovement{
		Shop:      shop,
		ProductId: productId,
		Grams:     grams.Neg(),
		Reason:    reason,
	}
	if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &ConsumeStockResult{ConsumedFrom: plan.ConsumedFrom}, nil
}

// GetExpiringSoon returns active lots whose expiry date falls within
// [now, now+withinDays], nearest expiry first.
func GetExpiringSoon(ctx context.Context, withinDays int) ([]*Batch, error) {
	db := config.GetDB()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}
	if withinDays < 0 {
		return nil, utils.NewValidationError("days", "days cannot be negative")
	}

	now := utils.DateOnly(time.Now().UTC())
	until := now.AddDate(0, 0, withinDays)

	var batches []*Batch
	if err := db.WithContext(ctx).
		Where("shop = ? AND status = ? AND expiry_date IS NOT NULL AND expiry_date BETWEEN ? AND ?",
			shop, BatchStatusActive, now, until).
		Order("expiry_date ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// GetExpired returns lots whose expiry date is in the past regardless of
// status. Pure query; flipping a lot to Expired is the sweep job's work.
func GetExpired(ctx context.Context) ([]*Batch, error) {
	db := config.GetDB()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}

	var batches []*Batch
	if err := db.WithContext(ctx).
		Where("shop = ? AND expiry_date IS NOT NULL AND expiry_date < ?", shop, utils.DateOnly(time.Now().UTC())).
		Order("expiry_date ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// MarkExpiredBatches flips past-expiry active lots to Expired. Expiry does
// not clear remaining grams; expired lots may still hold quantity pending a
// write-off decision. Runs shop-unscoped, for the sweep binary only.
func MarkExpiredBatches(ctx context.Context) (int64, error) {
	db := config.GetDB()

	result := db.WithContext(ctx).Model(&Batch{}).
		Where("status = ? AND expiry_date IS NOT NULL AND expiry_date < ?", BatchStatusActive, utils.DateOnly(time.Now().UTC())).
		Update("status", BatchStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
