package workflow

import (
	"context"
	"errors"

	"github.com/West13lue/stock-cbd-manager-sub000/config"
	"github.com/West13lue/stock-cbd-manager-sub000/models"
	"github.com/West13lue/stock-cbd-manager-sub000/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("stock-cbd-manager")

// ReceiveResult aggregates everything one goods-in event changed.
type ReceiveResult struct {
	PurchaseOrder  *models.PurchaseOrder    `json:"purchase_order"`
	Reception      *models.Reception        `json:"reception"`
	CreatedBatches []*models.Batch          `json:"created_batches"`
	Adjustments    []ProductStockAdjustment `json:"adjustments"`
	IsComplete     bool                     `json:"is_complete"`
}

// ProductStockAdjustment is the per-product outcome reported to callers.
type ProductStockAdjustment struct {
	ProductId          string          `json:"product_id"`
	GramsDelta         decimal.Decimal `json:"grams_delta"`
	AverageCostPerGram decimal.Decimal `json:"average_cost_per_gram"`
}

// ReceiveItems applies a goods-in event to an order: increments received
// grams on the matched lines, appends a reception record, creates one lot per
// delivered line (when batch tracking is on) and reposts each product's
// weighted average cost. The whole event commits in one transaction under the
// shop's posting lock.
func ReceiveItems(ctx context.Context, id int, receivedLines []models.ReceivedLine, options models.ReceiveOptions) (*ReceiveResult, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	ctx, span := tracer.Start(ctx, "workflow.ReceiveItems")
	defer span.End()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}
	span.SetAttributes(attribute.String("shop", shop), attribute.Int("purchase_order_id", id))

	// redis lock fences app instances; the MySQL advisory lock below fences
	// anything else that posts stock on this shop
	release, err := utils.ShopLock(ctx, shop, "receive", "workflow", "ReceiveItems")
	if err != nil {
		return nil, err
	}
	defer release()

	purchaseOrder, err := utils.FetchModel[models.PurchaseOrder](ctx, shop, id, "Lines")
	if err != nil {
		return nil, err
	}

	proposal, err := purchaseOrder.BuildReception(receivedLines, options)
	if err != nil {
		return nil, err
	}

	result := &ReceiveResult{
		PurchaseOrder: proposal.PurchaseOrder,
		IsComplete:    proposal.IsComplete,
	}

	// nothing matched: no reception, no status change, nothing to persist
	if len(proposal.Reception.Lines) == 0 {
		return result, nil
	}

	batchTracking := config.BatchTrackingEnabled()
	err = db.Transaction(func(tx *gorm.DB) error {
		// GET_LOCK is session-scoped, so the release must run on the live
		// transaction, before the commit
		if err := AcquireShopPostingLock(tx.WithContext(ctx), shop); err != nil {
			config.LogError(logger, "workflow", "ReceiveItems", "Could not acquire posting lock", shop, err)
			return err
		}
		defer ReleaseShopPostingLock(tx.WithContext(ctx), shop)

		// persist updated lines and order status
		for i := range proposal.PurchaseOrder.Lines {
			line := &proposal.PurchaseOrder.Lines[i]
			if err := tx.WithContext(ctx).Model(line).
				Update("received_grams", line.ReceivedGrams).Error; err != nil {
				return err
			}
		}
		orderUpdates := map[string]interface{}{"status": proposal.PurchaseOrder.Status}
		if proposal.PurchaseOrder.ReceivedAt != nil {
			orderUpdates["received_at"] = *proposal.PurchaseOrder.ReceivedAt
		}
		if err := tx.WithContext(ctx).Model(proposal.PurchaseOrder).Updates(orderUpdates).Error; err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Create(proposal.Reception).Error; err != nil {
			return err
		}
		result.Reception = proposal.Reception

		// apply the proposed lots
		for _, spec := range proposal.BatchesToCreate {
			if !batchTracking {
				break
			}
			batch := models.BuildBatch(shop, spec)
			if err := tx.WithContext(ctx).Create(batch).Error; err != nil {
				return err
			}
			result.CreatedBatches = append(result.CreatedBatches, batch)
		}

		// repost each product's stock total and weighted average cost, once per
		// delivered line, in delivery order
		for _, receptionLine := range proposal.Reception.Lines {
			var pricePerGram decimal.Decimal
			for _, line := range proposal.PurchaseOrder.Lines {
				if line.LineKey == receptionLine.LineKey {
					pricePerGram = line.PricePerGram
					break
				}
			}

			summary, err := stockSummaryForUpdate(ctx, tx, shop, receptionLine.ProductId)
			if err != nil {
				return err
			}

			newAverage := WeightedAverageCost(summary.TotalGrams, summary.AverageCostPerGram, receptionLine.ReceivedGrams, pricePerGram)
			var averagePtr *decimal.Decimal
			if pricePerGram.IsPositive() {
				averagePtr = &newAverage
			}
			if err := models.ApplyStockAdjustment(tx.WithContext(ctx), shop, receptionLine.ProductId, receptionLine.ReceivedGrams, averagePtr); err != nil {
				return err
			}

			movement := models.StockMovement{
				Shop:      shop,
				ProductId: receptionLine.ProductId,
				Grams:     receptionLine.ReceivedGrams,
				Reason:    "reception " + proposal.PurchaseOrder.Number,
			}
			if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
				return err
			}

			result.Adjustments = append(result.Adjustments, ProductStockAdjustment{
				ProductId:          receptionLine.ProductId,
				GramsDelta:         receptionLine.ReceivedGrams,
				AverageCostPerGram: newAverage,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func stockSummaryForUpdate(ctx context.Context, tx *gorm.DB, shop string, productId string) (*models.ProductStockSummary, error) {
	var summary models.ProductStockSummary
	err := tx.WithContext(ctx).
		Where("shop = ? AND product_id = ?", shop, productId).
		First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.ProductStockSummary{Shop: shop, ProductId: productId}, nil
		}
		return nil, err
	}
	return &summary, nil
}
