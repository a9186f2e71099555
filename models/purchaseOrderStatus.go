package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/West13lue/stock-cbd-manager-sub000/config"
	"github.com/West13lue/stock-cbd-manager-sub000/utils"
	"github.com/shopspring/decimal"
)

// canTransition is the single source of truth for the order state machine:
// Draft -> Sent -> Confirmed -> Partial -> Complete, with Cancelled reachable
// from any state except Complete. Complete and Cancelled are terminal.
func canTransition(from PurchaseOrderStatus, to PurchaseOrderStatus) bool {
	switch to {
	case PurchaseOrderStatusSent:
		return from == PurchaseOrderStatusDraft
	case PurchaseOrderStatusConfirmed:
		return from == PurchaseOrderStatusSent
	case PurchaseOrderStatusPartial:
		return from == PurchaseOrderStatusSent ||
			from == PurchaseOrderStatusConfirmed ||
			from == PurchaseOrderStatusPartial
	case PurchaseOrderStatusComplete:
		return from == PurchaseOrderStatusSent ||
			from == PurchaseOrderStatusConfirmed ||
			from == PurchaseOrderStatusPartial
	case PurchaseOrderStatusCancelled:
		return from != PurchaseOrderStatusComplete && from != PurchaseOrderStatusCancelled
	}
	return false
}

// CanReceive reports whether a receiving event is legal in the current status.
func (po *PurchaseOrder) CanReceive() bool {
	switch po.Status {
	case PurchaseOrderStatusSent, PurchaseOrderStatusConfirmed, PurchaseOrderStatusPartial:
		return true
	}
	return false
}

func fetchOrderForTransition(ctx context.Context, id int) (*PurchaseOrder, error) {
	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}
	return utils.FetchModel[PurchaseOrder](ctx, shop, id, "Lines")
}

func SendPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	purchaseOrder, err := fetchOrderForTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(purchaseOrder.Status, PurchaseOrderStatusSent) {
		return nil, utils.ErrorInvalidState
	}

	now := time.Now().UTC()
	purchaseOrder.Status = PurchaseOrderStatusSent
	purchaseOrder.SentAt = &now

	if err := db.WithContext(ctx).Model(purchaseOrder).
		Updates(map[string]interface{}{"status": PurchaseOrderStatusSent, "sent_at": now}).Error; err != nil {
		return nil, err
	}
	return purchaseOrder, nil
}

func ConfirmPurchaseOrder(ctx context.Context, id int, expectedDeliveryAt *time.Time) (*PurchaseOrder, error) {
	db := config.GetDB()

	purchaseOrder, err := fetchOrderForTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(purchaseOrder.Status, PurchaseOrderStatusConfirmed) {
		return nil, utils.ErrorInvalidState
	}

	updates := map[string]interface{}{"status": PurchaseOrderStatusConfirmed}
	purchaseOrder.Status = PurchaseOrderStatusConfirmed
	if expectedDeliveryAt != nil {
		updates["expected_delivery_at"] = *expectedDeliveryAt
		purchaseOrder.ExpectedDeliveryAt = expectedDeliveryAt
	}

	if err := db.WithContext(ctx).Model(purchaseOrder).Updates(updates).Error; err != nil {
		return nil, err
	}
	return purchaseOrder, nil
}

func CancelPurchaseOrder(ctx context.Context, id int, reason string) (*PurchaseOrder, error) {
	db := config.GetDB()

	purchaseOrder, err := fetchOrderForTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(purchaseOrder.Status, PurchaseOrderStatusCancelled) {
		return nil, utils.ErrorInvalidState
	}

	internalNotes := purchaseOrder.InternalNotes
	if reason = strings.TrimSpace(reason); reason != "" {
		if internalNotes != "" {
			internalNotes += "\n"
		}
		internalNotes += "Cancelled: " + reason
	}
	purchaseOrder.Status = PurchaseOrderStatusCancelled
	purchaseOrder.InternalNotes = internalNotes

	if err := db.WithContext(ctx).Model(purchaseOrder).
		Updates(map[string]interface{}{"status": PurchaseOrderStatusCancelled, "internal_notes": internalNotes}).Error; err != nil {
		return nil, err
	}
	return purchaseOrder, nil
}

// ReceivedLine is one delivered line of a goods-in event.
type ReceivedLine struct {
	LineKey       string          `json:"line_key" binding:"required"`
	ReceivedGrams decimal.Decimal `json:"received_grams"`
	ExpiryDate    *time.Time      `json:"expiry_date"`
	ExpiryType    ExpiryType      `json:"expiry_type" binding:"omitempty,expirytype"`
}

type ReceiveOptions struct {
	// CreateBatches defaults to true; nil means unset.
	CreateBatches *bool      `json:"create_batches"`
	Date          *time.Time `json:"date"`
	Notes         string     `json:"notes"`
}

// ReceptionProposal is the outcome of applying received lines to an order
// in memory. Batch creation and cost averaging are the caller's to apply.
type ReceptionProposal struct {
	PurchaseOrder   *PurchaseOrder
	Reception       *Reception
	BatchesToCreate []NewBatch
	IsComplete      bool
}

// BuildReception applies a goods-in event to the order in memory and returns
// what should be persisted. Non-positive and unmatched line entries are
// skipped so the rest of the delivery can succeed. Over-receiving is recorded
// as-is; received grams are never clamped to ordered grams.
func (po *PurchaseOrder) BuildReception(receivedLines []ReceivedLine, options ReceiveOptions) (*ReceptionProposal, error) {
	if !po.CanReceive() {
		return nil, utils.ErrorInvalidState
	}

	date := time.Now().UTC()
	if options.Date != nil {
		date = options.Date.UTC()
	}
	createBatches := utils.DereferencePtr(options.CreateBatches, true)

	reception := Reception{
		PurchaseOrderId: po.ID,
		Shop:            po.Shop,
		Date:            date,
		Notes:           options.Notes,
	}
	var batchesToCreate []NewBatch

	linesByKey := make(map[string]*PurchaseOrderLine, len(po.Lines))
	for i := range po.Lines {
		linesByKey[po.Lines[i].LineKey] = &po.Lines[i]
	}

	anyReceived := false
	for _, received := range receivedLines {
		line, ok := linesByKey[received.LineKey]
		if !ok || !received.ReceivedGrams.IsPositive() {
			continue
		}

		line.ReceivedGrams = line.ReceivedGrams.Add(received.ReceivedGrams)
		anyReceived = true

		reception.Lines = append(reception.Lines, ReceptionLine{
			LineKey:       line.LineKey,
			ProductId:     line.ProductId,
			ReceivedGrams: received.ReceivedGrams,
		})

		if createBatches {
			expiryType := received.ExpiryType
			if expiryType == "" {
				expiryType = ExpiryTypeNone
			}
			batchesToCreate = append(batchesToCreate, NewBatch{
				ProductId:       line.ProductId,
				Grams:           received.ReceivedGrams,
				PricePerGram:    line.PricePerGram,
				SupplierId:      po.SupplierId,
				PurchaseOrderId: &po.ID,
				ExpiryDate:      received.ExpiryDate,
				ExpiryType:      expiryType,
			})
		}
	}

	isComplete := false
	if anyReceived {
		totalOrdered := decimal.Zero
		totalReceived := decimal.Zero
		for _, line := range po.Lines {
			totalOrdered = totalOrdered.Add(line.OrderedGrams)
			totalReceived = totalReceived.Add(line.ReceivedGrams)
		}
		if totalReceived.GreaterThanOrEqual(totalOrdered) {
			isComplete = true
			po.Status = PurchaseOrderStatusComplete
			po.ReceivedAt = &date
		} else {
			po.Status = PurchaseOrderStatusPartial
		}
	}

	return &ReceptionProposal{
		PurchaseOrder:   po,
		Reception:       &reception,
		BatchesToCreate: batchesToCreate,
		IsComplete:      isComplete,
	}, nil
}
