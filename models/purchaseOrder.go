package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/West13lue/stock-cbd-manager-sub000/config"
	"github.com/West13lue/stock-cbd-manager-sub000/utils"
	"github.com/shopspring/decimal"
)

type PurchaseOrder struct {
	ID           int                 `gorm:"primary_key" json:"id"`
	Shop         string              `gorm:"size:255;not null;uniqueIndex:idx_po_shop_number" json:"shop"`
	Number       string              `gorm:"size:255;not null;uniqueIndex:idx_po_shop_number" json:"number"`
	SequenceNo   int                 `gorm:"not null" json:"sequence_no"`
	Year         int                 `gorm:"index;not null" json:"year"`
	SupplierId   string              `gorm:"index;size:255;not null" json:"supplier_id"`
	SupplierName string              `gorm:"size:255" json:"supplier_name"`
	Status       PurchaseOrderStatus `gorm:"type:enum('Draft','Sent','Confirmed','Partial','Complete','Cancelled');not null;default:'Draft'" json:"status"`
	Currency     string              `gorm:"size:3;default:'EUR'" json:"currency"`
	ShippingCost decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"shipping_cost"`
	OtherCosts   decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"other_costs"`
	// sum(line_total)
	Subtotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	// subtotal + shipping_cost + other_costs
	Total              decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"total"`
	Notes              string              `gorm:"type:text" json:"notes"`
	InternalNotes      string              `gorm:"type:text" json:"internal_notes"`
	SentAt             *time.Time          `gorm:"default:null" json:"sent_at"`
	ExpectedDeliveryAt *time.Time          `gorm:"default:null" json:"expected_delivery_at"`
	ReceivedAt         *time.Time          `gorm:"default:null" json:"received_at"`
	Lines              []PurchaseOrderLine `json:"lines"`
	Receptions         []Reception         `json:"receptions"`
	CreatedAt          time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderLine struct {
	ID              int    `gorm:"primary_key" json:"id"`
	PurchaseOrderId int    `gorm:"index;not null" json:"purchase_order_id"`
	Shop            string `gorm:"index;size:255;not null" json:"shop"`
	// LineKey is stable within one order ("line_1", "line_2", ...) and is
	// what receiving events address.
	LineKey       string          `gorm:"size:50;not null" json:"line_key"`
	ProductId     string          `gorm:"index;size:255;not null" json:"product_id"`
	ProductName   string          `gorm:"size:255" json:"product_name"`
	OrderedGrams  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"ordered_grams"`
	ReceivedGrams decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_grams"`
	PricePerGram  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price_per_gram"`
	// ordered_grams * price_per_gram, fixed at creation/edit,
	// not reduced by partial receipt
	LineTotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
	// reserved for linking the line to a created batch
	BatchId *string `gorm:"size:36;default:null" json:"batch_id"`
}

// Reception is the append-only history of one goods-in event against an order.
type Reception struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	Shop            string          `gorm:"index;size:255;not null" json:"shop"`
	Date            time.Time       `gorm:"not null" json:"date"`
	Notes           string          `gorm:"type:text" json:"notes"`
	Lines           []ReceptionLine `json:"lines"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type ReceptionLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ReceptionId   int             `gorm:"index;not null" json:"reception_id"`
	LineKey       string          `gorm:"size:50;not null" json:"line_key"`
	ProductId     string          `gorm:"size:255;not null" json:"product_id"`
	ReceivedGrams decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_grams"`
}

type NewPurchaseOrder struct {
	SupplierId         string                  `json:"supplier_id" binding:"required"`
	SupplierName       string                  `json:"supplier_name"`
	Currency           string                  `json:"currency"`
	ShippingCost       decimal.Decimal         `json:"shipping_cost"`
	OtherCosts         decimal.Decimal         `json:"other_costs"`
	Notes              string                  `json:"notes"`
	InternalNotes      string                  `json:"internal_notes"`
	ExpectedDeliveryAt *time.Time              `json:"expected_delivery_at"`
	Lines              []NewPurchaseOrderLine `json:"lines" binding:"required,min=1,dive"`
}

type NewPurchaseOrderLine struct {
	ProductId    string          `json:"product_id" binding:"required"`
	ProductName  string          `json:"product_name"`
	OrderedGrams decimal.Decimal `json:"ordered_grams" binding:"required"`
	PricePerGram decimal.Decimal `json:"price_per_gram"`
}

func (input NewPurchaseOrder) validate() error {
	if strings.TrimSpace(input.SupplierId) == "" {
		return utils.NewValidationError("supplier_id", "supplier is required")
	}
	if len(input.Lines) == 0 {
		return utils.NewValidationError("lines", "at least one line is required")
	}
	for i, line := range input.Lines {
		if strings.TrimSpace(line.ProductId) == "" {
			return utils.NewValidationError(fmt.Sprintf("lines[%d].product_id", i), "product is required")
		}
		if !line.OrderedGrams.IsPositive() {
			return utils.NewValidationError(fmt.Sprintf("lines[%d].ordered_grams", i), "ordered grams must be positive")
		}
		if line.PricePerGram.IsNegative() {
			return utils.NewValidationError(fmt.Sprintf("lines[%d].price_per_gram", i), "price per gram cannot be negative")
		}
	}
	return nil
}

func buildOrderLines(shop string, inputs []NewPurchaseOrderLine) []PurchaseOrderLine {
	lines := make([]PurchaseOrderLine, 0, len(inputs))
	for i, item := range inputs {
		lines = append(lines, PurchaseOrderLine{
			Shop:          shop,
			LineKey:       fmt.Sprintf("line_%d", i+1),
			ProductId:     item.ProductId,
			ProductName:   item.ProductName,
			OrderedGrams:  item.OrderedGrams,
			ReceivedGrams: decimal.Zero,
			PricePerGram:  item.PricePerGram,
			LineTotal:     item.OrderedGrams.Mul(item.PricePerGram),
		})
	}
	return lines
}

// recomputeTotals rolls the monetary totals up from the lines.
func (po *PurchaseOrder) recomputeTotals() {
	subtotal := decimal.Zero
	for _, line := range po.Lines {
		subtotal = subtotal.Add(line.LineTotal)
	}
	po.Subtotal = subtotal
	po.Total = subtotal.Add(po.ShippingCost).Add(po.OtherCosts)
}

var orderSeqMutex sync.Mutex

// nextOrderSequence returns the next per-shop per-year sequence number,
// redis-first with a DB-max fallback, re-checking uniqueness before use.
// Numbering is not gapless when creation and deletion interleave.
func nextOrderSequence(ctx context.Context, shop string, year int) (int, error) {
	orderSeqMutex.Lock()
	defer orderSeqMutex.Unlock()

	cacheKey := fmt.Sprintf("%s-po_seq:%d", shop, year)
	db := config.GetDB()

	for {
		seqNo, err := config.GetRedisCounter(ctx, cacheKey)
		if err != nil {
			return 0, err
		}
		// if not found in redis, get from db
		if seqNo <= 1 {
			var dbSeq *int64
			if err := db.WithContext(ctx).Model(&PurchaseOrder{}).Select("max(sequence_no)").
				Where("shop = ? AND year = ?", shop, year).
				Scan(&dbSeq).Error; err != nil {
				return 0, err
			}
			if dbSeq == nil {
				seqNo = 0
			} else {
				seqNo = *dbSeq
			}
			seqNo++
			if err := config.SetRedisObject(cacheKey, &seqNo, 0); err != nil {
				return 0, err
			}
		}
		// re-check against db in case redis was flushed; the number encodes
		// year and sequence, so uniqueness on it covers both
		err = utils.ValidateUnique[PurchaseOrder](ctx, shop, "number", FormatOrderNumber(year, int(seqNo)), nil)
		if err == nil {
			return int(seqNo), nil
		}
		if !errors.Is(err, utils.ErrorDuplicateRecord) {
			return 0, err
		}
	}
}

// FormatOrderNumber renders the human-readable order number, e.g. PO-2026-0042.
func FormatOrderNumber(year int, seqNo int) string {
	return fmt.Sprintf("PO-%d-%04d", year, seqNo)
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	currency := input.Currency
	if currency == "" {
		currency = "EUR"
	}

	purchaseOrder := PurchaseOrder{
		Shop:               shop,
		SupplierId:         input.SupplierId,
		SupplierName:       input.SupplierName,
		Status:             PurchaseOrderStatusDraft,
		Currency:           currency,
		ShippingCost:       input.ShippingCost,
		OtherCosts:         input.OtherCosts,
		Notes:              input.Notes,
		InternalNotes:      input.InternalNotes,
		ExpectedDeliveryAt: input.ExpectedDeliveryAt,
		Lines:              buildOrderLines(shop, input.Lines),
	}
	purchaseOrder.recomputeTotals()

	tx := db.Begin()

	year := time.Now().UTC().Year()
	seqNo, err := nextOrderSequence(ctx, shop, year)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	purchaseOrder.Year = year
	purchaseOrder.SequenceNo = seqNo
	purchaseOrder.Number = FormatOrderNumber(year, seqNo)

	// IMPORTANT: always rollback on early-return or panic to avoid leaking DB locks
	// (leaked transactions are a common cause of MySQL 1205 lock wait timeouts).
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Create(&purchaseOrder).Error; err != nil {
		tx.Rollback()
		if utils.IsDuplicateEntryError(err) {
			// two instances raced on the same number; the caller retries
			return nil, utils.ErrorDuplicateRecord
		}
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &purchaseOrder, nil
}

type PurchaseOrderPatch struct {
	SupplierId         *string                 `json:"supplier_id"`
	SupplierName       *string                 `json:"supplier_name"`
	Currency           *string                 `json:"currency"`
	ShippingCost       *decimal.Decimal        `json:"shipping_cost"`
	OtherCosts         *decimal.Decimal        `json:"other_costs"`
	Notes              *string                 `json:"notes"`
	InternalNotes      *string                 `json:"internal_notes"`
	ExpectedDeliveryAt *time.Time              `json:"expected_delivery_at"`
	Lines              *[]NewPurchaseOrderLine `json:"lines"`
}

// structural fields may only change while the order is still a draft
func (patch PurchaseOrderPatch) touchesStructuralFields() bool {
	return patch.SupplierId != nil ||
		patch.SupplierName != nil ||
		patch.Currency != nil ||
		patch.ShippingCost != nil ||
		patch.OtherCosts != nil ||
		patch.ExpectedDeliveryAt != nil ||
		patch.Lines != nil
}

func UpdatePurchaseOrder(ctx context.Context, id int, patch *PurchaseOrderPatch) (*PurchaseOrder, error) {
	db := config.GetDB()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}

	purchaseOrder, err := utils.FetchModel[PurchaseOrder](ctx, shop, id, "Lines")
	if err != nil {
		return nil, err
	}

	if purchaseOrder.Status != PurchaseOrderStatusDraft && patch.touchesStructuralFields() {
		return nil, utils.ErrorInvalidState
	}

	if patch.Lines != nil {
		for i, line := range *patch.Lines {
			if strings.TrimSpace(line.ProductId) == "" {
				return nil, utils.NewValidationError(fmt.Sprintf("lines[%d].product_id", i), "product is required")
			}
			if !line.OrderedGrams.IsPositive() {
				return nil, utils.NewValidationError(fmt.Sprintf("lines[%d].ordered_grams", i), "ordered grams must be positive")
			}
		}
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	if patch.SupplierId != nil {
		purchaseOrder.SupplierId = *patch.SupplierId
	}
	if patch.SupplierName != nil {
		purchaseOrder.SupplierName = *patch.SupplierName
	}
	if patch.Currency != nil {
		purchaseOrder.Currency = *patch.Currency
	}
	if patch.ShippingCost != nil {
		purchaseOrder.ShippingCost = *patch.ShippingCost
	}
	if patch.OtherCosts != nil {
		purchaseOrder.OtherCosts = *patch.OtherCosts
	}
	if patch.Notes != nil {
		purchaseOrder.Notes = *patch.Notes
	}
	if patch.InternalNotes != nil {
		purchaseOrder.InternalNotes = *patch.InternalNotes
	}
	if patch.ExpectedDeliveryAt != nil {
		purchaseOrder.ExpectedDeliveryAt = patch.ExpectedDeliveryAt
	}
	if patch.Lines != nil {
		// replace lines wholesale; received grams reset with them (draft orders
		// have never been received)
		if err := tx.WithContext(ctx).Where("purchase_order_id = ?", purchaseOrder.ID).
			Delete(&PurchaseOrderLine{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		purchaseOrder.Lines = buildOrderLines(shop, *patch.Lines)
		for i := range purchaseOrder.Lines {
			purchaseOrder.Lines[i].PurchaseOrderId = purchaseOrder.ID
		}
	}
	purchaseOrder.recomputeTotals()

	if err := tx.WithContext(ctx).Save(purchaseOrder).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return purchaseOrder, nil
}

func DeletePurchaseOrder(ctx context.Context, id int) error {
	db := config.GetDB()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return errors.New("shop is required")
	}

	purchaseOrder, err := utils.FetchModel[PurchaseOrder](ctx, shop, id)
	if err != nil {
		return err
	}
	if purchaseOrder.Status != PurchaseOrderStatusDraft {
		return utils.ErrorInvalidState
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Where("purchase_order_id = ?", purchaseOrder.ID).
		Delete(&PurchaseOrderLine{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.WithContext(ctx).Delete(purchaseOrder).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// GetPurchaseOrder resolves an order by numeric id or by human-readable
// number (PO-2026-0042), scoped to the shop.
func GetPurchaseOrder(ctx context.Context, idOrNumber string) (*PurchaseOrder, error) {
	db := config.GetDB()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}

	dbCtx := db.WithContext(ctx).Where("shop = ?", shop).
		Preload("Lines").Preload("Receptions").Preload("Receptions.Lines")

	var purchaseOrder PurchaseOrder
	var err error
	if strings.HasPrefix(idOrNumber, "PO-") {
		err = dbCtx.Where("number = ?", idOrNumber).First(&purchaseOrder).Error
	} else {
		err = dbCtx.Where("id = ?", idOrNumber).First(&purchaseOrder).Error
	}
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &purchaseOrder, nil
}

type PurchaseOrderFilter struct {
	Year       int
	Status     PurchaseOrderStatus
	SupplierId string
	Limit      int
}

func ListPurchaseOrders(ctx context.Context, filter PurchaseOrderFilter) ([]*PurchaseOrder, error) {
	db := config.GetDB()

	shop, ok := utils.GetShopFromContext(ctx)
	if !ok || shop == "" {
		return nil, errors.New("shop is required")
	}

	dbCtx := db.WithContext(ctx).Where("shop = ?", shop).Preload("Lines")
	if filter.Year > 0 {
		dbCtx = dbCtx.Where("year = ?", filter.Year)
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, utils.NewValidationError("status", "invalid purchase order status")
		}
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	if filter.SupplierId != "" {
		dbCtx = dbCtx.Where("supplier_id = ?", filter.SupplierId)
	}
	limit := filter.Limit
	if limit <= 0 || limit > config.SearchLimit {
		limit = config.SearchLimit
	}

	var orders []*PurchaseOrder
	if err := dbCtx.Order("created_at DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
