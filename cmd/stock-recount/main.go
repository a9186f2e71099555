package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/West13lue/stock-cbd-manager-sub000/config"
	"github.com/West13lue/stock-cbd-manager-sub000/models"
	"github.com/West13lue/stock-cbd-manager-sub000/utils"
	"github.com/shopspring/decimal"
)

// Recomputes a shop's per-product stock totals from the batch ledger and
// reconciles the summary rows. Use after manual DB surgery or suspected
// drift; the average cost is left as-is because the ledger does not retain
// enough history to rebuild it.
func main() {
	shop := flag.String("shop", "", "Required: shop domain")
	productID := flag.String("product-id", "", "Optional: limit to one product")
	dryRun := flag.Bool("dry-run", false, "Report drift without writing")
	flag.Parse()

	if strings.TrimSpace(*shop) == "" {
		fmt.Fprintln(os.Stderr, "--shop is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetShopInContext(context.Background(), *shop)

	type ledgerTotal struct {
		ProductId string
		Total     decimal.Decimal
	}
	q := db.WithContext(ctx).Model(&models.Batch{}).
		Select("product_id, COALESCE(SUM(grams), 0) AS total").
		Where("shop = ? AND status <> ?", *shop, models.BatchStatusExpired).
		Group("product_id")
	if strings.TrimSpace(*productID) != "" {
		q = q.Where("product_id = ?", *productID)
	}
	var totals []ledgerTotal
	if err := q.Scan(&totals).Error; err != nil {
		fmt.Fprintf(os.Stderr, "ledger scan failed: %v\n", err)
		os.Exit(1)
	}

	drifted := 0
	for _, t := range totals {
		summary, err := models.GetProductStock(ctx, t.ProductId)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fetch summary for %s failed: %v\n", t.ProductId, err)
			os.Exit(1)
		}
		if summary.TotalGrams.Equal(t.Total) {
			continue
		}
		drifted++
		fmt.Printf("%s: summary=%s ledger=%s\n", t.ProductId, summary.TotalGrams, t.Total)
		if *dryRun {
			continue
		}
		delta := t.Total.Sub(summary.TotalGrams)
		if err := models.ApplyStockAdjustment(db.WithContext(ctx), *shop, t.ProductId, delta, nil); err != nil {
			fmt.Fprintf(os.Stderr, "reconcile %s failed: %v\n", t.ProductId, err)
			os.Exit(1)
		}
	}
	fmt.Printf("recount done: %d product(s) reconciled\n", drifted)
}
