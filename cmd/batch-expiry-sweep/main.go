package main

import (
	"context"
	"fmt"
	"os"

	"github.com/West13lue/stock-cbd-manager-sub000/config"
	"github.com/West13lue/stock-cbd-manager-sub000/models"
	"github.com/West13lue/stock-cbd-manager-sub000/utils"
)

// Flips past-expiry active lots to Expired across all shops. Expiry never
// clears remaining grams; write-offs stay a human decision. Run from cron.
func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetSkipShopScopeInContext(context.Background(), true)

	affected, err := models.MarkExpiredBatches(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "expiry sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("expiry sweep done: %d batch(es) marked expired\n", affected)
}
