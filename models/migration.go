package models

import (
	"github.com/West13lue/stock-cbd-manager-sub000/config"
)

func MigrateDatabase() error {
	db := config.GetDB()

	return db.AutoMigrate(
		&PurchaseOrder{},
		&PurchaseOrderLine{},
		&Reception{},
		&ReceptionLine{},
		&Batch{},
		&ProductStockSummary{},
		&StockMovement{},
	)
}
