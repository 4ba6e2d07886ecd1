// seed-demo populates historical_records with demo benchmark data so a
// fresh database has price history for the common demo SKUs.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type demoLine struct {
	sku         string
	description string
	distributor string
	euCompany   string
	unitPrice   float64
	quantity    float64
}

var demoLines = []demoLine{
	{"A100", "Server rack unit", "Alpha Distribution", "Acme GmbH", 95, 10},
	{"A100", "Server rack unit", "Alpha Distribution", "Acme GmbH", 100, 12},
	{"A100", "Server rack unit", "Beta Supplies", "Acme GmbH", 105, 8},
	{"A200", "Network switch 48p", "Alpha Distribution", "Acme GmbH", 48, 20},
	{"A200", "Network switch 48p", "Gamma Trading", "Acme SARL", 52, 25},
	{"A300", "UPS 3kVA", "Beta Supplies", "Acme SARL", 240, 4},
	{"A300", "UPS 3kVA", "Gamma Trading", "Acme GmbH", 260, 6},
	{"B150", "Patch cable cat6 3m", "Gamma Trading", "Acme GmbH", 2.5, 500},
	{"B150", "Patch cable cat6 3m", "Alpha Distribution", "Acme SARL", 2.8, 400},
	{"C900", "Rack PDU 16A", "Beta Supplies", "Acme GmbH", 180, 5},
}

func main() {
	godotenv.Load()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	seeded := 0
	for _, line := range demoLines {
		unitPrice := decimal.NewFromFloat(line.unitPrice)
		quantity := decimal.NewFromFloat(line.quantity)
		totalPrice := unitPrice.Mul(quantity)

		var count int64
		if err := db.WithContext(ctx).Model(&models.HistoricalRecord{}).
			Where("sku = ? AND distributor = ? AND unit_price = ?", line.sku, line.distributor, unitPrice).
			Count(&count).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to check existing rows: %v\n", err)
			os.Exit(1)
		}
		if count > 0 {
			continue
		}

		row := models.HistoricalRecord{
			Sku:             utils.StringPtr(line.sku),
			ItemDescription: utils.StringPtr(line.description),
			Distributor:     utils.StringPtr(line.distributor),
			EuCompany:       utils.StringPtr(line.euCompany),
			QuoteCurrency:   utils.StringPtr("EUR"),
			Quantity:        &quantity,
			UnitPrice:       &unitPrice,
			TotalPrice:      &totalPrice,
			SourceFile:      "seed-demo",
			ArchiveReason:   models.ArchiveReasonApproved,
		}
		if err := db.WithContext(ctx).Create(&row).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to insert demo row for %s: %v\n", line.sku, err)
			os.Exit(1)
		}
		seeded++
	}

	models.InvalidateDistinctCaches()
	fmt.Printf("Seeded %d demo historical record(s)\n", seeded)
}
