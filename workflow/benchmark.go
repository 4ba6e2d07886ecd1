package workflow

import (
	"strings"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"github.com/shopspring/decimal"
)

// Benchmark analytics over a workspace batch. Pure functions: they read
// records and historical stats, never touch validation metadata.

// PriceVariance compares one record's unit price against its SKU's
// historical average.
type PriceVariance struct {
	Sku             string          `json:"sku"`
	ItemDescription string          `json:"item_description"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	HistoricalAvg   decimal.Decimal `json:"historical_avg"`
	VariancePct     decimal.Decimal `json:"variance_pct"`
	Favorable       bool            `json:"favorable"`
}

var hundred = decimal.NewFromInt(100)

// PriceVariances computes variance rows for every record carrying both a
// SKU and a parseable unit price. A SKU without history compares against
// its own price, reading as exactly zero variance; zero counts as
// favorable.
func PriceVariances(records []*models.QuotationRecord, stats map[string]*models.SkuPriceStats) (favorable, unfavorable []PriceVariance) {
	for _, r := range records {
		if r.Sku == nil || strings.TrimSpace(*r.Sku) == "" {
			continue
		}
		n := r.NumericValue(models.FieldUnitPrice)
		if n == nil {
			continue
		}
		price, ok := n.Decimal()
		if !ok {
			continue
		}

		avg := price
		if stat := stats[strings.ToUpper(strings.TrimSpace(*r.Sku))]; stat != nil && stat.RecordCount > 0 && stat.AvgPrice.IsPositive() {
			avg = stat.AvgPrice
		}

		variance := decimal.Zero
		if avg.IsPositive() {
			variance = price.Sub(avg).Div(avg).Mul(hundred).Round(1)
		}

		pv := PriceVariance{
			Sku:           strings.TrimSpace(*r.Sku),
			CurrentPrice:  price,
			HistoricalAvg: avg,
			VariancePct:   variance,
			Favorable:     !variance.IsPositive(),
		}
		if r.ItemDescription != nil {
			pv.ItemDescription = *r.ItemDescription
		}
		if pv.Favorable {
			favorable = append(favorable, pv)
		} else {
			unfavorable = append(unfavorable, pv)
		}
	}
	return favorable, unfavorable
}

// QuantityComparison pairs a record's quantity with the historical
// average order size for its SKU.
type QuantityComparison struct {
	Sku             string          `json:"sku"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	HistoricalAvg   decimal.Decimal `json:"historical_avg"`
}

func QuantityComparisons(records []*models.QuotationRecord, stats map[string]*models.SkuPriceStats) []QuantityComparison {
	var out []QuantityComparison
	for _, r := range records {
		if r.Sku == nil || strings.TrimSpace(*r.Sku) == "" {
			continue
		}
		n := r.NumericValue(models.FieldQuantity)
		if n == nil {
			continue
		}
		qty, ok := n.Decimal()
		if !ok {
			continue
		}
		avg := qty
		if stat := stats[strings.ToUpper(strings.TrimSpace(*r.Sku))]; stat != nil && stat.RecordCount > 0 {
			avg = stat.AvgQuantity
		}
		out = append(out, QuantityComparison{
			Sku:             strings.TrimSpace(*r.Sku),
			CurrentQuantity: qty,
			HistoricalAvg:   avg.Round(0),
		})
	}
	return out
}

// SpendBand buckets the spend impact percentage.
type SpendBand string

const (
	SpendBandLow    SpendBand = "low"
	SpendBandMedium SpendBand = "medium"
	SpendBandHigh   SpendBand = "high"
)

// SpendImpactResult is the budget gauge for a batch.
type SpendImpactResult struct {
	TotalSpend decimal.Decimal `json:"total_spend"`
	Budget     decimal.Decimal `json:"budget"`
	Percentage decimal.Decimal `json:"percentage"`
	Band       SpendBand       `json:"band"`
}

var (
	spendMediumThreshold = decimal.NewFromInt(50)
	spendHighThreshold   = decimal.NewFromInt(75)
)

// SpendImpact sums the parseable total prices and expresses them as a
// percentage of the budget, clamped at 100.
func SpendImpact(records []*models.QuotationRecord, budget decimal.Decimal) SpendImpactResult {
	total := decimal.Zero
	for _, r := range records {
		n := r.NumericValue(models.FieldTotalPrice)
		if n == nil {
			continue
		}
		if d, ok := n.Decimal(); ok {
			total = total.Add(d)
		}
	}

	pct := decimal.Zero
	if budget.IsPositive() {
		pct = total.Div(budget).Mul(hundred)
		if pct.GreaterThan(hundred) {
			pct = hundred
		}
	}

	band := SpendBandLow
	switch {
	case pct.GreaterThanOrEqual(spendHighThreshold):
		band = SpendBandHigh
	case pct.GreaterThanOrEqual(spendMediumThreshold):
		band = SpendBandMedium
	}

	return SpendImpactResult{
		TotalSpend: total,
		Budget:     budget,
		Percentage: pct,
		Band:       band,
	}
}
