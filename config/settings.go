package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Record fields that must carry a usable value before a batch can be
// considered clean. Kept in one place so the validation engine and the
// extraction header mapping stay in agreement.
var CompulsoryTextFields = []string{
	"sku", "distributor", "item_description", "quote_currency",
	"serial_no", "eu_company", "quotation_ref_no",
}

var CompulsoryNumericFields = []string{"quantity", "unit_price", "total_price"}

var SupportedCurrencies = map[string]bool{
	"SGD": true, "USD": true, "EUR": true, "GBP": true,
	"JPY": true, "CNY": true, "MYR": true, "AUD": true, "ALL": true,
}

// Upload extension allow-list. Anything else is rejected before the
// extractor ever sees the file.
var AllowedUploadExtensions = map[string]bool{
	"pdf": true, "xlsx": true, "xls": true, "csv": true, "doc": true, "docx": true,
}

const MaxUploadSizeBytes int64 = 25 * 1024 * 1024

// DefaultBudgetEstimate feeds the spend-impact gauge when the caller does
// not supply a budget of its own.
func DefaultBudgetEstimate() decimal.Decimal {
	if v := strings.TrimSpace(os.Getenv("BUDGET_ESTIMATE")); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			return d
		}
	}
	return decimal.NewFromInt(100000)
}

func UploadDir() string {
	if v := strings.TrimSpace(os.Getenv("UPLOAD_DIR")); v != "" {
		return v
	}
	return "data/uploads"
}

func IntFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
