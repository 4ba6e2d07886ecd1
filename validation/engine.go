package validation

import (
	"context"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"github.com/shopspring/decimal"
)

// StatsProvider supplies historical price statistics for the anomaly
// rule. Implementations batch the lookup across a whole validation run.
type StatsProvider interface {
	StatsBySkus(ctx context.Context, skus []string) (map[string]*models.SkuPriceStats, error)
}

// ValidationError wraps a failure of the validation run itself (stats
// lookup, bad input), as opposed to a record failing the rules.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "validation: " + e.Reason + ": " + e.Err.Error()
	}
	return "validation: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

var (
	priceWarningDeviation  = decimal.NewFromFloat(0.20)
	priceErrorDeviation    = decimal.NewFromFloat(0.50)
	totalMismatchTolerance = decimal.NewFromFloat(0.01)
	quantityWarningLimit   = decimal.NewFromInt(10000)
	hundred                = decimal.NewFromInt(100)
)

const skuMinLength = 3

// Engine runs the full rule set over a batch of records.
type Engine struct {
	stats StatsProvider
}

func NewEngine(stats StatsProvider) *Engine {
	return &Engine{stats: stats}
}

// ValidateBatch evaluates every rule for every record and rewrites each
// record's validation metadata in place. The batch is validated as a
// unit: historical stats are fetched once and the duplicate rule sees
// all records together.
func (e *Engine) ValidateBatch(ctx context.Context, records []*models.QuotationRecord) error {
	for _, r := range records {
		if r == nil {
			return &ValidationError{Reason: "nil record in batch"}
		}
	}

	stats := map[string]*models.SkuPriceStats{}
	if e.stats != nil {
		skus := make([]string, 0, len(records))
		for _, r := range records {
			if !utils.IsEmptyValue(r.Sku) {
				skus = append(skus, strings.ToUpper(strings.TrimSpace(*r.Sku)))
			}
		}
		var err error
		stats, err = e.stats.StatsBySkus(ctx, utils.UniqueSlice(skus))
		if err != nil {
			return &ValidationError{Reason: "historical stats lookup failed", Err: err}
		}
	}

	for _, r := range records {
		avg := decimal.Zero
		if !utils.IsEmptyValue(r.Sku) {
			if stat := stats[strings.ToUpper(strings.TrimSpace(*r.Sku))]; stat != nil && stat.RecordCount > 0 {
				avg = stat.AvgPrice
			}
		}
		validateRecord(r, avg)
	}

	flagDuplicates(records)
	return nil
}

// run collects field verdicts for one record. A later rule for the same
// field replaces the earlier verdict, but the overall status remembers
// the worst status ever set.
type run struct {
	verdicts models.FieldVerdicts
	worst    models.ValidationStatus
}

func (v *run) set(field models.RecordField, status models.ValidationStatus, message string) {
	v.verdicts[field] = models.FieldVerdict{Status: status, Message: message}
	v.worst = models.WorstOf(v.worst, status)
}

// validateRecord applies every per-record rule and writes the record's
// validation metadata. avg is the historical average unit price for the
// record's SKU, zero when there is no history.
func validateRecord(r *models.QuotationRecord, avg decimal.Decimal) {
	v := &run{verdicts: models.FieldVerdicts{}, worst: models.ValidationStatusValid}

	validateTextFields(r, v)
	validateNumericFields(r, v)
	validatePriceAnomaly(r, v, avg)
	validateTotalConsistency(r, v)
	validateDates(r, v)

	// optional fields never touched by a rule still report explicitly
	for _, field := range []models.RecordField{models.FieldBrand, models.FieldCommentsNotes, models.FieldQuotationValidity} {
		if _, ok := v.verdicts[field]; !ok {
			v.set(field, models.ValidationStatusValid, "")
		}
	}

	r.FieldValidation = v.verdicts
	r.ValidationStatus = v.worst
	r.ValidationMessage = utils.StringPtr(summaryMessage(v.verdicts))
}

// summaryMessage joins the non-valid field messages in field order.
func summaryMessage(verdicts models.FieldVerdicts) string {
	messages := make([]string, 0, 4)
	for _, field := range models.KnownRecordFields {
		fv, ok := verdicts[field]
		if !ok {
			continue
		}
		if fv.Status != models.ValidationStatusValid && fv.Message != "" {
			messages = append(messages, fv.Message)
		}
	}
	if len(messages) == 0 {
		return "All fields valid"
	}
	return strings.Join(messages, "; ")
}

func validateTextFields(r *models.QuotationRecord, v *run) {
	for _, name := range config.CompulsoryTextFields {
		field := models.RecordField(name)
		if utils.IsEmptyValue(r.TextValue(field)) {
			v.set(field, models.ValidationStatusError, "Missing compulsory field: "+name)
		} else {
			v.set(field, models.ValidationStatusValid, "")
		}
	}

	if sku := r.TextValue(models.FieldSku); !utils.IsEmptyValue(sku) && len(strings.TrimSpace(*sku)) < skuMinLength {
		v.set(models.FieldSku, models.ValidationStatusWarning,
			fmt.Sprintf("SKU '%s' has fewer than %d characters", *sku, skuMinLength))
	}

	if currency := r.QuoteCurrency; !utils.IsEmptyValue(currency) {
		if !config.SupportedCurrencies[strings.ToUpper(strings.TrimSpace(*currency))] {
			v.set(models.FieldQuoteCurrency, models.ValidationStatusWarning,
				"Unsupported currency: "+*currency)
		}
	}
}

func validateNumericFields(r *models.QuotationRecord, v *run) {
	for _, name := range config.CompulsoryNumericFields {
		field := models.RecordField(name)
		n := r.NumericValue(field)
		var num decimal.Decimal
		parsed := false
		if n != nil {
			num, parsed = n.Decimal()
		}
		if !parsed {
			v.set(field, models.ValidationStatusError, "Missing compulsory field: "+name)
			continue
		}
		if num.IsNegative() {
			v.set(field, models.ValidationStatusError,
				fmt.Sprintf("Negative value for %s: %s", name, num.String()))
			continue
		}
		if field == models.FieldQuantity && num.IsZero() {
			v.set(field, models.ValidationStatusError, "Quantity cannot be zero")
			continue
		}
		if field == models.FieldQuantity && num.GreaterThan(quantityWarningLimit) {
			v.set(field, models.ValidationStatusWarning, "High quantity: "+num.String())
			continue
		}
		v.set(field, models.ValidationStatusValid, "")
	}
}

func validatePriceAnomaly(r *models.QuotationRecord, v *run, avg decimal.Decimal) {
	if !avg.IsPositive() {
		return
	}
	n := r.NumericValue(models.FieldUnitPrice)
	if n == nil {
		return
	}
	price, ok := n.Decimal()
	if !ok {
		return
	}
	deviation := price.Sub(avg).Div(avg).Abs()
	if deviation.LessThan(priceWarningDeviation) {
		return
	}
	status := models.ValidationStatusWarning
	if deviation.GreaterThanOrEqual(priceErrorDeviation) {
		status = models.ValidationStatusError
	}
	v.set(models.FieldUnitPrice, status,
		fmt.Sprintf("Unit price (%s) deviates %s%% from historical avg (%s)",
			price.StringFixed(2), deviation.Mul(hundred).Round(0).String(), avg.StringFixed(2)))
}

func validateTotalConsistency(r *models.QuotationRecord, v *run) {
	dec := func(field models.RecordField) (decimal.Decimal, bool) {
		n := r.NumericValue(field)
		if n == nil {
			return decimal.Zero, false
		}
		return n.Decimal()
	}
	unit, okU := dec(models.FieldUnitPrice)
	qty, okQ := dec(models.FieldQuantity)
	total, okT := dec(models.FieldTotalPrice)
	if !okU || !okQ || !okT || !qty.IsPositive() {
		return
	}
	expected := unit.Mul(qty)
	if !expected.IsPositive() {
		return
	}
	diff := total.Sub(expected).Div(expected).Abs()
	if diff.GreaterThan(totalMismatchTolerance) {
		v.set(models.FieldTotalPrice, models.ValidationStatusWarning,
			fmt.Sprintf("Total (%s) differs from unit price x quantity (%s) by %s%%",
				total.StringFixed(2), expected.StringFixed(2), diff.Mul(hundred).Round(1).String()))
	}
}

func validateDates(r *models.QuotationRecord, v *run) {
	parsed := map[models.RecordField]bool{}
	when := map[models.RecordField]string{}
	for _, field := range models.DateRecordFields {
		raw := r.TextValue(field)
		if utils.IsEmptyValue(raw) {
			if _, ok := v.verdicts[field]; !ok {
				v.set(field, models.ValidationStatusValid, "")
			}
			continue
		}
		if _, ok := utils.ParseFlexibleDate(*raw); !ok {
			v.set(field, models.ValidationStatusError, "Cannot parse date: "+*raw)
			continue
		}
		parsed[field] = true
		when[field] = *raw
		if _, ok := v.verdicts[field]; !ok {
			v.set(field, models.ValidationStatusValid, "")
		}
	}

	if parsed[models.FieldStartDate] && parsed[models.FieldEndDate] {
		start, _ := utils.ParseFlexibleDate(when[models.FieldStartDate])
		end, _ := utils.ParseFlexibleDate(when[models.FieldEndDate])
		if start.After(end) {
			v.set(models.FieldStartDate, models.ValidationStatusError, "Start date is after end date")
			v.set(models.FieldEndDate, models.ValidationStatusError, "End date is before start date")
		}
	}
	if parsed[models.FieldQuotationDate] && parsed[models.FieldQuotationEndDate] {
		qd, _ := utils.ParseFlexibleDate(when[models.FieldQuotationDate])
		qe, _ := utils.ParseFlexibleDate(when[models.FieldQuotationEndDate])
		if qd.After(qe) {
			v.set(models.FieldQuotationDate, models.ValidationStatusError, "Quotation date is after quotation end date")
		}
	}
}

// flagDuplicates marks every record sharing (normalized sku, unit price,
// quantity) with at least one other record in the batch. The SKU field
// verdict is replaced with the duplicate warning; overall status is only
// upgraded from valid, never downgraded from error.
func flagDuplicates(records []*models.QuotationRecord) {
	groups := map[string][]*models.QuotationRecord{}
	order := []string{}
	for _, r := range records {
		key := duplicateKey(r)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		sku := strings.SplitN(key, "|", 2)[0]
		if sku == "" {
			sku = "Unknown"
		}
		msg := fmt.Sprintf("Possible duplicate: SKU %s appears %d times with same price and quantity", sku, len(group))
		for _, r := range group {
			if r.FieldValidation == nil {
				r.FieldValidation = models.FieldVerdicts{}
			}
			r.FieldValidation[models.FieldSku] = models.FieldVerdict{
				Status:  models.ValidationStatusWarning,
				Message: msg,
			}
			if r.ValidationStatus == models.ValidationStatusValid {
				r.ValidationStatus = models.ValidationStatusWarning
			}
			if r.ValidationMessage == nil || *r.ValidationMessage == "" || *r.ValidationMessage == "All fields valid" {
				r.ValidationMessage = utils.StringPtr(msg)
			} else {
				r.ValidationMessage = utils.StringPtr(*r.ValidationMessage + "; " + msg)
			}
		}
	}
}

func duplicateKey(r *models.QuotationRecord) string {
	sku := ""
	if r.Sku != nil {
		sku = strings.ToUpper(strings.TrimSpace(*r.Sku))
	}
	part := func(field models.RecordField) string {
		n := r.NumericValue(field)
		if n == nil {
			return "-"
		}
		if d, ok := n.Decimal(); ok {
			return d.String()
		}
		return "-"
	}
	return sku + "|" + part(models.FieldUnitPrice) + "|" + part(models.FieldQuantity)
}
