package validation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"github.com/shopspring/decimal"
)

func validRecord(sku string) *models.QuotationRecord {
	return &models.QuotationRecord{
		Sku:             utils.StringPtr(sku),
		Distributor:     utils.StringPtr("Alpha Distribution"),
		ItemDescription: utils.StringPtr("Server rack unit"),
		QuoteCurrency:   utils.StringPtr("EUR"),
		SerialNo:        utils.StringPtr("SN-0001"),
		EuCompany:       utils.StringPtr("Acme GmbH"),
		QuotationRefNo:  utils.StringPtr("Q-2026-001"),
		Quantity:        models.NewFlexFromFloat(10),
		UnitPrice:       models.NewFlexFromFloat(100),
		TotalPrice:      models.NewFlexFromFloat(1000),
	}
}

func statsFor(sku string, avgPrice float64) StaticStats {
	return StaticStats{
		strings.ToUpper(sku): &models.SkuPriceStats{
			Sku:         strings.ToUpper(sku),
			AvgPrice:    decimal.NewFromFloat(avgPrice),
			RecordCount: 5,
		},
	}
}

func runBatch(t *testing.T, stats StatsProvider, records ...*models.QuotationRecord) {
	t.Helper()
	if err := NewEngine(stats).ValidateBatch(context.Background(), records); err != nil {
		t.Fatalf("ValidateBatch error: %v", err)
	}
}

func verdict(t *testing.T, r *models.QuotationRecord, field models.RecordField) models.FieldVerdict {
	t.Helper()
	fv, ok := r.FieldValidation[field]
	if !ok {
		t.Fatalf("no verdict recorded for field %s", field)
	}
	return fv
}

func TestValidateBatch_CleanRecord(t *testing.T) {
	r := validRecord("ABC-100")
	runBatch(t, StaticStats{}, r)

	if r.ValidationStatus != models.ValidationStatusValid {
		t.Fatalf("expected valid status, got %s (%v)", r.ValidationStatus, r.ValidationMessage)
	}
	if r.ValidationMessage == nil || *r.ValidationMessage != "All fields valid" {
		t.Fatalf("expected 'All fields valid', got %v", r.ValidationMessage)
	}
	// optional fields report explicitly even when untouched
	for _, field := range []models.RecordField{models.FieldBrand, models.FieldCommentsNotes, models.FieldQuotationValidity} {
		if fv := verdict(t, r, field); fv.Status != models.ValidationStatusValid {
			t.Fatalf("expected explicit valid verdict for %s, got %s", field, fv.Status)
		}
	}
}

func TestValidateBatch_RejectsNilRecord(t *testing.T) {
	records := []*models.QuotationRecord{validRecord("ABC-100"), nil}

	err := NewEngine(StaticStats{}).ValidateBatch(context.Background(), records)
	if err == nil {
		t.Fatal("expected an error for a batch with a nil record")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if records[0].FieldValidation != nil {
		t.Fatal("no record should be annotated when the batch is rejected")
	}
}

func TestValidateBatch_MissingCompulsoryFields(t *testing.T) {
	r := &models.QuotationRecord{}
	runBatch(t, StaticStats{}, r)

	if r.ValidationStatus != models.ValidationStatusError {
		t.Fatalf("expected error status, got %s", r.ValidationStatus)
	}
	if fv := verdict(t, r, models.FieldSku); fv.Message != "Missing compulsory field: sku" {
		t.Fatalf("unexpected sku message: %q", fv.Message)
	}
	if fv := verdict(t, r, models.FieldQuantity); fv.Message != "Missing compulsory field: quantity" {
		t.Fatalf("unexpected quantity message: %q", fv.Message)
	}
	if r.ValidationMessage == nil || !strings.Contains(*r.ValidationMessage, "Missing compulsory field: distributor") {
		t.Fatalf("summary should list missing fields, got %v", r.ValidationMessage)
	}
}

func TestValidateBatch_PlaceholderCountsAsMissing(t *testing.T) {
	r := validRecord("ABC-100")
	r.Distributor = utils.StringPtr("N/A")
	runBatch(t, StaticStats{}, r)

	if fv := verdict(t, r, models.FieldDistributor); fv.Status != models.ValidationStatusError {
		t.Fatalf("placeholder distributor should be missing, got %s", fv.Status)
	}
}

func TestValidateBatch_ShortSkuWarning(t *testing.T) {
	r := validRecord("AB")
	runBatch(t, StaticStats{}, r)

	fv := verdict(t, r, models.FieldSku)
	if fv.Status != models.ValidationStatusWarning {
		t.Fatalf("expected warning, got %s", fv.Status)
	}
	if fv.Message != "SKU 'AB' has fewer than 3 characters" {
		t.Fatalf("unexpected message: %q", fv.Message)
	}
	if r.ValidationStatus != models.ValidationStatusWarning {
		t.Fatalf("expected warning overall, got %s", r.ValidationStatus)
	}
}

func TestValidateBatch_UnsupportedCurrency(t *testing.T) {
	r := validRecord("ABC-100")
	r.QuoteCurrency = utils.StringPtr("XYZ")
	runBatch(t, StaticStats{}, r)

	fv := verdict(t, r, models.FieldQuoteCurrency)
	if fv.Status != models.ValidationStatusWarning || fv.Message != "Unsupported currency: XYZ" {
		t.Fatalf("unexpected verdict: %s %q", fv.Status, fv.Message)
	}
}

func TestValidateBatch_NumericRules(t *testing.T) {
	negative := validRecord("ABC-100")
	negative.UnitPrice = models.NewFlexFromFloat(-5)

	zeroQty := validRecord("ABC-200")
	zeroQty.Quantity = models.NewFlexFromFloat(0)

	highQty := validRecord("ABC-300")
	highQty.Quantity = models.NewFlexFromFloat(20000)

	unparseable := validRecord("ABC-400")
	unparseable.UnitPrice = models.NewFlexFromString("ask sales")

	runBatch(t, StaticStats{}, negative, zeroQty, highQty, unparseable)

	if fv := verdict(t, negative, models.FieldUnitPrice); fv.Message != "Negative value for unit_price: -5" {
		t.Fatalf("unexpected negative message: %q", fv.Message)
	}
	if fv := verdict(t, zeroQty, models.FieldQuantity); fv.Message != "Quantity cannot be zero" {
		t.Fatalf("unexpected zero quantity message: %q", fv.Message)
	}
	fv := verdict(t, highQty, models.FieldQuantity)
	if fv.Status != models.ValidationStatusWarning || fv.Message != "High quantity: 20000" {
		t.Fatalf("unexpected high quantity verdict: %s %q", fv.Status, fv.Message)
	}
	// a raw string never parsed, so the field is effectively missing
	if fv := verdict(t, unparseable, models.FieldUnitPrice); fv.Status != models.ValidationStatusError {
		t.Fatalf("unparseable price should be an error, got %s", fv.Status)
	}
}

func TestValidateBatch_PriceDeviation(t *testing.T) {
	cases := []struct {
		name     string
		price    float64
		avg      float64
		expected models.ValidationStatus
		message  string
	}{
		{"within tolerance", 110, 100, models.ValidationStatusValid, ""},
		{"warning at 20pct", 120, 100, models.ValidationStatusWarning,
			"Unit price (120.00) deviates 20% from historical avg (100.00)"},
		{"error at 50pct", 150, 100, models.ValidationStatusError,
			"Unit price (150.00) deviates 50% from historical avg (100.00)"},
		{"undercut flags too", 50, 100, models.ValidationStatusError,
			"Unit price (50.00) deviates 50% from historical avg (100.00)"},
	}
	for _, tc := range cases {
		r := validRecord("ABC-100")
		r.UnitPrice = models.NewFlexFromFloat(tc.price)
		r.TotalPrice = models.NewFlexFromFloat(tc.price * 10)
		runBatch(t, statsFor("ABC-100", tc.avg), r)

		fv := verdict(t, r, models.FieldUnitPrice)
		if fv.Status != tc.expected {
			t.Fatalf("%s: expected %s, got %s (%q)", tc.name, tc.expected, fv.Status, fv.Message)
		}
		if tc.message != "" && fv.Message != tc.message {
			t.Fatalf("%s: unexpected message: %q", tc.name, fv.Message)
		}
	}
}

func TestValidateBatch_NoHistoryNoDeviationCheck(t *testing.T) {
	r := validRecord("NEW-999")
	r.UnitPrice = models.NewFlexFromFloat(999999)
	r.TotalPrice = models.NewFlexFromFloat(9999990)
	runBatch(t, StaticStats{}, r)

	if fv := verdict(t, r, models.FieldUnitPrice); fv.Status != models.ValidationStatusValid {
		t.Fatalf("no history should skip the deviation rule, got %s (%q)", fv.Status, fv.Message)
	}
}

func TestValidateBatch_TotalConsistency(t *testing.T) {
	mismatch := validRecord("ABC-100")
	mismatch.UnitPrice = models.NewFlexFromFloat(10)
	mismatch.Quantity = models.NewFlexFromFloat(5)
	mismatch.TotalPrice = models.NewFlexFromFloat(60)

	withinTolerance := validRecord("ABC-200")
	withinTolerance.UnitPrice = models.NewFlexFromFloat(10)
	withinTolerance.Quantity = models.NewFlexFromFloat(5)
	withinTolerance.TotalPrice = models.NewFlexFromFloat(50.2)

	runBatch(t, StaticStats{}, mismatch, withinTolerance)

	fv := verdict(t, mismatch, models.FieldTotalPrice)
	if fv.Status != models.ValidationStatusWarning {
		t.Fatalf("expected warning, got %s", fv.Status)
	}
	if fv.Message != "Total (60.00) differs from unit price x quantity (50.00) by 20%" {
		t.Fatalf("unexpected message: %q", fv.Message)
	}
	if fv := verdict(t, withinTolerance, models.FieldTotalPrice); fv.Status != models.ValidationStatusValid {
		t.Fatalf("0.4%% difference should pass, got %s (%q)", fv.Status, fv.Message)
	}
}

func TestValidateBatch_DateRules(t *testing.T) {
	garbled := validRecord("ABC-100")
	garbled.StartDate = utils.StringPtr("sometime soon")

	inverted := validRecord("ABC-200")
	inverted.StartDate = utils.StringPtr("2026-03-01")
	inverted.EndDate = utils.StringPtr("2026-01-01")

	quoteInverted := validRecord("ABC-300")
	quoteInverted.QuotationDate = utils.StringPtr("2026-06-01")
	quoteInverted.QuotationEndDate = utils.StringPtr("2026-05-01")

	runBatch(t, StaticStats{}, garbled, inverted, quoteInverted)

	if fv := verdict(t, garbled, models.FieldStartDate); fv.Message != "Cannot parse date: sometime soon" {
		t.Fatalf("unexpected message: %q", fv.Message)
	}

	// an inverted range flags both ends
	if fv := verdict(t, inverted, models.FieldStartDate); fv.Message != "Start date is after end date" {
		t.Fatalf("unexpected start message: %q", fv.Message)
	}
	if fv := verdict(t, inverted, models.FieldEndDate); fv.Message != "End date is before start date" {
		t.Fatalf("unexpected end message: %q", fv.Message)
	}

	// an inverted quotation range flags the quotation date only
	if fv := verdict(t, quoteInverted, models.FieldQuotationDate); fv.Status != models.ValidationStatusError {
		t.Fatalf("expected error on quotation date, got %s", fv.Status)
	}
	if fv := verdict(t, quoteInverted, models.FieldQuotationEndDate); fv.Status != models.ValidationStatusValid {
		t.Fatalf("quotation end date should stay valid, got %s", fv.Status)
	}
}

func TestValidateBatch_DuplicatesFlagEveryOccurrence(t *testing.T) {
	a := validRecord("ABC-100")
	b := validRecord("abc-100")
	c := validRecord("ABC-100")
	other := validRecord("XYZ-900")

	runBatch(t, StaticStats{}, a, b, c, other)

	expected := "Possible duplicate: SKU ABC-100 appears 3 times with same price and quantity"
	for i, r := range []*models.QuotationRecord{a, b, c} {
		fv := verdict(t, r, models.FieldSku)
		if fv.Status != models.ValidationStatusWarning || fv.Message != expected {
			t.Fatalf("record %d: unexpected verdict: %s %q", i, fv.Status, fv.Message)
		}
		if r.ValidationStatus != models.ValidationStatusWarning {
			t.Fatalf("record %d: expected warning overall, got %s", i, r.ValidationStatus)
		}
		if r.ValidationMessage == nil || *r.ValidationMessage != expected {
			t.Fatalf("record %d: duplicate message should replace 'All fields valid', got %v", i, r.ValidationMessage)
		}
	}
	if other.ValidationStatus != models.ValidationStatusValid {
		t.Fatalf("unique record should stay valid, got %s", other.ValidationStatus)
	}
}

func TestValidateBatch_DuplicateNeverDowngradesError(t *testing.T) {
	a := validRecord("ABC-100")
	a.Distributor = nil
	b := validRecord("ABC-100")

	runBatch(t, StaticStats{}, a, b)

	if a.ValidationStatus != models.ValidationStatusError {
		t.Fatalf("error record must stay error, got %s", a.ValidationStatus)
	}
	if a.ValidationMessage == nil || !strings.Contains(*a.ValidationMessage, "Possible duplicate") {
		t.Fatalf("duplicate message should append, got %v", a.ValidationMessage)
	}
	if b.ValidationStatus != models.ValidationStatusWarning {
		t.Fatalf("clean duplicate should be warning, got %s", b.ValidationStatus)
	}
}

func TestValidateBatch_DifferentPriceIsNotDuplicate(t *testing.T) {
	a := validRecord("ABC-100")
	b := validRecord("ABC-100")
	b.UnitPrice = models.NewFlexFromFloat(105)
	b.TotalPrice = models.NewFlexFromFloat(1050)

	runBatch(t, StaticStats{}, a, b)

	if a.ValidationStatus != models.ValidationStatusValid || b.ValidationStatus != models.ValidationStatusValid {
		t.Fatalf("same sku with different price is not a duplicate: %s / %s", a.ValidationStatus, b.ValidationStatus)
	}
}
