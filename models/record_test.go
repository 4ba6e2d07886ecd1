package models

import (
	"testing"

	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

func TestSetField_NumericGoesThroughFlexibleParsing(t *testing.T) {
	r := &QuotationRecord{}

	if err := r.SetField(FieldUnitPrice, utils.StringPtr("$1,250.00")); err != nil {
		t.Fatalf("SetField error: %v", err)
	}
	if d, ok := r.UnitPrice.Decimal(); !ok || d.String() != "1250" {
		t.Fatalf("expected parsed 1250, got %v %v", d, ok)
	}

	if err := r.SetField(FieldUnitPrice, utils.StringPtr("on request")); err != nil {
		t.Fatalf("SetField error: %v", err)
	}
	if r.UnitPrice.Parsed() {
		t.Fatal("unparseable input must be kept raw, not rejected")
	}
	if r.UnitPrice.Raw() != "on request" {
		t.Fatalf("raw value lost: %q", r.UnitPrice.Raw())
	}

	if err := r.SetField(FieldUnitPrice, utils.StringPtr("")); err != nil {
		t.Fatalf("SetField error: %v", err)
	}
	if r.UnitPrice != nil {
		t.Fatal("empty input clears the field")
	}
}

func TestSetField_TextAndUnknown(t *testing.T) {
	r := &QuotationRecord{}
	if err := r.SetField(FieldSku, utils.StringPtr("ABC-100")); err != nil {
		t.Fatalf("SetField error: %v", err)
	}
	if r.Sku == nil || *r.Sku != "ABC-100" {
		t.Fatalf("unexpected sku %v", r.Sku)
	}
	if err := r.SetField(FieldSku, utils.StringPtr("")); err != nil {
		t.Fatalf("SetField error: %v", err)
	}
	if r.Sku != nil {
		t.Fatal("empty input clears text fields too")
	}
	if err := r.SetField(RecordField("made_up"), utils.StringPtr("x")); err == nil {
		t.Fatal("unknown field must be rejected")
	}
}

func TestFieldString(t *testing.T) {
	r := &QuotationRecord{
		Sku:       utils.StringPtr("ABC-100"),
		UnitPrice: NewFlexFromString("TBD"),
	}
	if got := r.FieldString(FieldSku); got != "ABC-100" {
		t.Fatalf("unexpected sku rendering %q", got)
	}
	if got := r.FieldString(FieldUnitPrice); got != "TBD" {
		t.Fatalf("raw numerics render verbatim, got %q", got)
	}
	if got := r.FieldString(FieldDistributor); got != "" {
		t.Fatalf("nil fields render empty, got %q", got)
	}
}

func TestClone_IsDeep(t *testing.T) {
	original := &QuotationRecord{
		Sku:       utils.StringPtr("ABC-100"),
		UnitPrice: NewFlexFromFloat(100),
		FieldValidation: FieldVerdicts{
			FieldSku: {Status: ValidationStatusValid},
		},
	}
	cp := original.Clone()

	*cp.Sku = "CHANGED"
	cp.FieldValidation[FieldSku] = FieldVerdict{Status: ValidationStatusError, Message: "boom"}

	if *original.Sku != "ABC-100" {
		t.Fatal("clone shares the sku pointer")
	}
	if original.FieldValidation[FieldSku].Status != ValidationStatusValid {
		t.Fatal("clone shares the verdict map")
	}
}

func TestSummarizeBatch(t *testing.T) {
	records := []*QuotationRecord{
		{ValidationStatus: ValidationStatusValid},
		{ValidationStatus: ValidationStatusValid},
		{ValidationStatus: ValidationStatusWarning},
		{ValidationStatus: ValidationStatusError},
		{},
		nil,
	}
	s := SummarizeBatch(records)
	if s.Total != 5 || s.Valid != 2 || s.Warning != 1 || s.Error != 1 || s.Pending != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestWorstOf(t *testing.T) {
	if got := WorstOf(ValidationStatusValid, ValidationStatusWarning); got != ValidationStatusWarning {
		t.Fatalf("expected warning, got %s", got)
	}
	if got := WorstOf(ValidationStatusError, ValidationStatusWarning); got != ValidationStatusError {
		t.Fatalf("expected error, got %s", got)
	}
	if got := WorstOf(ValidationStatusValid, ValidationStatusValid); got != ValidationStatusValid {
		t.Fatalf("expected valid, got %s", got)
	}
}
