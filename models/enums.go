package models

import (
	"errors"
)

// ValidationStatus is the per-record (and per-field) verdict.
// Ordering matters: Error > Warning > Valid. Pending only exists before
// the first evaluation and never appears on individual fields.
type ValidationStatus string

const (
	ValidationStatusPending ValidationStatus = "pending"
	ValidationStatusValid   ValidationStatus = "valid"
	ValidationStatusWarning ValidationStatus = "warning"
	ValidationStatusError   ValidationStatus = "error"
)

func (s ValidationStatus) Known() bool {
	switch s {
	case ValidationStatusPending, ValidationStatusValid, ValidationStatusWarning, ValidationStatusError:
		return true
	}
	return false
}

func (s *ValidationStatus) Parse(str string) error {
	v := ValidationStatus(str)
	if !v.Known() {
		return errors.New("invalid validation status")
	}
	*s = v
	return nil
}

// severity rank for worst-of aggregation
func (s ValidationStatus) rank() int {
	switch s {
	case ValidationStatusError:
		return 3
	case ValidationStatusWarning:
		return 2
	case ValidationStatusValid:
		return 1
	}
	return 0
}

// WorstOf returns the more severe of two statuses.
func WorstOf(a, b ValidationStatus) ValidationStatus {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// RecordField enumerates every editable field of a quotation record.
// Validation verdicts are keyed by this type so the known field list is
// closed at compile time; absence in a verdict map means "not evaluated".
type RecordField string

const (
	FieldSku               RecordField = "sku"
	FieldDistributor       RecordField = "distributor"
	FieldItemDescription   RecordField = "item_description"
	FieldBrand             RecordField = "brand"
	FieldQuoteCurrency     RecordField = "quote_currency"
	FieldQuantity          RecordField = "quantity"
	FieldSerialNo          RecordField = "serial_no"
	FieldStartDate         RecordField = "start_date"
	FieldEndDate           RecordField = "end_date"
	FieldUnitPrice         RecordField = "unit_price"
	FieldTotalPrice        RecordField = "total_price"
	FieldEuCompany         RecordField = "eu_company"
	FieldCommentsNotes     RecordField = "comments_notes"
	FieldQuotationRefNo    RecordField = "quotation_ref_no"
	FieldQuotationDate     RecordField = "quotation_date"
	FieldQuotationEndDate  RecordField = "quotation_end_date"
	FieldQuotationValidity RecordField = "quotation_validity"
)

// KnownRecordFields lists every field in document order.
var KnownRecordFields = []RecordField{
	FieldSku, FieldDistributor, FieldItemDescription, FieldBrand,
	FieldQuoteCurrency, FieldQuantity, FieldSerialNo, FieldStartDate,
	FieldEndDate, FieldUnitPrice, FieldTotalPrice, FieldEuCompany,
	FieldCommentsNotes, FieldQuotationRefNo, FieldQuotationDate,
	FieldQuotationEndDate, FieldQuotationValidity,
}

var knownRecordFieldSet = func() map[RecordField]bool {
	m := make(map[RecordField]bool, len(KnownRecordFields))
	for _, f := range KnownRecordFields {
		m[f] = true
	}
	return m
}()

func (f RecordField) Known() bool {
	return knownRecordFieldSet[f]
}

// NumericRecordFields are the fields whose edits go through numeric
// parsing (raw input is preserved when unparseable).
var NumericRecordFields = map[RecordField]bool{
	FieldQuantity:   true,
	FieldUnitPrice:  true,
	FieldTotalPrice: true,
}

func (f RecordField) Numeric() bool {
	return NumericRecordFields[f]
}

// DateRecordFields are opaque date strings checked by the rule engine.
var DateRecordFields = []RecordField{
	FieldStartDate, FieldEndDate, FieldQuotationDate, FieldQuotationEndDate,
}

// WorkspaceState is the verification workspace state machine.
type WorkspaceState string

const (
	WorkspaceStateIdle         WorkspaceState = "idle"
	WorkspaceStateEditing      WorkspaceState = "editing"
	WorkspaceStateRevalidating WorkspaceState = "revalidating"
)

type ArchiveReason string

const (
	ArchiveReasonApproved ArchiveReason = "approved"
)

type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusError      UploadStatus = "error"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending   OutboxPublishStatus = "PENDING"
	OutboxPublishStatusSent      OutboxPublishStatus = "SENT"
	OutboxPublishStatusProcessed OutboxPublishStatus = "PROCESSED"
	OutboxPublishStatusFailed    OutboxPublishStatus = "FAILED"
)
