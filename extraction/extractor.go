package extraction

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// Document is one uploaded source file handed to an extractor.
type Document struct {
	Filename    string
	ContentType string
	EuCompany   string
	Data        []byte
}

// Extractor turns a procurement document into line item records. The
// records come back with pending validation status; running the rule
// engine is the caller's job.
type Extractor interface {
	Extract(ctx context.Context, doc Document) ([]*models.QuotationRecord, error)
}

// ExtractionError reports a document that could not be processed. Status
// carries the upstream HTTP status when the remote extractor failed, 0
// otherwise.
type ExtractionError struct {
	Filename string
	Status   int
	Reason   string
	Err      error
}

func (e *ExtractionError) Error() string {
	msg := "extraction failed for " + e.Filename + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Column headers as they appear in quotation documents, mapped to record
// fields. Lookup is case-insensitive on the normalized header.
var headerFieldMap = map[string]models.RecordField{
	"sku":                models.FieldSku,
	"distributor":        models.FieldDistributor,
	"item description":   models.FieldItemDescription,
	"item_description":   models.FieldItemDescription,
	"description":        models.FieldItemDescription,
	"brand":              models.FieldBrand,
	"quote currency":     models.FieldQuoteCurrency,
	"quote_currency":     models.FieldQuoteCurrency,
	"currency":           models.FieldQuoteCurrency,
	"quantity":           models.FieldQuantity,
	"qty":                models.FieldQuantity,
	"serial no":          models.FieldSerialNo,
	"serial_no":          models.FieldSerialNo,
	"start date":         models.FieldStartDate,
	"start_date":         models.FieldStartDate,
	"end date":           models.FieldEndDate,
	"end_date":           models.FieldEndDate,
	"unit price":         models.FieldUnitPrice,
	"unit_price":         models.FieldUnitPrice,
	"total price":        models.FieldTotalPrice,
	"total_price":        models.FieldTotalPrice,
	"eu company":         models.FieldEuCompany,
	"eu_company":         models.FieldEuCompany,
	"comments/notes":     models.FieldCommentsNotes,
	"comments_notes":     models.FieldCommentsNotes,
	"comments":           models.FieldCommentsNotes,
	"notes":              models.FieldCommentsNotes,
	"quotation ref no":   models.FieldQuotationRefNo,
	"quotation_ref_no":   models.FieldQuotationRefNo,
	"quotation date":     models.FieldQuotationDate,
	"quotation_date":     models.FieldQuotationDate,
	"quotation end date": models.FieldQuotationEndDate,
	"quotation_end_date": models.FieldQuotationEndDate,
	"quotation validity": models.FieldQuotationValidity,
	"quotation_validity": models.FieldQuotationValidity,
}

// FieldForHeader resolves a raw column header to a record field.
func FieldForHeader(header string) (models.RecordField, bool) {
	key := strings.ToLower(strings.TrimSpace(header))
	field, ok := headerFieldMap[key]
	return field, ok
}

// recordFromCells builds one record from header-keyed cell values.
// Numeric cells go through flexible parsing; the eu_company from the
// upload form wins over anything found in the document.
func recordFromCells(cells map[models.RecordField]string, sourceFile, euCompany string) *models.QuotationRecord {
	record := &models.QuotationRecord{
		SourceFile:       sourceFile,
		ValidationStatus: models.ValidationStatusPending,
		IsCurrent:        utils.NewTrue(),
	}
	for field, raw := range cells {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_ = record.SetField(field, &raw)
	}
	if euCompany != "" {
		record.EuCompany = utils.StringPtr(euCompany)
	}
	return record
}
