package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"gorm.io/gorm"
)

// FieldVerdict is one field's validation result.
type FieldVerdict struct {
	Status  ValidationStatus `json:"status"`
	Message string           `json:"message"`
}

// FieldVerdicts maps evaluated fields to their verdicts. A missing key
// means the rule engine did not evaluate that field, which displays as
// valid but is distinct from an explicit valid verdict.
type FieldVerdicts map[RecordField]FieldVerdict

func (v FieldVerdicts) Value() (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (v *FieldVerdicts) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	switch raw := value.(type) {
	case []byte:
		return json.Unmarshal(raw, v)
	case string:
		return json.Unmarshal([]byte(raw), v)
	}
	return fmt.Errorf("field verdicts: cannot scan %T", value)
}

// Worst returns the most severe status across all evaluated fields
// (valid when nothing was evaluated).
func (v FieldVerdicts) Worst() ValidationStatus {
	worst := ValidationStatusValid
	for _, fv := range v {
		worst = WorstOf(worst, fv.Status)
	}
	return worst
}

// QuotationRecord is one procurement line item plus its validation
// metadata. Field values are extracted/edited state; the metadata always
// reflects the values as of the LAST validation pass, so after an edit it
// is stale until Revalidate runs again.
type QuotationRecord struct {
	ID                int              `gorm:"primary_key" json:"id,omitempty"`
	Sku               *string          `gorm:"size:255;index" json:"sku"`
	Distributor       *string          `gorm:"size:255;index" json:"distributor"`
	ItemDescription   *string          `gorm:"type:text" json:"item_description"`
	Brand             *string          `gorm:"size:255" json:"brand"`
	QuoteCurrency     *string          `gorm:"size:10" json:"quote_currency"`
	Quantity          *FlexNumber      `gorm:"type:decimal(20,4)" json:"quantity"`
	SerialNo          *string          `gorm:"size:255" json:"serial_no"`
	StartDate         *string          `gorm:"size:50" json:"start_date"`
	EndDate           *string          `gorm:"size:50" json:"end_date"`
	UnitPrice         *FlexNumber      `gorm:"type:decimal(20,4)" json:"unit_price"`
	TotalPrice        *FlexNumber      `gorm:"type:decimal(20,4)" json:"total_price"`
	EuCompany         *string          `gorm:"size:255;index" json:"eu_company"`
	CommentsNotes     *string          `gorm:"type:text" json:"comments_notes"`
	QuotationRefNo    *string          `gorm:"size:255" json:"quotation_ref_no"`
	QuotationDate     *string          `gorm:"size:50" json:"quotation_date"`
	QuotationEndDate  *string          `gorm:"size:50" json:"quotation_end_date"`
	QuotationValidity *string          `gorm:"size:255" json:"quotation_validity"`
	SourceFile        string           `gorm:"size:512" json:"source_file"`
	ValidationStatus  ValidationStatus `gorm:"size:10;default:'pending'" json:"validation_status"`
	ValidationMessage *string          `gorm:"type:text" json:"validation_message"`
	FieldValidation   FieldVerdicts    `gorm:"type:text" json:"field_validation,omitempty"`
	UserModified      bool             `gorm:"default:false" json:"user_modified"`
	IsCurrent         *bool            `gorm:"not null;default:true" json:"is_current,omitempty"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at,omitempty"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at,omitempty"`
}

// SetField assigns a raw operator-entered value to the named field.
// Numeric fields go through flexible parsing and keep the raw string when
// it does not parse; empty input clears the field.
func (r *QuotationRecord) SetField(field RecordField, raw *string) error {
	if !field.Known() {
		return fmt.Errorf("unknown record field %q", field)
	}
	if field.Numeric() {
		if raw == nil || *raw == "" {
			*r.numericSlot(field) = nil
		} else {
			*r.numericSlot(field) = NewFlexFromString(*raw)
		}
		return nil
	}
	if raw != nil && *raw == "" {
		raw = nil
	}
	*r.textSlot(field) = raw
	return nil
}

// FieldString renders the named field for display and export.
func (r *QuotationRecord) FieldString(field RecordField) string {
	if field.Numeric() {
		if n := *r.numericSlot(field); n != nil {
			return n.String()
		}
		return ""
	}
	if slot := r.textSlot(field); slot != nil && *slot != nil {
		return **slot
	}
	return ""
}

// TextValue returns the current value of a non-numeric field.
func (r *QuotationRecord) TextValue(field RecordField) *string {
	slot := r.textSlot(field)
	if slot == nil {
		return nil
	}
	return *slot
}

// NumericValue returns the current value of a numeric field.
func (r *QuotationRecord) NumericValue(field RecordField) *FlexNumber {
	if !field.Numeric() {
		return nil
	}
	return *r.numericSlot(field)
}

func (r *QuotationRecord) numericSlot(field RecordField) **FlexNumber {
	switch field {
	case FieldQuantity:
		return &r.Quantity
	case FieldUnitPrice:
		return &r.UnitPrice
	case FieldTotalPrice:
		return &r.TotalPrice
	}
	return nil
}

func (r *QuotationRecord) textSlot(field RecordField) **string {
	switch field {
	case FieldSku:
		return &r.Sku
	case FieldDistributor:
		return &r.Distributor
	case FieldItemDescription:
		return &r.ItemDescription
	case FieldBrand:
		return &r.Brand
	case FieldQuoteCurrency:
		return &r.QuoteCurrency
	case FieldSerialNo:
		return &r.SerialNo
	case FieldStartDate:
		return &r.StartDate
	case FieldEndDate:
		return &r.EndDate
	case FieldEuCompany:
		return &r.EuCompany
	case FieldCommentsNotes:
		return &r.CommentsNotes
	case FieldQuotationRefNo:
		return &r.QuotationRefNo
	case FieldQuotationDate:
		return &r.QuotationDate
	case FieldQuotationEndDate:
		return &r.QuotationEndDate
	case FieldQuotationValidity:
		return &r.QuotationValidity
	}
	return nil
}

// Clone deep-copies the record, validation metadata included.
func (r *QuotationRecord) Clone() *QuotationRecord {
	cp := *r
	cloneStr := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := *s
		return &v
	}
	cloneNum := func(n *FlexNumber) *FlexNumber {
		if n == nil {
			return nil
		}
		v := *n
		return &v
	}
	cp.Sku = cloneStr(r.Sku)
	cp.Distributor = cloneStr(r.Distributor)
	cp.ItemDescription = cloneStr(r.ItemDescription)
	cp.Brand = cloneStr(r.Brand)
	cp.QuoteCurrency = cloneStr(r.QuoteCurrency)
	cp.SerialNo = cloneStr(r.SerialNo)
	cp.StartDate = cloneStr(r.StartDate)
	cp.EndDate = cloneStr(r.EndDate)
	cp.EuCompany = cloneStr(r.EuCompany)
	cp.CommentsNotes = cloneStr(r.CommentsNotes)
	cp.QuotationRefNo = cloneStr(r.QuotationRefNo)
	cp.QuotationDate = cloneStr(r.QuotationDate)
	cp.QuotationEndDate = cloneStr(r.QuotationEndDate)
	cp.QuotationValidity = cloneStr(r.QuotationValidity)
	cp.ValidationMessage = cloneStr(r.ValidationMessage)
	cp.Quantity = cloneNum(r.Quantity)
	cp.UnitPrice = cloneNum(r.UnitPrice)
	cp.TotalPrice = cloneNum(r.TotalPrice)
	if r.IsCurrent != nil {
		v := *r.IsCurrent
		cp.IsCurrent = &v
	}
	if r.FieldValidation != nil {
		cp.FieldValidation = make(FieldVerdicts, len(r.FieldValidation))
		for k, fv := range r.FieldValidation {
			cp.FieldValidation[k] = fv
		}
	}
	return &cp
}

// ValidationSummary counts records per status. Always recomputed by
// scanning the batch; never stored.
type ValidationSummary struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
	Pending int `json:"pending"`
}

func SummarizeBatch(records []*QuotationRecord) ValidationSummary {
	s := ValidationSummary{}
	for _, r := range records {
		if r == nil {
			continue
		}
		s.Total++
		switch r.ValidationStatus {
		case ValidationStatusValid:
			s.Valid++
		case ValidationStatusWarning:
			s.Warning++
		case ValidationStatusError:
			s.Error++
		default:
			s.Pending++
		}
	}
	return s
}

// GetCurrentRecords lists active (non soft-deleted) records, optionally
// narrowed to one validation status.
func GetCurrentRecords(ctx context.Context, db *gorm.DB, status *ValidationStatus) ([]*QuotationRecord, error) {
	query := db.WithContext(ctx).Where("is_current = ?", true)
	if status != nil {
		query = query.Where("validation_status = ?", *status)
	}
	var records []*QuotationRecord
	err := query.Order("created_at DESC").Find(&records).Error
	return records, err
}

func GetRecordByID(ctx context.Context, db *gorm.DB, id int) (*QuotationRecord, error) {
	var record QuotationRecord
	err := db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// UpdateRecordFields applies a field->raw-value patch to a persisted
// record, logging every actual change and marking the row user modified.
func UpdateRecordFields(ctx context.Context, db *gorm.DB, id int, updates map[RecordField]*string, changedBy string) (*QuotationRecord, error) {
	record, err := GetRecordByID(ctx, db, id)
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for field, raw := range updates {
			if !field.Known() {
				return fmt.Errorf("unknown record field %q", field)
			}
			before := record.FieldString(field)
			if err := record.SetField(field, raw); err != nil {
				return err
			}
			after := record.FieldString(field)
			if before == after {
				continue
			}
			change := FieldChange{
				RecordID:  record.ID,
				FieldName: string(field),
				OldValue:  before,
				NewValue:  after,
				ChangedBy: changedBy,
			}
			if err := tx.Create(&change).Error; err != nil {
				return err
			}
		}
		record.UserModified = true
		return tx.Save(record).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SoftDeleteRecord flips is_current off; the row stays for audit.
func SoftDeleteRecord(ctx context.Context, db *gorm.DB, id int) error {
	result := db.WithContext(ctx).Model(&QuotationRecord{}).
		Where("id = ?", id).
		Update("is_current", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}
