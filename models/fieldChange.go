package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// FieldChange is one audit entry for an operator edit to a persisted
// record.
type FieldChange struct {
	ID        int       `gorm:"primary_key" json:"id"`
	RecordID  int       `gorm:"index" json:"record_id"`
	FieldName string    `gorm:"size:100" json:"field_name"`
	OldValue  string    `gorm:"type:text" json:"old_value"`
	NewValue  string    `gorm:"type:text" json:"new_value"`
	ChangedBy string    `gorm:"size:255" json:"changed_by"`
	ChangedAt time.Time `gorm:"autoCreateTime;index" json:"changed_at"`
}

func GetFieldChangesByRecord(ctx context.Context, db *gorm.DB, recordID int) ([]*FieldChange, error) {
	var changes []*FieldChange
	err := db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("changed_at DESC").
		Find(&changes).Error
	return changes, err
}
