package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"gorm.io/gorm"
)

// UploadedFile tracks one source document through extraction.
type UploadedFile struct {
	ID               string       `gorm:"primary_key;size:36" json:"file_id"`
	Filename         string       `gorm:"size:512" json:"filename"`
	ContentType      string       `gorm:"size:255" json:"content_type"`
	SizeBytes        int64        `json:"size_bytes"`
	EuCompany        string       `gorm:"size:255" json:"eu_company"`
	StoragePath      string       `gorm:"size:1024" json:"-"`
	Status           UploadStatus `gorm:"size:20;default:'pending'" json:"status"`
	ErrorMessage     *string      `gorm:"type:text" json:"error_message,omitempty"`
	RecordsExtracted int          `json:"records_extracted"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateUploadedFile(ctx context.Context, db *gorm.DB, file *UploadedFile) error {
	return db.WithContext(ctx).Create(file).Error
}

func GetUploadedFile(ctx context.Context, db *gorm.DB, id string) (*UploadedFile, error) {
	var file UploadedFile
	err := db.WithContext(ctx).First(&file, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &file, nil
}

// MarkUploadCompleted records a successful extraction.
func MarkUploadCompleted(ctx context.Context, db *gorm.DB, id string, recordsExtracted int) error {
	return db.WithContext(ctx).Model(&UploadedFile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            UploadStatusCompleted,
			"records_extracted": recordsExtracted,
		}).Error
}

// MarkUploadFailed records a failed extraction with its cause.
func MarkUploadFailed(ctx context.Context, db *gorm.DB, id string, message string) error {
	return db.WithContext(ctx).Model(&UploadedFile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        UploadStatusError,
			"error_message": message,
		}).Error
}
