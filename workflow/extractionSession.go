package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/extraction"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Batch is the result of one extraction run: the uploaded file's tracking
// state plus the validated records.
type Batch struct {
	FileID           string                    `json:"file_id"`
	Filename         string                    `json:"filename"`
	Status           models.UploadStatus       `json:"status"`
	RecordsExtracted int                       `json:"records_extracted"`
	Records          []*models.QuotationRecord `json:"records"`
}

// ExtractionSession runs the upload pipeline: track the file, extract
// line items, validate them. It never hands back raw records; everything
// it returns has been through the rule engine.
type ExtractionSession struct {
	DB        *gorm.DB
	Extractor extraction.Extractor
	Validator Validator
}

func (s *ExtractionSession) Extract(ctx context.Context, doc extraction.Document, storagePath string) (*Batch, error) {
	logger := config.GetLogger()
	db := s.DB
	if db == nil {
		db = config.GetDB()
	}

	file := &models.UploadedFile{
		ID:          uuid.NewString(),
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		SizeBytes:   int64(len(doc.Data)),
		EuCompany:   doc.EuCompany,
		StoragePath: storagePath,
		Status:      models.UploadStatusProcessing,
	}
	if err := models.CreateUploadedFile(ctx, db, file); err != nil {
		config.LogError(logger, moduleName, "Extract", "Could not track uploaded file", doc.Filename, err)
		return nil, err
	}

	records, err := s.Extractor.Extract(ctx, doc)
	if err != nil {
		_ = models.MarkUploadFailed(ctx, db, file.ID, err.Error())
		config.LogError(logger, moduleName, "Extract", "Extraction failed", doc.Filename, err)
		return &Batch{FileID: file.ID, Filename: doc.Filename, Status: models.UploadStatusError}, err
	}
	if len(records) == 0 {
		err := &extraction.ExtractionError{Filename: doc.Filename, Reason: "no line items found"}
		_ = models.MarkUploadFailed(ctx, db, file.ID, err.Reason)
		return &Batch{FileID: file.ID, Filename: doc.Filename, Status: models.UploadStatusError}, err
	}

	for _, r := range records {
		if r.SourceFile == "" {
			r.SourceFile = doc.Filename
		}
		if r.EuCompany == nil && doc.EuCompany != "" {
			company := doc.EuCompany
			r.EuCompany = &company
		}
	}

	if err := s.Validator.ValidateBatch(ctx, records); err != nil {
		_ = models.MarkUploadFailed(ctx, db, file.ID, err.Error())
		config.LogError(logger, moduleName, "Extract", "Post-extraction validation failed", doc.Filename, err)
		return &Batch{FileID: file.ID, Filename: doc.Filename, Status: models.UploadStatusError}, err
	}

	if err := models.MarkUploadCompleted(ctx, db, file.ID, len(records)); err != nil {
		config.LogError(logger, moduleName, "Extract", "Could not mark upload completed", doc.Filename, err)
	}

	return &Batch{
		FileID:           file.ID,
		Filename:         doc.Filename,
		Status:           models.UploadStatusCompleted,
		RecordsExtracted: len(records),
		Records:          records,
	}, nil
}
