package models

import (
	"log"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&QuotationRecord{}, &HistoricalRecord{},
		&UploadedFile{}, &FieldChange{},
		&ApprovalOutbox{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
