package extraction

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"github.com/xuri/excelize/v2"
)

// SheetExtractor handles spreadsheet uploads locally, without the remote
// extractor. The first row with at least two recognizable headers is
// taken as the header row; everything below it becomes records.
type SheetExtractor struct{}

func (s *SheetExtractor) Extract(ctx context.Context, doc Document) ([]*models.QuotationRecord, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(doc.Filename), "."))
	var rows [][]string
	var err error
	switch ext {
	case "xlsx", "xls":
		rows, err = workbookRows(doc.Data)
	case "csv":
		rows, err = csvRows(doc.Data)
	default:
		return nil, &ExtractionError{Filename: doc.Filename, Reason: "unsupported spreadsheet type ." + ext}
	}
	if err != nil {
		return nil, &ExtractionError{Filename: doc.Filename, Reason: "unreadable spreadsheet", Err: err}
	}

	headerIdx, columns := locateHeader(rows)
	if headerIdx < 0 {
		return nil, &ExtractionError{Filename: doc.Filename, Reason: "no recognizable header row"}
	}

	records := make([]*models.QuotationRecord, 0, len(rows)-headerIdx-1)
	for _, row := range rows[headerIdx+1:] {
		cells := map[models.RecordField]string{}
		empty := true
		for col, field := range columns {
			if col >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[col])
			if value == "" {
				continue
			}
			empty = false
			cells[field] = value
		}
		if empty {
			continue
		}
		records = append(records, recordFromCells(cells, doc.Filename, doc.EuCompany))
	}
	return records, nil
}

// CanHandle reports whether the extractor understands the file type.
func (s *SheetExtractor) CanHandle(filename string) bool {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "xlsx", "xls", "csv":
		return true
	}
	return false
}

func workbookRows(data []byte) ([][]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, excelize.ErrSheetNotExist{SheetName: ""}
	}
	return wb.GetRows(sheets[0])
}

func csvRows(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// locateHeader finds the first row mapping at least two columns to known
// fields and returns its index plus the column layout.
func locateHeader(rows [][]string) (int, map[int]models.RecordField) {
	for i, row := range rows {
		columns := map[int]models.RecordField{}
		for col, cell := range row {
			if field, ok := FieldForHeader(cell); ok {
				columns[col] = field
			}
		}
		if len(columns) >= 2 {
			return i, columns
		}
	}
	return -1, nil
}
