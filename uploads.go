package main

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/extraction"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// uploadExtractHandler takes a multipart procurement document, stores it,
// and runs the extraction pipeline. The response always carries the
// upload's tracking state even when extraction fails.
func uploadExtractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		euCompany := strings.TrimSpace(c.PostForm("eu_company"))

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileHeader.Filename), "."))
		if !config.AllowedUploadExtensions[ext] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type ." + ext})
			return
		}
		if fileHeader.Size > config.MaxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 25MB limit"})
			return
		}

		data, err := readUpload(fileHeader)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read upload"})
			return
		}

		storagePath, err := storeSourceDocument(c, fileHeader.Filename, contentTypeFor(ext), data)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"filename": fileHeader.Filename,
				"error":    err.Error(),
			}).Error("[upload.store]")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store uploaded file"})
			return
		}

		doc := extraction.Document{
			Filename:    fileHeader.Filename,
			ContentType: contentTypeFor(ext),
			EuCompany:   euCompany,
			Data:        data,
		}
		batch, err := session.Extract(c.Request.Context(), doc, storagePath)
		if err != nil {
			status := http.StatusUnprocessableEntity
			var extErr *extraction.ExtractionError
			if errors.As(err, &extErr) && extErr.Status >= 500 {
				status = http.StatusBadGateway
			}
			resp := gin.H{"error": err.Error()}
			if batch != nil {
				resp["file_id"] = batch.FileID
				resp["filename"] = batch.Filename
				resp["status"] = batch.Status
			}
			c.JSON(status, resp)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

// uploadStatusHandler reports the tracking state of one upload.
func uploadStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := models.GetUploadedFile(c.Request.Context(), config.GetDB(), c.Param("id"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, file)
	}
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, config.MaxUploadSizeBytes+1))
}

// storeSourceDocument keeps the original document for audit: always on
// local disk, additionally archived to GCS when configured.
func storeSourceDocument(c *gin.Context, filename, contentType string, data []byte) (string, error) {
	dir := config.UploadDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	localName := fmt.Sprintf("%d_%s", time.Now().UnixNano(), sanitizeFilename(filename))
	localPath := filepath.Join(dir, localName)
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return "", err
	}

	if utils.GetStorageProvider() == utils.StorageProviderGCS {
		objectName := "uploads/" + localName
		if err := utils.ArchiveDocumentToGCS(c.Request.Context(), objectName, contentType, data); err != nil {
			return "", err
		}
		return objectName, nil
	}
	return localPath, nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var out strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			out.WriteRune(r)
		} else {
			out.WriteRune('_')
		}
	}
	return out.String()
}

func contentTypeFor(ext string) string {
	switch ext {
	case "pdf":
		return "application/pdf"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "xls":
		return "application/vnd.ms-excel"
	case "csv":
		return "text/csv"
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
