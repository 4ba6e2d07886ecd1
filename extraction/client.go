package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

// Client extracts line items through the remote document understanding
// service. It posts the raw document and receives structured items with
// display-name keys.
type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func NewClient() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("EXTRACTOR_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("EXTRACTOR_API_BASE_URL is empty")
	}
	apiKey := strings.TrimSpace(os.Getenv("EXTRACTOR_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("extractor api key is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("EXTRACTOR_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := 10
	if v := strings.TrimSpace(os.Getenv("EXTRACTOR_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 180 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type extractResponse struct {
	Items []map[string]json.RawMessage `json:"items"`
}

func (c *Client) Extract(ctx context.Context, doc Document) ([]*models.QuotationRecord, error) {
	<-c.limiter

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", doc.Filename)
	if err != nil {
		return nil, &ExtractionError{Filename: doc.Filename, Reason: "building request", Err: err}
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, &ExtractionError{Filename: doc.Filename, Reason: "building request", Err: err}
	}
	if doc.EuCompany != "" {
		_ = writer.WriteField("eu_company", doc.EuCompany)
	}
	if err := writer.Close(); err != nil {
		return nil, &ExtractionError{Filename: doc.Filename, Reason: "building request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", &body)
	if err != nil {
		return nil, &ExtractionError{Filename: doc.Filename, Reason: "building request", Err: err}
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ExtractionError{Filename: doc.Filename, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ExtractionError{
			Filename: doc.Filename,
			Status:   resp.StatusCode,
			Reason:   fmt.Sprintf("extractor api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	var parsed extractResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &ExtractionError{Filename: doc.Filename, Reason: "unparseable response", Err: err}
	}

	records := make([]*models.QuotationRecord, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		cells := map[models.RecordField]string{}
		for header, raw := range item {
			field, ok := FieldForHeader(header)
			if !ok {
				continue
			}
			cells[field] = rawToString(raw)
		}
		if len(cells) == 0 {
			continue
		}
		records = append(records, recordFromCells(cells, doc.Filename, doc.EuCompany))
	}
	return records, nil
}

// rawToString renders a JSON scalar as the cell text. Numbers keep their
// literal form so trailing zeros and formatting survive into parsing.
func rawToString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}
