package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// HistoricalRecord is an approved quotation line archived for benchmark
// analytics. Rows are append-only; approval is the only writer.
type HistoricalRecord struct {
	ID                int              `gorm:"primary_key" json:"id,omitempty"`
	Sku               *string          `gorm:"size:255;index" json:"sku"`
	Distributor       *string          `gorm:"size:255;index" json:"distributor"`
	ItemDescription   *string          `gorm:"type:text" json:"item_description"`
	Brand             *string          `gorm:"size:255" json:"brand"`
	QuoteCurrency     *string          `gorm:"size:10" json:"quote_currency"`
	Quantity          *decimal.Decimal `gorm:"type:decimal(20,4)" json:"quantity"`
	SerialNo          *string          `gorm:"size:255" json:"serial_no"`
	StartDate         *string          `gorm:"size:50" json:"start_date"`
	EndDate           *string          `gorm:"size:50" json:"end_date"`
	UnitPrice         *decimal.Decimal `gorm:"type:decimal(20,4)" json:"unit_price"`
	TotalPrice        *decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_price"`
	EuCompany         *string          `gorm:"size:255;index" json:"eu_company"`
	CommentsNotes     *string          `gorm:"type:text" json:"comments_notes"`
	QuotationRefNo    *string          `gorm:"size:255" json:"quotation_ref_no"`
	QuotationDate     *string          `gorm:"size:50" json:"quotation_date"`
	QuotationEndDate  *string          `gorm:"size:50" json:"quotation_end_date"`
	QuotationValidity *string          `gorm:"size:255" json:"quotation_validity"`
	SourceFile        string           `gorm:"size:512" json:"source_file"`
	ArchiveReason     ArchiveReason    `gorm:"size:20;default:'approved'" json:"archive_reason"`
	ApprovedAt        time.Time        `gorm:"autoCreateTime;index" json:"approved_at"`
}

// ArchiveFromRecord builds the archive row for an approved record.
// Numerics that never parsed archive as NULL; the raw text survives only
// on the quotation row.
func ArchiveFromRecord(r *QuotationRecord) *HistoricalRecord {
	num := func(n *FlexNumber) *decimal.Decimal {
		if n == nil {
			return nil
		}
		if d, ok := n.Decimal(); ok {
			return &d
		}
		return nil
	}
	return &HistoricalRecord{
		Sku:               r.Sku,
		Distributor:       r.Distributor,
		ItemDescription:   r.ItemDescription,
		Brand:             r.Brand,
		QuoteCurrency:     r.QuoteCurrency,
		Quantity:          num(r.Quantity),
		SerialNo:          r.SerialNo,
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		UnitPrice:         num(r.UnitPrice),
		TotalPrice:        num(r.TotalPrice),
		EuCompany:         r.EuCompany,
		CommentsNotes:     r.CommentsNotes,
		QuotationRefNo:    r.QuotationRefNo,
		QuotationDate:     r.QuotationDate,
		QuotationEndDate:  r.QuotationEndDate,
		QuotationValidity: r.QuotationValidity,
		SourceFile:        r.SourceFile,
		ArchiveReason:     ArchiveReasonApproved,
	}
}

// SkuPriceStats is the aggregated benchmark for one SKU.
type SkuPriceStats struct {
	Sku         string          `json:"sku"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	MinPrice    decimal.Decimal `json:"min_price"`
	MaxPrice    decimal.Decimal `json:"max_price"`
	AvgQuantity decimal.Decimal `json:"avg_quantity"`
	RecordCount int             `json:"record_count"`
}

// BatchStatsBySkus aggregates price and quantity statistics for a set of
// SKUs in one GROUP BY. SKUs with no history are absent from the result.
func BatchStatsBySkus(ctx context.Context, db *gorm.DB, skus []string) (map[string]*SkuPriceStats, error) {
	stats := map[string]*SkuPriceStats{}
	if len(skus) == 0 {
		return stats, nil
	}
	upper := make([]string, 0, len(skus))
	for _, s := range skus {
		if s != "" {
			upper = append(upper, strings.ToUpper(s))
		}
	}
	if len(upper) == 0 {
		return stats, nil
	}

	var rows []SkuPriceStats
	err := db.WithContext(ctx).Model(&HistoricalRecord{}).
		Select("UPPER(sku) AS sku, AVG(unit_price) AS avg_price, MIN(unit_price) AS min_price, MAX(unit_price) AS max_price, AVG(quantity) AS avg_quantity, COUNT(*) AS record_count").
		Where("UPPER(sku) IN ? AND unit_price IS NOT NULL", upper).
		Group("UPPER(sku)").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		stats[rows[i].Sku] = &rows[i]
	}
	return stats, nil
}

// PriceTrendPoint is one month of price history for a SKU.
type PriceTrendPoint struct {
	Month       string          `json:"month"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	MinPrice    decimal.Decimal `json:"min_price"`
	MaxPrice    decimal.Decimal `json:"max_price"`
	RecordCount int             `json:"record_count"`
}

// PriceTrendBySku returns a monthly average price series, oldest first.
func PriceTrendBySku(ctx context.Context, db *gorm.DB, sku string) ([]PriceTrendPoint, error) {
	var points []PriceTrendPoint
	err := db.WithContext(ctx).Model(&HistoricalRecord{}).
		Select("DATE_FORMAT(approved_at, '%Y-%m') AS month, AVG(unit_price) AS avg_price, MIN(unit_price) AS min_price, MAX(unit_price) AS max_price, COUNT(*) AS record_count").
		Where("UPPER(sku) = ? AND unit_price IS NOT NULL", strings.ToUpper(sku)).
		Group("DATE_FORMAT(approved_at, '%Y-%m')").
		Order("month ASC").
		Scan(&points).Error
	return points, err
}

// HistoricalFilter narrows a history search. Zero values mean no filter.
type HistoricalFilter struct {
	Query       string
	Sku         string
	Distributor string
	EuCompany   string
	Limit       int
}

// SearchHistorical lists archived records, newest first. Query matches
// SKU, distributor and item description with a contains search.
func SearchHistorical(ctx context.Context, db *gorm.DB, filter HistoricalFilter) ([]*HistoricalRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = config.SearchLimit
	}
	if limit > config.SearchLimitMax {
		limit = config.SearchLimitMax
	}

	query := db.WithContext(ctx).Model(&HistoricalRecord{})
	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		query = query.Where("sku LIKE ? OR distributor LIKE ? OR item_description LIKE ?", like, like, like)
	}
	if filter.Sku != "" {
		query = query.Where("UPPER(sku) = ?", strings.ToUpper(filter.Sku))
	}
	if filter.Distributor != "" {
		query = query.Where("distributor = ?", filter.Distributor)
	}
	if filter.EuCompany != "" {
		query = query.Where("eu_company = ?", filter.EuCompany)
	}

	var records []*HistoricalRecord
	err := query.Order("approved_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

const distinctCacheTTL = 10 * time.Minute

func distinctColumn(ctx context.Context, db *gorm.DB, column, cacheKey string) ([]string, error) {
	var values []string
	if found, err := config.GetRedisObject(cacheKey, &values); err == nil && found {
		return values, nil
	}
	err := db.WithContext(ctx).Model(&HistoricalRecord{}).
		Where(column + " IS NOT NULL AND " + column + " <> ''").
		Distinct(column).
		Order(column + " ASC").
		Pluck(column, &values).Error
	if err != nil {
		return nil, err
	}
	_ = config.SetRedisObject(cacheKey, values, distinctCacheTTL)
	return values, nil
}

func DistinctCompanies(ctx context.Context, db *gorm.DB) ([]string, error) {
	return distinctColumn(ctx, db, "eu_company", "procurement:distinct:eu_company")
}

func DistinctDistributors(ctx context.Context, db *gorm.DB) ([]string, error) {
	return distinctColumn(ctx, db, "distributor", "procurement:distinct:distributor")
}

func DistinctSkus(ctx context.Context, db *gorm.DB) ([]string, error) {
	return distinctColumn(ctx, db, "sku", "procurement:distinct:sku")
}

// InvalidateDistinctCaches drops the cached dropdown lists. Called after
// every approval commit.
func InvalidateDistinctCaches() {
	_ = config.RemoveRedisKey("procurement:distinct:eu_company")
	_ = config.RemoveRedisKey("procurement:distinct:distributor")
	_ = config.RemoveRedisKey("procurement:distinct:sku")
}

// DashboardMetrics summarizes overall system activity.
type DashboardMetrics struct {
	TotalHistoricalRecords int             `json:"total_historical_records"`
	TotalPendingRecords    int             `json:"total_pending_records"`
	TotalApprovedSpend     decimal.Decimal `json:"total_approved_spend"`
	DistinctSkus           int             `json:"distinct_skus"`
	DistinctDistributors   int             `json:"distinct_distributors"`
	RecentApprovals        int             `json:"recent_approvals"`
}

// GetDashboardMetrics computes the landing page summary. Recent approvals
// cover the trailing 30 days.
func GetDashboardMetrics(ctx context.Context, db *gorm.DB) (*DashboardMetrics, error) {
	var metrics DashboardMetrics

	var historicalCount int64
	if err := db.WithContext(ctx).Model(&HistoricalRecord{}).Count(&historicalCount).Error; err != nil {
		return nil, err
	}
	metrics.TotalHistoricalRecords = int(historicalCount)

	var pendingCount int64
	if err := db.WithContext(ctx).Model(&QuotationRecord{}).
		Where("is_current = ?", true).Count(&pendingCount).Error; err != nil {
		return nil, err
	}
	metrics.TotalPendingRecords = int(pendingCount)

	var spend struct {
		Total decimal.Decimal
	}
	if err := db.WithContext(ctx).Model(&HistoricalRecord{}).
		Select("COALESCE(SUM(total_price), 0) AS total").
		Scan(&spend).Error; err != nil {
		return nil, err
	}
	metrics.TotalApprovedSpend = spend.Total

	var skuCount int64
	if err := db.WithContext(ctx).Model(&HistoricalRecord{}).
		Distinct("sku").Count(&skuCount).Error; err != nil {
		return nil, err
	}
	metrics.DistinctSkus = int(skuCount)

	var distributorCount int64
	if err := db.WithContext(ctx).Model(&HistoricalRecord{}).
		Distinct("distributor").Count(&distributorCount).Error; err != nil {
		return nil, err
	}
	metrics.DistinctDistributors = int(distributorCount)

	var recentCount int64
	if err := db.WithContext(ctx).Model(&HistoricalRecord{}).
		Where("approved_at >= ?", time.Now().AddDate(0, 0, -30)).
		Count(&recentCount).Error; err != nil {
		return nil, err
	}
	metrics.RecentApprovals = int(recentCount)

	return &metrics, nil
}
