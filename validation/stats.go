package validation

import (
	"context"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"gorm.io/gorm"
)

// DBStats answers benchmark lookups straight from the historical table.
type DBStats struct {
	DB *gorm.DB
}

func (s *DBStats) StatsBySkus(ctx context.Context, skus []string) (map[string]*models.SkuPriceStats, error) {
	return models.BatchStatsBySkus(ctx, s.DB, skus)
}

// StaticStats serves a fixed stats map. Used by tools and tests that run
// without a database.
type StaticStats map[string]*models.SkuPriceStats

func (s StaticStats) StatsBySkus(ctx context.Context, skus []string) (map[string]*models.SkuPriceStats, error) {
	out := make(map[string]*models.SkuPriceStats, len(skus))
	for _, sku := range skus {
		if stat, ok := s[sku]; ok {
			out[sku] = stat
		}
	}
	return out, nil
}
