package middlewares

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"
)

type skuStatsReader struct {
	db *gorm.DB
}

// getSkuStats batches the deduped SKU set into one aggregate query. A SKU
// with no purchase history resolves to nil data, never an error.
func (r *skuStatsReader) getSkuStats(ctx context.Context, skus []string) []*dataloader.Result[*models.SkuPriceStats] {
	stats, err := models.BatchStatsBySkus(ctx, r.db, skus)
	if err != nil {
		results := make([]*dataloader.Result[*models.SkuPriceStats], len(skus))
		for i := range skus {
			results[i] = &dataloader.Result[*models.SkuPriceStats]{Error: err}
		}
		return results
	}

	results := make([]*dataloader.Result[*models.SkuPriceStats], 0, len(skus))
	for _, sku := range skus {
		results = append(results, &dataloader.Result[*models.SkuPriceStats]{
			Data: stats[strings.ToUpper(strings.TrimSpace(sku))],
		})
	}
	return results
}

// GetSkuStats loads one SKU's benchmark through the request's loader.
func GetSkuStats(ctx context.Context, sku string) (*models.SkuPriceStats, error) {
	loaders := For(ctx)
	return loaders.SkuStatsLoader.Load(ctx, strings.ToUpper(strings.TrimSpace(sku)))()
}

// GetSkuStatsBatch loads a SKU set in one round, skipping SKUs without
// history.
func GetSkuStatsBatch(ctx context.Context, skus []string) (map[string]*models.SkuPriceStats, error) {
	loaders := For(ctx)
	keys := make([]string, 0, len(skus))
	for _, sku := range skus {
		sku = strings.ToUpper(strings.TrimSpace(sku))
		if sku != "" {
			keys = append(keys, sku)
		}
	}
	thunk := loaders.SkuStatsLoader.LoadMany(ctx, keys)
	results, errs := thunk()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]*models.SkuPriceStats, len(results))
	for i, stat := range results {
		if stat != nil {
			out[keys[i]] = stat
		}
	}
	return out, nil
}

// LoaderStats serves benchmark lookups through the per-request loader
// when one is attached to the context, falling back to a direct query for
// background work.
type LoaderStats struct{}

func (LoaderStats) StatsBySkus(ctx context.Context, skus []string) (map[string]*models.SkuPriceStats, error) {
	if ctx.Value(loadersKey) != nil {
		return GetSkuStatsBatch(ctx, skus)
	}
	return models.BatchStatsBySkus(ctx, config.GetDB(), skus)
}
