package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"github.com/redis/go-redis/v9"
)

// RedisDraftStore keeps workspace batches in redis so a session survives
// a process restart. Drafts expire on their own if never approved or
// discarded.
type RedisDraftStore struct {
	TTL time.Duration
}

func NewRedisDraftStore() *RedisDraftStore {
	hours := config.IntFromEnv("DRAFT_TTL_HOURS", 72)
	return &RedisDraftStore{TTL: time.Duration(hours) * time.Hour}
}

func draftKey(id string) string {
	return "procurement:draft:" + id
}

func (s *RedisDraftStore) Save(ctx context.Context, id string, records []*models.QuotationRecord) error {
	return config.SetRedisObject(draftKey(id), records, s.TTL)
}

func (s *RedisDraftStore) Load(ctx context.Context, id string) ([]*models.QuotationRecord, bool, error) {
	var records []*models.QuotationRecord
	found, err := config.GetRedisObject(draftKey(id), &records)
	if err != nil && err != redis.Nil {
		return nil, false, err
	}
	return records, found, nil
}

func (s *RedisDraftStore) Clear(ctx context.Context, id string) error {
	return config.RemoveRedisKey(draftKey(id))
}
