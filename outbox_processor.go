package main

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxProcessor drains the approval outbox in the background. When
// Pub/Sub is configured each row is published to the approvals topic;
// otherwise rows are marked processed directly so local/dev environments
// do not accumulate a backlog.
type OutboxProcessor struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewOutboxProcessor(db *gorm.DB, logger *logrus.Logger) *OutboxProcessor {
	return &OutboxProcessor{
		DB:        db,
		Logger:    logger,
		WorkerID:  "dispatcher-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

func (p *OutboxProcessor) Run(ctx context.Context) {
	if p == nil || p.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.processOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

func (p *OutboxProcessor) processOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-p.LockTTL)

	var claimed []models.ApprovalOutbox
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("publish_status IN ?", []models.OutboxPublishStatus{
				models.OutboxPublishStatusPending,
				models.OutboxPublishStatusFailed,
			}).
			Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", now).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(p.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &p.WorkerID
			if err := tx.Model(&models.ApprovalOutbox{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at": claimed[i].LockedAt,
					"locked_by": claimed[i].LockedBy,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	publish := config.PubSubConfigured()
	for i := range claimed {
		row := &claimed[i]
		if err := p.dispatch(ctx, row, publish); err != nil {
			_ = models.MarkOutboxFailed(ctx, p.DB, row, err.Error())
			if p.Logger != nil {
				p.Logger.WithFields(logrus.Fields{
					"field":          "OutboxProcessor",
					"outbox_id":      row.ID,
					"source_file":    row.SourceFile,
					"attempts":       row.PublishAttempts + 1,
					"correlation_id": row.CorrelationId,
				}).Error("approval event dispatch failed: " + err.Error())
			}
		}
	}
}

func (p *OutboxProcessor) dispatch(ctx context.Context, row *models.ApprovalOutbox, publish bool) error {
	if !publish {
		return models.MarkOutboxProcessed(ctx, p.DB, row.ID)
	}
	messageId, err := config.PublishApprovalEvent(ctx, row.Payload, row.CorrelationId)
	if err != nil {
		return err
	}
	return models.MarkOutboxSent(ctx, p.DB, row.ID, messageId)
}
