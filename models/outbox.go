package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/appctx"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalOutbox is the transactional outbox row for one approval event.
// It is written inside the approval DB transaction; publishing to Pub/Sub
// happens after commit via the dispatcher.
type ApprovalOutbox struct {
	ID              int                 `gorm:"primary_key;index:idx_approval_outbox_dispatch,priority:3" json:"id"`
	SourceFile      string              `gorm:"size:512;index" json:"source_file"`
	ApprovedCount   int                 `json:"approved_count"`
	HistoricalIDs   []byte              `gorm:"type:blob" json:"historical_ids"`
	Payload         []byte              `gorm:"type:blob" json:"payload"`
	PublishStatus   OutboxPublishStatus `gorm:"size:20;index;not null;default:'PENDING';index:idx_approval_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt     *time.Time          `gorm:"index" json:"published_at"`
	PubSubMessageId *string             `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts int                 `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt   *time.Time          `gorm:"index;index:idx_approval_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt        *time.Time          `gorm:"index" json:"locked_at"`
	LockedBy        *string             `gorm:"size:100" json:"locked_by"`
	LastError       *string             `gorm:"type:text" json:"last_error"`
	CorrelationId   string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// ApprovalEvent is the published payload.
type ApprovalEvent struct {
	SourceFile    string    `json:"source_file"`
	ApprovedCount int       `json:"approved_count"`
	HistoricalIDs []int     `json:"historical_ids"`
	ApprovedAt    time.Time `json:"approved_at"`
	CorrelationId string    `json:"correlation_id"`
}

// buildApprovalOutboxRow assembles the row and its serialized payload.
// The correlation id comes from the request context when present.
func buildApprovalOutboxRow(ctx context.Context, sourceFile string, historicalIDs []int) (*ApprovalOutbox, error) {
	correlationId, ok := appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
	if !ok || correlationId == "" {
		correlationId = uuid.NewString()
	}
	event := ApprovalEvent{
		SourceFile:    sourceFile,
		ApprovedCount: len(historicalIDs),
		HistoricalIDs: historicalIDs,
		ApprovedAt:    time.Now().UTC(),
		CorrelationId: correlationId,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	ids, err := json.Marshal(historicalIDs)
	if err != nil {
		return nil, err
	}
	return &ApprovalOutbox{
		SourceFile:    sourceFile,
		ApprovedCount: len(historicalIDs),
		HistoricalIDs: ids,
		Payload:       payload,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}, nil
}

// EnqueueApprovalEvent writes an outbox row inside the caller's DB
// transaction. It does not publish.
func EnqueueApprovalEvent(ctx context.Context, tx *gorm.DB, sourceFile string, historicalIDs []int) error {
	row, err := buildApprovalOutboxRow(ctx, sourceFile, historicalIDs)
	if err != nil {
		return err
	}
	return tx.Create(row).Error
}

// MarkOutboxSent stamps a successful publish.
func MarkOutboxSent(ctx context.Context, db *gorm.DB, id int, messageId string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&ApprovalOutbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"publish_status":    OutboxPublishStatusSent,
			"published_at":      &now,
			"pubsub_message_id": &messageId,
			"locked_at":         nil,
			"locked_by":         nil,
		}).Error
}

// MarkOutboxProcessed marks a row handled without Pub/Sub (direct mode).
func MarkOutboxProcessed(ctx context.Context, db *gorm.DB, id int) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&ApprovalOutbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"publish_status": OutboxPublishStatusProcessed,
			"published_at":   &now,
			"locked_at":      nil,
			"locked_by":      nil,
		}).Error
}

// outboxRetryBackoff doubles per attempt, capped at an hour.
func outboxRetryBackoff(attempts int) time.Duration {
	backoff := time.Duration(1<<uint(min(attempts, 12))) * time.Second
	if backoff > time.Hour {
		backoff = time.Hour
	}
	return backoff
}

// MarkOutboxFailed records a publish failure and schedules a retry with
// exponential backoff capped at an hour.
func MarkOutboxFailed(ctx context.Context, db *gorm.DB, row *ApprovalOutbox, cause string) error {
	attempts := row.PublishAttempts + 1
	next := time.Now().UTC().Add(outboxRetryBackoff(attempts))
	return db.WithContext(ctx).Model(&ApprovalOutbox{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"publish_status":   OutboxPublishStatusFailed,
			"publish_attempts": attempts,
			"next_attempt_at":  &next,
			"last_error":       &cause,
			"locked_at":        nil,
			"locked_by":        nil,
		}).Error
}
