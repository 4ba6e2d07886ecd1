package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

// ApprovalCommitter writes an approved batch to the database in one
// transaction: active records, archived historical rows, and an outbox
// row for the approval event. A redis lock per source file guards
// against a double commit across replicas.
type ApprovalCommitter struct {
	DB *gorm.DB
}

const moduleName = "workflow"

func (c *ApprovalCommitter) Approve(ctx context.Context, records []*models.QuotationRecord, sourceFile string) (ApprovalResult, error) {
	logger := config.GetLogger()
	db := c.DB
	if db == nil {
		db = config.GetDB()
	}

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "approve:"+sourceFile, 30*time.Second, nil)
		if err == redislock.ErrNotObtained {
			config.LogError(logger, moduleName, "Approve", "Could not obtain approval lock", sourceFile, err)
			return ApprovalResult{}, &CommitError{Stage: "lock", Err: err}
		} else if err != nil {
			config.LogError(logger, moduleName, "Approve", "Error obtaining approval lock", sourceFile, err)
			return ApprovalResult{}, &CommitError{Stage: "lock", Err: err}
		}
		defer func() {
			_ = lock.Release(ctx)
		}()
	}

	var recordIDs []int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var historicalIDs []int
		for _, r := range records {
			row := r.Clone()
			row.ID = 0
			row.IsCurrent = utils.NewTrue()
			if err := tx.Create(row).Error; err != nil {
				return &CommitError{Stage: "records", Err: err}
			}
			recordIDs = append(recordIDs, row.ID)

			archive := models.ArchiveFromRecord(r)
			if err := tx.Create(archive).Error; err != nil {
				return &CommitError{Stage: "historical", Err: err}
			}
			historicalIDs = append(historicalIDs, archive.ID)
		}

		if err := models.EnqueueApprovalEvent(ctx, tx, sourceFile, historicalIDs); err != nil {
			return &CommitError{Stage: "outbox", Err: err}
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, moduleName, "Approve", "Approval commit failed", sourceFile, err)
		if _, ok := err.(*CommitError); ok {
			return ApprovalResult{}, err
		}
		return ApprovalResult{}, &CommitError{Stage: "transaction", Err: err}
	}

	models.InvalidateDistinctCaches()
	return ApprovalResult{ApprovedCount: len(recordIDs), RecordIDs: recordIDs}, nil
}
