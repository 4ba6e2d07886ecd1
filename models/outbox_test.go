package models

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/appctx"
)

func TestBuildApprovalOutboxRow(t *testing.T) {
	ctx := appctx.Set(context.Background(), appctx.ContextKeyCorrelationId, "corr-123")

	row, err := buildApprovalOutboxRow(ctx, "quotes_q3.xlsx", []int{11, 12, 13})
	if err != nil {
		t.Fatalf("buildApprovalOutboxRow: %v", err)
	}
	if row.PublishStatus != OutboxPublishStatusPending {
		t.Fatalf("new row status = %s, want PENDING", row.PublishStatus)
	}
	if row.SourceFile != "quotes_q3.xlsx" || row.ApprovedCount != 3 {
		t.Fatalf("row header = %s/%d", row.SourceFile, row.ApprovedCount)
	}
	if row.CorrelationId != "corr-123" {
		t.Fatalf("correlation id = %s, want corr-123", row.CorrelationId)
	}
	if row.PublishAttempts != 0 || row.NextAttemptAt != nil || row.LockedAt != nil {
		t.Fatalf("new row carries dispatch state: %+v", row)
	}

	var event ApprovalEvent
	if err := json.Unmarshal(row.Payload, &event); err != nil {
		t.Fatalf("payload unmarshal: %v", err)
	}
	if event.SourceFile != "quotes_q3.xlsx" || event.ApprovedCount != 3 {
		t.Fatalf("event header = %s/%d", event.SourceFile, event.ApprovedCount)
	}
	if len(event.HistoricalIDs) != 3 || event.HistoricalIDs[0] != 11 {
		t.Fatalf("event historical ids = %v", event.HistoricalIDs)
	}
	if event.CorrelationId != "corr-123" {
		t.Fatalf("event correlation id = %s", event.CorrelationId)
	}

	var ids []int
	if err := json.Unmarshal(row.HistoricalIDs, &ids); err != nil {
		t.Fatalf("historical ids unmarshal: %v", err)
	}
	if len(ids) != 3 || ids[2] != 13 {
		t.Fatalf("stored historical ids = %v", ids)
	}
}

func TestBuildApprovalOutboxRow_GeneratesCorrelationId(t *testing.T) {
	row, err := buildApprovalOutboxRow(context.Background(), "f.csv", []int{1})
	if err != nil {
		t.Fatalf("buildApprovalOutboxRow: %v", err)
	}
	if row.CorrelationId == "" {
		t.Fatal("expected a generated correlation id when the context has none")
	}
}

func TestOutboxRetryBackoff(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{10, 1024 * time.Second},
		{11, 2048 * time.Second},
		{12, time.Hour},
		{50, time.Hour},
	}
	for _, tc := range cases {
		if got := outboxRetryBackoff(tc.attempts); got != tc.want {
			t.Errorf("backoff(%d) = %s, want %s", tc.attempts, got, tc.want)
		}
	}
}
