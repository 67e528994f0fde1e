package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"blindbox_dev_v1_202608/internal/api/dto"
	"blindbox_dev_v1_202608/internal/model"
	"blindbox_dev_v1_202608/internal/repository"
	"blindbox_dev_v1_202608/pkg/apperror"
)

// ==================== Mock 实现 ====================

// flakyLogRepo 可以随时打开/关闭写失败的仓储，模拟审计库抖动
type flakyLogRepo struct {
	failCreate bool
	created    []*model.BlindBoxUnboxLog
	existing   map[string]bool
}

func newFlakyLogRepo() *flakyLogRepo {
	return &flakyLogRepo{existing: make(map[string]bool)}
}

func (r *flakyLogRepo) Create(ctx context.Context, entry *model.BlindBoxUnboxLog) error {
	if r.failCreate {
		return errors.New("审计库连接断开")
	}
	r.created = append(r.created, entry)
	r.existing[entry.EventID] = true
	return nil
}

func (r *flakyLogRepo) List(ctx context.Context, filter repository.UnboxLogFilter) ([]model.BlindBoxUnboxLog, int64, error) {
	logs := make([]model.BlindBoxUnboxLog, len(r.created))
	for i, entry := range r.created {
		logs[i] = *entry
	}
	return logs, int64(len(logs)), nil
}

func (r *flakyLogRepo) ExistsByEventID(ctx context.Context, eventID string) (bool, error) {
	return r.existing[eventID], nil
}

func auditEntry(eventID string) *model.BlindBoxUnboxLog {
	return &model.BlindBoxUnboxLog{
		EventID:            eventID,
		CustomerBlindBoxID: 1,
		UserID:             101,
		BlindBoxID:         1,
		ProductID:          1001,
		UnboxedAt:          time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Reason:             "unbox",
	}
}

// ==================== 重试队列 ====================

func TestRecord_FailureGoesToRetryQueue(t *testing.T) {
	repo := newFlakyLogRepo()
	repo.failCreate = true
	svc := NewUnboxLogService(repo)

	// Record 不返回错误：开盒结果已提交，审计缺笔不能反噬用户
	svc.Record(context.Background(), auditEntry("evt-1"))

	if svc.PendingCount() != 1 {
		t.Errorf("重试队列长度 = %d, want 1", svc.PendingCount())
	}
	if len(repo.created) != 0 {
		t.Errorf("写失败时不应有落库记录: %d", len(repo.created))
	}
}

func TestFlushPending_RetriesAfterRecovery(t *testing.T) {
	repo := newFlakyLogRepo()
	repo.failCreate = true
	svc := NewUnboxLogService(repo)
	ctx := context.Background()

	svc.Record(ctx, auditEntry("evt-1"))
	svc.Record(ctx, auditEntry("evt-2"))

	// 库还没恢复，补写失败的留在队列里
	if flushed := svc.FlushPending(ctx); flushed != 0 {
		t.Errorf("库未恢复时补写成功数 = %d, want 0", flushed)
	}
	if svc.PendingCount() != 2 {
		t.Errorf("队列长度 = %d, want 2", svc.PendingCount())
	}

	// 库恢复后一轮全部补上
	repo.failCreate = false
	if flushed := svc.FlushPending(ctx); flushed != 2 {
		t.Errorf("补写成功数 = %d, want 2", flushed)
	}
	if svc.PendingCount() != 0 {
		t.Errorf("补写后队列应清空，实际 %d", svc.PendingCount())
	}
	if len(repo.created) != 2 {
		t.Errorf("落库记录数 = %d, want 2", len(repo.created))
	}
}

func TestFlushPending_IdempotentByEventID(t *testing.T) {
	repo := newFlakyLogRepo()
	repo.failCreate = true
	svc := NewUnboxLogService(repo)
	ctx := context.Background()

	svc.Record(ctx, auditEntry("evt-1"))

	// 原始写入其实落库成功了，只是响应丢了：补写按 EventID 判重，不落第二条
	repo.existing["evt-1"] = true
	repo.failCreate = false

	if flushed := svc.FlushPending(ctx); flushed != 1 {
		t.Errorf("判重命中也算补写成功，实际 %d", flushed)
	}
	if len(repo.created) != 0 {
		t.Errorf("判重命中不应重复落库: %d", len(repo.created))
	}
	if svc.PendingCount() != 0 {
		t.Errorf("队列应清空，实际 %d", svc.PendingCount())
	}
}

func TestFlushPending_EmptyQueue(t *testing.T) {
	svc := NewUnboxLogService(newFlakyLogRepo())
	if flushed := svc.FlushPending(context.Background()); flushed != 0 {
		t.Errorf("空队列补写数 = %d, want 0", flushed)
	}
}

// ==================== 日志查询 ====================

func TestListLogs_InvalidTimeFilter(t *testing.T) {
	svc := NewUnboxLogService(newFlakyLogRepo())

	_, err := svc.ListLogs(context.Background(), &dto.ListUnboxLogsRequest{From: "昨天"})
	expectKind(t, err, apperror.KindValidation)

	_, err = svc.ListLogs(context.Background(), &dto.ListUnboxLogsRequest{To: "not-a-time"})
	expectKind(t, err, apperror.KindValidation)
}

func TestListLogs_TimeRangeFilter(t *testing.T) {
	// 真库走一遍过滤条件
	db := setupServiceTestDB(t)
	logRepo := repository.NewUnboxLogRepository(db)
	svc := NewUnboxLogService(logRepo)
	ctx := context.Background()

	early := auditEntry("evt-early")
	early.UnboxedAt = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	late := auditEntry("evt-late")
	late.UnboxedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, entry := range []*model.BlindBoxUnboxLog{early, late} {
		if err := logRepo.Create(ctx, entry); err != nil {
			t.Fatalf("seed 审计日志失败: %v", err)
		}
	}

	resp, err := svc.ListLogs(ctx, &dto.ListUnboxLogsRequest{
		From: "2026-03-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("过滤后日志数 = %d, want 1", resp.Total)
	}
	if resp.Items[0].EventID != "evt-late" {
		t.Errorf("过滤结果 = %s, want evt-late", resp.Items[0].EventID)
	}
}
