package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"blindbox_dev_v1_202608/internal/service"
)

// AuditFlushTask 审计日志补写任务
// 开盒时写审计日志失败不会阻断用户，失败的条目进内存队列，
// 这里定时兜底补写，按 EventID 幂等
type AuditFlushTask struct {
	LogService *service.UnboxLogService
	Cron       *cron.Cron
}

func NewAuditFlushTask(logService *service.UnboxLogService) *AuditFlushTask {
	return &AuditFlushTask{
		LogService: logService,
		Cron:       cron.New(cron.WithSeconds()), // 支持秒级控制
	}
}

// Start 启动定时任务
func (t *AuditFlushTask) Start() {
	// 每 30 秒补写一轮
	_, err := t.Cron.AddFunc("0/30 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()

		t.flushJob(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动审计补写定时任务: %v", err)
	}

	t.Cron.Start()
	log.Println("[Task] 审计日志补写任务已启动 (每30秒检查一次)")
}

// Stop 停止定时任务
func (t *AuditFlushTask) Stop() {
	t.Cron.Stop()
}

// FlushNow 手动触发一轮补写
func (t *AuditFlushTask) FlushNow(ctx context.Context) int {
	return t.LogService.FlushPending(ctx)
}

func (t *AuditFlushTask) flushJob(ctx context.Context) {
	pending := t.LogService.PendingCount()
	if pending == 0 {
		return
	}

	log.Printf("[Cron] 待补写审计日志 %d 条，开始补写", pending)
	flushed := t.LogService.FlushPending(ctx)
	log.Printf("[Cron] 本轮补写完成 %d 条", flushed)
}
