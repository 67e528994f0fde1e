package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"blindbox_dev_v1_202608/internal/model"
	"blindbox_dev_v1_202608/internal/repository"
	"blindbox_dev_v1_202608/internal/service"
)

// WindowSweepTask 概率窗口一致性巡检任务
// 正常流程下同一 item 的生效窗口互不重叠，这里定期全量核对，
// 发现重叠只告警，修复交给人工（审计数据不自动改）
type WindowSweepTask struct {
	BoxRepo     repository.BlindBoxRepository
	ProbService *service.ProbabilityService
	Cron        *cron.Cron

	// 控制并发巡检的盒子数量，避免把数据库打满
	concurrencyLimit int
	sleepTime        time.Duration
}

func NewWindowSweepTask(boxRepo repository.BlindBoxRepository, probService *service.ProbabilityService) *WindowSweepTask {
	return &WindowSweepTask{
		BoxRepo:          boxRepo,
		ProbService:      probService,
		Cron:             cron.New(cron.WithSeconds()),
		concurrencyLimit: 10,
		sleepTime:        50 * time.Millisecond, // 每个协程启动间隔，平滑波峰
	}
}

// Start 启动定时任务
func (t *WindowSweepTask) Start() {
	// 每小时整点巡检一轮
	_, err := t.Cron.AddFunc("0 0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		t.sweepJob(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动窗口巡检定时任务: %v", err)
	}

	t.Cron.Start()
	log.Println("[Task] 概率窗口巡检任务已启动 (每小时一次)")
}

// Stop 停止定时任务
func (t *WindowSweepTask) Stop() {
	t.Cron.Stop()
}

// SweepNow 手动触发一轮巡检
func (t *WindowSweepTask) SweepNow(ctx context.Context) {
	t.sweepJob(ctx)
}

func (t *WindowSweepTask) sweepJob(ctx context.Context) {
	// 只巡检已审批在售的盒子，草稿没有窗口
	boxes, total, err := t.BoxRepo.List(ctx, repository.BlindBoxFilter{
		Status:   model.BlindBoxStatusApproved,
		Page:     1,
		PageSize: 1000,
	})
	if err != nil {
		log.Printf("[Cron] 巡检盒子列表查询失败: %v", err)
		return
	}

	log.Printf("[Cron] 开始巡检 %d 个盒子的概率窗口，并发上限: %d", total, t.concurrencyLimit)

	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup
	var found int64
	var mu sync.Mutex

	for _, box := range boxes {
		select {
		case <-ctx.Done():
			log.Println("[Cron] 巡检任务超时停止")
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		time.Sleep(t.sleepTime)

		currentBox := box
		go func(b model.BlindBox) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := t.ProbService.CheckWindowConsistency(ctx, b.ID); err != nil {
				mu.Lock()
				found++
				mu.Unlock()
				log.Printf("[Cron] 盒子 [%s](id=%d) 概率窗口异常: %v", b.Name, b.ID, err)
			}
		}(currentBox)
	}

	wg.Wait()
	if found > 0 {
		log.Printf("[Cron] 本轮巡检完成，发现 %d 个盒子窗口异常", found)
	} else {
		log.Println("[Cron] 本轮巡检完成，窗口一致")
	}
}
