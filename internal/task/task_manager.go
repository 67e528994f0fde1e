package task

import (
	"context"
	"log"

	"blindbox_dev_v1_202608/internal/repository"
	"blindbox_dev_v1_202608/internal/service"
)

// ==================== TaskManager 后台任务管理器 ====================

// TaskManager 统一管理后台任务
// 管理范围：审计日志补写、概率窗口巡检
type TaskManager struct {
	auditTask *AuditFlushTask
	sweepTask *WindowSweepTask
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	BoxRepo     repository.BlindBoxRepository
	LogService  *service.UnboxLogService
	ProbService *service.ProbabilityService
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	AuditFlushEnabled  bool
	WindowSweepEnabled bool
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		AuditFlushEnabled:  true,
		WindowSweepEnabled: true,
	}
}

// NewTaskManager 创建任务管理器
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	tm := &TaskManager{}

	if cfg.AuditFlushEnabled && deps.LogService != nil {
		tm.auditTask = NewAuditFlushTask(deps.LogService)
	}
	if cfg.WindowSweepEnabled && deps.ProbService != nil {
		tm.sweepTask = NewWindowSweepTask(deps.BoxRepo, deps.ProbService)
	}

	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() {
	log.Println("[TaskManager] 正在启动后台任务...")

	if tm.auditTask != nil {
		tm.auditTask.Start()
	}
	if tm.sweepTask != nil {
		tm.sweepTask.Start()
	}

	log.Println("[TaskManager] 后台任务已全部启动")
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	log.Println("[TaskManager] 正在停止后台任务...")

	if tm.auditTask != nil {
		tm.auditTask.Stop()
	}
	if tm.sweepTask != nil {
		tm.sweepTask.Stop()
	}

	log.Println("[TaskManager] 后台任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerAuditFlush 触发一轮审计补写
func (tm *TaskManager) TriggerAuditFlush(ctx context.Context) (int, error) {
	if tm.auditTask == nil {
		return 0, ErrTaskDisabled
	}
	return tm.auditTask.FlushNow(ctx), nil
}

// TriggerWindowSweep 触发一轮窗口巡检
func (tm *TaskManager) TriggerWindowSweep(ctx context.Context) error {
	if tm.sweepTask == nil {
		return ErrTaskDisabled
	}
	tm.sweepTask.SweepNow(ctx)
	return nil
}

// ==================== 状态查询 ====================

// Status 获取任务状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"audit_flush":  tm.auditTask != nil,
		"window_sweep": tm.sweepTask != nil,
	}
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
)
