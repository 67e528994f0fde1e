package service

import (
	"context"
	"log"
	"sync"
	"time"

	"blindbox_dev_v1_202608/internal/api/dto"
	"blindbox_dev_v1_202608/internal/model"
	"blindbox_dev_v1_202608/internal/repository"
	"blindbox_dev_v1_202608/pkg/apperror"
)

// 重试队列容量上限，超出后丢弃最老的一条
const maxPendingAuditLogs = 1024

// UnboxLogService 开盒审计日志服务
// 写入失败的日志进内存重试队列，由定时任务补写。补写按 EventID 判重，
// 同一次开盒不会落两条
type UnboxLogService struct {
	logRepo repository.UnboxLogRepository

	mu      sync.Mutex
	pending []*model.BlindBoxUnboxLog
}

// NewUnboxLogService 创建审计日志服务
func NewUnboxLogService(logRepo repository.UnboxLogRepository) *UnboxLogService {
	return &UnboxLogService{logRepo: logRepo}
}

// Record 写一条审计日志
// 写失败只告警并入队，不向调用方返回错误 —— 开盒结果已经提交，
// 审计缺笔不能反过来让用户的抽取失败
func (s *UnboxLogService) Record(ctx context.Context, entry *model.BlindBoxUnboxLog) {
	if err := s.logRepo.Create(ctx, entry); err != nil {
		log.Printf("[UnboxLog] 审计日志写入失败，进重试队列: event=%s err=%v", entry.EventID, err)
		s.enqueue(entry)
	}
}

func (s *UnboxLogService) enqueue(entry *model.BlindBoxUnboxLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= maxPendingAuditLogs {
		log.Printf("[UnboxLog] 重试队列已满，丢弃最老一条: event=%s", s.pending[0].EventID)
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, entry)
}

// PendingCount 重试队列长度
func (s *UnboxLogService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// FlushPending 补写重试队列中的日志，定时任务调用
// 返回本次成功补写的条数。仍然失败的留在队列里等下一轮
func (s *UnboxLogService) FlushPending(ctx context.Context) int {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	flushed := 0
	var remaining []*model.BlindBoxUnboxLog
	for _, entry := range batch {
		exists, err := s.logRepo.ExistsByEventID(ctx, entry.EventID)
		if err != nil {
			remaining = append(remaining, entry)
			continue
		}
		if exists {
			flushed++
			continue
		}
		if err := s.logRepo.Create(ctx, entry); err != nil {
			log.Printf("[UnboxLog] 补写仍失败: event=%s err=%v", entry.EventID, err)
			remaining = append(remaining, entry)
			continue
		}
		flushed++
	}

	if len(remaining) > 0 {
		s.mu.Lock()
		s.pending = append(remaining, s.pending...)
		s.mu.Unlock()
	}

	if flushed > 0 {
		log.Printf("[UnboxLog] 补写审计日志 %d 条，剩余 %d 条", flushed, len(remaining))
	}
	return flushed
}

// ListLogs 审计日志分页查询
func (s *UnboxLogService) ListLogs(ctx context.Context, req *dto.ListUnboxLogsRequest) (*dto.UnboxLogListResponse, error) {
	filter := repository.UnboxLogFilter{
		UserID:     req.UserID,
		ProductID:  req.ProductID,
		BlindBoxID: req.BlindBoxID,
		Page:       req.Page,
		PageSize:   req.PageSize,
	}
	if req.From != "" {
		from, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			return nil, apperror.Validation("from 时间格式错误，应为 RFC3339")
		}
		filter.From = from
	}
	if req.To != "" {
		to, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			return nil, apperror.Validation("to 时间格式错误，应为 RFC3339")
		}
		filter.To = to
	}

	logs, total, err := s.logRepo.List(ctx, filter)
	if err != nil {
		return nil, apperror.Internal("查询审计日志失败", err)
	}

	items := make([]dto.UnboxLogVO, len(logs))
	for i, entry := range logs {
		items[i] = dto.UnboxLogVO{
			ID:                 entry.ID,
			EventID:            entry.EventID,
			CustomerBlindBoxID: entry.CustomerBlindBoxID,
			UserID:             entry.UserID,
			BlindBoxID:         entry.BlindBoxID,
			BlindBoxName:       entry.BlindBoxName,
			ProductID:          entry.ProductID,
			ProductName:        entry.ProductName,
			Rarity:             entry.Rarity,
			DropRate:           entry.DropRate,
			RollValue:          entry.RollValue,
			ProbabilityTable:   string(entry.ProbabilityTable),
			UnboxedAt:          entry.UnboxedAt,
		}
	}
	return &dto.UnboxLogListResponse{Total: total, Items: items}, nil
}
