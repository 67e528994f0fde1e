package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"blindbox_dev_v1_202608/internal/api/dto"
	"blindbox_dev_v1_202608/internal/model"
	"blindbox_dev_v1_202608/internal/repository"
	"blindbox_dev_v1_202608/pkg/apperror"
)

// ==================== 服务实现 ====================

const probabilityTableCacheTTL = 5 * time.Minute

// ProbabilityService 概率账本服务
// 回答"某 item 在 T 时刻的已审批概率是多少"，历史永不丢失
type ProbabilityService struct {
	probRepo repository.ProbabilityConfigRepository
	itemRepo repository.BlindBoxItemRepository
	boxRepo  repository.BlindBoxRepository
	cache    DetailCache
	clock    Clock
}

// NewProbabilityService 创建概率账本服务
func NewProbabilityService(
	probRepo repository.ProbabilityConfigRepository,
	itemRepo repository.BlindBoxItemRepository,
	boxRepo repository.BlindBoxRepository,
	cache DetailCache,
	clock Clock,
) *ProbabilityService {
	return &ProbabilityService{
		probRepo: probRepo,
		itemRepo: itemRepo,
		boxRepo:  boxRepo,
		cache:    cache,
		clock:    clock,
	}
}

// CurrentTable 盒子当前生效的概率表，读穿缓存
// 任何在售、有库存的 item 缺少生效窗口视为配置错误（fail closed，禁止抽取）
func (s *ProbabilityService) CurrentTable(ctx context.Context, boxID int64) (*dto.ProbabilityTableResponse, error) {
	cacheKey := probabilityTableCacheKey(boxID)
	if cached, ok := s.cache.Get(cacheKey); ok {
		var resp dto.ProbabilityTableResponse
		if err := unmarshalCached(cached, &resp); err == nil {
			return &resp, nil
		}
	}

	box, err := s.boxRepo.GetByID(ctx, boxID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("盲盒不存在")
		}
		return nil, apperror.Internal("查询盲盒失败", err)
	}
	if box.Status != model.BlindBoxStatusApproved {
		return nil, apperror.State(fmt.Sprintf("盲盒状态 %s，没有生效的概率表", box.Status))
	}

	now := s.clock.Now()
	items, err := s.itemRepo.GetActiveByBoxID(ctx, boxID)
	if err != nil {
		return nil, apperror.Internal("查询 item 失败", err)
	}

	configs, err := s.probRepo.CurrentByBoxID(ctx, boxID, now)
	if err != nil {
		return nil, apperror.Internal("查询概率窗口失败", err)
	}
	byItem := make(map[int64]model.ProbabilityConfig, len(configs))
	for _, cfg := range configs {
		byItem[cfg.BlindBoxItemID] = cfg
	}

	vos := make([]dto.ProbabilityConfigVO, 0, len(items))
	for _, item := range items {
		cfg, ok := byItem[item.ID]
		if !ok {
			if item.Quantity > 0 {
				// 有库存却没有生效配置：禁止抽取，直接上报
				return nil, apperror.Configuration(
					fmt.Sprintf("item %d (%s) 缺少生效的概率配置", item.ID, item.ProductName))
			}
			continue // 售罄 item 缺窗口只是历史遗留，不拦截
		}
		vos = append(vos, dto.ProbabilityConfigVO{
			ItemID:        item.ID,
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			Rarity:        item.Rarity,
			Probability:   cfg.Probability,
			EffectiveFrom: cfg.EffectiveFrom,
			EffectiveTo:   cfg.EffectiveTo,
			ApprovedBy:    cfg.ApprovedBy,
			ApprovedAt:    cfg.ApprovedAt,
		})
	}

	resp := &dto.ProbabilityTableResponse{
		BlindBoxID: boxID,
		AsOf:       now,
		Configs:    vos,
	}
	if payload, err := marshalCached(resp); err == nil {
		s.cache.Set(cacheKey, payload, probabilityTableCacheTTL)
	}
	return resp, nil
}

// HistoryByItem item 的全部历史窗口，按生效时间升序
func (s *ProbabilityService) HistoryByItem(ctx context.Context, itemID int64) ([]dto.ProbabilityConfigVO, error) {
	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("item 不存在")
		}
		return nil, apperror.Internal("查询 item 失败", err)
	}

	configs, err := s.probRepo.HistoryByItemID(ctx, itemID)
	if err != nil {
		return nil, apperror.Internal("查询概率历史失败", err)
	}

	vos := make([]dto.ProbabilityConfigVO, len(configs))
	for i, cfg := range configs {
		vos[i] = dto.ProbabilityConfigVO{
			ItemID:        cfg.BlindBoxItemID,
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			Rarity:        item.Rarity,
			Probability:   cfg.Probability,
			EffectiveFrom: cfg.EffectiveFrom,
			EffectiveTo:   cfg.EffectiveTo,
			ApprovedBy:    cfg.ApprovedBy,
			ApprovedAt:    cfg.ApprovedAt,
		}
	}
	return vos, nil
}

// CheckWindowConsistency 巡检盒子账本：同一 item 的窗口必须互不重叠且全序
// 巡检任务定时调用，发现问题说明有代码绕过了审批流程
func (s *ProbabilityService) CheckWindowConsistency(ctx context.Context, boxID int64) error {
	items, err := s.itemRepo.GetByBoxID(ctx, boxID)
	if err != nil {
		return apperror.Internal("查询 item 失败", err)
	}

	for _, item := range items {
		history, err := s.probRepo.HistoryByItemID(ctx, item.ID)
		if err != nil {
			return apperror.Internal("查询概率历史失败", err)
		}
		for _, cfg := range history {
			// 每个窗口与账本相交的窗口数应恰好是它自己
			overlapping, err := s.probRepo.CountOverlapping(ctx, item.ID, cfg.EffectiveFrom, cfg.EffectiveTo)
			if err != nil {
				return apperror.Internal("查询概率窗口失败", err)
			}
			if overlapping > 1 {
				return apperror.Configuration(fmt.Sprintf(
					"item %d 概率窗口重叠: [%s, %s] 与另外 %d 个窗口相交",
					item.ID,
					cfg.EffectiveFrom.Format(time.RFC3339), cfg.EffectiveTo.Format(time.RFC3339),
					overlapping-1))
			}
		}
	}
	return nil
}
