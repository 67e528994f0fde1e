package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"blindbox_dev_v1_202608/internal/model"
)

// ==================== 仓储接口 ====================

// UnboxLogRepository 开盒审计日志仓储接口
// 只有 Create 和查询，没有 Update/Delete —— 审计日志不可变
type UnboxLogRepository interface {
	Create(ctx context.Context, entry *model.BlindBoxUnboxLog) error
	List(ctx context.Context, filter UnboxLogFilter) ([]model.BlindBoxUnboxLog, int64, error)
	ExistsByEventID(ctx context.Context, eventID string) (bool, error)
}

// ==================== 过滤条件 ====================

// UnboxLogFilter 审计日志查询条件
type UnboxLogFilter struct {
	UserID     int64
	ProductID  int64
	BlindBoxID int64
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// ==================== UnboxLog 仓储实现 ====================

type unboxLogRepo struct {
	db *gorm.DB
}

// NewUnboxLogRepository 创建审计日志仓储
func NewUnboxLogRepository(db *gorm.DB) UnboxLogRepository {
	return &unboxLogRepo{db: db}
}

func (r *unboxLogRepo) Create(ctx context.Context, entry *model.BlindBoxUnboxLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *unboxLogRepo) List(ctx context.Context, filter UnboxLogFilter) ([]model.BlindBoxUnboxLog, int64, error) {
	var logs []model.BlindBoxUnboxLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BlindBoxUnboxLog{})

	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.ProductID > 0 {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if filter.BlindBoxID > 0 {
		query = query.Where("blind_box_id = ?", filter.BlindBoxID)
	}
	if !filter.From.IsZero() {
		query = query.Where("unboxed_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("unboxed_at <= ?", filter.To)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	offset := (filter.Page - 1) * filter.PageSize
	if err := query.Order("unboxed_at DESC").Limit(filter.PageSize).Offset(offset).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// ExistsByEventID 按事件 UUID 判重，重试写入时保证幂等
func (r *unboxLogRepo) ExistsByEventID(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.BlindBoxUnboxLog{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}
