package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"blindbox_dev_v1_202608/internal/model"
)

// ==================== 仓储接口 ====================

// ProbabilityConfigRepository 概率配置账本仓储接口
// 账本只追加、只关闭：历史窗口一经生效不再 UPDATE 概率值，
// 新审批通过时关闭旧窗口（effective_to = now）再插入新窗口
type ProbabilityConfigRepository interface {
	CreateBatch(ctx context.Context, configs []model.ProbabilityConfig) error

	// CurrentByBoxID 查询盒子在 at 时刻生效的全部配置
	// 窗口前闭后开：取代发生的瞬间旧窗口已不生效，每条 item 至多命中一条
	CurrentByBoxID(ctx context.Context, boxID int64, at time.Time) ([]model.ProbabilityConfig, error)

	// HistoryByItemID 查询 item 的全部历史窗口，按 effective_from 升序
	HistoryByItemID(ctx context.Context, itemID int64) ([]model.ProbabilityConfig, error)

	// CloseOpenWindows 关闭盒子当前打开的窗口（重新审批时取代旧版本）
	CloseOpenWindows(ctx context.Context, boxID int64, at time.Time) (int64, error)

	// DeleteFutureByBoxID 删除尚未生效的窗口（驳回时丢弃），已生效的不动
	DeleteFutureByBoxID(ctx context.Context, boxID int64, after time.Time) error

	// CountOverlapping 同一 item 与 [from, to] 相交的窗口数量，一致性巡检用
	CountOverlapping(ctx context.Context, itemID int64, from, to time.Time) (int64, error)
}

// ==================== ProbabilityConfig 仓储实现 ====================

type probabilityConfigRepo struct {
	db *gorm.DB
}

// NewProbabilityConfigRepository 创建概率配置仓储
func NewProbabilityConfigRepository(db *gorm.DB) ProbabilityConfigRepository {
	return &probabilityConfigRepo{db: db}
}

func (r *probabilityConfigRepo) CreateBatch(ctx context.Context, configs []model.ProbabilityConfig) error {
	if len(configs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&configs).Error
}

func (r *probabilityConfigRepo) CurrentByBoxID(ctx context.Context, boxID int64, at time.Time) ([]model.ProbabilityConfig, error) {
	var configs []model.ProbabilityConfig
	err := r.db.WithContext(ctx).
		Where("blind_box_id = ? AND effective_from <= ? AND effective_to > ?", boxID, at, at).
		Order("blind_box_item_id ASC").
		Find(&configs).Error
	return configs, err
}

func (r *probabilityConfigRepo) HistoryByItemID(ctx context.Context, itemID int64) ([]model.ProbabilityConfig, error) {
	var configs []model.ProbabilityConfig
	err := r.db.WithContext(ctx).
		Where("blind_box_item_id = ?", itemID).
		Order("effective_from ASC").
		Find(&configs).Error
	return configs, err
}

// CloseOpenWindows 把盒子所有仍生效的窗口关到 at，返回关闭条数
func (r *probabilityConfigRepo) CloseOpenWindows(ctx context.Context, boxID int64, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.ProbabilityConfig{}).
		Where("blind_box_id = ? AND effective_from <= ? AND effective_to > ?", boxID, at, at).
		Update("effective_to", at)
	return result.RowsAffected, result.Error
}

func (r *probabilityConfigRepo) DeleteFutureByBoxID(ctx context.Context, boxID int64, after time.Time) error {
	return r.db.WithContext(ctx).
		Where("blind_box_id = ? AND effective_from > ?", boxID, after).
		Delete(&model.ProbabilityConfig{}).Error
}

func (r *probabilityConfigRepo) CountOverlapping(ctx context.Context, itemID int64, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ProbabilityConfig{}).
		Where("blind_box_item_id = ? AND effective_from < ? AND effective_to > ?", itemID, to, from).
		Count(&count).Error
	return count, err
}
