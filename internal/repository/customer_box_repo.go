package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"blindbox_dev_v1_202608/internal/model"
)

// ==================== 仓储接口 ====================

// CustomerBlindBoxRepository 用户已购盲盒仓储接口
type CustomerBlindBoxRepository interface {
	Create(ctx context.Context, box *model.CustomerBlindBox) error
	GetByID(ctx context.Context, id int64) (*model.CustomerBlindBox, error)
	ListByUser(ctx context.Context, userID int64, onlyUnopened bool, page, pageSize int) ([]model.CustomerBlindBox, int64, error)

	// MarkOpened 条件置位：仅当 is_opened = false 时成功
	// 返回 false 表示已被开过（重复开盒防线之一）
	MarkOpened(ctx context.Context, id int64, at time.Time) (bool, error)
}

// InventoryItemRepository 用户库存仓储接口
type InventoryItemRepository interface {
	Create(ctx context.Context, item *model.InventoryItem) error
	GetBySourceBoxID(ctx context.Context, customerBoxID int64) (*model.InventoryItem, error)
	ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]model.InventoryItem, int64, error)
}

// ==================== CustomerBlindBox 仓储实现 ====================

type customerBlindBoxRepo struct {
	db *gorm.DB
}

// NewCustomerBlindBoxRepository 创建用户盲盒仓储
func NewCustomerBlindBoxRepository(db *gorm.DB) CustomerBlindBoxRepository {
	return &customerBlindBoxRepo{db: db}
}

func (r *customerBlindBoxRepo) Create(ctx context.Context, box *model.CustomerBlindBox) error {
	return r.db.WithContext(ctx).Create(box).Error
}

func (r *customerBlindBoxRepo) GetByID(ctx context.Context, id int64) (*model.CustomerBlindBox, error) {
	var box model.CustomerBlindBox
	err := r.db.WithContext(ctx).
		Preload("BlindBox").
		First(&box, id).Error
	if err != nil {
		return nil, err
	}
	return &box, nil
}

func (r *customerBlindBoxRepo) ListByUser(ctx context.Context, userID int64, onlyUnopened bool, page, pageSize int) ([]model.CustomerBlindBox, int64, error) {
	var boxes []model.CustomerBlindBox
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CustomerBlindBox{}).
		Where("user_id = ?", userID)
	if onlyUnopened {
		query = query.Where("is_opened = ?", false)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	err := query.Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Preload("BlindBox").
		Find(&boxes).Error
	if err != nil {
		return nil, 0, err
	}

	return boxes, total, nil
}

// MarkOpened 开盒单向置位，条件更新防止同一盒子被开两次
func (r *customerBlindBoxRepo) MarkOpened(ctx context.Context, id int64, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.CustomerBlindBox{}).
		Where("id = ? AND is_opened = ?", id, false).
		Updates(map[string]interface{}{
			"is_opened": true,
			"opened_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ==================== InventoryItem 仓储实现 ====================

type inventoryItemRepo struct {
	db *gorm.DB
}

// NewInventoryItemRepository 创建用户库存仓储
func NewInventoryItemRepository(db *gorm.DB) InventoryItemRepository {
	return &inventoryItemRepo{db: db}
}

func (r *inventoryItemRepo) Create(ctx context.Context, item *model.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *inventoryItemRepo) GetBySourceBoxID(ctx context.Context, customerBoxID int64) (*model.InventoryItem, error) {
	var item model.InventoryItem
	err := r.db.WithContext(ctx).
		Where("source_customer_box_id = ?", customerBoxID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *inventoryItemRepo) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]model.InventoryItem, int64, error) {
	var items []model.InventoryItem
	var total int64

	query := r.db.WithContext(ctx).Model(&model.InventoryItem{}).
		Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	err := query.Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}

	return items, total, nil
}
