package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"blindbox_dev_v1_202608/internal/model"
)

// ==================== 仓储接口 ====================

// BlindBoxRepository 盲盒仓储接口
type BlindBoxRepository interface {
	Create(ctx context.Context, box *model.BlindBox) error
	GetByID(ctx context.Context, id int64) (*model.BlindBox, error)
	GetByIDWithItems(ctx context.Context, id int64) (*model.BlindBox, error)
	Update(ctx context.Context, box *model.BlindBox) error
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	List(ctx context.Context, filter BlindBoxFilter) ([]model.BlindBox, int64, error)
	SoldCount(ctx context.Context, boxID int64) (int64, error)
}

// BlindBoxItemRepository 盲盒条目仓储接口
type BlindBoxItemRepository interface {
	CreateBatch(ctx context.Context, items []model.BlindBoxItem) error
	GetByID(ctx context.Context, id int64) (*model.BlindBoxItem, error)
	GetByBoxID(ctx context.Context, boxID int64) ([]model.BlindBoxItem, error)
	GetActiveByBoxID(ctx context.Context, boxID int64) ([]model.BlindBoxItem, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error

	// DecrementQuantity 条件扣减：仅当 quantity > 0 时扣 1 成功
	// 返回 false 表示并发抽取已把最后一件抽走
	DecrementQuantity(ctx context.Context, id int64) (bool, error)

	SoftRemove(ctx context.Context, id int64) error
	SoftRemoveByBoxID(ctx context.Context, boxID int64) error
}

// ==================== 过滤条件 ====================

// BlindBoxFilter 盲盒列表过滤条件
type BlindBoxFilter struct {
	SellerID        int64
	Status          string
	Keyword         string
	MinPrice        int64
	MaxPrice        int64
	ReleaseDateFrom time.Time
	ReleaseDateTo   time.Time
	Page            int
	PageSize        int
}

// ==================== BlindBox 仓储实现 ====================

type blindBoxRepo struct {
	db *gorm.DB
}

// NewBlindBoxRepository 创建盲盒仓储
func NewBlindBoxRepository(db *gorm.DB) BlindBoxRepository {
	return &blindBoxRepo{db: db}
}

func (r *blindBoxRepo) Create(ctx context.Context, box *model.BlindBox) error {
	return r.db.WithContext(ctx).Create(box).Error
}

func (r *blindBoxRepo) GetByID(ctx context.Context, id int64) (*model.BlindBox, error) {
	var box model.BlindBox
	if err := r.db.WithContext(ctx).First(&box, id).Error; err != nil {
		return nil, err
	}
	return &box, nil
}

func (r *blindBoxRepo) GetByIDWithItems(ctx context.Context, id int64) (*model.BlindBox, error) {
	var box model.BlindBox
	err := r.db.WithContext(ctx).
		Preload("Items", "deleted_at IS NULL").
		First(&box, id).Error
	if err != nil {
		return nil, err
	}
	return &box, nil
}

func (r *blindBoxRepo) Update(ctx context.Context, box *model.BlindBox) error {
	return r.db.WithContext(ctx).Save(box).Error
}

func (r *blindBoxRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.BlindBox{}).Where("id = ?", id).Updates(fields).Error
}

func (r *blindBoxRepo) List(ctx context.Context, filter BlindBoxFilter) ([]model.BlindBox, int64, error) {
	var boxes []model.BlindBox
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BlindBox{})

	if filter.SellerID > 0 {
		query = query.Where("seller_id = ?", filter.SellerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Keyword != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+filter.Keyword+"%")
	}
	if filter.MinPrice > 0 {
		query = query.Where("price_amount >= ?", filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		query = query.Where("price_amount <= ?", filter.MaxPrice)
	}
	if !filter.ReleaseDateFrom.IsZero() {
		query = query.Where("release_date >= ?", filter.ReleaseDateFrom)
	}
	if !filter.ReleaseDateTo.IsZero() {
		query = query.Where("release_date <= ?", filter.ReleaseDateTo)
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
	err := query.Order("updated_at DESC, created_at DESC").
		Limit(filter.PageSize).Offset(offset).
		Preload("Items", "deleted_at IS NULL").
		Find(&boxes).Error
	if err != nil {
		return nil, 0, err
	}

	return boxes, total, nil
}

// SoldCount 已售出数量（已产生 CustomerBlindBox 的数量）
// Approved 且有售出的盒子不允许退回 Draft 重编辑
func (r *blindBoxRepo) SoldCount(ctx context.Context, boxID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CustomerBlindBox{}).
		Where("blind_box_id = ?", boxID).
		Count(&count).Error
	return count, err
}

// ==================== BlindBoxItem 仓储实现 ====================

type blindBoxItemRepo struct {
	db *gorm.DB
}

// NewBlindBoxItemRepository 创建盲盒条目仓储
func NewBlindBoxItemRepository(db *gorm.DB) BlindBoxItemRepository {
	return &blindBoxItemRepo{db: db}
}

func (r *blindBoxItemRepo) CreateBatch(ctx context.Context, items []model.BlindBoxItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *blindBoxItemRepo) GetByID(ctx context.Context, id int64) (*model.BlindBoxItem, error) {
	var item model.BlindBoxItem
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *blindBoxItemRepo) GetByBoxID(ctx context.Context, boxID int64) ([]model.BlindBoxItem, error) {
	var items []model.BlindBoxItem
	err := r.db.WithContext(ctx).
		Where("blind_box_id = ?", boxID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *blindBoxItemRepo) GetActiveByBoxID(ctx context.Context, boxID int64) ([]model.BlindBoxItem, error) {
	var items []model.BlindBoxItem
	err := r.db.WithContext(ctx).
		Where("blind_box_id = ? AND is_active = ?", boxID, true).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *blindBoxItemRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.BlindBoxItem{}).Where("id = ?", id).Updates(fields).Error
}

// DecrementQuantity 原子条件扣减，防止最后一件被并发超卖
func (r *blindBoxItemRepo) DecrementQuantity(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.BlindBoxItem{}).
		Where("id = ? AND quantity > 0", id).
		UpdateColumn("quantity", gorm.Expr("quantity - 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *blindBoxItemRepo) SoftRemove(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.BlindBoxItem{}, id).Error
}

func (r *blindBoxItemRepo) SoftRemoveByBoxID(ctx context.Context, boxID int64) error {
	return r.db.WithContext(ctx).
		Where("blind_box_id = ?", boxID).
		Delete(&model.BlindBoxItem{}).Error
}
