package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"blindbox_dev_v1_202608/internal/model"
)

// ==================== 卖家目录 ====================

// SellerDirectory 卖家目录查询
type SellerDirectory struct {
	db *gorm.DB
}

// NewSellerDirectory 创建卖家目录
func NewSellerDirectory(db *gorm.DB) *SellerDirectory {
	return &SellerDirectory{db: db}
}

// IsVerifiedSeller 卖家是否已认证
// 档案不存在按未认证处理，不报错
func (d *SellerDirectory) IsVerifiedSeller(ctx context.Context, sellerID int64) (bool, error) {
	var seller model.Seller
	err := d.db.WithContext(ctx).
		Where("user_id = ?", sellerID).
		First(&seller).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return seller.IsVerified, nil
}

// ==================== 分类目录 ====================

// CategoryDirectory 分类目录查询
type CategoryDirectory struct {
	db *gorm.DB
}

// NewCategoryDirectory 创建分类目录
func NewCategoryDirectory(db *gorm.DB) *CategoryDirectory {
	return &CategoryDirectory{db: db}
}

// Exists 分类是否存在且在用
func (d *CategoryDirectory) Exists(ctx context.Context, categoryID int64) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&model.Category{}).
		Where("id = ? AND is_active = ?", categoryID, true).
		Count(&count).Error
	return count > 0, err
}
