package repository

import (
	"context"

	"gorm.io/gorm"
)

// ==================== 开盒工作单元 ====================

// UnboxUnitOfWork 开盒工作单元（事务）
// 抽取命中后的 扣库存 + 置开盒标记 + 写用户库存 必须在同一事务内提交，
// 任何一步失败整体回滚，不允许出现"有奖无盒"或"有盒无奖"的半截状态
type UnboxUnitOfWork struct {
	db            *gorm.DB
	CustomerBoxes CustomerBlindBoxRepository
	Items         BlindBoxItemRepository
	Inventory     InventoryItemRepository
	Probabilities ProbabilityConfigRepository
}

// NewUnboxUnitOfWork 创建开盒工作单元
func NewUnboxUnitOfWork(db *gorm.DB) *UnboxUnitOfWork {
	return &UnboxUnitOfWork{
		db:            db,
		CustomerBoxes: NewCustomerBlindBoxRepository(db),
		Items:         NewBlindBoxItemRepository(db),
		Inventory:     NewInventoryItemRepository(db),
		Probabilities: NewProbabilityConfigRepository(db),
	}
}

func (u *UnboxUnitOfWork) Transaction(ctx context.Context, fn func(uow *UnboxUnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txUow := &UnboxUnitOfWork{
			db:            tx,
			CustomerBoxes: NewCustomerBlindBoxRepository(tx),
			Items:         NewBlindBoxItemRepository(tx),
			Inventory:     NewInventoryItemRepository(tx),
			Probabilities: NewProbabilityConfigRepository(tx),
		}
		return fn(txUow)
	})
}
