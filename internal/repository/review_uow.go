package repository

import (
	"context"

	"gorm.io/gorm"
)

// ==================== 审核工作单元 ====================

// ReviewUnitOfWork 审核工作单元（事务）
// 审批通过 = 改盒子状态 + 关闭旧概率窗口 + 插入新窗口，三步一个事务
type ReviewUnitOfWork struct {
	db            *gorm.DB
	Boxes         BlindBoxRepository
	Items         BlindBoxItemRepository
	Probabilities ProbabilityConfigRepository
}

// NewReviewUnitOfWork 创建审核工作单元
func NewReviewUnitOfWork(db *gorm.DB) *ReviewUnitOfWork {
	return &ReviewUnitOfWork{
		db:            db,
		Boxes:         NewBlindBoxRepository(db),
		Items:         NewBlindBoxItemRepository(db),
		Probabilities: NewProbabilityConfigRepository(db),
	}
}

func (u *ReviewUnitOfWork) Transaction(ctx context.Context, fn func(uow *ReviewUnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txUow := &ReviewUnitOfWork{
			db:            tx,
			Boxes:         NewBlindBoxRepository(tx),
			Items:         NewBlindBoxItemRepository(tx),
			Probabilities: NewProbabilityConfigRepository(tx),
		}
		return fn(txUow)
	})
}
