package model

import (
	"time"

	"gorm.io/datatypes"
)

// BlindBoxUnboxLog 开盒审计日志
// 只追加，不更新不删除。ProbabilityTable 保存抽取时刻生效的完整概率表快照，
// 后续即使重新审批改了概率，历史争议仍可按快照复核
type BlindBoxUnboxLog struct {
	BaseModel
	EventID string `gorm:"size:36;uniqueIndex;not null"` // 事件 UUID，重试写入时幂等

	CustomerBlindBoxID int64 `gorm:"index;not null"`
	UserID             int64 `gorm:"index;not null"`
	BlindBoxID         int64 `gorm:"index;not null"`
	BlindBoxName       string `gorm:"size:255"`

	ProductID   int64  `gorm:"index;not null"` // 抽中的商品
	ProductName string `gorm:"size:255"`
	Rarity      string `gorm:"size:20"`

	DropRate  float64 `gorm:"type:decimal(5,2)"` // 抽中 item 当时的概率
	RollValue float64 `gorm:"type:decimal(12,10)"` // [0,1) 随机数原值

	ProbabilityTable datatypes.JSON `gorm:"type:jsonb"` // 概率表快照

	UnboxedAt time.Time `gorm:"index;not null"`
	Reason    string    `gorm:"size:255"`
}

func (BlindBoxUnboxLog) TableName() string {
	return "blind_box_unbox_logs"
}

// ProbabilityTableEntry 概率表快照中的一行
type ProbabilityTableEntry struct {
	BlindBoxItemID int64     `json:"blind_box_item_id"`
	ProductID      int64     `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Rarity         string    `json:"rarity"`
	Probability    float64   `json:"probability"`
	Quantity       int       `json:"quantity"`
	EffectiveFrom  time.Time `json:"effective_from"`
	EffectiveTo    time.Time `json:"effective_to"`
	ApprovedBy     int64     `json:"approved_by"`
}
