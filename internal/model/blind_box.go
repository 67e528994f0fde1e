package model

import (
	"time"

	"github.com/lib/pq"
)

// ==================== 状态常量 ====================

const (
	// 盲盒生命周期状态
	BlindBoxStatusDraft           = "draft"            // 草稿，卖家编辑中
	BlindBoxStatusPendingApproval = "pending_approval" // 已提交，等待审核
	BlindBoxStatusApproved        = "approved"         // 审核通过，概率生效
	BlindBoxStatusRejected        = "rejected"         // 审核驳回，退回草稿编辑
)

const (
	// 稀有度等级
	RarityCommon = "Common"
	RarityRare   = "Rare"
	RarityEpic   = "Epic"
	RaritySecret = "Secret"
)

// ==================== 数据库模型 ====================

// BlindBox 盲盒
// 状态机：Draft -> PendingApproval -> Approved / Rejected(退回 Draft)
// 卖出第一件之后 item 构成锁死，不允许删除或改权重
type BlindBox struct {
	BaseModel
	SellerID   int64 `gorm:"index;not null"` // 卖家 ID (外部系统，只存引用)
	CategoryID int64 `gorm:"index"`          // 分类 ID (外部系统，只做存在性校验)

	Name        string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`

	// 价格，金额/除数 形式存储，避免浮点
	PriceAmount  int64  `gorm:"default:0"`
	PriceDivisor int64  `gorm:"default:100"`
	CurrencyCode string `gorm:"size:5"`

	TotalQuantity int `gorm:"default:0"` // 发售总量

	// Secret 配置：是否含隐藏款，以及隐藏款整体概率（百分比，如 5 表示 5%）
	HasSecretItem     bool    `gorm:"default:false"`
	SecretProbability float64 `gorm:"type:decimal(5,2);default:0"`

	// 盲盒展示图，URL 作为不透明字符串存储（对象存储由外部系统负责）
	ImageUrls pq.StringArray `gorm:"type:text[]"`

	Status       string    `gorm:"size:30;index;default:'draft'"`
	RejectReason string    `gorm:"size:500"` // 驳回原因，仅 Rejected 时有值
	ReleaseDate  time.Time `gorm:"index"`

	// --- 关联关系 ---
	Items []BlindBoxItem `gorm:"foreignKey:BlindBoxID"`
}

func (BlindBox) TableName() string {
	return "blind_boxes"
}

// BlindBoxItem 盲盒内单个商品条目
// DropRate 在提交时固定，审核与抽取过程不得擅自重算
type BlindBoxItem struct {
	BaseModel
	BlindBoxID int64     `gorm:"index;not null"`
	BlindBox   *BlindBox `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	ProductID   int64  `gorm:"index;not null"` // 商品 ID (外部系统)
	ProductName string `gorm:"size:255"`       // 冗余商品名，供开盒记录使用

	Quantity int     `gorm:"default:0"`                   // 剩余可抽库存
	DropRate float64 `gorm:"type:decimal(5,2);default:0"` // 掉落概率（百分比）

	// 稀有度配置，每条 item 一份
	Rarity   string  `gorm:"size:20;not null"`
	Weight   float64 `gorm:"type:decimal(10,2);default:0"` // 计算 DropRate 用的权重
	IsSecret bool    `gorm:"default:false"`

	IsActive bool `gorm:"default:true"`

	// --- 关联关系 ---
	ProbabilityConfigs []ProbabilityConfig `gorm:"foreignKey:BlindBoxItemID"`
}

func (BlindBoxItem) TableName() string {
	return "blind_box_items"
}

// ProbabilityConfig 审核通过后的概率配置，按时间窗口版本化
// 只追加、只关闭（EffectiveTo = now），同一 item 的窗口互不重叠
// 历史窗口永不删除，保证旧的开盒记录可追溯
type ProbabilityConfig struct {
	BaseModel
	BlindBoxItemID int64         `gorm:"index;not null"`
	BlindBoxItem   *BlindBoxItem `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	BlindBoxID     int64         `gorm:"index;not null"` // 冗余盒子 ID，查整盒概率表用

	Probability   float64   `gorm:"type:decimal(5,2);not null"`
	EffectiveFrom time.Time `gorm:"index;not null"`
	EffectiveTo   time.Time `gorm:"index;not null"`

	ApprovedBy int64     `gorm:"index;not null"` // 审核人 ID
	ApprovedAt time.Time `gorm:"not null"`
}

func (ProbabilityConfig) TableName() string {
	return "probability_configs"
}
