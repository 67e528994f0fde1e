package model

import "time"

// CustomerBlindBox 用户已购买、未开启的盲盒
// 购买完成时由订单系统创建，本系统只消费一次（开盒），IsOpened 单向置位
type CustomerBlindBox struct {
	BaseModel
	UserID     int64     `gorm:"index;not null"`
	BlindBoxID int64     `gorm:"index;not null"`
	BlindBox   *BlindBox `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	OrderDetailID int64 `gorm:"index;default:0"` // 购买记录 ID (外部订单系统)

	IsOpened bool       `gorm:"default:false;index"`
	OpenedAt *time.Time `gorm:""`
}

func (CustomerBlindBox) TableName() string {
	return "customer_blind_boxes"
}

// InventoryItem 开盒成功后物化到用户库存的实物
// SourceCustomerBoxID 唯一索引，保证一个盲盒最多产出一件
type InventoryItem struct {
	BaseModel
	UserID    int64 `gorm:"index;not null"`
	ProductID int64 `gorm:"index;not null"`

	SourceCustomerBoxID int64 `gorm:"uniqueIndex;not null"` // 来源 CustomerBlindBox

	ProductName string `gorm:"size:255"`
	Rarity      string `gorm:"size:20"`
	Quantity    int    `gorm:"default:1"`
	Location    string `gorm:"size:50"`
	Status      string `gorm:"size:20;default:'Available'"`
}

func (InventoryItem) TableName() string {
	return "inventory_items"
}
