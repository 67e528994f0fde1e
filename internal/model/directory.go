package model

// Seller 卖家档案
// 只为审核链路服务：未认证卖家不能创建、不能提审
type Seller struct {
	BaseModel
	UserID     int64  `gorm:"uniqueIndex;not null"`
	ShopName   string `gorm:"size:255"`
	IsVerified bool   `gorm:"default:false"`
}

func (Seller) TableName() string {
	return "sellers"
}

// Category 商品分类
type Category struct {
	BaseModel
	Name     string `gorm:"size:100;not null"`
	ParentID int64  `gorm:"index;default:0"`
	IsActive bool   `gorm:"default:true"`
}

func (Category) TableName() string {
	return "categories"
}
