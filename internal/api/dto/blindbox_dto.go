package dto

import "time"

// ==================== 请求 DTO ====================

// CreateBlindBoxRequest 创建盲盒请求
type CreateBlindBoxRequest struct {
	Name              string    `json:"name" binding:"required"`
	Description       string    `json:"description"`
	CategoryID        int64     `json:"category_id" binding:"required"`
	PriceAmount       int64     `json:"price_amount" binding:"required,min=1"`
	PriceDivisor      int64     `json:"price_divisor"`
	CurrencyCode      string    `json:"currency_code"`
	TotalQuantity     int       `json:"total_quantity" binding:"required,min=1"`
	HasSecretItem     bool      `json:"has_secret_item"`
	SecretProbability float64   `json:"secret_probability"` // 百分比，如 5 表示 5%
	ImageUrls         []string  `json:"image_urls"`
	ReleaseDate       time.Time `json:"release_date" binding:"required"`
}

// AddItemRequest 单个待加入 item
type AddItemRequest struct {
	ProductID   int64   `json:"product_id" binding:"required"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity" binding:"required,min=1"`
	Rarity      string  `json:"rarity" binding:"required"` // Common/Rare/Epic/Secret
	Weight      float64 `json:"weight"`                    // 计算掉落概率的权重
}

// AddItemsRequest 批量加入 item 请求
type AddItemsRequest struct {
	Items []AddItemRequest `json:"items" binding:"required,min=1"`
}

// ReviewRequest 审核请求
type ReviewRequest struct {
	Approve      bool   `json:"approve"`
	RejectReason string `json:"reject_reason"` // 驳回时必填
}

// ListBlindBoxesRequest 盲盒列表请求
type ListBlindBoxesRequest struct {
	SellerID        int64  `form:"seller_id"`
	Status          string `form:"status"`
	Keyword         string `form:"keyword"`
	MinPrice        int64  `form:"min_price"`
	MaxPrice        int64  `form:"max_price"`
	ReleaseDateFrom string `form:"release_date_from"` // RFC3339
	ReleaseDateTo   string `form:"release_date_to"`
	Page            int    `form:"page,default=1"`
	PageSize        int    `form:"page_size,default=20"`
}

// ==================== 响应 DTO ====================

// BlindBoxItemVO item 视图
type BlindBoxItemVO struct {
	ItemID      int64   `json:"item_id"`
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	DropRate    float64 `json:"drop_rate"`
	Rarity      string  `json:"rarity"`
	Weight      float64 `json:"weight"`
	IsSecret    bool    `json:"is_secret"`
	IsActive    bool    `json:"is_active"`
}

// BlindBoxDetailResponse 盲盒详情
type BlindBoxDetailResponse struct {
	ID                int64            `json:"id"`
	SellerID          int64            `json:"seller_id"`
	CategoryID        int64            `json:"category_id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	PriceAmount       int64            `json:"price_amount"`
	PriceDivisor      int64            `json:"price_divisor"`
	CurrencyCode      string           `json:"currency_code"`
	TotalQuantity     int              `json:"total_quantity"`
	HasSecretItem     bool             `json:"has_secret_item"`
	SecretProbability float64          `json:"secret_probability"`
	ImageUrls         []string         `json:"image_urls"`
	Status            string           `json:"status"`
	RejectReason      string           `json:"reject_reason,omitempty"`
	ReleaseDate       time.Time        `json:"release_date"`
	Items             []BlindBoxItemVO `json:"items"`
}

// BlindBoxListResponse 盲盒列表响应
type BlindBoxListResponse struct {
	Total int64                    `json:"total"`
	Items []BlindBoxDetailResponse `json:"items"`
}

// ProbabilityConfigVO 概率配置视图
type ProbabilityConfigVO struct {
	ItemID        int64     `json:"item_id"`
	ProductID     int64     `json:"product_id"`
	ProductName   string    `json:"product_name"`
	Rarity        string    `json:"rarity"`
	Probability   float64   `json:"probability"`
	EffectiveFrom time.Time `json:"effective_from"`
	EffectiveTo   time.Time `json:"effective_to"`
	ApprovedBy    int64     `json:"approved_by"`
	ApprovedAt    time.Time `json:"approved_at"`
}

// ProbabilityTableResponse 盒子当前生效概率表
type ProbabilityTableResponse struct {
	BlindBoxID int64                 `json:"blind_box_id"`
	AsOf       time.Time             `json:"as_of"`
	Configs    []ProbabilityConfigVO `json:"configs"`
}
