package dto

import "time"

// ==================== 请求 DTO ====================

// ListUnboxLogsRequest 审计日志查询请求
type ListUnboxLogsRequest struct {
	UserID     int64  `form:"user_id"`
	ProductID  int64  `form:"product_id"`
	BlindBoxID int64  `form:"blind_box_id"`
	From       string `form:"from"` // RFC3339
	To         string `form:"to"`
	Page       int    `form:"page,default=1"`
	PageSize   int    `form:"page_size,default=20"`
}

// ListCustomerBoxesRequest 用户盲盒列表请求
type ListCustomerBoxesRequest struct {
	OnlyUnopened bool `form:"only_unopened,default=true"`
	Page         int  `form:"page,default=1"`
	PageSize     int  `form:"page_size,default=20"`
}

// ==================== 响应 DTO ====================

// UnboxResultResponse 开盒结果
type UnboxResultResponse struct {
	CustomerBlindBoxID int64                `json:"customer_blind_box_id"`
	ProductID          int64                `json:"product_id"`
	ProductName        string               `json:"product_name"`
	Rarity             string               `json:"rarity"`
	DropRate           float64              `json:"drop_rate"`
	InventoryItemID    int64                `json:"inventory_item_id"`
	UnboxedAt          time.Time            `json:"unboxed_at"`
	ProbabilityTable   []ProbabilityTableVO `json:"probability_table"` // 本次抽取依据的概率表
}

// ProbabilityTableVO 抽取时刻概率表一行
type ProbabilityTableVO struct {
	ItemID      int64   `json:"item_id"`
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Rarity      string  `json:"rarity"`
	Probability float64 `json:"probability"`
	Quantity    int     `json:"quantity"`
}

// CustomerBoxVO 用户盲盒视图
type CustomerBoxVO struct {
	ID           int64      `json:"id"`
	BlindBoxID   int64      `json:"blind_box_id"`
	BlindBoxName string     `json:"blind_box_name"`
	IsOpened     bool       `json:"is_opened"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	PurchasedAt  time.Time  `json:"purchased_at"`
}

// CustomerBoxListResponse 用户盲盒列表响应
type CustomerBoxListResponse struct {
	Total int64           `json:"total"`
	Items []CustomerBoxVO `json:"items"`
}

// UnboxLogVO 审计日志视图
type UnboxLogVO struct {
	ID                 int64     `json:"id"`
	EventID            string    `json:"event_id"`
	CustomerBlindBoxID int64     `json:"customer_blind_box_id"`
	UserID             int64     `json:"user_id"`
	BlindBoxID         int64     `json:"blind_box_id"`
	BlindBoxName       string    `json:"blind_box_name"`
	ProductID          int64     `json:"product_id"`
	ProductName        string    `json:"product_name"`
	Rarity             string    `json:"rarity"`
	DropRate           float64   `json:"drop_rate"`
	RollValue          float64   `json:"roll_value"`
	ProbabilityTable   string    `json:"probability_table"` // JSON 快照原文
	UnboxedAt          time.Time `json:"unboxed_at"`
}

// UnboxLogListResponse 审计日志列表响应
type UnboxLogListResponse struct {
	Total int64        `json:"total"`
	Items []UnboxLogVO `json:"items"`
}
