package utils

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// NewNotifyClient 创建推送通知用的 Resty 客户端
// 通知是尽力而为的旁路调用，超时要短，带两次重试
func NewNotifyClient() *resty.Client {
	return resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("User-Agent", "BlindBox-Go-App/1.0").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
}
