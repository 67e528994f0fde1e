package service

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"blindbox_dev_v1_202608/pkg/utils"
)

// ==================== Webhook 通知 ====================

// WebhookNotifier 把审批结果、缺货事件推给外部通知服务（站内信/邮件网关）
// 推送失败由调用方决定处理方式：审批通知只记日志，不回滚业务
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

// NewWebhookNotifier 创建 Webhook 通知器
// url 为空时通知静默丢弃，本地开发不用起通知服务
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{client: utils.NewNotifyClient(), url: url}
}

// notifyPayload 统一的通知体
type notifyPayload struct {
	Event    string `json:"event"`
	SellerID int64  `json:"seller_id"`
	BoxName  string `json:"box_name"`
	Message  string `json:"message"`
}

func (n *WebhookNotifier) NotifyBoxApproved(ctx context.Context, sellerID int64, boxName string) error {
	return n.push(ctx, notifyPayload{
		Event:    "blindbox.approved",
		SellerID: sellerID,
		BoxName:  boxName,
		Message:  fmt.Sprintf("盲盒「%s」已通过审核，开始售卖", boxName),
	})
}

func (n *WebhookNotifier) NotifyBoxRejected(ctx context.Context, sellerID int64, boxName, reason string) error {
	return n.push(ctx, notifyPayload{
		Event:    "blindbox.rejected",
		SellerID: sellerID,
		BoxName:  boxName,
		Message:  fmt.Sprintf("盲盒「%s」审核未通过：%s", boxName, reason),
	})
}

func (n *WebhookNotifier) NotifyItemOutOfStock(ctx context.Context, sellerID int64, boxName, productName string) error {
	return n.push(ctx, notifyPayload{
		Event:    "blindbox.item_out_of_stock",
		SellerID: sellerID,
		BoxName:  boxName,
		Message:  fmt.Sprintf("盲盒「%s」中的商品「%s」已被抽完，请及时补货或调整概率", boxName, productName),
	})
}

func (n *WebhookNotifier) push(ctx context.Context, payload notifyPayload) error {
	if n.url == "" {
		return nil
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("通知推送失败: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("通知服务返回异常 [%d]: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
