package service

import (
	"time"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Notifier 通知协作方接口
// 核心流程对通知只做尽力而为的触发，从不因通知失败阻塞自身状态变更。
type Notifier interface {
	Notify(event string, business *model.Business, payload map[string]interface{}) bool
}

// WebhookNotifier 通过HTTP webhook投递通知事件
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &WebhookNotifier{
		client: client,
		url:    url,
		logger: logger,
	}
}

var _ Notifier = (*WebhookNotifier)(nil)

func (n *WebhookNotifier) Notify(event string, business *model.Business, payload map[string]interface{}) bool {
	body := map[string]interface{}{
		"event":     event,
		"timestamp": time.Now().UTC(),
		"payload":   payload,
	}
	if business != nil {
		body["business_id"] = business.ID.String()
		body["business_name"] = business.Name
	}

	resp, err := n.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(n.url)
	if err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("event", event),
			zap.Error(err),
		)
		return false
	}
	if resp.IsError() {
		n.logger.Warn("notification endpoint returned error",
			zap.String("event", event),
			zap.Int("status", resp.StatusCode()),
		)
		return false
	}

	return true
}

// NoopNotifier 通知关闭时使用
type NoopNotifier struct{}

var _ Notifier = (*NoopNotifier)(nil)

func (NoopNotifier) Notify(event string, business *model.Business, payload map[string]interface{}) bool {
	return true
}
