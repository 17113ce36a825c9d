package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/reels-autopost/poster"
)

// WebhookPayload webhook 发送的数据结构
type WebhookPayload struct {
	Event     string         `json:"event"`     // 事件类型 attempt_finished
	Timestamp int64          `json:"timestamp"` // 发送时间戳
	Report    *poster.Report `json:"report"`
}

// WebhookSender webhook 发送器
type WebhookSender struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewWebhookSender 创建 webhook 发送器
func NewWebhookSender(webhookURL string) (*WebhookSender, error) {
	if err := validateURL(webhookURL); err != nil {
		return nil, fmt.Errorf("无效的 webhook URL: %w", err)
	}
	return &WebhookSender{
		url: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		timeout: 10 * time.Second,
	}, nil
}

// Notify 同步发送尝试报告
//
// 一次性运行在发送后立即退出，所以这里不能异步。
// 失败只记录日志，不影响尝试结果。
func (w *WebhookSender) Notify(ctx context.Context, report *poster.Report) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("webhook panic: %v", r)
		}
	}()

	if err := w.send(ctx, report); err != nil {
		logrus.Errorf("webhook 发送失败 [%s]: %v", w.url, err)
		return
	}
	logrus.Infof("webhook 发送成功 [%s]", w.url)
}

func (w *WebhookSender) send(ctx context.Context, report *poster.Report) error {
	payload := WebhookPayload{
		Event:     "attempt_finished",
		Timestamp: time.Now().Unix(),
		Report:    report,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 payload 失败: %w", err)
	}

	// the attempt context may already be cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "reels-autopost-webhook/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 返回非成功状态码: %d", resp.StatusCode)
	}
	return nil
}

// validateURL 验证 webhook URL 是否有效
func validateURL(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL 不能为空")
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("URL 格式错误: %w", err)
	}

	// 只允许 http 和 https
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("只支持 http 和 https 协议")
	}

	if u.Host == "" {
		return fmt.Errorf("URL 必须包含 host")
	}
	return nil
}
