package whats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"NPSEngine/config"
	"NPSEngine/pkg/errors"
)

// GatewayClient 通过网关的 REST API 收发消息。
// 网关本身持有每个通道的 WhatsApp 连接（扫码、多实例都在网关侧），
// 这里只是 HTTP 调用方。
type GatewayClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewGatewayClient(baseURL, apiKey string) *GatewayClient {
	timeout := time.Duration(config.Cfg.WhatsTimeout) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	return &GatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type checkNumberResponse struct {
	Exists bool   `json:"exists"`
	JID    string `json:"jid"`
}

type sendMessageRequest struct {
	ChannelID   string `json:"channel_id"`
	Destination string `json:"destination"`
	Text        string `json:"text,omitempty"`
	Caption     string `json:"caption,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
}

func (c *GatewayClient) CheckNumber(ctx context.Context, channelID, phone string) (bool, error) {
	body := map[string]string{
		"channel_id": channelID,
		"phone":      phone,
	}

	var out checkNumberResponse
	if err := c.post(ctx, "/api/numbers/check", body, &out); err != nil {
		return false, err
	}

	return out.Exists, nil
}

func (c *GatewayClient) SendText(ctx context.Context, channelID, destination, text string) (string, error) {
	req := sendMessageRequest{
		ChannelID:   channelID,
		Destination: destination,
		Text:        text,
	}

	var out sendMessageResponse
	if err := c.post(ctx, "/api/messages/text", req, &out); err != nil {
		return "", err
	}

	return out.MessageID, nil
}

func (c *GatewayClient) SendImage(ctx context.Context, channelID, destination, caption, imageURL string) (string, error) {
	req := sendMessageRequest{
		ChannelID:   channelID,
		Destination: destination,
		Caption:     caption,
		ImageURL:    imageURL,
	}

	var out sendMessageResponse
	if err := c.post(ctx, "/api/messages/image", req, &out); err != nil {
		return "", err
	}

	return out.MessageID, nil
}

// post 网关调用都走这里。超时和 5xx 包装成可重试错误，
// 发送失败绝不能被当成号码无效。
func (c *GatewayClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Transient("whats gateway "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Transient("whats gateway read "+path, err)
	}

	if resp.StatusCode >= 500 {
		return errors.Transient("whats gateway "+path, fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("whats gateway %s: status %d: %s", path, resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode gateway response %s: %w", path, err)
		}
	}

	return nil
}
