package backend

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"NPSEngine/internal/model"
	"NPSEngine/pkg/errors"
)

// CreateConversation 创建会话。后端对 (delivery_control_id) 和
// (destination, channel, ativa) 都有唯一约束；撞上约束说明调度器和
// 对账器赛跑时对方已经创建，按成功处理，回查后返回已存在的会话。
func (c *Client) CreateConversation(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	var out model.Conversation
	err := c.do(ctx, http.MethodPost, "/api/conversations", conv, &out)

	if err != nil {
		var dup *errors.DuplicateError
		if stderrors.As(err, &dup) {
			if dup.ExistingID > 0 {
				return c.GetConversation(ctx, dup.ExistingID)
			}
			return conv, nil
		}
		return nil, err
	}

	return &out, nil
}

// GetConversation 按 id 查询会话
func (c *Client) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	var out model.Conversation
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/conversations/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateConversation 整体回写会话状态
func (c *Client) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/conversations/%d", conv.ID), conv, nil)
}

// FindActiveConversation 用候选号码集合 × 通道查唯一的 ativa 会话。
// 没有命中返回 (nil, nil)，入站消息静默丢弃由调用方处理。
func (c *Client) FindActiveConversation(ctx context.Context, candidates []string, channelID string) (*model.Conversation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	q := url.Values{}
	q.Set("destinations", strings.Join(candidates, ","))
	q.Set("channel_id", channelID)
	q.Set("status", string(model.ConversationStatusActive))

	var out []model.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations/active?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// AppendResponse 追加一条回答。消息 id 重复说明入站事件被重放，按成功处理。
func (c *Client) AppendResponse(ctx context.Context, resp *model.SurveyResponse) error {
	err := c.do(ctx, http.MethodPost, "/api/responses", resp, nil)
	if err != nil && errors.IsDuplicate(err) {
		return nil
	}
	return err
}
