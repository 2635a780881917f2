package backend

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"NPSEngine/internal/model"
	"NPSEngine/pkg/errors"
)

// CreateDeliveryControl createIfAbsent 语义：同一 (订单, 活动) 并发创建时，
// 输家拿到 created=false 和已存在的 id，不是错误。
func (c *Client) CreateDeliveryControl(ctx context.Context, ctrl *model.DeliveryControl) (created bool, id int64, err error) {
	var out model.DeliveryControl
	err = c.do(ctx, http.MethodPost, "/api/delivery-controls", ctrl, &out)

	if err != nil {
		var dup *errors.DuplicateError
		if stderrors.As(err, &dup) {
			return false, dup.ExistingID, nil
		}
		return false, 0, err
	}

	return true, out.ID, nil
}

// TransitionFields 状态迁移时同步写入的辅助字段
type TransitionFields struct {
	LastError  string     `json:"last_error,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	EligibleAt *time.Time `json:"eligible_at,omitempty"`
}

type transitionRequest struct {
	Status model.DeliveryStatus `json:"status"`
	TransitionFields
}

// TransitionDelivery 迁移台账状态。迁移表在边界校验，
// 不在表里的组合直接拒绝，不发请求。
func (c *Client) TransitionDelivery(ctx context.Context, ctrl *model.DeliveryControl, to model.DeliveryStatus, fields TransitionFields) error {
	if !ctrl.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s (delivery %d)", errors.InvalidTransition, ctrl.Status, to, ctrl.ID)
	}

	req := transitionRequest{Status: to, TransitionFields: fields}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/delivery-controls/%d", ctrl.ID), req, nil); err != nil {
		return err
	}

	ctrl.Status = to
	if fields.LastError != "" {
		ctrl.LastError = fields.LastError
	}
	if fields.SentAt != nil {
		ctrl.SentAt = fields.SentAt
	}
	if fields.EligibleAt != nil {
		ctrl.EligibleAt = fields.EligibleAt
	}
	return nil
}

// GetDeliveryControl 按 (订单, 活动) 查询台账
func (c *Client) GetDeliveryControl(ctx context.Context, orderID string, campaignID int64) (*model.DeliveryControl, error) {
	q := url.Values{}
	q.Set("order_id", orderID)
	q.Set("campaign_id", fmt.Sprintf("%d", campaignID))

	var out []model.DeliveryControl
	if err := c.do(ctx, http.MethodGet, "/api/delivery-controls?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// GetDeliveryControlByID 按 id 查询台账，不存在时返回 (nil, nil)
func (c *Client) GetDeliveryControlByID(ctx context.Context, id int64) (*model.DeliveryControl, error) {
	var out model.DeliveryControl
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/delivery-controls/%d", id), nil, &out); err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// ListDueDeliveries 列出 agendado / agendado_horario / erro 中到点该发的台账
func (c *Client) ListDueDeliveries(ctx context.Context, now time.Time) ([]model.DeliveryControl, error) {
	q := url.Values{}
	q.Set("due_at", now.Format(time.RFC3339))

	var out []model.DeliveryControl
	if err := c.do(ctx, http.MethodGet, "/api/delivery-controls/due?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOrphanDeliveries 列出已发出但没有会话的台账，对账器的输入
func (c *Client) ListOrphanDeliveries(ctx context.Context) ([]model.DeliveryControl, error) {
	var out []model.DeliveryControl
	if err := c.do(ctx, http.MethodGet, "/api/delivery-controls/orphans", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountPendingDeliveries 活动的待发记录数，诊断用
func (c *Client) CountPendingDeliveries(ctx context.Context, campaignID int64) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/campaigns/%d/pending-count", campaignID), nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
