package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"NPSEngine/internal/model"
	"NPSEngine/pkg/errors"
)

// ListActiveCampaigns 列出启用中的活动，可只要立即触发的
func (c *Client) ListActiveCampaigns(ctx context.Context, immediateOnly bool) ([]model.Campaign, error) {
	path := "/api/campaigns?active=true"
	if immediateOnly {
		path += "&trigger_mode=immediate"
	}

	var out []model.Campaign
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCampaign 按 id 查询活动，不存在时返回 (nil, nil)
func (c *Client) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	var out model.Campaign
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/campaigns/%d", id), nil, &out); err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// ListRecentOrders 列出时间窗内新建的订单，立即触发扫描用
func (c *Client) ListRecentOrders(ctx context.Context, since time.Time, branches []string) ([]model.Order, error) {
	q := url.Values{}
	q.Set("since", since.Format(time.RFC3339))
	if len(branches) > 0 {
		q.Set("branches", strings.Join(branches, ","))
	}

	var out []model.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/recent?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
