package model

// TriggerMode 活动触发方式
type TriggerMode string

const (
	TriggerImmediate         TriggerMode = "immediate"           // 下单后立即发送
	TriggerDaysAfterPurchase TriggerMode = "days_after_purchase" // 下单 N 天后发送
)

// Campaign 一次满意度调查活动的脚本和发送条件。由后端维护，本引擎只读。
type Campaign struct {
	ID                int64       `json:"id"`
	Name              string      `json:"name"`
	Active            bool        `json:"active"`
	TriggerMode       TriggerMode `json:"trigger_mode"`
	DaysAfterPurchase int         `json:"days_after_purchase"`

	// 活跃日期区间，开区间用 nil 表示，格式 2006-01-02，只比较日历日
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`

	// 允许发送的时段，格式 HH:MM，start > end 表示跨午夜
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	// 消息脚本：开场白和主问题合并成第一条消息发出
	OpeningMessage  string `json:"opening_message"`
	QuestionMessage string `json:"question_message"`
	FollowUpMessage string `json:"follow_up_message"`
	ClosingMessage  string `json:"closing_message"`
	ImageURL        string `json:"image_url"`

	TimeoutMinutes int      `json:"timeout_minutes"`
	Branches       []string `json:"branches"`
	ChannelID      string   `json:"channel_id"`
}

// AllowsBranch 活动是否覆盖指定门店。空列表表示不限门店。
func (c *Campaign) AllowsBranch(branch string) bool {
	if len(c.Branches) == 0 {
		return true
	}
	for _, b := range c.Branches {
		if b == branch {
			return true
		}
	}
	return false
}

// Order 后端查询出的可发送订单，裁剪成引擎需要的字段。
type Order struct {
	OrderID      string  `json:"order_id"`
	CustomerID   string  `json:"customer_id"`
	CustomerName string  `json:"customer_name"`
	Phone        string  `json:"phone"`
	Branch       string  `json:"branch"`
	OrderValue   float64 `json:"order_value"`
	PurchasedAt  string  `json:"purchased_at"` // RFC3339
}
