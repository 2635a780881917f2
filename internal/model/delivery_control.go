package model

import "time"

// DeliveryStatus 发送台账状态枚举
type DeliveryStatus string

const (
	DeliveryStatusPending         DeliveryStatus = "pending"          // 已登记，未尝试发送
	DeliveryStatusSent            DeliveryStatus = "sent"             // 消息已发出
	DeliveryStatusError           DeliveryStatus = "erro"             // 瞬时失败，下轮重试
	DeliveryStatusInvalidNumber   DeliveryStatus = "numero_invalido"  // 号码无法接收消息，终态
	DeliveryStatusScheduled       DeliveryStatus = "agendado"         // 触发日期未到
	DeliveryStatusScheduledWindow DeliveryStatus = "agendado_horario" // 当前不在允许时段
	DeliveryStatusProcessed       DeliveryStatus = "processado"       // 会话已走完
	DeliveryStatusCancelled       DeliveryStatus = "cancelado"        // 客户要求停止，终态
)

// deliveryTransitions 状态迁移表。不在表里的迁移一律拒绝，
// 不信任调用方传什么就写什么。
var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusPending: {
		DeliveryStatusSent,
		DeliveryStatusError,
		DeliveryStatusInvalidNumber,
		DeliveryStatusScheduled,
		DeliveryStatusScheduledWindow,
	},
	DeliveryStatusScheduled: {
		DeliveryStatusSent,
		DeliveryStatusError,
		DeliveryStatusInvalidNumber,
		DeliveryStatusScheduledWindow,
	},
	DeliveryStatusScheduledWindow: {
		DeliveryStatusSent,
		DeliveryStatusError,
		DeliveryStatusInvalidNumber,
		DeliveryStatusScheduled,
	},
	DeliveryStatusError: {
		DeliveryStatusSent,
		DeliveryStatusError,
		DeliveryStatusInvalidNumber,
		DeliveryStatusScheduled,
		DeliveryStatusScheduledWindow,
	},
	DeliveryStatusSent: {
		DeliveryStatusProcessed,
		DeliveryStatusCancelled,
	},
}

// CanTransition 判断台账状态迁移是否在迁移表内。
func (s DeliveryStatus) CanTransition(to DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal 终态不再被任何调度循环触碰。
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case DeliveryStatusInvalidNumber, DeliveryStatusCancelled, DeliveryStatusProcessed:
		return true
	}
	return false
}

// DeliveryControl 每个 (订单, 活动) 一条的发送台账。
// 是否已联系过某客户，以这条记录为准，创建时重复即复用。
type DeliveryControl struct {
	ID           int64          `json:"id"`
	OrderID      string         `json:"order_id"`
	CampaignID   int64          `json:"campaign_id"`
	CustomerID   string         `json:"customer_id"`
	CustomerName string         `json:"customer_name"`
	Phone        string         `json:"phone"` // 原始号码，按采集时的写法存
	Branch       string         `json:"branch"`
	OrderValue   float64        `json:"order_value"`
	Status       DeliveryStatus `json:"status"`
	LastError    string         `json:"last_error,omitempty"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	EligibleAt   *time.Time     `json:"eligible_at,omitempty"` // 延迟触发的下次可发送时间
}
