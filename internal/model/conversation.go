package model

import "time"

// ConversationStatus 会话状态枚举
type ConversationStatus string

const (
	ConversationStatusActive    ConversationStatus = "ativa"      // 等待客户回答
	ConversationStatusAnswered  ConversationStatus = "respondido" // 最后一题已答，待发结束语
	ConversationStatusFinished  ConversationStatus = "finalizada" // 结束语已发
	ConversationStatusCancelled ConversationStatus = "cancelada"  // 客户发送停止指令
)

// 客户指令
const (
	CommandStop    = "/parar"
	CommandRestart = "/reiniciar"
)

// 下一步动作提示
const (
	NextActionMainQuestion   = "pergunta_principal"
	NextActionFollowUp       = "pergunta_motivo"
	NextActionClosingMessage = "encerramento"
)

// 问题序号：1 = 0~10 打分题，2 = 自由文本追问
const (
	OrdinalScore    = 1
	OrdinalFollowUp = 2
)

var conversationTransitions = map[ConversationStatus][]ConversationStatus{
	ConversationStatusActive: {
		ConversationStatusAnswered,
		ConversationStatusFinished,
		ConversationStatusCancelled,
	},
	ConversationStatusAnswered: {
		ConversationStatusFinished,
	},
}

// CanTransition 判断会话状态迁移是否在迁移表内。
func (s ConversationStatus) CanTransition(to ConversationStatus) bool {
	for _, allowed := range conversationTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Conversation 一条发送台账对应至多一个会话。
// 同一 (规范号码, 通道) 任一时刻至多一个 awaiting_reply 的 ativa 会话，
// 这是入站消息能唯一路由的前提。
type Conversation struct {
	ID                int64              `json:"id"`
	DeliveryControlID int64              `json:"delivery_control_id"`
	ChannelID         string             `json:"channel_id"`
	Destination       string             `json:"destination"` // 实际使用的规范号码形式
	CurrentQuestion   *int               `json:"current_question"`
	AwaitingReply     bool               `json:"awaiting_reply"`
	ProximaAcao       string             `json:"proxima_acao"`
	TimeoutAt         time.Time          `json:"timeout_at"`
	Status            ConversationStatus `json:"status"`
}

// EffectiveOrdinal 客户当前在答第几题。指针为 nil 表示主问题随开场白
// 一起发出但还没人答，等同于第 1 题。
func (c *Conversation) EffectiveOrdinal() int {
	if c.CurrentQuestion == nil {
		return OrdinalScore
	}
	return *c.CurrentQuestion
}

// IsOpen 会话是否仍可接收回答。超时是咨询性的：过了 TimeoutAt 的会话
// 不再被当作活跃匹配，但没有后台定时器去改它的状态。
func (c *Conversation) IsOpen(now time.Time) bool {
	if c.Status != ConversationStatusActive || !c.AwaitingReply {
		return false
	}
	if !c.TimeoutAt.IsZero() && now.After(c.TimeoutAt) {
		return false
	}
	return true
}

// ConversationDeadline 回答时限。活动没配时限（<=0）时返回零值，
// IsOpen 对零值 TimeoutAt 不做超时判断。
func ConversationDeadline(now time.Time, timeoutMinutes int) time.Time {
	if timeoutMinutes <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(timeoutMinutes) * time.Minute)
}

// NewConversation 会话的规范初始态，调度器和对账器共用。
func NewConversation(controlID int64, channelID, destination string, timeoutMinutes int, now time.Time) *Conversation {
	return &Conversation{
		DeliveryControlID: controlID,
		ChannelID:         channelID,
		Destination:       destination,
		CurrentQuestion:   nil,
		AwaitingReply:     true,
		ProximaAcao:       NextActionMainQuestion,
		TimeoutAt:         ConversationDeadline(now, timeoutMinutes),
		Status:            ConversationStatusActive,
	}
}
