package model

// InboundChatMessage 网关回调的入站消息，webhook 包一层信封后投递到队列。
// EnvelopeID 用于消费端幂等检查，MessageID 是网关侧的消息 id。
type InboundChatMessage struct {
	EnvelopeID  string `json:"envelope_id"`
	MessageID   string `json:"message_id"`
	ChannelID   string `json:"channel_id"`
	Destination string `json:"destination"` // 网关报告的发件人号码，写法不可信
	Text        string `json:"text"`
	ReceivedAt  string `json:"received_at"` // RFC3339
}
