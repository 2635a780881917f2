package model

// ScoreCategory NPS 分类
type ScoreCategory string

const (
	CategoryPromoter  ScoreCategory = "promotor"
	CategoryNeutral   ScoreCategory = "neutro"
	CategoryDetractor ScoreCategory = "detrator"
)

// CategoryForScore 0~6 贬损者，7~8 中立，9~10 推荐者
func CategoryForScore(score int) ScoreCategory {
	switch {
	case score >= 9:
		return CategoryPromoter
	case score >= 7:
		return CategoryNeutral
	default:
		return CategoryDetractor
	}
}

// SurveyResponse 一条已分类的回答，只追加不修改。
type SurveyResponse struct {
	ID              int64         `json:"id"`
	OrderID         string        `json:"order_id"`
	CampaignID      int64         `json:"campaign_id"`
	CustomerID      string        `json:"customer_id"`
	QuestionOrdinal int           `json:"question_ordinal"`
	ReplyText       string        `json:"reply_text"`
	Score           *int          `json:"score,omitempty"`    // 仅打分题有值
	Category        ScoreCategory `json:"category,omitempty"` // 仅打分题有值
	MessageID       string        `json:"message_id"`         // 来源消息 id，用于去重
}
