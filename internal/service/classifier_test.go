package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NPSEngine/internal/model"
	"NPSEngine/pkg/errors"
	"NPSEngine/pkg/whats"
)

func TestClassifyScore(t *testing.T) {
	cases := []struct {
		text  string
		score int
		valid bool
	}{
		{"0", 0, true},
		{"7", 7, true},
		{"10", 10, true},
		{" 9 ", 9, true},
		{"11", 0, false},
		{"-1", 0, false},
		{"dez", 0, false},
		{"10!", 0, false},
		{"nota 8", 0, false},
		{"", 0, false},
		{"8.5", 0, false},
	}
	for _, tc := range cases {
		score, ok := ClassifyScore(tc.text)
		assert.Equal(t, tc.valid, ok, "text %q", tc.text)
		if tc.valid {
			assert.Equal(t, tc.score, score, "text %q", tc.text)
		}
	}
}

func TestCategoryForScore(t *testing.T) {
	assert.Equal(t, model.CategoryDetractor, model.CategoryForScore(0))
	assert.Equal(t, model.CategoryDetractor, model.CategoryForScore(6))
	assert.Equal(t, model.CategoryNeutral, model.CategoryForScore(7))
	assert.Equal(t, model.CategoryNeutral, model.CategoryForScore(8))
	assert.Equal(t, model.CategoryPromoter, model.CategoryForScore(9))
	assert.Equal(t, model.CategoryPromoter, model.CategoryForScore(10))
}

// inboundEnv 搭一套完整的入站处理链：已发出的问卷 + 活跃会话
type inboundEnv struct {
	svc  *InboundService
	fb   *fakeBackend
	mock *whats.MockClient
	conv *model.Conversation
	ctrl *model.DeliveryControl
	now  time.Time
}

func newInboundEnv(t *testing.T, c *model.Campaign) *inboundEnv {
	t.Helper()

	now := at(12, 0)
	fb := newFakeBackend()
	mock := whats.NewMockClient()
	fb.addCampaign(c)

	dispatch := NewDispatchService(fb, mock, newFakeNumberCache())
	dispatch.now = func() time.Time { return now }
	order := testOrder()
	require.NoError(t, dispatch.ProcessOrder(context.Background(), c, &order))

	ctrl := fb.controlFor(order.OrderID, c.ID)
	require.NotNil(t, ctrl)
	require.Equal(t, model.DeliveryStatusSent, ctrl.Status)

	conv, err := fb.FindActiveConversation(context.Background(), []string{testCanonical}, c.ChannelID)
	require.NoError(t, err)
	require.NotNil(t, conv)

	convSvc := NewConversationService(fb, mock)
	convSvc.now = func() time.Time { return now }
	svc := NewInboundService(fb, mock, convSvc, newFakeDedup())
	svc.now = func() time.Time { return now }

	// 清掉发送阶段的调用记录，断言只看入站产生的
	mock.Calls = nil

	return &inboundEnv{svc: svc, fb: fb, mock: mock, conv: conv, ctrl: ctrl, now: now}
}

func (e *inboundEnv) message(id, text string) *model.InboundChatMessage {
	return &model.InboundChatMessage{
		EnvelopeID:  "env-" + id,
		MessageID:   id,
		ChannelID:   "chan-1",
		Destination: "5511987654321@s.whatsapp.net",
		Text:        text,
		ReceivedAt:  e.now.Format(time.RFC3339),
	}
}

func (e *inboundEnv) reload(t *testing.T) {
	t.Helper()
	conv, ok := e.fb.conversations[e.conv.ID]
	require.True(t, ok)
	e.conv = conv
	e.ctrl = e.fb.controls[e.ctrl.ID]
}

func TestHandleInboundValidScoreFinishesSurvey(t *testing.T) {
	env := newInboundEnv(t, testCampaign())

	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m1", "9")))
	env.reload(t)

	require.Len(t, env.fb.responses, 1)
	resp := env.fb.responses[0]
	require.NotNil(t, resp.Score)
	assert.Equal(t, 9, *resp.Score)
	assert.Equal(t, model.CategoryPromoter, resp.Category)
	assert.Equal(t, model.OrdinalScore, resp.QuestionOrdinal)
	assert.Equal(t, "ord-100", resp.OrderID)

	// 没有追问：直接发结束语并收尾
	assert.Equal(t, model.ConversationStatusFinished, env.conv.Status)
	assert.Equal(t, model.DeliveryStatusProcessed, env.ctrl.Status)

	sent := env.mock.SentTexts()
	require.Len(t, sent, 1)
	assert.Equal(t, "Agradecemos a sua resposta!", sent[0].Text)
}

func TestHandleInboundFollowUpQuestion(t *testing.T) {
	c := testCampaign()
	c.FollowUpMessage = "O que motivou a sua nota?"
	env := newInboundEnv(t, c)

	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m1", "3")))
	env.reload(t)

	// 打分后进追问，会话还活着
	assert.Equal(t, model.ConversationStatusActive, env.conv.Status)
	require.NotNil(t, env.conv.CurrentQuestion)
	assert.Equal(t, model.OrdinalFollowUp, *env.conv.CurrentQuestion)
	assert.Equal(t, model.NextActionFollowUp, env.conv.ProximaAcao)
	assert.Equal(t, model.DeliveryStatusSent, env.ctrl.Status)

	sent := env.mock.SentTexts()
	require.Len(t, sent, 1)
	assert.Equal(t, c.FollowUpMessage, sent[0].Text)

	// 自由文本回答收尾
	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m2", "Entrega atrasou muito.")))
	env.reload(t)

	require.Len(t, env.fb.responses, 2)
	follow := env.fb.responses[1]
	assert.Nil(t, follow.Score)
	assert.Equal(t, model.OrdinalFollowUp, follow.QuestionOrdinal)
	assert.Equal(t, "Entrega atrasou muito.", follow.ReplyText)

	assert.Equal(t, model.ConversationStatusFinished, env.conv.Status)
	assert.Equal(t, model.DeliveryStatusProcessed, env.ctrl.Status)
}

func TestHandleInboundInvalidReply(t *testing.T) {
	env := newInboundEnv(t, testCampaign())

	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m1", "muito bom")))
	env.reload(t)

	// 状态原地不动，只发纠正提示
	assert.Empty(t, env.fb.responses)
	assert.Equal(t, model.ConversationStatusActive, env.conv.Status)
	assert.True(t, env.conv.AwaitingReply)
	assert.Nil(t, env.conv.CurrentQuestion)

	sent := env.mock.SentTexts()
	require.Len(t, sent, 1)
	assert.Equal(t, correctivePrompt, sent[0].Text)

	// 纠正之后合法打分正常走完
	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m2", "7")))
	env.reload(t)
	require.Len(t, env.fb.responses, 1)
	assert.Equal(t, model.CategoryNeutral, env.fb.responses[0].Category)
	assert.Equal(t, model.ConversationStatusFinished, env.conv.Status)
}

func TestHandleInboundStopCommand(t *testing.T) {
	env := newInboundEnv(t, testCampaign())

	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m1", "/parar")))
	env.reload(t)

	assert.Equal(t, model.ConversationStatusCancelled, env.conv.Status)
	assert.False(t, env.conv.AwaitingReply)
	assert.Equal(t, model.DeliveryStatusCancelled, env.ctrl.Status)
	assert.Empty(t, env.fb.responses)
	assert.Empty(t, env.mock.SentTexts())
}

func TestHandleInboundRestartCommand(t *testing.T) {
	c := testCampaign()
	c.FollowUpMessage = "O que motivou a sua nota?"
	env := newInboundEnv(t, c)

	// 进到第二题再要求重来
	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m1", "5")))
	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m2", "/reiniciar")))
	env.reload(t)

	assert.Equal(t, model.ConversationStatusActive, env.conv.Status)
	assert.Nil(t, env.conv.CurrentQuestion)
	assert.True(t, env.conv.AwaitingReply)
	assert.Equal(t, model.NextActionMainQuestion, env.conv.ProximaAcao)

	sent := env.mock.SentTexts()
	require.Len(t, sent, 2) // 追问 + 重发的首条消息
	assert.Contains(t, sent[1].Text, c.QuestionMessage)
}

func TestHandleInboundDuplicateMessage(t *testing.T) {
	env := newInboundEnv(t, testCampaign())

	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m1", "9")))

	err := env.svc.HandleInbound(context.Background(), env.message("m1", "9"))
	require.Error(t, err)
	assert.True(t, errors.IsSkip(err))
	assert.Len(t, env.fb.responses, 1)
}

func TestHandleInboundNoConversation(t *testing.T) {
	env := newInboundEnv(t, testCampaign())

	msg := env.message("m1", "9")
	msg.Destination = "5521999998888@s.whatsapp.net"

	// 没人接的消息静默丢弃，不是错误
	require.NoError(t, env.svc.HandleInbound(context.Background(), msg))
	assert.Empty(t, env.fb.responses)
	assert.Empty(t, env.mock.SentTexts())
}

func TestHandleInboundVariantDestinationMatches(t *testing.T) {
	env := newInboundEnv(t, testCampaign())

	// 网关上报的号码少了第九位，展开后仍要路由到同一会话
	msg := env.message("m1", "10")
	msg.Destination = "551187654321"

	require.NoError(t, env.svc.HandleInbound(context.Background(), msg))
	require.Len(t, env.fb.responses, 1)
	assert.Equal(t, model.CategoryPromoter, env.fb.responses[0].Category)
}

func TestHandleInboundTimedOutConversation(t *testing.T) {
	env := newInboundEnv(t, testCampaign())

	// 回答超过了会话时限
	env.svc.now = func() time.Time { return env.now.Add(2 * time.Hour) }

	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m1", "9")))
	assert.Empty(t, env.fb.responses)
	assert.Empty(t, env.mock.SentTexts())
}

func TestFinalizeRejectsClosedConversation(t *testing.T) {
	c := testCampaign()
	env := newInboundEnv(t, c)

	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m1", "9")))
	env.reload(t)
	require.Equal(t, model.ConversationStatusFinished, env.conv.Status)

	// 已收尾的会话不接受再次迁移
	convSvc := NewConversationService(env.fb, env.mock)
	err := convSvc.Finalize(context.Background(), env.conv, c)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.InvalidTransition)
}

func TestHandleInboundCampaignWithoutTimeout(t *testing.T) {
	c := testCampaign()
	c.TimeoutMinutes = 0
	env := newInboundEnv(t, c)

	// 没配时限的活动回答永远不过期
	env.svc.now = func() time.Time { return env.now.Add(time.Second) }

	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m1", "9")))
	env.reload(t)

	require.Len(t, env.fb.responses, 1)
	assert.Equal(t, model.CategoryPromoter, env.fb.responses[0].Category)
	assert.Equal(t, model.ConversationStatusFinished, env.conv.Status)

	env2 := newInboundEnv(t, c)
	env2.svc.now = func() time.Time { return env2.now.Add(30 * 24 * time.Hour) }
	require.NoError(t, env2.svc.HandleInbound(context.Background(), env2.message("m1", "2")))
	require.Len(t, env2.fb.responses, 1)
}

func TestHandleInboundEmptyText(t *testing.T) {
	env := newInboundEnv(t, testCampaign())

	require.NoError(t, env.svc.HandleInbound(context.Background(), env.message("m1", "   ")))
	assert.Empty(t, env.fb.responses)
	assert.Empty(t, env.mock.SentTexts())
}
