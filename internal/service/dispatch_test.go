package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NPSEngine/internal/model"
	"NPSEngine/pkg/whats"
)

const testCanonical = "5511987654321@s.whatsapp.net"

func testCampaign() *model.Campaign {
	return &model.Campaign{
		ID:              1,
		Name:            "Pesquisa pós-venda",
		Active:          true,
		TriggerMode:     model.TriggerImmediate,
		StartTime:       "09:00",
		EndTime:         "18:00",
		OpeningMessage:  "Olá! Obrigado pela sua compra.",
		QuestionMessage: "De 0 a 10, qual a chance de nos recomendar?",
		ClosingMessage:  "Agradecemos a sua resposta!",
		TimeoutMinutes:  60,
		ChannelID:       "chan-1",
	}
}

func testOrder() model.Order {
	return model.Order{
		OrderID:      "ord-100",
		CustomerID:   "cust-7",
		CustomerName: "Maria",
		Phone:        "11987654321",
		Branch:       "centro",
		OrderValue:   149.9,
		PurchasedAt:  at(11, 30).Format(time.RFC3339),
	}
}

func newDispatchEnv(now time.Time) (*DispatchService, *fakeBackend, *whats.MockClient) {
	fb := newFakeBackend()
	mock := whats.NewMockClient()
	svc := NewDispatchService(fb, mock, newFakeNumberCache())
	svc.now = func() time.Time { return now }
	return svc, fb, mock
}

func TestProcessOrderSendsFirstMessage(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(12, 0))
	c := testCampaign()
	fb.addCampaign(c)
	order := testOrder()

	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))

	ctrl := fb.controlFor("ord-100", 1)
	require.NotNil(t, ctrl)
	assert.Equal(t, model.DeliveryStatusSent, ctrl.Status)
	require.NotNil(t, ctrl.SentAt)

	sent := mock.SentTexts()
	require.Len(t, sent, 1)
	assert.Equal(t, "chan-1", sent[0].ChannelID)
	assert.Equal(t, testCanonical, sent[0].Destination)
	assert.Contains(t, sent[0].Text, c.OpeningMessage)
	assert.Contains(t, sent[0].Text, c.QuestionMessage)

	// 会话建立在首条消息之后
	conv, err := fb.FindActiveConversation(context.Background(), []string{testCanonical}, "chan-1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, ctrl.ID, conv.DeliveryControlID)
	assert.True(t, conv.AwaitingReply)
	assert.Equal(t, model.NextActionMainQuestion, conv.ProximaAcao)
	assert.Nil(t, conv.CurrentQuestion)
}

func TestProcessOrderWithImageSendsCaption(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(12, 0))
	c := testCampaign()
	c.ImageURL = "https://cdn.example.com/banner.png"
	fb.addCampaign(c)
	order := testOrder()

	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))

	sent := mock.SentTexts()
	require.Len(t, sent, 1)
	assert.Equal(t, "image", sent[0].Kind)
	assert.Equal(t, c.ImageURL, sent[0].ImageURL)
	assert.Contains(t, sent[0].Text, c.QuestionMessage)
}

func TestProcessOrderIncapableNumber(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(12, 0))
	c := testCampaign()
	fb.addCampaign(c)
	mock.UnknownNumbers[testCanonical] = true
	order := testOrder()

	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))

	ctrl := fb.controlFor("ord-100", 1)
	require.NotNil(t, ctrl)
	assert.Equal(t, model.DeliveryStatusInvalidNumber, ctrl.Status)
	assert.Empty(t, mock.SentTexts())

	conv, err := fb.FindActiveConversation(context.Background(), []string{testCanonical}, "chan-1")
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestProcessOrderTooShortPhone(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(12, 0))
	c := testCampaign()
	fb.addCampaign(c)
	order := testOrder()
	order.Phone = "12345"

	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))

	ctrl := fb.controlFor("ord-100", 1)
	require.NotNil(t, ctrl)
	assert.Equal(t, model.DeliveryStatusInvalidNumber, ctrl.Status)
	assert.Empty(t, mock.Calls)
}

func TestProcessOrderOutsideWindow(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(20, 0))
	c := testCampaign()
	fb.addCampaign(c)
	order := testOrder()

	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))

	ctrl := fb.controlFor("ord-100", 1)
	require.NotNil(t, ctrl)
	assert.Equal(t, model.DeliveryStatusScheduledWindow, ctrl.Status)
	require.NotNil(t, ctrl.EligibleAt)
	assert.Equal(t, at(9, 0).Add(24*time.Hour), *ctrl.EligibleAt)
	assert.Empty(t, mock.SentTexts())
}

func TestProcessOrderDeferredTrigger(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(12, 0))
	c := testCampaign()
	c.TriggerMode = model.TriggerDaysAfterPurchase
	c.DaysAfterPurchase = 3
	fb.addCampaign(c)
	order := testOrder()

	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))

	ctrl := fb.controlFor("ord-100", 1)
	require.NotNil(t, ctrl)
	assert.Equal(t, model.DeliveryStatusScheduled, ctrl.Status)
	require.NotNil(t, ctrl.EligibleAt)
	assert.Equal(t, at(11, 30).AddDate(0, 0, 3), *ctrl.EligibleAt)
	assert.Empty(t, mock.SentTexts())
}

func TestProcessOrderSendFailure(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(12, 0))
	c := testCampaign()
	fb.addCampaign(c)
	order := testOrder()

	// 让探测成功、发送失败
	require.NoError(t, svc.numbers.Set(context.Background(), "chan-1", "5511987654321", true))
	mock.FailNext = true

	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))

	ctrl := fb.controlFor("ord-100", 1)
	require.NotNil(t, ctrl)
	assert.Equal(t, model.DeliveryStatusError, ctrl.Status)
	assert.NotEmpty(t, ctrl.LastError)
}

func TestProcessOrderIsIdempotent(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(12, 0))
	c := testCampaign()
	fb.addCampaign(c)
	order := testOrder()

	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))
	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))

	assert.Len(t, mock.SentTexts(), 1)
	assert.Len(t, fb.controls, 1)
}

func TestProcessOrderBranchFilter(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(12, 0))
	c := testCampaign()
	c.Branches = []string{"zona-sul"}
	fb.addCampaign(c)
	order := testOrder()

	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))

	assert.Empty(t, fb.controls)
	assert.Empty(t, mock.Calls)
}

func TestProcessOrderRedrivesStrandedPending(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(12, 0))
	c := testCampaign()
	fb.addCampaign(c)
	order := testOrder()

	// 上一次运行在登记台账后、首个迁移前挂掉，留下 pending 孤儿
	_, id, err := fb.CreateDeliveryControl(context.Background(), &model.DeliveryControl{
		OrderID:    order.OrderID,
		CampaignID: c.ID,
		Phone:      order.Phone,
		Branch:     order.Branch,
		Status:     model.DeliveryStatusPending,
	})
	require.NoError(t, err)

	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))

	ctrl := fb.controls[id]
	require.NotNil(t, ctrl)
	assert.Equal(t, model.DeliveryStatusSent, ctrl.Status)
	assert.Len(t, mock.SentTexts(), 1)

	conv, cerr := fb.FindActiveConversation(context.Background(), []string{testCanonical}, "chan-1")
	require.NoError(t, cerr)
	require.NotNil(t, conv)
	assert.Equal(t, id, conv.DeliveryControlID)
}

func TestProcessOrderMalformedOrderID(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(12, 0))
	c := testCampaign()
	fb.addCampaign(c)
	order := testOrder()
	order.OrderID = "ord 100/a"

	require.NoError(t, svc.ProcessOrder(context.Background(), c, &order))

	assert.Empty(t, fb.controls)
	assert.Empty(t, mock.Calls)
}

func TestRescanDueRetriesError(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(12, 0))
	c := testCampaign()
	fb.addCampaign(c)

	ctrl := &model.DeliveryControl{
		OrderID:    "ord-200",
		CampaignID: 1,
		Phone:      "11987654321",
		Status:     model.DeliveryStatusError,
	}
	_, id, err := fb.CreateDeliveryControl(context.Background(), ctrl)
	require.NoError(t, err)
	fb.controls[id].Status = model.DeliveryStatusError
	fb.due = append(fb.due, id)

	require.NoError(t, svc.RescanDue(context.Background()))

	assert.Equal(t, model.DeliveryStatusSent, fb.controls[id].Status)
	assert.Len(t, mock.SentTexts(), 1)
}

func TestRescanDueKeepsWindowClosed(t *testing.T) {
	svc, fb, mock := newDispatchEnv(at(20, 0))
	c := testCampaign()
	fb.addCampaign(c)

	ctrl := &model.DeliveryControl{
		OrderID:    "ord-201",
		CampaignID: 1,
		Phone:      "11987654321",
		Status:     model.DeliveryStatusScheduled,
	}
	_, id, err := fb.CreateDeliveryControl(context.Background(), ctrl)
	require.NoError(t, err)
	fb.controls[id].Status = model.DeliveryStatusScheduled
	fb.due = append(fb.due, id)

	require.NoError(t, svc.RescanDue(context.Background()))

	assert.Equal(t, model.DeliveryStatusScheduledWindow, fb.controls[id].Status)
	assert.Empty(t, mock.SentTexts())
}
