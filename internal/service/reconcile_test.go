package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NPSEngine/internal/model"
)

func TestRepairOrphansCreatesConversation(t *testing.T) {
	fb := newFakeBackend()
	fb.addCampaign(testCampaign())

	sentAt := at(11, 0)
	ctrl := &model.DeliveryControl{
		OrderID:    "ord-300",
		CampaignID: 1,
		Phone:      "11987654321",
		Status:     model.DeliveryStatusSent,
		SentAt:     &sentAt,
	}
	_, id, err := fb.CreateDeliveryControl(context.Background(), ctrl)
	require.NoError(t, err)
	fb.orphans = append(fb.orphans, id)

	svc := NewReconcileService(fb)
	svc.now = func() time.Time { return at(12, 0) }

	require.NoError(t, svc.RepairOrphans(context.Background()))

	conv, err := fb.FindActiveConversation(context.Background(), []string{testCanonical}, "chan-1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, id, conv.DeliveryControlID)
	assert.True(t, conv.AwaitingReply)
	// 超时从原发送时刻起算
	assert.Equal(t, sentAt.Add(60*time.Minute), conv.TimeoutAt)
}

func TestRepairOrphansIsIdempotent(t *testing.T) {
	fb := newFakeBackend()
	fb.addCampaign(testCampaign())

	ctrl := &model.DeliveryControl{
		OrderID:    "ord-301",
		CampaignID: 1,
		Phone:      "11987654321",
		Status:     model.DeliveryStatusSent,
	}
	_, id, err := fb.CreateDeliveryControl(context.Background(), ctrl)
	require.NoError(t, err)
	fb.orphans = append(fb.orphans, id)

	svc := NewReconcileService(fb)

	require.NoError(t, svc.RepairOrphans(context.Background()))
	require.NoError(t, svc.RepairOrphans(context.Background()))

	assert.Len(t, fb.conversations, 1)
}

func TestRepairOrphansSkipsNonSent(t *testing.T) {
	fb := newFakeBackend()
	fb.addCampaign(testCampaign())

	ctrl := &model.DeliveryControl{
		OrderID:    "ord-302",
		CampaignID: 1,
		Phone:      "11987654321",
		Status:     model.DeliveryStatusError,
	}
	_, id, err := fb.CreateDeliveryControl(context.Background(), ctrl)
	require.NoError(t, err)
	fb.controls[id].Status = model.DeliveryStatusError
	fb.orphans = append(fb.orphans, id)

	svc := NewReconcileService(fb)
	require.NoError(t, svc.RepairOrphans(context.Background()))

	assert.Empty(t, fb.conversations)
}
