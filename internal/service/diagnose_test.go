package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NPSEngine/internal/model"
	"NPSEngine/pkg/errors"
)

func TestDiagnoseHealthyCampaign(t *testing.T) {
	fb := newFakeBackend()
	fb.addCampaign(testCampaign())

	svc := NewDiagnoseService(fb)
	svc.now = func() time.Time { return at(12, 0) }

	report, err := svc.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, report.Active)
	assert.True(t, report.PeriodActive)
	assert.True(t, report.WindowValid)
	assert.True(t, report.WindowOpen)
	assert.True(t, report.ChannelSet)
	assert.Empty(t, report.Problems)
}

func TestDiagnoseReportsProblems(t *testing.T) {
	fb := newFakeBackend()
	c := testCampaign()
	c.Active = false
	c.ChannelID = ""
	c.EndDate = strPtr("2026-01-31")
	fb.addCampaign(c)

	svc := NewDiagnoseService(fb)
	svc.now = func() time.Time { return at(12, 0) }

	report, err := svc.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.False(t, report.Active)
	assert.False(t, report.PeriodActive)
	assert.False(t, report.ChannelSet)
	assert.Len(t, report.Problems, 3)
}

func TestDiagnoseClosedWindow(t *testing.T) {
	fb := newFakeBackend()
	fb.addCampaign(testCampaign())

	svc := NewDiagnoseService(fb)
	svc.now = func() time.Time { return at(22, 0) }

	report, err := svc.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, report.WindowValid)
	assert.False(t, report.WindowOpen)
	assert.Contains(t, report.Problems, "current time is outside the sending window")
}

func TestDiagnoseCountsPending(t *testing.T) {
	fb := newFakeBackend()
	fb.addCampaign(testCampaign())

	for _, order := range []string{"a", "b", "c"} {
		ctrl := &model.DeliveryControl{OrderID: order, CampaignID: 1, Status: model.DeliveryStatusPending}
		_, _, err := fb.CreateDeliveryControl(context.Background(), ctrl)
		require.NoError(t, err)
	}

	svc := NewDiagnoseService(fb)
	svc.now = func() time.Time { return at(12, 0) }

	report, err := svc.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, report.PendingCount)
}

func TestDiagnoseUnknownCampaign(t *testing.T) {
	svc := NewDiagnoseService(newFakeBackend())
	_, err := svc.Run(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, errors.CampaignNotFound, err)
}
