package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryStatusTransitions(t *testing.T) {
	cases := []struct {
		from    DeliveryStatus
		to      DeliveryStatus
		allowed bool
	}{
		{DeliveryStatusPending, DeliveryStatusSent, true},
		{DeliveryStatusPending, DeliveryStatusError, true},
		{DeliveryStatusPending, DeliveryStatusInvalidNumber, true},
		{DeliveryStatusPending, DeliveryStatusScheduled, true},
		{DeliveryStatusPending, DeliveryStatusScheduledWindow, true},
		{DeliveryStatusPending, DeliveryStatusProcessed, false},
		{DeliveryStatusPending, DeliveryStatusCancelled, false},
		{DeliveryStatusScheduled, DeliveryStatusSent, true},
		{DeliveryStatusScheduled, DeliveryStatusScheduledWindow, true},
		{DeliveryStatusScheduled, DeliveryStatusPending, false},
		{DeliveryStatusScheduledWindow, DeliveryStatusSent, true},
		{DeliveryStatusScheduledWindow, DeliveryStatusScheduled, true},
		{DeliveryStatusError, DeliveryStatusSent, true},
		{DeliveryStatusError, DeliveryStatusError, true},
		{DeliveryStatusError, DeliveryStatusInvalidNumber, true},
		{DeliveryStatusSent, DeliveryStatusProcessed, true},
		{DeliveryStatusSent, DeliveryStatusCancelled, true},
		{DeliveryStatusSent, DeliveryStatusError, false},
		{DeliveryStatusSent, DeliveryStatusPending, false},
		{DeliveryStatusInvalidNumber, DeliveryStatusSent, false},
		{DeliveryStatusProcessed, DeliveryStatusSent, false},
		{DeliveryStatusCancelled, DeliveryStatusSent, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestDeliveryStatusIsTerminal(t *testing.T) {
	assert.True(t, DeliveryStatusInvalidNumber.IsTerminal())
	assert.True(t, DeliveryStatusProcessed.IsTerminal())
	assert.True(t, DeliveryStatusCancelled.IsTerminal())
	assert.False(t, DeliveryStatusPending.IsTerminal())
	assert.False(t, DeliveryStatusSent.IsTerminal())
	assert.False(t, DeliveryStatusError.IsTerminal())
	assert.False(t, DeliveryStatusScheduled.IsTerminal())
	assert.False(t, DeliveryStatusScheduledWindow.IsTerminal())
}

func TestConversationStatusTransitions(t *testing.T) {
	cases := []struct {
		from    ConversationStatus
		to      ConversationStatus
		allowed bool
	}{
		{ConversationStatusActive, ConversationStatusAnswered, true},
		{ConversationStatusActive, ConversationStatusFinished, true},
		{ConversationStatusActive, ConversationStatusCancelled, true},
		{ConversationStatusAnswered, ConversationStatusFinished, true},
		{ConversationStatusAnswered, ConversationStatusActive, false},
		{ConversationStatusAnswered, ConversationStatusCancelled, false},
		{ConversationStatusFinished, ConversationStatusActive, false},
		{ConversationStatusFinished, ConversationStatusAnswered, false},
		{ConversationStatusCancelled, ConversationStatusActive, false},
		{ConversationStatusCancelled, ConversationStatusFinished, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestNewConversationWithoutTimeout(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	// 活动没配时限时会话不过期
	conv := NewConversation(1, "chan-1", "5511987654321@s.whatsapp.net", 0, now)
	assert.True(t, conv.TimeoutAt.IsZero())
	assert.True(t, conv.IsOpen(now))
	assert.True(t, conv.IsOpen(now.Add(90*24*time.Hour)))

	conv = NewConversation(1, "chan-1", "5511987654321@s.whatsapp.net", 60, now)
	assert.Equal(t, now.Add(time.Hour), conv.TimeoutAt)
	assert.True(t, conv.IsOpen(now.Add(59*time.Minute)))
	assert.False(t, conv.IsOpen(now.Add(61*time.Minute)))
}

func TestConversationDeadline(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	assert.True(t, ConversationDeadline(now, 0).IsZero())
	assert.True(t, ConversationDeadline(now, -5).IsZero())
	assert.Equal(t, now.Add(30*time.Minute), ConversationDeadline(now, 30))
}
