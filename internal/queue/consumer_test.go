package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NPSEngine/pkg/errors"
)

func TestDecodeInbound(t *testing.T) {
	msg, err := decodeInbound([]byte(`{"message_id":"m1","channel_id":"chan-1","destination":"5511987654321","text":"9"}`))
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.MessageID)
	assert.Equal(t, "chan-1", msg.ChannelID)
}

func TestDecodeInboundDiscardsPoisonPayload(t *testing.T) {
	// 解不开的 payload 必须按跳过处理，否则会 nack 重入队死循环
	msg, err := decodeInbound([]byte(`{"message_id": truncated`))
	require.Error(t, err)
	assert.Nil(t, msg)
	assert.True(t, errors.IsSkip(err))
}
