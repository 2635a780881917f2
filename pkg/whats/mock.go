package whats

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type MockCall struct {
	Kind        string // check, text, image
	ChannelID   string
	Destination string
	Text        string
	ImageURL    string
}

// MockClient 可配置的网关客户端 mock，实现 Client 接口
type MockClient struct {
	mu    sync.Mutex
	Calls []MockCall

	// UnknownNumbers 这些号码的能力探测返回 false
	UnknownNumbers map[string]bool

	// FailNext 置为 true 时，下一次调用返回 mock 错误并自动复位
	FailNext bool

	sendSeq int
}

func NewMockClient() *MockClient {
	return &MockClient{
		Calls:          make([]MockCall, 0),
		UnknownNumbers: make(map[string]bool),
	}
}

func (m *MockClient) CheckNumber(ctx context.Context, channelID, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Kind: "check", ChannelID: channelID, Destination: phone})

	if m.FailNext {
		m.FailNext = false
		return false, errors.New("mock check failure")
	}

	return !m.UnknownNumbers[phone], nil
}

func (m *MockClient) SendText(ctx context.Context, channelID, destination, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Kind: "text", ChannelID: channelID, Destination: destination, Text: text})

	if m.FailNext {
		m.FailNext = false
		return "", errors.New("mock send failure")
	}

	m.sendSeq++
	return fmt.Sprintf("mock-message-%d", m.sendSeq), nil
}

func (m *MockClient) SendImage(ctx context.Context, channelID, destination, caption, imageURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Kind: "image", ChannelID: channelID, Destination: destination, Text: caption, ImageURL: imageURL})

	if m.FailNext {
		m.FailNext = false
		return "", errors.New("mock send failure")
	}

	m.sendSeq++
	return fmt.Sprintf("mock-message-%d", m.sendSeq), nil
}

// SentTexts 返回所有文本发送调用，测试断言用
func (m *MockClient) SentTexts() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []MockCall
	for _, c := range m.Calls {
		if c.Kind == "text" || c.Kind == "image" {
			out = append(out, c)
		}
	}
	return out
}
