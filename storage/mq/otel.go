package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
)

// MessageHeaderCarrier 实现 propagation.TextMapCarrier 接口，
// trace 上下文跟着消息头过队列。
type MessageHeaderCarrier struct {
	Headers amqp.Table
}

func (m *MessageHeaderCarrier) Get(key string) string {
	if val, ok := m.Headers[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func (m *MessageHeaderCarrier) Set(key, value string) {
	if m.Headers == nil {
		m.Headers = make(amqp.Table)
	}
	m.Headers[key] = value
}

func (m *MessageHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	return keys
}

// injectTraceContext 把当前 trace 上下文写进消息头
func injectTraceContext(ctx context.Context, headers amqp.Table) amqp.Table {
	carrier := &MessageHeaderCarrier{Headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Headers
}

// extractTraceContext 从消息头恢复 trace 上下文
func extractTraceContext(ctx context.Context, headers amqp.Table) context.Context {
	carrier := &MessageHeaderCarrier{Headers: headers}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
