package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 发送相关指标
	SurveySentTotal     metric.Int64Counter
	SurveyFailedTotal   metric.Int64Counter
	InvalidNumberTotal  metric.Int64Counter
	SendDuration        metric.Float64Histogram

	// 会话 / 回答相关指标
	ResponseTotal       metric.Int64Counter
	InvalidReplyTotal   metric.Int64Counter
	DroppedInboundTotal metric.Int64Counter
	ReconciledTotal     metric.Int64Counter

	// 调度循环指标
	LoopDuration metric.Float64Histogram
}

var (
	metrics *OTelMetrics
	meter   = otel.Meter("nps-engine")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	m := &OTelMetrics{}

	m.SurveySentTotal, err = meter.Int64Counter(
		"nps_survey_sent_total",
		metric.WithDescription("Total number of survey messages sent"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	m.SurveyFailedTotal, err = meter.Int64Counter(
		"nps_survey_failed_total",
		metric.WithDescription("Total number of transient send failures"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	m.InvalidNumberTotal, err = meter.Int64Counter(
		"nps_invalid_number_total",
		metric.WithDescription("Total number of destinations confirmed unable to receive messages"),
		metric.WithUnit("{number}"),
	)
	if err != nil {
		return err
	}

	m.SendDuration, err = meter.Float64Histogram(
		"nps_send_duration_seconds",
		metric.WithDescription("Time spent sending one survey message in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.ResponseTotal, err = meter.Int64Counter(
		"nps_response_total",
		metric.WithDescription("Total number of classified responses"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return err
	}

	m.InvalidReplyTotal, err = meter.Int64Counter(
		"nps_invalid_reply_total",
		metric.WithDescription("Total number of replies that failed validation"),
		metric.WithUnit("{reply}"),
	)
	if err != nil {
		return err
	}

	m.DroppedInboundTotal, err = meter.Int64Counter(
		"nps_dropped_inbound_total",
		metric.WithDescription("Total number of inbound messages with no active conversation"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	m.ReconciledTotal, err = meter.Int64Counter(
		"nps_reconciled_total",
		metric.WithDescription("Total number of conversations repaired by the reconciler"),
		metric.WithUnit("{conversation}"),
	)
	if err != nil {
		return err
	}

	m.LoopDuration, err = meter.Float64Histogram(
		"nps_loop_duration_seconds",
		metric.WithDescription("Duration of one scheduler loop pass in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordSurveySent 记录一次成功发送
func RecordSurveySent(campaignID int64, duration float64) {
	m := metrics
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.Int64("campaign_id", campaignID))
	m.SurveySentTotal.Add(ctx, 1, attrs)
	m.SendDuration.Record(ctx, duration, attrs)
}

// RecordSurveyFailed 记录一次瞬时发送失败
func RecordSurveyFailed(campaignID int64) {
	if m := metrics; m != nil {
		m.SurveyFailedTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.Int64("campaign_id", campaignID)))
	}
}

// RecordInvalidNumber 记录号码确认无效
func RecordInvalidNumber(campaignID int64) {
	if m := metrics; m != nil {
		m.InvalidNumberTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.Int64("campaign_id", campaignID)))
	}
}

// RecordResponse 记录一条已分类回答
func RecordResponse(category string, ordinal int) {
	if m := metrics; m != nil {
		m.ResponseTotal.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("category", category),
			attribute.Int("ordinal", ordinal),
		))
	}
}

// RecordInvalidReply 记录一条校验失败的回答
func RecordInvalidReply() {
	if m := metrics; m != nil {
		m.InvalidReplyTotal.Add(context.Background(), 1)
	}
}

// RecordDroppedInbound 记录一条没有活跃会话的入站消息
func RecordDroppedInbound() {
	if m := metrics; m != nil {
		m.DroppedInboundTotal.Add(context.Background(), 1)
	}
}

// RecordReconciled 记录对账器修复的会话数
func RecordReconciled(count int64) {
	if m := metrics; m != nil {
		m.ReconciledTotal.Add(context.Background(), count)
	}
}

// RecordLoopDuration 记录一次调度循环耗时
func RecordLoopDuration(loop string, seconds float64) {
	if m := metrics; m != nil {
		m.LoopDuration.Record(context.Background(), seconds,
			metric.WithAttributes(attribute.String("loop", loop)))
	}
}
