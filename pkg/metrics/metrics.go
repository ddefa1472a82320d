// Package metrics 服务指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesSent 成功发送的消息数
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "family_chat",
		Name:      "messages_sent_total",
		Help:      "Number of messages appended to threads.",
	})

	// NotificationOutcomes 新消息提醒的处理结果
	NotificationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "family_chat",
		Name:      "notification_outcomes_total",
		Help:      "New-message notification decisions by outcome.",
	}, []string{"outcome"})

	// UnreadComputations 未读数计算来源（cache/store）
	UnreadComputations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "family_chat",
		Name:      "unread_computations_total",
		Help:      "Unread count lookups by source.",
	}, []string{"source"})

	// OnlineSessions 当前进程持有的在线会话数
	OnlineSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "family_chat",
		Name:      "online_sessions",
		Help:      "Websocket sessions currently tracked in presence.",
	})
)

func init() {
	prometheus.MustRegister(MessagesSent, NotificationOutcomes, UnreadComputations, OnlineSessions)
}

// Handler /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
