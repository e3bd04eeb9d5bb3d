package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_agent_chat_requests_total",
		Help: "Chat requests by outcome",
	}, []string{"outcome"})

	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_agent_tool_invocations_total",
		Help: "Tool calls dispatched by the agent loop",
	}, []string{"tool", "status"})

	AgentIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portfolio_agent_iterations",
		Help:    "Model round trips per chat request",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	IngestedChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_agent_ingested_chunks_total",
		Help: "Document chunks written to the store",
	}, []string{"category"})

	TrackedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_agent_tracked_events_total",
		Help: "Analytics events recorded by type",
	}, []string{"event_type"})
)
