package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/harun/agentflow/pkg/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	actorMessagesTotal   *prometheus.CounterVec
	actorMessageDuration *prometheus.HistogramVec
	actorPanicsTotal     *prometheus.CounterVec
	actorInboxDepth      *prometheus.GaugeVec

	poolQueueDepth   *prometheus.GaugeVec
	poolTasksTotal   *prometheus.CounterVec
	poolTaskDuration *prometheus.HistogramVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec
	registryTools         *prometheus.GaugeVec

	mcpServersActive prometheus.Gauge
	mcpServerHealthy *prometheus.GaugeVec
	mcpCallsTotal    *prometheus.CounterVec
	mcpCallDuration  *prometheus.HistogramVec

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	llmRequestsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			actorMessagesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "actor_messages_total",
					Help: "Total actor messages handled by type and status.",
				},
				[]string{"message_type", "status"},
			),
			actorMessageDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "actor_message_duration_seconds",
					Help:    "Actor message handling time in seconds by type.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"message_type"},
			),
			actorPanicsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "actor_panics_total",
					Help: "Total recovered actor handler panics by message type.",
				},
				[]string{"message_type"},
			),
			actorInboxDepth: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "actor_inbox_depth",
					Help: "Current actor inbox depth.",
				},
				[]string{"actor_id"},
			),
			poolQueueDepth: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "pool_queue_depth",
					Help: "Tasks waiting in the worker pool queue.",
				},
				[]string{"pool"},
			),
			poolTasksTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pool_tasks_total",
					Help: "Total worker pool tasks by outcome.",
				},
				[]string{"pool", "status"},
			),
			poolTaskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "pool_task_duration_seconds",
					Help:    "Worker pool task duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"pool"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool, source and status.",
				},
				[]string{"tool", "source", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			registryTools: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "registry_tools",
					Help: "Registered tools by source.",
				},
				[]string{"source"},
			),
			mcpServersActive: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "mcp_servers_active",
					Help: "Currently connected MCP servers.",
				},
			),
			mcpServerHealthy: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "mcp_server_healthy",
					Help: "MCP server health (1 healthy, 0 unhealthy).",
				},
				[]string{"server"},
			),
			mcpCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mcp_calls_total",
					Help: "Total MCP requests by server, method and status.",
				},
				[]string{"server", "method", "status"},
			),
			mcpCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "mcp_call_duration_seconds",
					Help:    "MCP request duration in seconds by server and method.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"server", "method"},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Total plan-and-execute runs by planner and status.",
				},
				[]string{"planner", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Plan-and-execute run duration in seconds by planner.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"planner"},
			),
			llmRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_requests_total",
					Help: "Total LLM chat requests by provider and status.",
				},
				[]string{"provider", "status"},
			),
		}

		prometheus.MustRegister(
			m.actorMessagesTotal,
			m.actorMessageDuration,
			m.actorPanicsTotal,
			m.actorInboxDepth,
			m.poolQueueDepth,
			m.poolTasksTotal,
			m.poolTaskDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.registryTools,
			m.mcpServersActive,
			m.mcpServerHealthy,
			m.mcpCallsTotal,
			m.mcpCallDuration,
			m.agentRunTotal,
			m.agentRunDuration,
			m.llmRequestsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetPoolQueueDepth(pool string, depth int) {
	getMetrics().poolQueueDepth.WithLabelValues(pool).Set(float64(depth))
}

func RecordPoolTask(pool string, duration time.Duration, status string) {
	m := getMetrics()
	m.poolTasksTotal.WithLabelValues(pool, status).Inc()
	m.poolTaskDuration.WithLabelValues(pool).Observe(duration.Seconds())
}

func RecordToolExecution(tool, source string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, source, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func SetRegistryTools(local, remote int) {
	m := getMetrics()
	m.registryTools.WithLabelValues("local").Set(float64(local))
	m.registryTools.WithLabelValues("remote").Set(float64(remote))
}

func SetActiveServers(count int) {
	getMetrics().mcpServersActive.Set(float64(count))
}

func SetServerHealthy(server string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	getMetrics().mcpServerHealthy.WithLabelValues(server).Set(value)
}

func RecordMCPCall(server, method string, duration time.Duration, success bool) {
	m := getMetrics()
	m.mcpCallsTotal.WithLabelValues(server, method, statusLabel(success)).Inc()
	m.mcpCallDuration.WithLabelValues(server, method).Observe(duration.Seconds())
}

func RecordAgentRun(planner string, duration time.Duration, success bool) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(planner, statusLabel(success)).Inc()
	m.agentRunDuration.WithLabelValues(planner).Observe(duration.Seconds())
}

func RecordLLMRequest(provider string, success bool) {
	getMetrics().llmRequestsTotal.WithLabelValues(provider, statusLabel(success)).Inc()
}

// ActorMetrics adapts the module metrics to the actor runtime.
type ActorMetrics struct{}

var _ actor.Metrics = ActorMetrics{}

// NewActorMetrics returns actor.Metrics backed by the process registry.
func NewActorMetrics() ActorMetrics {
	EnsureRegistered()
	return ActorMetrics{}
}

func (ActorMetrics) MessageProcessed(msgType string, duration time.Duration, success bool) {
	m := getMetrics()
	m.actorMessagesTotal.WithLabelValues(msgType, statusLabel(success)).Inc()
	m.actorMessageDuration.WithLabelValues(msgType).Observe(duration.Seconds())
}

func (ActorMetrics) MessagePanic(msgType string) {
	getMetrics().actorPanicsTotal.WithLabelValues(msgType).Inc()
}

func (ActorMetrics) InboxDepth(id actor.ActorID, depth int) {
	getMetrics().actorInboxDepth.WithLabelValues(string(id)).Set(float64(depth))
}
