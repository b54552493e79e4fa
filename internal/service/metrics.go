package service

import (
	"sort"
	"sync"
	"time"
)

// MetricsCollector aggregates per-tool execution counters for the life of
// the process.
type MetricsCollector struct {
	mu    sync.Mutex
	tools map[string]*ToolMetrics
}

// ToolMetrics holds counters for one diagnostic tool.
type ToolMetrics struct {
	Tool          string        `json:"tool" yaml:"tool"`
	Calls         int           `json:"calls" yaml:"calls"`
	CacheHits     int           `json:"cache_hits" yaml:"cache_hits"`
	Coalesced     int           `json:"coalesced" yaml:"coalesced"`
	Attempts      int           `json:"attempts" yaml:"attempts"`
	Retries       int           `json:"retries" yaml:"retries"`
	Failures      int           `json:"failures" yaml:"failures"`
	TotalDuration time.Duration `json:"total_duration" yaml:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration" yaml:"avg_duration"`
}

// NewMetricsCollector creates a new collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{tools: make(map[string]*ToolMetrics)}
}

func (m *MetricsCollector) get(tool string) *ToolMetrics {
	tm, ok := m.tools[tool]
	if !ok {
		tm = &ToolMetrics{Tool: tool}
		m.tools[tool] = tm
	}
	return tm
}

// RecordCall counts a policy call and how it was served.
func (m *MetricsCollector) RecordCall(tool string, cacheHit, coalesced, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm := m.get(tool)
	tm.Calls++
	if cacheHit {
		tm.CacheHits++
	}
	if coalesced {
		tm.Coalesced++
	}
	if failed {
		tm.Failures++
	}
}

// RecordAttempt counts one physical execution.
func (m *MetricsCollector) RecordAttempt(tool string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm := m.get(tool)
	tm.Attempts++
	tm.TotalDuration += d
	tm.AvgDuration = tm.TotalDuration / time.Duration(tm.Attempts)
}

// RecordRetry counts a retry decision.
func (m *MetricsCollector) RecordRetry(tool string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(tool).Retries++
}

// Snapshot returns a copy of all counters ordered by tool name.
func (m *MetricsCollector) Snapshot() []ToolMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ToolMetrics, 0, len(m.tools))
	for _, tm := range m.tools {
		out = append(out, *tm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
	return out
}

// Tool returns the counters for one tool.
func (m *MetricsCollector) Tool(tool string) ToolMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tm, ok := m.tools[tool]; ok {
		return *tm
	}
	return ToolMetrics{Tool: tool}
}
