package server

import (
	"sync"
	"time"
)

// Metrics holds application metrics
type Metrics struct {
	mu sync.RWMutex

	// HTTP
	requestsTotal    int64
	requestErrors5xx int64
	requestErrors4xx int64

	// API
	employeeListsTotal    int64
	employeeListErrors    int64
	employeeListDuration  time.Duration
	fruitPicksTotal       int64
	fruitPickErrorsTotal  int64
	pageRendersTotal      int64
	getStartedClicksTotal int64
}

var globalMetrics = &Metrics{}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++

	if statusCode >= 500 {
		m.requestErrors5xx++
	} else if statusCode >= 400 {
		m.requestErrors4xx++
	}
}

// RecordEmployeeList records one employee list query.
func (m *Metrics) RecordEmployeeList(duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.employeeListErrors++
		return
	}
	m.employeeListsTotal++
	m.employeeListDuration += duration
}

// RecordFruitPick records a stored or failed pick.
func (m *Metrics) RecordFruitPick(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.fruitPicksTotal++
	} else {
		m.fruitPickErrorsTotal++
	}
}

// RecordPageRender counts home page renders.
func (m *Metrics) RecordPageRender() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageRendersTotal++
}

// RecordGetStarted counts follow-ups of the get-started link.
func (m *Metrics) RecordGetStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getStartedClicksTotal++
}

// Snapshot returns a snapshot of current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		RequestsTotal:           m.requestsTotal,
		RequestErrors5xx:        m.requestErrors5xx,
		RequestErrors4xx:        m.requestErrors4xx,
		EmployeeListsTotal:      m.employeeListsTotal,
		EmployeeListErrorsTotal: m.employeeListErrors,
		EmployeeListAvgMs:       avgDuration(m.employeeListDuration, m.employeeListsTotal),
		FruitPicksTotal:         m.fruitPicksTotal,
		FruitPickErrorsTotal:    m.fruitPickErrorsTotal,
		PageRendersTotal:        m.pageRendersTotal,
		GetStartedClicksTotal:   m.getStartedClicksTotal,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	RequestsTotal    int64 `json:"requests_total"`
	RequestErrors5xx int64 `json:"request_errors_5xx"`
	RequestErrors4xx int64 `json:"request_errors_4xx"`

	EmployeeListsTotal      int64   `json:"employee_lists_total"`
	EmployeeListErrorsTotal int64   `json:"employee_list_errors_total"`
	EmployeeListAvgMs       float64 `json:"employee_list_avg_ms"`
	FruitPicksTotal         int64   `json:"fruit_picks_total"`
	FruitPickErrorsTotal    int64   `json:"fruit_pick_errors_total"`
	PageRendersTotal        int64   `json:"page_renders_total"`
	GetStartedClicksTotal   int64   `json:"get_started_clicks_total"`
}

func avgDuration(total time.Duration, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total.Milliseconds()) / float64(count)
}
