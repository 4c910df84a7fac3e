// prometheus.go - Prometheus text exporter for the internal metrics and
// the shared pool.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"employee-portal/internal/db"
)

var serverStartTime = time.Now()

// PrometheusExporter converts internal metrics to Prometheus format
type PrometheusExporter struct {
	version string
	pool    func() db.PoolStats
}

// NewPrometheusExporter creates an exporter; pool may be nil.
func NewPrometheusExporter(version string, pool func() db.PoolStats) *PrometheusExporter {
	return &PrometheusExporter{version: version, pool: pool}
}

func writeMetric(b *strings.Builder, name, typ, help string, value interface{}) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
	fmt.Fprintf(b, "%s %v\n\n", name, value)
}

// Handler returns an HTTP handler for the /metrics endpoint
func (p *PrometheusExporter) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := GetMetrics().Snapshot()

		var out strings.Builder

		out.WriteString("# HELP ep_info Application version info\n")
		out.WriteString("# TYPE ep_info gauge\n")
		fmt.Fprintf(&out, "ep_info{version=\"%s\"} 1\n\n", prometheusLabel(p.version))

		writeMetric(&out, "ep_requests_total", "counter", "Total number of HTTP requests", snapshot.RequestsTotal)
		writeMetric(&out, "ep_request_errors_4xx_total", "counter", "HTTP responses with a 4xx status", snapshot.RequestErrors4xx)
		writeMetric(&out, "ep_request_errors_5xx_total", "counter", "HTTP responses with a 5xx status", snapshot.RequestErrors5xx)
		writeMetric(&out, "ep_page_renders_total", "counter", "Home page renders", snapshot.PageRendersTotal)
		writeMetric(&out, "ep_get_started_total", "counter", "Get started redirects served", snapshot.GetStartedClicksTotal)
		writeMetric(&out, "ep_employee_lists_total", "counter", "Employee list queries", snapshot.EmployeeListsTotal)
		writeMetric(&out, "ep_employee_list_errors_total", "counter", "Failed employee list queries", snapshot.EmployeeListErrorsTotal)
		writeMetric(&out, "ep_fruit_picks_total", "counter", "Stored fruit picks", snapshot.FruitPicksTotal)
		writeMetric(&out, "ep_fruit_pick_errors_total", "counter", "Rejected or failed fruit picks", snapshot.FruitPickErrorsTotal)

		if p.pool != nil {
			s := p.pool()
			writeMetric(&out, "ep_pool_max_conns", "gauge", "Maximum size of the connection pool", s.MaxConns)
			writeMetric(&out, "ep_pool_total_conns", "gauge", "Connections currently open", s.TotalConns)
			writeMetric(&out, "ep_pool_idle_conns", "gauge", "Connections currently idle", s.IdleConns)
			writeMetric(&out, "ep_pool_acquired_conns", "gauge", "Connections currently in use", s.AcquiredConns)
			writeMetric(&out, "ep_pool_acquire_total", "counter", "Successful acquires from the pool", s.AcquireCount)
			writeMetric(&out, "ep_pool_empty_acquire_total", "counter", "Acquires that had to wait for a connection", s.EmptyAcquireCount)
		}

		writeMetric(&out, "ep_uptime_seconds", "counter", "Application uptime in seconds",
			fmt.Sprintf("%.0f", time.Since(serverStartTime).Seconds()))

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out.String()))
	}
}

// Helper function to format label safely for Prometheus
func prometheusLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return value
}
