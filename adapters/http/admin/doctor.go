package admin

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"
)

// DoctorResponse represents the diagnostics response.
type DoctorResponse struct {
	Status     string         `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  string         `json:"timestamp"`
	Version    string         `json:"version"`
	Checks     []HealthCheck  `json:"checks"`
	System     SystemInfo     `json:"system"`
	Statistics StatisticsInfo `json:"statistics"`
}

// HealthCheck represents a single check result.
type HealthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "warn", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// SystemInfo represents process information.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	MemAlloc     string `json:"mem_alloc"`
	MemSys       string `json:"mem_sys"`
	Uptime       string `json:"uptime,omitempty"`
}

// StatisticsInfo summarizes today's gateway traffic.
type StatisticsInfo struct {
	RequestsToday   int64 `json:"requests_today"`
	ErrorsToday     int64 `json:"errors_today"`
	RejectionsTotal int64 `json:"rejections_total"`
	WindowRequests  int   `json:"window_requests"`
}

var startTime = time.Now()

// Doctor runs the diagnostics checks. It answers 503 only when a check fails.
func (h *Handler) Doctor(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	snap := h.gateway.UsageSnapshot()

	response := DoctorResponse{
		Status:    "healthy",
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Checks: []HealthCheck{
			h.checkProvider(),
			h.checkTelemetry(ctx),
			checkBudget(snap.Utilization, snap.CostCents, snap.DailyBudgetCents),
			checkAlerts(snap.Alerts.HighErrorRate, snap.Alerts.HighLatency),
			checkMemory(),
		},
	}

	hasWarn := false
	hasFail := false
	for _, check := range response.Checks {
		switch check.Status {
		case "warn":
			hasWarn = true
		case "fail":
			hasFail = true
		}
	}

	if hasFail {
		response.Status = "unhealthy"
	} else if hasWarn {
		response.Status = "degraded"
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response.System = SystemInfo{
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		MemAlloc:     formatBytes(memStats.Alloc),
		MemSys:       formatBytes(memStats.Sys),
		Uptime:       time.Since(startTime).Round(time.Second).String(),
	}

	var rejections int64
	for _, n := range snap.Rejections {
		rejections += n
	}
	response.Statistics = StatisticsInfo{
		RequestsToday:   snap.Daily.Requests,
		ErrorsToday:     snap.Daily.Errors,
		RejectionsTotal: rejections,
		WindowRequests:  snap.Window.Requests,
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, response)
}

func (h *Handler) checkProvider() HealthCheck {
	check := HealthCheck{Name: "provider", Status: "pass", Message: "API key configured"}
	if !h.gateway.ProviderConfigured() {
		check.Status = "fail"
		check.Message = "API key not set; chat and feedback answer PROVIDER_NOT_CONFIGURED"
	}
	return check
}

func (h *Handler) checkTelemetry(ctx context.Context) HealthCheck {
	check := HealthCheck{Name: "telemetry", Status: "pass"}

	if h.telemetry == nil {
		check.Message = "Records go to the log sink"
		return check
	}

	start := time.Now()
	_, err := h.telemetry.DailySummaries(ctx, startOfDay(h.clock.Now()))
	check.Latency = time.Since(start).String()

	if err != nil {
		check.Status = "fail"
		check.Message = fmt.Sprintf("Telemetry query failed: %v", err)
	} else {
		check.Message = "Telemetry database healthy"
	}
	return check
}

func checkBudget(utilization, costCents float64, budgetCents int64) HealthCheck {
	check := HealthCheck{
		Name:    "budget",
		Status:  "pass",
		Message: fmt.Sprintf("%.2f of %d cents spent today", costCents, budgetCents),
	}
	switch {
	case utilization >= 1:
		check.Status = "warn"
		check.Message = "Daily budget exhausted: " + check.Message
	case utilization >= 0.8:
		check.Status = "warn"
		check.Message = "Over 80% of daily budget: " + check.Message
	}
	return check
}

func checkAlerts(highErrorRate, highLatency bool) HealthCheck {
	check := HealthCheck{Name: "alerts", Status: "pass", Message: "No provider alerts in the last hour"}

	var active []string
	if highErrorRate {
		active = append(active, "high error rate")
	}
	if highLatency {
		active = append(active, "high latency")
	}
	if len(active) > 0 {
		check.Status = "warn"
		check.Message = "Active: " + strings.Join(active, ", ")
	}
	return check
}

func checkMemory() HealthCheck {
	check := HealthCheck{Name: "memory", Status: "pass"}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Warn if using more than 500MB
	if memStats.Alloc > 500*1024*1024 {
		check.Status = "warn"
		check.Message = fmt.Sprintf("High memory usage: %s", formatBytes(memStats.Alloc))
	} else {
		check.Message = fmt.Sprintf("Memory usage: %s", formatBytes(memStats.Alloc))
	}

	return check
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
