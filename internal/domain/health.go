package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// DashboardMetrics is returned by GET /v1/metrics/dashboard.
type DashboardMetrics struct {
	PollCycles      int64   `json:"pollCycles"`
	PollErrorRate   float64 `json:"pollErrorRate"`
	StaleDiscarded  int64   `json:"staleDiscarded"`
	AlertsRaised    int64   `json:"alertsRaised"`
	CommandsFailed  int64   `json:"commandsFailed"`
	UpstreamErrors  int64   `json:"upstreamErrors"`
	OutletCacheRate float64 `json:"outletCacheHitRate"`
	ActiveWatchers  int     `json:"activeWatchers"`
	Period          string  `json:"period"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
