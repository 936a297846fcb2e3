package model

// HealthStatus represents the health state of a CDN node
type HealthStatus struct {
	NodeID    string        `json:"node_id"`
	Role      string        `json:"role"`
	Status    NodeStatus    `json:"status"`
	Timestamp int64         `json:"timestamp"`
	Checks    []CheckResult `json:"checks,omitempty"`
}

// NodeStatus defines the operational status of a node
type NodeStatus string

const (
	NodeStatusHealthy   NodeStatus = "healthy"
	NodeStatusDegraded  NodeStatus = "degraded"
	NodeStatusUnhealthy NodeStatus = "unhealthy"
)

// CheckStatus is the outcome of one health check
type CheckStatus string

const (
	CheckHealthy  CheckStatus = "healthy"
	CheckWarning  CheckStatus = "warning"
	CheckCritical CheckStatus = "critical"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string      `json:"name"`
	Status    CheckStatus `json:"status"`
	Message   string      `json:"message"`
	Timestamp int64       `json:"timestamp"`
}
