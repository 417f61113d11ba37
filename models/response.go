package models

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`

	// Code is the machine-readable error code (see ErrCode* constants).
	Code string `json:"code,omitempty"`
}

// EmptyResponse is returned with 200 when a query yields no products.
type EmptyResponse struct {
	Results []Product `json:"results"`
	Message string    `json:"message"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the rendering session pool.
type PoolStats struct {
	Target    int   `json:"target"`
	Idle      int   `json:"idle"`
	InUse     int   `json:"in_use"`
	Created   int64 `json:"created"`
	Destroyed int64 `json:"destroyed"`
}
