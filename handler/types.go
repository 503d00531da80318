package handler

import "github.com/joeblew999/dashdeck/internal/export"

// Response types for consistent API contracts across all platforms

// HealthResponse is returned by /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Runtime string `json:"runtime,omitempty"`
}

// RootResponse is returned by /api
type RootResponse struct {
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Runtime   string   `json:"runtime"`
	Endpoints []string `json:"endpoints"`
	Backends  []string `json:"backends"`
}

// StartResponse is returned by POST /exports
type StartResponse struct {
	ID     string           `json:"id"`
	Status export.JobStatus `json:"status"`
}

// JobsResponse is returned by GET /exports
type JobsResponse struct {
	Jobs  []export.JobStatus `json:"jobs"`
	Count int                `json:"count"`
}

// ErrorResponse is returned for all error cases
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}
