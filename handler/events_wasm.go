//go:build js || tinygo || cloudflare

package handler

import "net/http"

// handleEvents is unavailable where connections cannot be hijacked; clients poll /exports/{id}
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotImplemented, "event streaming is not available on this runtime, poll /exports/{id}")
}
