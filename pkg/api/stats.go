package api

import (
	"net/http"

	"github.com/cuemby/stratum/pkg/types"
)

// statsResponse is the GET /stats body: a snapshot of queue occupancy by
// status plus how full the task store is, the same figures the Prometheus
// collector already reads from storage.Store, surfaced here for
// `stratum stats` without requiring a Prometheus scrape.
type statsResponse struct {
	TasksByStatus map[types.Status]int `json:"tasksByStatus"`
	QueueUsed     float64              `json:"queueUsedFraction"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	byStatus, err := s.store.CountByStatus()
	if err != nil {
		writeError(w, err)
		return
	}
	used, err := s.store.UsedFraction()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{TasksByStatus: byStatus, QueueUsed: used})
}
