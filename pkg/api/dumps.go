package api

import (
	"net/http"

	"github.com/cuemby/stratum/pkg/types"
)

// handleCreateDump registers a dump-creation task; pkg/executor's global
// handler performs the actual archive write when the scheduler reaches it.
func (s *Server) handleCreateDump(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Keys        []map[string]any `json:"keys"`
		InstanceUID *string          `json:"instanceUid,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	s.registerTask(w, &types.DumpCreation{Keys: body.Keys, InstanceUID: body.InstanceUID}, nil)
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	s.registerTask(w, &types.SnapshotCreation{}, nil)
}
