package api

import (
	"net/http"

	"github.com/cuemby/stratum/pkg/types"
)

// batchView adds the derived ISO-8601 Duration field to a stored batch, the
// same treatment Task gets via View.
type batchView struct {
	*types.Batch
	Duration *string `json:"duration,omitempty"`
}

func newBatchView(b *types.Batch) batchView {
	v := batchView{Batch: b}
	if d := b.Duration(); d != nil {
		s := types.FormatDuration(*d)
		v.Duration = &s
	}
	return v
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q, err := parseTaskQuery(r)
	if err != nil {
		badRequest(w, "invalid_batch_filter", err.Error())
		return
	}
	batches, total, err := s.store.GetBatches(q)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]batchView, len(batches))
	for i, b := range batches {
		views[i] = newBatchView(b)
	}
	writeJSON(w, http.StatusOK, batchListResponse{Results: views, Total: total, Limit: q.Limit})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	uid, err := pathUint(r, "uid")
	if err != nil {
		badRequest(w, "invalid_batch_uid", err.Error())
		return
	}
	batch, err := s.store.GetBatch(uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchView(batch))
}

type batchListResponse struct {
	Results []batchView `json:"results"`
	Total   int         `json:"total"`
	Limit   uint32      `json:"limit"`
}
