package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	stratumerrors "github.com/cuemby/stratum/pkg/errors"
	"github.com/cuemby/stratum/pkg/types"
	"github.com/google/uuid"
)

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IndexUID   string  `json:"indexUid"`
		PrimaryKey *string `json:"primaryKey,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.IndexUID == "" {
		badRequest(w, "missing_index_uid", "indexUid is required")
		return
	}
	s.registerTask(w, &types.IndexCreation{IndexUID: body.IndexUID, PrimaryKey: body.PrimaryKey}, &body.IndexUID)
}

func (s *Server) handleUpdateIndex(w http.ResponseWriter, r *http.Request) {
	indexUID := r.PathValue("indexUid")
	var body struct {
		PrimaryKey *string `json:"primaryKey,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	s.registerTask(w, &types.IndexUpdate{IndexUID: indexUID, PrimaryKey: body.PrimaryKey}, &indexUID)
}

func (s *Server) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	indexUID := r.PathValue("indexUid")
	s.registerTask(w, &types.IndexDeletion{IndexUID: indexUID}, &indexUID)
}

func (s *Server) handleCompactIndex(w http.ResponseWriter, r *http.Request) {
	indexUID := r.PathValue("indexUid")
	s.registerTask(w, &types.IndexCompaction{IndexUID: indexUID}, &indexUID)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	indexUID := r.PathValue("indexUid")
	var newSettings map[string]any
	if !decodeBody(w, r, &newSettings) {
		return
	}
	s.registerTask(w, &types.SettingsUpdate{
		IndexUID:           indexUID,
		NewSettings:        newSettings,
		AllowIndexCreation: r.URL.Query().Get("allowIndexCreation") != "false",
	}, &indexUID)
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	indexUID := r.PathValue("indexUid")
	s.registerTask(w, &types.SettingsUpdate{IndexUID: indexUID, IsDeletion: true}, &indexUID)
}

func (s *Server) handleSwapIndexes(w http.ResponseWriter, r *http.Request) {
	var pairs []types.SwapPair
	if !decodeBody(w, r, &pairs) {
		return
	}
	if len(pairs) == 0 {
		badRequest(w, "missing_swap_pairs", "at least one swap pair is required")
		return
	}
	s.registerTask(w, &types.IndexSwap{Swaps: pairs}, nil)
}

// handleAddDocuments stages the request body — a JSON array of documents —
// as a content file under the configured update-files directory and
// registers the task that will index it (spec.md §3's out-of-band document
// payload, grounded in pkg/executor's readContentFile expecting exactly
// this on-disk shape).
func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	indexUID := r.PathValue("indexUid")

	var docs []map[string]any
	if !decodeBody(w, r, &docs) {
		return
	}

	path := filepath.Join(s.opts.DataDir, s.opts.UpdateFilePath, uuid.New().String()+".json")
	if err := stageContentFile(path, docs); err != nil {
		writeError(w, stratumerrors.Internal("failed to stage document content file", err))
		return
	}

	method := types.MethodReplace
	if r.URL.Query().Get("method") == string(types.MethodUpdate) {
		method = types.MethodUpdate
	}

	var primaryKey *string
	if pk := r.URL.Query().Get("primaryKey"); pk != "" {
		primaryKey = &pk
	}

	s.registerTask(w, &types.DocumentAdditionOrUpdate{
		IndexUID:           indexUID,
		PrimaryKey:         primaryKey,
		Method:             method,
		ContentFile:        path,
		DocumentsCount:     int64(len(docs)),
		AllowIndexCreation: r.URL.Query().Get("allowIndexCreation") != "false",
	}, &indexUID)
}

func (s *Server) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	indexUID := r.PathValue("indexUid")
	var ids []string
	if !decodeBody(w, r, &ids) {
		return
	}
	s.registerTask(w, &types.DocumentDeletion{IndexUID: indexUID, DocumentIDs: ids}, &indexUID)
}

func (s *Server) handleDeleteDocumentsByFilter(w http.ResponseWriter, r *http.Request) {
	indexUID := r.PathValue("indexUid")
	var body struct {
		Filter string `json:"filter"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Filter == "" {
		badRequest(w, "missing_filter", "filter is required")
		return
	}
	s.registerTask(w, &types.DocumentDeletionByFilter{IndexUID: indexUID, Filter: body.Filter}, &indexUID)
}

func (s *Server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	indexUID := r.PathValue("indexUid")
	s.registerTask(w, &types.DocumentClear{IndexUID: indexUID}, &indexUID)
}

// decodeBody JSON-decodes r's body into dst, writing a 400 response and
// returning false on any decode failure. An empty body is not a failure:
// it returns true and leaves dst unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		badRequest(w, "invalid_request_body", err.Error())
		return false
	}
	return true
}

func stageContentFile(path string, docs []map[string]any) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
