package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	stratumerrors "github.com/cuemby/stratum/pkg/errors"
	"github.com/cuemby/stratum/pkg/types"
)

// registerTask is the common path every mutating endpoint funnels through:
// build a task around content, persist it with status enqueued, wake the
// run loop, and respond with the synchronous register envelope (spec.md
// §6). The actual operation only ever runs later, on the scheduler's
// dedicated goroutine.
func (s *Server) registerTask(w http.ResponseWriter, content types.Content, indexUID *string) {
	task := &types.Task{
		Kind:     content.Kind(),
		IndexUID: indexUID,
		Content:  content,
	}
	registered, err := s.store.Register(task, nil, false)
	if err != nil {
		writeError(w, err)
		return
	}
	s.sched.Wake()
	writeJSON(w, http.StatusAccepted, types.RegisterResponse{
		TaskUID:    registered.UID,
		IndexUID:   registered.IndexUID,
		Status:     registered.Status,
		Kind:       registered.Kind,
		EnqueuedAt: registered.EnqueuedAt,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q, err := parseTaskQuery(r)
	if err != nil {
		badRequest(w, "invalid_task_filter", err.Error())
		return
	}
	tasks, total, err := s.store.GetTasks(q)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]types.View, len(tasks))
	for i, t := range tasks {
		views[i] = t.View()
	}
	writeJSON(w, http.StatusOK, taskListResponse{Results: views, Total: total, Limit: q.Limit})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	uid, err := pathUint(r, "uid")
	if err != nil {
		badRequest(w, "invalid_task_uid", err.Error())
		return
	}
	task, err := s.store.GetTask(uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task.View())
}

func (s *Server) handleCancelTasks(w http.ResponseWriter, r *http.Request) {
	s.registerBulkTaskOp(w, r, types.KindTaskCancellation, func(q types.Query, uids []types.TaskID) types.Content {
		return &types.TaskCancellation{Query: types.CancellationQuery{Raw: r.URL.RawQuery}, Tasks: uids}
	})
}

func (s *Server) handleDeleteTasks(w http.ResponseWriter, r *http.Request) {
	s.registerBulkTaskOp(w, r, types.KindTaskDeletion, func(q types.Query, uids []types.TaskID) types.Content {
		return &types.TaskDeletion{Query: types.CancellationQuery{Raw: r.URL.RawQuery}, Tasks: uids}
	})
}

// registerBulkTaskOp resolves the query-filtered task set and registers a
// global task (cancellation or deletion) naming every matching uid, the way
// Meilisearch's /tasks/cancel and /tasks/delete resolve their filter
// up front rather than re-evaluating it when the task runs.
func (s *Server) registerBulkTaskOp(w http.ResponseWriter, r *http.Request, kind types.Kind, build func(types.Query, []types.TaskID) types.Content) {
	q, err := parseTaskQuery(r)
	if err != nil {
		badRequest(w, "invalid_task_filter", err.Error())
		return
	}
	if len(q.UIDs) == 0 && len(q.Statuses) == 0 && len(q.Kinds) == 0 && len(q.IndexUIDs) == 0 {
		badRequest(w, "missing_task_filters", "at least one filter is required to "+string(kind))
		return
	}
	// Resolve every match, not just one listing page.
	q.Limit = ^uint32(0)
	matched, _, err := s.store.GetTasks(q)
	if err != nil {
		writeError(w, err)
		return
	}
	uids := make([]types.TaskID, 0, len(matched))
	for _, t := range matched {
		uids = append(uids, t.UID)
	}
	s.registerTask(w, build(q, uids), nil)
}

type taskListResponse struct {
	Results []types.View `json:"results"`
	Total   int          `json:"total"`
	Limit   uint32       `json:"limit"`
}

// parseTaskQuery builds a types.Query from the request's query string,
// shared by listing and the two bulk task operations. Unset dimensions are
// left nil so Query's own "no filter" semantics apply.
func parseTaskQuery(r *http.Request) (types.Query, error) {
	v := r.URL.Query()
	q := types.Query{Limit: types.DefaultLimit}

	if uids, err := parseUintList(v.Get("uids")); err != nil {
		return q, err
	} else if uids != nil {
		q.UIDs = uids
	}
	if batchUIDs, err := parseUintList(v.Get("batchUids")); err != nil {
		return q, err
	} else if batchUIDs != nil {
		q.BatchUIDs = batchUIDs
	}
	if canceledBy, err := parseUintList(v.Get("canceledBy")); err != nil {
		return q, err
	} else if canceledBy != nil {
		q.CanceledBy = canceledBy
	}
	if kinds := v.Get("types"); kinds != "" {
		for _, k := range strings.Split(kinds, ",") {
			q.Kinds = append(q.Kinds, types.Kind(k))
		}
	}
	if statuses := v.Get("statuses"); statuses != "" {
		for _, st := range strings.Split(statuses, ",") {
			q.Statuses = append(q.Statuses, types.Status(st))
		}
	}
	if idx := v.Get("indexUids"); idx != "" {
		q.IndexUIDs = strings.Split(idx, ",")
	}

	var err error
	if q.AfterEnqueuedAt, err = parseQueryDateField(v.Get("afterEnqueuedAt"), true); err != nil {
		return q, err
	}
	if q.BeforeEnqueuedAt, err = parseQueryDateField(v.Get("beforeEnqueuedAt"), false); err != nil {
		return q, err
	}
	if q.AfterStartedAt, err = parseQueryDateField(v.Get("afterStartedAt"), true); err != nil {
		return q, err
	}
	if q.BeforeStartedAt, err = parseQueryDateField(v.Get("beforeStartedAt"), false); err != nil {
		return q, err
	}
	if q.AfterFinishedAt, err = parseQueryDateField(v.Get("afterFinishedAt"), true); err != nil {
		return q, err
	}
	if q.BeforeFinishedAt, err = parseQueryDateField(v.Get("beforeFinishedAt"), false); err != nil {
		return q, err
	}

	if lim := v.Get("limit"); lim != "" {
		n, err := strconv.ParseUint(lim, 10, 32)
		if err != nil {
			return q, stratumerrors.InvalidRequest("invalid_limit", "limit must be a non-negative integer")
		}
		q.Limit = uint32(n)
	}
	if from := v.Get("from"); from != "" {
		n, err := strconv.ParseUint(from, 10, 32)
		if err != nil {
			return q, stratumerrors.InvalidRequest("invalid_from", "from must be a non-negative integer")
		}
		id := types.TaskID(n)
		q.From = &id
	}
	if v.Get("reverse") == "true" {
		q.Reverse = true
	}
	return q, nil
}

func parseQueryDateField(s string, inclusiveNextDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := types.ParseQueryDate(s, inclusiveNextDay)
	if err != nil {
		return nil, stratumerrors.InvalidRequest("invalid_date", "could not parse date "+strconv.Quote(s))
	}
	return &t, nil
}

func parseUintList(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, stratumerrors.InvalidRequest("invalid_uid_list", "could not parse uid list "+strconv.Quote(s))
		}
		out = append(out, uint32(n))
	}
	return out, nil
}

func pathUint(r *http.Request, name string) (uint32, error) {
	n, err := strconv.ParseUint(r.PathValue(name), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
