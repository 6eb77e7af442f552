package types

import "time"

// Query filters a task or batch listing (spec.md §4.1, §6). A nil slice or
// pointer means "no filter on this dimension".
type Query struct {
	UIDs       []TaskID
	BatchUIDs  []BatchID
	CanceledBy []TaskID
	Kinds      []Kind
	Statuses   []Status
	IndexUIDs  []string

	AfterEnqueuedAt  *time.Time
	BeforeEnqueuedAt *time.Time
	AfterStartedAt   *time.Time
	BeforeStartedAt  *time.Time
	AfterFinishedAt  *time.Time
	BeforeFinishedAt *time.Time

	Limit   uint32
	From    *TaskID
	Reverse bool
}

// DefaultLimit is applied by the API layer when a caller omits Limit.
const DefaultLimit = 20

// AuthorizeIndexes intersects the query's IndexUIDs filter with the set of
// indexes the caller is permitted to see. A nil permitted set means
// unrestricted (e.g. an admin key) and leaves the query unchanged.
func (q Query) AuthorizeIndexes(permitted map[string]bool) Query {
	if permitted == nil {
		return q
	}
	if len(q.IndexUIDs) == 0 {
		allowed := make([]string, 0, len(permitted))
		for idx := range permitted {
			allowed = append(allowed, idx)
		}
		q.IndexUIDs = allowed
		return q
	}
	filtered := make([]string, 0, len(q.IndexUIDs))
	for _, idx := range q.IndexUIDs {
		if permitted[idx] {
			filtered = append(filtered, idx)
		}
	}
	q.IndexUIDs = filtered
	return q
}

// ParseQueryDate parses a date the way the listing API accepts them: either
// a bare YYYY-MM-DD (midnight UTC) or a full RFC-3339 timestamp. When
// inclusiveNextDay is true (used for the `after*` filters on a bare date)
// the returned time is advanced by 24 hours to the start of the next day,
// so an `after*` filter leaves out the named day itself.
func ParseQueryDate(s string, inclusiveNextDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if inclusiveNextDay {
		t = t.Add(24 * time.Hour)
	}
	return t, nil
}
