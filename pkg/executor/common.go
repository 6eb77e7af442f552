package executor

import (
	"time"

	stratumerrors "github.com/cuemby/stratum/pkg/errors"
	"github.com/cuemby/stratum/pkg/types"
	"github.com/google/uuid"
)

func newIndexUID() string {
	return uuid.New().String()
}

// succeedTask finalizes task as succeeded with details and persists it.
// Persistence failures are logged rather than returned. Document and
// settings handlers call it inside the index write transaction, before
// that transaction commits.
func (e *Executor) succeedTask(task *types.Task, details *types.Details) {
	now := time.Now()
	task.Status = types.StatusSucceeded
	task.Details = details
	task.FinishedAt = &now
	if err := e.store.Update(task); err != nil {
		e.logger.Error().Err(err).Uint32("task", task.UID).Msg("failed to persist succeeded task")
	}
}

// failTask finalizes task as failed with err's taxonomy-tagged message.
func (e *Executor) failTask(task *types.Task, err error) {
	now := time.Now()
	task.Status = types.StatusFailed
	task.Details = task.Details.ToFailed()
	task.Error = responseError(err)
	task.FinishedAt = &now
	if uerr := e.store.Update(task); uerr != nil {
		e.logger.Error().Err(uerr).Uint32("task", task.UID).Msg("failed to persist failed task")
	}
}

func responseError(err error) *types.ResponseError {
	var serr *stratumerrors.Error
	if stratumerrors.As(err, &serr) {
		return &types.ResponseError{
			Message: serr.Error(),
			Code:    serr.Code,
			Type:    string(serr.ErrType),
			Link:    serr.Link,
		}
	}
	return &types.ResponseError{
		Message: err.Error(),
		Code:    "internal_error",
		Type:    string(stratumerrors.TypeInternal),
	}
}

func int64p(v int64) *int64 { return &v }
