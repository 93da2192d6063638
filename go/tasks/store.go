package tasks

import "context"

// Store persists tasks and jobs for audit and for remote reconstruction.
// A task row is the full wire form keyed by task_id; a job row references
// its tasks by id. Writes are idempotent by key.
type Store interface {
	PutTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (Task, error)
	PutJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
}

// PersistSchedule writes every job of a schedule, tasks included.
func PersistSchedule(ctx context.Context, store Store, schedule *Schedule) error {
	for _, job := range schedule.Jobs {
		if err := store.PutJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}
