package tasks

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	tasks map[string]Task
	jobs  map[string]*Job
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tasks: map[string]Task{}, jobs: map[string]*Job{}}
}

func (s *memoryStore) PutTask(ctx context.Context, task Task) error {
	s.tasks[task.ID()] = task
	return nil
}

func (s *memoryStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return task, nil
}

func (s *memoryStore) PutJob(ctx context.Context, job *Job) error {
	for _, task := range job.Tasks() {
		if err := s.PutTask(ctx, task); err != nil {
			return err
		}
	}
	s.jobs[job.JobID] = job
	return nil
}

func (s *memoryStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	return job, nil
}

func TestPersistSchedule(t *testing.T) {
	var warehouse = jobFixture(t)
	schedule, err := ScheduleFromTables(warehouse.Filter(nil, nil, true), DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, schedule.Jobs)

	var store = newMemoryStore()
	require.NoError(t, PersistSchedule(context.Background(), store, schedule))

	for _, job := range schedule.Jobs {
		stored, err := store.GetJob(context.Background(), job.JobID)
		require.NoError(t, err)
		require.Equal(t, job, stored)
		for _, task := range job.Tasks() {
			storedTask, err := store.GetTask(context.Background(), task.ID())
			require.NoError(t, err)
			require.Equal(t, task, storedTask)
		}
	}

	// Re-persisting the same schedule is idempotent by key.
	require.NoError(t, PersistSchedule(context.Background(), store, schedule))
	require.Len(t, store.jobs, len(schedule.Jobs))
}
