package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sluicedata/sluice/go/catalog"
	"github.com/sluicedata/sluice/go/config"
	"github.com/sluicedata/sluice/go/wire"
)

// overridable in tests
var timeNow = time.Now

// Job is the unit of work for one table: clean the stage prefix, run the
// extract batches, load the staged files. Immutable once planned.
type Job struct {
	JobID   string `json:"job_id"`
	Clean   Task   `json:"clean"`
	Extract []Task `json:"extract"`
	Load    Task   `json:"load"`
}

// Tasks returns the job's tasks in execution order.
func (j *Job) Tasks() []Task {
	var out = []Task{j.Clean}
	out = append(out, j.Extract...)
	return append(out, j.Load)
}

// UnmarshalJSON rebuilds the job's tasks through the task registry.
func (j *Job) UnmarshalJSON(data []byte) error {
	var raw struct {
		JobID   string            `json:"job_id"`
		Clean   json.RawMessage   `json:"clean"`
		Extract []json.RawMessage `json:"extract"`
		Load    json.RawMessage   `json:"load"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding job: %w", err)
	}
	j.JobID = raw.JobID
	var err error
	if j.Clean, err = taskFromJSON(raw.Clean); err != nil {
		return err
	}
	j.Extract = nil
	for _, data := range raw.Extract {
		var task Task
		if task, err = taskFromJSON(data); err != nil {
			return err
		}
		j.Extract = append(j.Extract, task)
	}
	j.Load, err = taskFromJSON(raw.Load)
	return err
}

func taskFromJSON(data []byte) (Task, error) {
	var msg, err = wire.FromJSON(data)
	if err != nil {
		return nil, err
	}
	task, ok := msg.(Task)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not executable", wire.ErrUnknownTaskType, msg.TaskType())
	}
	return task, nil
}

// JobFromTable plans the job of one table. The options are copied so that
// per-job adjustments never leak into the caller's value.
func JobFromTable(table *catalog.Table, opts Options) (*Job, error) {
	var options = opts
	if options.Batches < 1 {
		options.Batches = 1
	}
	if options.FailOnError == "" {
		options.FailOnError = "false"
	}
	if options.Start == "" && table.Meta.LookBackDays > 0 {
		if table.Meta.TimestampKey != "" {
			options.Batches = table.Meta.LookBackDays
		} else {
			options.Batches = 1
		}
		var loc, err = time.LoadLocation(table.Meta.Timezone)
		if err != nil {
			return nil, fmt.Errorf("loading timezone %q: %w", table.Meta.Timezone, err)
		}
		var end = timeNow().In(loc)
		var start = end.AddDate(0, 0, -table.Meta.LookBackDays)
		options.Start = start.Format(config.DateFormat)
		options.End = end.Format(config.DateFormat)
	}
	if table.Meta.Batches > options.Batches {
		options.Batches = table.Meta.Batches
	}
	options.TotalRows = table.Meta.TotalRows

	var jobID = newTaskID()
	var extractTasks = make([]Task, 0, options.Batches)
	for taskNumber := 0; taskNumber < options.Batches; taskNumber++ {
		extractTasks = append(extractTasks, NewExtractTask(jobID, table, taskNumber, options))
	}
	return &Job{
		JobID:   jobID,
		Clean:   NewCleanTask(jobID, table),
		Extract: extractTasks,
		Load:    NewLoadTask(jobID, table),
	}, nil
}

// Schedule is an ordered list of jobs.
type Schedule struct {
	Jobs []*Job
}

// ScheduleFromTables plans one job per non-ignored table, in the given
// order.
func ScheduleFromTables(tables []*catalog.Table, opts Options) (*Schedule, error) {
	var schedule = &Schedule{}
	for _, table := range tables {
		if table.Meta.Ignore {
			continue
		}
		var job, err = JobFromTable(table, opts)
		if err != nil {
			return nil, err
		}
		schedule.Jobs = append(schedule.Jobs, job)
	}
	return schedule, nil
}

// ErrorSchedule is a single job whose tasks all fail, carrying env bindings
// applied at execution. Used to surface schedule-time failures into the
// workflow engine.
func ErrorSchedule(envs map[string]string) *Schedule {
	var task = NewErrorTask(envs)
	return &Schedule{Jobs: []*Job{{
		JobID:   newTaskID(),
		Clean:   task,
		Extract: []Task{task},
		Load:    task,
	}}}
}

// MarshalJSON always emits the schedule key, empty when no tables matched.
func (s *Schedule) MarshalJSON() ([]byte, error) {
	var jobs = s.Jobs
	if jobs == nil {
		jobs = []*Job{}
	}
	return json.Marshal(map[string]interface{}{"schedule": jobs})
}

func (s *Schedule) UnmarshalJSON(data []byte) error {
	var raw struct {
		Schedule []*Job `json:"schedule"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding schedule: %w", err)
	}
	s.Jobs = raw.Schedule
	return nil
}
