// Package tasks holds the unit-task model and the job planner. A job moves
// one table: it cleans the table's stage prefix, runs N extract batches,
// and loads the staged files into the warehouse. Tasks cross the
// local/remote boundary in their wire form and are rebuilt by task_type.
package tasks

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sluicedata/sluice/go/catalog"
	"github.com/sluicedata/sluice/go/config"
	"github.com/sluicedata/sluice/go/extract"
	"github.com/sluicedata/sluice/go/stage"
	"github.com/sluicedata/sluice/go/watermark"
	"github.com/sluicedata/sluice/go/wire"
)

// Task type discriminators.
const (
	TypeClean    = "CleanTask"
	TypeExtract  = "ExtractTask"
	TypeLoad     = "LoadTask"
	TypeSchedule = "ScheduleTask"
	TypeError    = "ErrorTask"
)

func init() {
	wire.Register(TypeClean, func() wire.Message { return &CleanTask{Type: TypeClean} })
	wire.Register(TypeExtract, func() wire.Message { return &ExtractTask{Type: TypeExtract, Options: DefaultOptions()} })
	wire.Register(TypeLoad, func() wire.Message { return &LoadTask{Type: TypeLoad} })
	wire.Register(TypeSchedule, func() wire.Message { return &ScheduleTask{Type: TypeSchedule, Options: DefaultOptions()} })
	wire.Register(TypeError, func() wire.Message { return &ErrorTask{Type: TypeError} })
}

// Task is one executable unit of work.
type Task interface {
	wire.Message
	ID() string
	Execute(ctx context.Context, rt *Runtime) (interface{}, error)
}

// Stager is the stage surface tasks execute against.
type Stager interface {
	Clean(ctx context.Context, schemaName, tableName string) (string, error)
	Upload(ctx context.Context, table *catalog.Table, batchNumber int, rows stage.RowSource, opts stage.UploadOptions) (*stage.UploadResult, error)
}

// Loader materializes staged files into the target table.
type Loader interface {
	Load(ctx context.Context, table *catalog.Table, truncate *bool) (string, error)
}

// Runtime bundles the collaborators tasks execute against. The catalog is
// shared read-only across tasks.
type Runtime struct {
	Warehouse  *catalog.Warehouse
	Stage      Stager
	Loader     Loader
	Extractors *extract.Registry
	Watermarks watermark.Store
}

func newTaskID() string {
	var id = uuid.New()
	return hex.EncodeToString(id[:])
}

// TableRef names the table a task operates on. Names are lowercased at
// construction and resolved against the catalog at execution time.
type TableRef struct {
	JobID    string `json:"job_id"`
	Database string `json:"database_name"`
	Schema   string `json:"schema_name"`
	Table    string `json:"table_name"`
}

// NewTableRef builds a lowercased reference to a catalog table.
func NewTableRef(jobID string, table *catalog.Table) TableRef {
	return TableRef{
		JobID:    jobID,
		Database: strings.ToLower(table.DatabaseName()),
		Schema:   strings.ToLower(table.SchemaName()),
		Table:    strings.ToLower(table.Name),
	}
}

// URI is the fully qualified database.schema.table identifier.
func (r TableRef) URI() string {
	return fmt.Sprintf("%s.%s.%s", r.Database, r.Schema, r.Table)
}

// ResolveTable looks the reference up in the catalog.
func (r TableRef) ResolveTable(warehouse *catalog.Warehouse) (*catalog.Table, error) {
	return warehouse.Table(r.Schema, r.Table)
}

// CleanTask deletes all staged objects under the table's prefix.
type CleanTask struct {
	Type   string `json:"task_type"`
	TaskID string `json:"task_id"`
	TableRef
}

// NewCleanTask builds a clean task for a table.
func NewCleanTask(jobID string, table *catalog.Table) *CleanTask {
	return &CleanTask{Type: TypeClean, TaskID: newTaskID(), TableRef: NewTableRef(jobID, table)}
}

func (t *CleanTask) TaskType() string { return TypeClean }
func (t *CleanTask) ID() string       { return t.TaskID }

func (t *CleanTask) Execute(ctx context.Context, rt *Runtime) (interface{}, error) {
	if _, err := t.ResolveTable(rt.Warehouse); err != nil {
		return nil, err
	}
	return rt.Stage.Clean(ctx, t.Schema, t.Table)
}

// ExtractTask runs one extract batch: it resolves the registered extractor,
// streams its rows into the stage, and reports what it uploaded.
type ExtractTask struct {
	Type   string `json:"task_type"`
	TaskID string `json:"task_id"`
	TableRef
	TaskNumber int     `json:"task_number,omitempty"`
	Options    Options `json:"options"`
}

// NewExtractTask builds the extract task of one batch.
func NewExtractTask(jobID string, table *catalog.Table, taskNumber int, opts Options) *ExtractTask {
	return &ExtractTask{
		Type:       TypeExtract,
		TaskID:     newTaskID(),
		TableRef:   NewTableRef(jobID, table),
		TaskNumber: taskNumber,
		Options:    opts,
	}
}

func (t *ExtractTask) TaskType() string { return TypeExtract }
func (t *ExtractTask) ID() string       { return t.TaskID }

// TimeRange resolves the task's effective extraction window against the
// table, falling back to the stored watermark when start is unset.
func (t *ExtractTask) TimeRange(ctx context.Context, table *catalog.Table, watermarks watermark.Store) (*TimeRange, error) {
	return TimeRangeFor(ctx, t.Options, table, watermarks)
}

func (t *ExtractTask) Execute(ctx context.Context, rt *Runtime) (interface{}, error) {
	var table, err = t.ResolveTable(rt.Warehouse)
	if err != nil {
		return nil, err
	}
	fn, err := rt.Extractors.Resolve(t.Schema, t.Table)
	if err != nil {
		return nil, err
	}
	timeRange, err := t.TimeRange(ctx, table, rt.Watermarks)
	if err != nil {
		return nil, err
	}
	var start, end = timeRange.StartString(), timeRange.EndString()
	if table.Meta.TimestampKey != "" && timeRange.Start != "" && timeRange.End != "" {
		// Batched tables slice the range into days, one per task.
		date, err := timeRange.BatchDate(t.TaskNumber)
		if err != nil {
			return nil, err
		}
		start, end = date+"T00:00:00", date+"T23:59:59"
	}
	var deadline = extract.DeadlineFromContext(ctx)
	var req = &extract.Request{
		Table:      table,
		Start:      start,
		End:        end,
		TaskNumber: t.TaskNumber,
		Limit:      t.Options.Limit,
		Deadline:   deadline,
	}
	log.WithFields(log.Fields{
		"table": t.URI(), "task_number": t.TaskNumber, "start": start, "end": end,
	}).Info("extracting")
	rows, err := fn(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", t.URI(), err)
	}
	result, err := rt.Stage.Upload(ctx, table, t.TaskNumber, rows, stage.UploadOptions{
		TotalRows:    t.Options.TotalRows,
		RelativeTime: relativeTime(deadline),
	})
	if err != nil {
		return nil, err
	}
	return result.Message, nil
}

// relativeTime reports the share of the execution budget already spent.
func relativeTime(deadline *extract.Deadline) func() float64 {
	var timeout = float64(config.LambdaTimeoutMillis())
	return func() float64 {
		return (timeout - float64(deadline.RemainingMillis())) / timeout
	}
}

// LoadTask materializes the table's staged files into the warehouse.
type LoadTask struct {
	Type   string `json:"task_type"`
	TaskID string `json:"task_id"`
	TableRef
	// Truncate overrides the table's upsert policy when set.
	Truncate *bool `json:"truncate,omitempty"`
}

// NewLoadTask builds the load task of a job.
func NewLoadTask(jobID string, table *catalog.Table) *LoadTask {
	var truncate = table.Meta.Truncate
	return &LoadTask{
		Type:     TypeLoad,
		TaskID:   newTaskID(),
		TableRef: NewTableRef(jobID, table),
		Truncate: &truncate,
	}
}

func (t *LoadTask) TaskType() string { return TypeLoad }
func (t *LoadTask) ID() string       { return t.TaskID }

func (t *LoadTask) Execute(ctx context.Context, rt *Runtime) (interface{}, error) {
	var table, err = t.ResolveTable(rt.Warehouse)
	if err != nil {
		return nil, err
	}
	return rt.Loader.Load(ctx, table, t.Truncate)
}

// ScheduleTask plans jobs for the filtered catalog and returns the schedule
// for the workflow engine to fan out.
type ScheduleTask struct {
	Type         string   `json:"task_type"`
	TaskID       string   `json:"task_id"`
	DatabaseName string   `json:"database_name,omitempty"`
	SchemaNames  []string `json:"schema_names"`
	TableNames   []string `json:"table_names"`
	Options      Options  `json:"options"`
}

// NewScheduleTask builds a schedule task. Name filters keep the nil/empty
// distinction: nil selects everything, an empty list selects nothing.
func NewScheduleTask(schemaNames, tableNames []string, opts Options) *ScheduleTask {
	return &ScheduleTask{
		Type:         TypeSchedule,
		TaskID:       newTaskID(),
		DatabaseName: config.DatabaseName(),
		SchemaNames:  lowerNames(schemaNames),
		TableNames:   lowerNames(tableNames),
		Options:      opts,
	}
}

func lowerNames(names []string) []string {
	if names == nil {
		return nil
	}
	var out = make([]string, len(names))
	for i, name := range names {
		out[i] = strings.ToLower(name)
	}
	return out
}

func (t *ScheduleTask) TaskType() string { return TypeSchedule }
func (t *ScheduleTask) ID() string       { return t.TaskID }

func (t *ScheduleTask) Execute(ctx context.Context, rt *Runtime) (interface{}, error) {
	if t.Options.TestError {
		if len(t.TableNames) > 0 {
			return ErrorSchedule(map[string]string{"FAIL_ON_ERROR": t.Options.FailOnError}), nil
		}
		os.Setenv("FAIL_ON_ERROR", t.Options.FailOnError)
		return nil, errors.New("ScheduleTask test error")
	}
	var tables = rt.Warehouse.Filter(t.SchemaNames, t.TableNames, true)
	return ScheduleFromTables(tables, t.Options)
}

// ErrorTask always fails. Schedule-time failures are surfaced into the
// workflow engine by emitting a schedule made of these.
type ErrorTask struct {
	Type   string `json:"task_type"`
	TaskID string `json:"task_id"`
	TableRef
	Envs map[string]string `json:"envs,omitempty"`
}

// NewErrorTask builds a failing task with env bindings applied at execution.
func NewErrorTask(envs map[string]string) *ErrorTask {
	return &ErrorTask{
		Type:   TypeError,
		TaskID: newTaskID(),
		TableRef: TableRef{
			JobID:    newTaskID(),
			Database: "test database",
			Schema:   "test schema",
			Table:    "test table",
		},
		Envs: envs,
	}
}

func (t *ErrorTask) TaskType() string { return TypeError }
func (t *ErrorTask) ID() string       { return t.TaskID }

func (t *ErrorTask) Execute(ctx context.Context, rt *Runtime) (interface{}, error) {
	for key, value := range t.Envs {
		os.Setenv(key, value)
	}
	return nil, errors.New("ErrorTask test error")
}
