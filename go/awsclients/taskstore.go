package awsclients

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/sluicedata/sluice/go/tasks"
	"github.com/sluicedata/sluice/go/wire"
)

// TaskStore keeps tasks and jobs in two DynamoDB tables. A task row is the
// task's full wire form keyed by task_id; a job row references its tasks by
// id so that task rows stay the single source of truth.
type TaskStore struct {
	db            dynamodbiface.DynamoDBAPI
	taskTableName string
	jobTableName  string
}

func NewTaskStore(db dynamodbiface.DynamoDBAPI, taskTableName, jobTableName string) *TaskStore {
	return &TaskStore{db: db, taskTableName: taskTableName, jobTableName: jobTableName}
}

var _ tasks.Store = (*TaskStore)(nil)

func (s *TaskStore) PutTask(ctx context.Context, task tasks.Task) error {
	var m, err = wire.ToMap(task)
	if err != nil {
		return err
	}
	item, err := dynamodbattribute.MarshalMap(m)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", task.ID(), err)
	}
	if _, err = s.db.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.taskTableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("writing task %s: %w", task.ID(), err)
	}
	return nil
}

func (s *TaskStore) GetTask(ctx context.Context, taskID string) (tasks.Task, error) {
	var out, err = s.db.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.taskTableName),
		Key: map[string]*dynamodb.AttributeValue{
			"task_id": {S: aws.String(taskID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reading task %s: %w", taskID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	var m map[string]interface{}
	if err = dynamodbattribute.UnmarshalMap(out.Item, &m); err != nil {
		return nil, fmt.Errorf("decoding task %s: %w", taskID, err)
	}
	msg, err := wire.FromMap(m)
	if err != nil {
		return nil, err
	}
	task, ok := msg.(tasks.Task)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not executable", wire.ErrUnknownTaskType, msg.TaskType())
	}
	return task, nil
}

func (s *TaskStore) PutJob(ctx context.Context, job *tasks.Job) error {
	for _, task := range job.Tasks() {
		if err := s.PutTask(ctx, task); err != nil {
			return err
		}
	}
	var extractIDs = make([]string, len(job.Extract))
	for i, task := range job.Extract {
		extractIDs[i] = task.ID()
	}
	var item, err = dynamodbattribute.MarshalMap(map[string]interface{}{
		"job_id":  job.JobID,
		"clean":   job.Clean.ID(),
		"extract": extractIDs,
		"load":    job.Load.ID(),
	})
	if err != nil {
		return fmt.Errorf("encoding job %s: %w", job.JobID, err)
	}
	if _, err = s.db.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.jobTableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("writing job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *TaskStore) GetJob(ctx context.Context, jobID string) (*tasks.Job, error) {
	var out, err = s.db.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.jobTableName),
		Key: map[string]*dynamodb.AttributeValue{
			"job_id": {S: aws.String(jobID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", jobID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	var row struct {
		JobID   string   `dynamodbav:"job_id"`
		Clean   string   `dynamodbav:"clean"`
		Extract []string `dynamodbav:"extract"`
		Load    string   `dynamodbav:"load"`
	}
	if err = dynamodbattribute.UnmarshalMap(out.Item, &row); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", jobID, err)
	}

	var job = &tasks.Job{JobID: row.JobID}
	if job.Clean, err = s.GetTask(ctx, row.Clean); err != nil {
		return nil, err
	}
	for _, taskID := range row.Extract {
		var task, err = s.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		job.Extract = append(job.Extract, task)
	}
	if job.Load, err = s.GetTask(ctx, row.Load); err != nil {
		return nil, err
	}
	return job, nil
}
