// Package dispatch runs schedules. A schedule runs either locally, job by
// job in planning order, or remotely by submitting the scheduling request
// to the workflow engine which fans the jobs out itself.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sluicedata/sluice/go/tasks"
)

// ErrWorkflowSubmit reports a failed hand-off to the workflow engine.
var ErrWorkflowSubmit = errors.New("workflow submit failed")

// Workflow engine state machine names.
const (
	MachineJobQueue = "ExtractLoadJobQueue"
	MachinePipeline = "Pipeline"
)

// StateMachine submits one execution of a named machine and returns a link
// to it.
type StateMachine interface {
	Start(ctx context.Context, machineName string, payload []byte) (string, error)
}

// RunLocal executes every job of the schedule in order: clean, the extract
// batches, load. Load failures stop the run when stopOnError is set and are
// otherwise reported and skipped.
func RunLocal(ctx context.Context, schedule *tasks.Schedule, rt *tasks.Runtime, stopOnError bool) ([]string, error) {
	var messages []string
	for _, job := range schedule.Jobs {
		var uri = "unknown"
		if ref, ok := job.Clean.(interface{ URI() string }); ok {
			uri = ref.URI()
		}
		log.WithField("table", uri).Info("processing job")

		result, err := job.Clean.Execute(ctx, rt)
		if err != nil {
			return messages, err
		}
		messages = append(messages, fmt.Sprint(result))

		for _, task := range job.Extract {
			if result, err = task.Execute(ctx, rt); err != nil {
				return messages, err
			}
			messages = append(messages, fmt.Sprint(result))
		}

		if result, err = job.Load.Execute(ctx, rt); err != nil {
			if stopOnError {
				return messages, err
			}
			log.WithField("table", uri).Error(err)
			messages = append(messages, err.Error())
			continue
		}
		messages = append(messages, fmt.Sprint(result))
	}
	return messages, nil
}

// SubmitRun hands a scheduling request to the job queue machine. Planning
// and fan-out happen inside the workflow.
func SubmitRun(ctx context.Context, sm StateMachine, task *tasks.ScheduleTask) (string, error) {
	var payload, err = json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("%w: encoding schedule task: %s", ErrWorkflowSubmit, err)
	}
	link, err := sm.Start(ctx, MachineJobQueue, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrWorkflowSubmit, err)
	}
	return link, nil
}

// PipelineRequest selects the steps of one pipeline execution. Zero-value
// steps are left out of the payload.
type PipelineRequest struct {
	Schedule *tasks.ScheduleTask
	// Transform is the command matrix of the transformation step.
	Transform [][]string
	Refresh   bool
	Predict   bool
}

// Payload renders the workflow input of the request.
func (r PipelineRequest) Payload() ([]byte, error) {
	var payload = map[string]interface{}{}
	if r.Schedule != nil {
		payload["schedule"] = r.Schedule
	}
	if r.Transform != nil {
		payload["transform"] = r.Transform
	}
	if r.Refresh {
		payload["refresh"] = true
	}
	if r.Predict {
		payload["predict"] = true
	}
	return json.Marshal(payload)
}

// SubmitPipeline hands a pipeline request to the pipeline machine.
func SubmitPipeline(ctx context.Context, sm StateMachine, req PipelineRequest) (string, error) {
	var payload, err = req.Payload()
	if err != nil {
		return "", fmt.Errorf("%w: encoding pipeline request: %s", ErrWorkflowSubmit, err)
	}
	link, err := sm.Start(ctx, MachinePipeline, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrWorkflowSubmit, err)
	}
	return link, nil
}

// TransformCommands maps transform step names to the command matrix run by
// the transformation tool, targeting the given environment.
func TransformCommands(steps []string, env string) [][]string {
	var commands [][]string
	for _, step := range steps {
		switch step {
		case "build":
			commands = append(commands, []string{"build", "--target", env})
		case "test":
			commands = append(commands, []string{"run", "--target", "dev", "--vars", "materialized: view"})
		case "docs":
			commands = append(commands, []string{"docs", "generate"})
		case "skip":
		}
	}
	return commands
}
