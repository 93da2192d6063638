package sluicectl

import (
	"context"
	"fmt"
	"strings"

	"github.com/sluicedata/sluice/go/dispatch"
	"github.com/sluicedata/sluice/go/tasks"
)

type cmdPipeline struct {
	app *app
	selection
	window
	environment
	// Steps names the pipeline stages by letter: extract-load, transform,
	// refresh, predict.
	Steps     string   `long:"steps" default:"eltr" description:"steps to run, any of: el, t, r, p"`
	Transform []string `long:"transform" default:"build" default:"docs" choice:"build" choice:"test" choice:"docs" description:"transform steps to run"`
	DryRun    bool     `long:"dry-run" description:"print the payload without submitting"`
}

func newCmdPipeline(app *app) *cmdPipeline { return &cmdPipeline{app: app} }

func (cmd *cmdPipeline) Execute(_ []string) error {
	if err := cmd.environment.apply(); err != nil {
		return err
	}
	var req dispatch.PipelineRequest
	if strings.Contains(cmd.Steps, "el") {
		req.Schedule = tasks.NewScheduleTask(cmd.Schemas, cmd.Tables, cmd.options())
	}
	if strings.Contains(cmd.Steps, "t") {
		req.Transform = dispatch.TransformCommands(cmd.Transform, cmd.Env)
	}
	req.Refresh = strings.Contains(cmd.Steps, "r")
	req.Predict = strings.Contains(cmd.Steps, "p")

	payload, err := req.Payload()
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	if cmd.DryRun {
		return nil
	}

	clients, err := cmd.app.clients()
	if err != nil {
		return err
	}
	link, err := dispatch.SubmitPipeline(context.Background(), clients.Workflows(), req)
	if err != nil {
		return err
	}
	fmt.Println(link)
	return nil
}
