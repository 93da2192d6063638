package sluicectl

import (
	"context"
	"fmt"

	"github.com/sluicedata/sluice/go/dispatch"
	"github.com/sluicedata/sluice/go/tasks"
)

type cmdRun struct {
	app *app

	selection
	window
	environment
	Remote          bool `long:"remote" description:"submit to the workflow engine instead of running locally"`
	ContinueOnError bool `long:"continue-on-error" description:"keep going when a load fails"`
}

func newCmdRun(app *app) *cmdRun {
	return &cmdRun{app: app}
}

func (cmd *cmdRun) Execute(_ []string) error {
	if err := cmd.environment.apply(); err != nil {
		return err
	}
	var ctx = context.Background()

	if cmd.Remote {
		var clients, err = cmd.app.clients()
		if err != nil {
			return err
		}
		var task = tasks.NewScheduleTask(cmd.Schemas, cmd.Tables, cmd.options())
		link, err := dispatch.SubmitRun(ctx, clients.Workflows(), task)
		if err != nil {
			return err
		}
		fmt.Println(link)
		return nil
	}

	var rt, err = cmd.app.runtime(ctx)
	if err != nil {
		return err
	}
	schedule, err := tasks.ScheduleFromTables(cmd.tables(rt.Warehouse), cmd.options())
	if err != nil {
		return err
	}
	messages, err := dispatch.RunLocal(ctx, schedule, rt, !cmd.ContinueOnError)
	for _, message := range messages {
		fmt.Println(message)
	}
	return err
}
