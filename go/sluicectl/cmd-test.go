package sluicectl

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sluicedata/sluice/go/tasks"
)

type cmdTestClean struct {
	app *app
	selection
	environment
}

func newCmdTestClean(app *app) *cmdTestClean { return &cmdTestClean{app: app} }

func (cmd *cmdTestClean) Execute(_ []string) error {
	if err := cmd.environment.apply(); err != nil {
		return err
	}
	var ctx = context.Background()
	var rt, err = cmd.app.runtime(ctx)
	if err != nil {
		return err
	}
	for _, table := range cmd.tables(rt.Warehouse) {
		job, err := tasks.JobFromTable(table, tasks.DefaultOptions())
		if err != nil {
			return err
		}
		result, err := job.Clean.Execute(ctx, rt)
		if err != nil {
			return err
		}
		fmt.Println(result)
	}
	return nil
}

type cmdTestExtract struct {
	app *app
	selection
	window
	environment
}

func newCmdTestExtract(app *app) *cmdTestExtract { return &cmdTestExtract{app: app} }

func (cmd *cmdTestExtract) Execute(_ []string) error {
	if err := cmd.environment.apply(); err != nil {
		return err
	}
	var ctx = context.Background()
	var rt, err = cmd.app.runtime(ctx)
	if err != nil {
		return err
	}
	for _, table := range cmd.tables(rt.Warehouse) {
		var opts = cmd.options()
		if table.Meta.TimestampKey != "" {
			timeRange, err := tasks.NewTimeRange(cmd.Start, cmd.End, table.Meta.Timezone)
			if err != nil {
				return err
			}
			if opts.Batches, err = timeRange.BatchN(); err != nil {
				return err
			}
		}
		job, err := tasks.JobFromTable(table, opts)
		if err != nil {
			return err
		}
		for _, task := range job.Extract {
			result, err := task.Execute(ctx, rt)
			if err != nil {
				return err
			}
			fmt.Println(result)
		}
	}
	return nil
}

type cmdTestLoad struct {
	app *app
	selection
	environment
	ContinueOnError bool `long:"continue-on-error" description:"keep going when a load fails"`
}

func newCmdTestLoad(app *app) *cmdTestLoad { return &cmdTestLoad{app: app} }

func (cmd *cmdTestLoad) Execute(_ []string) error {
	if err := cmd.environment.apply(); err != nil {
		return err
	}
	var ctx = context.Background()
	var rt, err = cmd.app.runtime(ctx)
	if err != nil {
		return err
	}
	for _, table := range cmd.tables(rt.Warehouse) {
		job, err := tasks.JobFromTable(table, tasks.DefaultOptions())
		if err != nil {
			return err
		}
		result, err := job.Load.Execute(ctx, rt)
		if err != nil {
			if !cmd.ContinueOnError {
				return err
			}
			fmt.Println(err)
			continue
		}
		fmt.Println(result)
	}
	return nil
}

type cmdTestSchedule struct {
	app *app
	selection
	window
	environment
}

func newCmdTestSchedule(app *app) *cmdTestSchedule { return &cmdTestSchedule{app: app} }

func (cmd *cmdTestSchedule) Execute(_ []string) error {
	if err := cmd.environment.apply(); err != nil {
		return err
	}
	var warehouse, err = cmd.app.warehouse()
	if err != nil {
		return err
	}
	schedule, err := tasks.ScheduleFromTables(cmd.tables(warehouse), cmd.options())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(schedule, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
