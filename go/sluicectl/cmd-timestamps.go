package sluicectl

import (
	"context"
	"fmt"
)

type cmdTimestamps struct {
	app *app
	selection
	environment
	Value string `long:"value" description:"timestamp value; re-read from the warehouse when omitted"`
}

func newCmdTimestamps(app *app) *cmdTimestamps { return &cmdTimestamps{app: app} }

func (cmd *cmdTimestamps) Execute(_ []string) error {
	if err := cmd.environment.apply(); err != nil {
		return err
	}
	var ctx = context.Background()
	var warehouse, err = cmd.app.warehouse()
	if err != nil {
		return err
	}

	if cmd.Value != "" {
		clients, err := cmd.app.clients()
		if err != nil {
			return err
		}
		var store = clients.Watermarks()
		for _, table := range cmd.tables(warehouse) {
			if table.Meta.TimestampField == "" {
				continue
			}
			if err := store.SetLatest(ctx, table, cmd.Value); err != nil {
				return err
			}
			fmt.Printf("set %s = %s\n", table.URI(), cmd.Value)
		}
		return nil
	}

	engine, err := cmd.app.engine(ctx)
	if err != nil {
		return err
	}
	for _, table := range cmd.tables(warehouse) {
		if table.Meta.TimestampField == "" {
			continue
		}
		if err := engine.RefreshWatermark(ctx, table); err != nil {
			return err
		}
		fmt.Printf("refreshed %s\n", table.URI())
	}
	return nil
}
