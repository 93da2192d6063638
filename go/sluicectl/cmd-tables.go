package sluicectl

import (
	"context"

	"github.com/sluicedata/sluice/go/snowflake"
)

type cmdTables struct {
	app *app
	selection
	environment
	Overwrite bool `long:"overwrite" description:"drop and recreate existing tables"`
	SaveFiles bool `long:"save-files" description:"save create table statements under sql/"`
}

func newCmdTables(app *app) *cmdTables { return &cmdTables{app: app} }

func (cmd *cmdTables) Execute(_ []string) error {
	if err := cmd.environment.apply(); err != nil {
		return err
	}
	var ctx = context.Background()
	var warehouse, err = cmd.app.warehouse()
	if err != nil {
		return err
	}
	engine, err := cmd.app.engine(ctx)
	if err != nil {
		return err
	}
	return engine.CreateTables(ctx, cmd.tables(warehouse), snowflake.CreateTablesOptions{
		Overwrite: cmd.Overwrite,
		SaveFiles: cmd.SaveFiles,
	})
}
