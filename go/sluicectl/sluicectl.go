// Package sluicectl is the operator CLI of the extract-load orchestrator.
// Source adapters embed it: they register their extractors and hand control
// to Main, which parses the command line and dispatches.
package sluicectl

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/sluicedata/sluice/go/awsclients"
	"github.com/sluicedata/sluice/go/catalog"
	"github.com/sluicedata/sluice/go/config"
	"github.com/sluicedata/sluice/go/extract"
	"github.com/sluicedata/sluice/go/snowflake"
	"github.com/sluicedata/sluice/go/stage"
	"github.com/sluicedata/sluice/go/tasks"
)

// Main parses and runs the command line. Extractors registered on the given
// registry are available to local runs.
func Main(registry *extract.Registry) {
	var app = &app{registry: registry}
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	_, _ = parser.AddCommand("run", "Schedule and run extract load jobs", `
Plan a schedule for the selected tables and run it: locally job by job, or
remotely by submitting the scheduling request to the workflow engine.
`, newCmdRun(app))

	test, err := parser.Command.AddCommand("test", "Test clean, extract and load tasks", "", &struct{}{})
	if err != nil {
		log.WithField("err", err).Fatal("failed to add command")
	}
	_, _ = test.AddCommand("clean", "Clean the staging bucket", "", newCmdTestClean(app))
	_, _ = test.AddCommand("extract", "Extract data into the staging bucket", "", newCmdTestExtract(app))
	_, _ = test.AddCommand("load", "Load staged data into the warehouse", "", newCmdTestLoad(app))
	_, _ = test.AddCommand("schedule", "Print the default schedule", "", newCmdTestSchedule(app))

	_, _ = parser.AddCommand("pipeline", "Run the extract load transform pipeline", `
Submit a pipeline execution selecting extract-load, transform, refresh and
predict steps.
`, newCmdPipeline(app))

	_, _ = parser.AddCommand("timestamps", "Update stored table watermarks", "", newCmdTimestamps(app))

	_, _ = parser.AddCommand("tables", "Create tables in the warehouse", "", newCmdTables(app))

	_, _ = parser.AddCommand("file", "Download and display a staged file", "", newCmdFile(app))

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

// app lazily builds the shared collaborators of all commands.
type app struct {
	registry *extract.Registry

	warehouseOnce sync.Once
	warehouseVal  *catalog.Warehouse
	warehouseErr  error

	clientsOnce sync.Once
	clientsVal  *awsclients.Clients
	clientsErr  error
}

func (a *app) warehouse() (*catalog.Warehouse, error) {
	a.warehouseOnce.Do(func() {
		a.warehouseVal, a.warehouseErr = catalog.LoadFile(config.TablesPath())
	})
	return a.warehouseVal, a.warehouseErr
}

func (a *app) clients() (*awsclients.Clients, error) {
	a.clientsOnce.Do(func() {
		var params, err = config.LoadParameters("")
		if err != nil {
			a.clientsErr = err
			return
		}
		a.clientsVal, a.clientsErr = awsclients.New(params)
	})
	return a.clientsVal, a.clientsErr
}

// engine opens a warehouse connection scoped to the active database.
func (a *app) engine(ctx context.Context) (*snowflake.Engine, error) {
	var clients, err = a.clients()
	if err != nil {
		return nil, err
	}
	secret, err := clients.SnowflakeSecret(ctx)
	if err != nil {
		return nil, err
	}
	db, err := snowflake.Open(secret, config.DatabaseName())
	if err != nil {
		return nil, err
	}
	return snowflake.NewEngine(&snowflake.DBCursor{DB: db}, clients.Watermarks()), nil
}

// runtime assembles the task runtime. The warehouse connection is opened on
// first load so that extract-only commands need no warehouse credential.
func (a *app) runtime(ctx context.Context) (*tasks.Runtime, error) {
	var warehouse, err = a.warehouse()
	if err != nil {
		return nil, err
	}
	clients, err := a.clients()
	if err != nil {
		return nil, err
	}
	return &tasks.Runtime{
		Warehouse:  warehouse,
		Stage:      stage.NewClient(clients.StagingBucket()),
		Loader:     &lazyLoader{app: a},
		Extractors: a.registry,
		Watermarks: clients.Watermarks(),
	}, nil
}

type lazyLoader struct {
	app  *app
	once sync.Once
	eng  *snowflake.Engine
	err  error
}

func (l *lazyLoader) Load(ctx context.Context, table *catalog.Table, truncate *bool) (string, error) {
	l.once.Do(func() { l.eng, l.err = l.app.engine(ctx) })
	if l.err != nil {
		return "", l.err
	}
	return l.eng.Load(ctx, table, truncate)
}

// selection are the table-selection flags shared by most commands.
type selection struct {
	Schemas      []string `short:"s" long:"schema" description:"schema, or all schemas if not provided"`
	Tables       []string `short:"t" long:"table" description:"table, or all tables in schema if not provided"`
	Prefix       string   `short:"p" long:"prefix" description:"table name prefix"`
	PrefixFilter string   `short:"f" long:"filter" default:"match" choice:"before" choice:"after" choice:"match" description:"prefix filter mode"`
}

// environment selects the target deployment; it applies before any other
// work so that derived names resolve consistently.
type environment struct {
	Env string `short:"e" long:"env" default:"dev" choice:"dev" choice:"prod" description:"target environment"`
}

func (e environment) apply() error {
	var env, err = config.ParseEnv(e.Env)
	if err != nil {
		return err
	}
	config.SetEnv(env)
	return nil
}

// window are the time-range flags of extraction commands.
type window struct {
	Start string `long:"start" description:"start date or datetime"`
	End   string `long:"end" description:"end date or datetime"`
	Limit int    `long:"limit" description:"limit number of rows to extract"`
}

func (w window) options() tasks.Options {
	var opts = tasks.DefaultOptions()
	opts.Start = w.Start
	opts.End = w.End
	opts.Limit = w.Limit
	return opts
}

// tables resolves the selection against the catalog, applying the prefix
// filter on table names.
func (s selection) tables(warehouse *catalog.Warehouse) []*catalog.Table {
	var out []*catalog.Table
	for _, table := range warehouse.Filter(s.Schemas, s.Tables, false) {
		if s.Prefix != "" {
			switch s.PrefixFilter {
			case "before":
				if table.Name >= s.Prefix {
					continue
				}
			case "after":
				if table.Name <= s.Prefix {
					continue
				}
			default:
				if !strings.HasPrefix(table.Name, s.Prefix) {
					continue
				}
			}
		}
		out = append(out, table)
	}
	return out
}
