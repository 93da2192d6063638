package sluicectl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sluicedata/sluice/go/stage"
)

type cmdFile struct {
	app *app
	environment
	Schema string `short:"s" long:"schema" required:"true" description:"schema name"`
	Table  string `short:"t" long:"table" required:"true" description:"table name"`
	Batch  int    `short:"b" long:"batch" description:"batch number"`
	File   int    `long:"file" default:"1" description:"file number"`
	Line   int    `short:"l" long:"line" default:"1" description:"first line to display"`
	N      int    `short:"n" long:"n" default:"10" description:"number of lines to display"`
	Format string `long:"format" default:"raw" choice:"raw" choice:"csv" choice:"json" description:"output format"`
}

func newCmdFile(app *app) *cmdFile { return &cmdFile{app: app} }

func (cmd *cmdFile) Execute(_ []string) error {
	if err := cmd.environment.apply(); err != nil {
		return err
	}
	var ctx = context.Background()
	var warehouse, err = cmd.app.warehouse()
	if err != nil {
		return err
	}
	table, err := warehouse.Table(cmd.Schema, cmd.Table)
	if err != nil {
		return err
	}
	clients, err := cmd.app.clients()
	if err != nil {
		return err
	}
	body, err := stage.NewClient(clients.StagingBucket()).Download(ctx, table, cmd.Batch, cmd.File)
	if err != nil {
		return err
	}

	var columns = table.ColumnNames()
	switch cmd.Format {
	case "raw":
		var lines = strings.Split(strings.TrimRight(string(body), "\n"), "\n")
		fmt.Printf("header\t%s\n", strings.Join(columns, ","))
		for i, line := range lineWindow(lines, cmd.Line, cmd.N) {
			fmt.Printf("%d\t%s\n", cmd.Line+i, line)
		}
	case "csv":
		rows, err := stage.ReadCSV(body)
		if err != nil {
			return err
		}
		fmt.Printf("header\t%s\n", strings.Join(columns, "\t"))
		for i, row := range lineWindow(rows, cmd.Line, cmd.N) {
			fmt.Printf("%d\t%s\n", cmd.Line+i, strings.Join(row, "\t"))
		}
	case "json":
		rows, err := stage.ReadCSV(body)
		if err != nil {
			return err
		}
		var out = map[int]map[string]string{}
		for i, row := range lineWindow(rows, cmd.Line, cmd.N) {
			var record = map[string]string{}
			for j, col := range columns {
				if j < len(row) {
					record[col] = row[j]
				}
			}
			out[cmd.Line+i] = record
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	return nil
}

// lineWindow slices lines [first, first+n), 1-based and clamped.
func lineWindow[T any](lines []T, first, n int) []T {
	if first < 1 {
		first = 1
	}
	if first > len(lines) {
		return nil
	}
	var end = first - 1 + n
	if end > len(lines) {
		end = len(lines)
	}
	return lines[first-1 : end]
}
