package snowflake

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sluicedata/sluice/go/catalog"
	"github.com/sluicedata/sluice/go/watermark"
)

// Rows is a fetched statement result.
type Rows struct {
	Columns []string
	Data    [][]interface{}
}

// Cursor runs one statement at a time on a dedicated warehouse connection.
type Cursor interface {
	Execute(ctx context.Context, stmt string) (*Rows, error)
}

// Engine runs the load protocol of one table on a cursor and commits the
// table's watermark after the terminal statement.
type Engine struct {
	Cursor     Cursor
	Gen        *Generator
	Watermarks watermark.Store
}

func NewEngine(cursor Cursor, watermarks watermark.Store) *Engine {
	return &Engine{Cursor: cursor, Gen: NewGenerator(), Watermarks: watermarks}
}

// Load executes the table's statement sequence in order. Per-statement
// results are classified by verb; COPY results are reported per file. It
// implements the loader interface of the task runtime.
func (e *Engine) Load(ctx context.Context, table *catalog.Table, truncate *bool) (string, error) {
	var stmts, err = e.Gen.LoadStatements(table, truncate)
	if err != nil {
		return "", err
	}
	var messages []string
	for _, stmt := range stmts {
		log.Info(stmt)
		rows, err := e.Cursor.Execute(ctx, stmt)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %s", ErrWarehouse, firstWord(stmt), err)
		}
		messages = append(messages, classify(stmt, rows)...)
	}
	if table.Meta.TimestampField != "" {
		if err = e.refreshWatermark(ctx, table); err != nil {
			return "", err
		}
	}
	return strings.Join(messages, "\n"), nil
}

// RefreshWatermark re-reads MAX(timestamp_field) and stores it. Used by the
// load protocol and by the timestamps verb.
func (e *Engine) RefreshWatermark(ctx context.Context, table *catalog.Table) error {
	if table.Meta.TimestampField == "" {
		return fmt.Errorf("%w for %s", watermark.ErrTimestampFieldRequired, table.URI())
	}
	return e.refreshWatermark(ctx, table)
}

func (e *Engine) refreshWatermark(ctx context.Context, table *catalog.Table) error {
	var stmt = e.Gen.SelectMaxTimestamp(table)
	var rows, err = e.Cursor.Execute(ctx, stmt)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrWarehouse, stmt, err)
	}
	if len(rows.Data) == 0 || len(rows.Data[0]) == 0 || rows.Data[0][0] == nil {
		log.WithField("table", table.URI()).Info("no rows, watermark unchanged")
		return nil
	}
	return e.Watermarks.SetLatest(ctx, table, timestampString(rows.Data[0][0]))
}

func timestampString(v interface{}) string {
	switch v := v.(type) {
	case time.Time:
		return v.Format("2006-01-02T15:04:05")
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// classify renders a statement result the way operators read it: DDL by
// status, DML by row count, COPY per file.
func classify(stmt string, rows *Rows) []string {
	var verb = strings.ToLower(firstWord(stmt))
	if rows == nil || len(rows.Data) == 0 {
		return nil
	}
	switch verb {
	case "drop", "create", "truncate":
		var msg = fmt.Sprintf("%s: %v", verb, rows.Data[0][0])
		log.Info(msg)
		return []string{msg}
	case "update", "insert", "delete":
		var msg = fmt.Sprintf("%s: %v rows affected.", verb, rows.Data[0][0])
		log.Info(msg)
		return []string{msg}
	case "copy":
		var messages []string
		for _, row := range rows.Data {
			var msg string
			if len(row) >= 4 {
				msg = fmt.Sprintf("%s: file: %v, status: %v, parsed %v, loaded %v",
					verb, row[0], row[1], row[2], row[3])
			} else {
				// A short row carries an error message.
				msg = fmt.Sprintf("%s: %v", verb, row[0])
			}
			messages = append(messages, msg)
		}
		log.Info(strings.Join(messages, "\n"))
		return messages
	}
	return nil
}

func firstWord(stmt string) string {
	if i := strings.IndexByte(stmt, ' '); i > 0 {
		return stmt[:i]
	}
	return stmt
}
