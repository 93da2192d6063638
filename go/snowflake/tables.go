package snowflake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sluicedata/sluice/go/catalog"
)

// CreateTablesOptions tune catalog materialization.
type CreateTablesOptions struct {
	// Overwrite drops existing tables before creating them.
	Overwrite bool
	// SaveFiles writes each DDL under sql/<schema>/<table>.sql.
	SaveFiles bool
}

// CreateTables materializes catalog tables in the warehouse. Tables which
// already exist are skipped unless overwrite is set.
func (e *Engine) CreateTables(ctx context.Context, tables []*catalog.Table, opts CreateTablesOptions) error {
	for _, table := range tables {
		var ddl = e.Gen.CreateTable(table)
		if opts.SaveFiles {
			if err := saveDDL(table, ddl); err != nil {
				return err
			}
		}
		var parts = strings.SplitN(ddl, ";\n", 2)
		var dropStmt, createStmt = parts[0], parts[1]
		if opts.Overwrite {
			if _, err := e.Cursor.Execute(ctx, dropStmt); err != nil {
				return fmt.Errorf("%w: dropping %s: %s", ErrWarehouse, table.URI(), err)
			}
			log.WithField("table", table.URI()).Info("dropped table")
		}
		if _, err := e.Cursor.Execute(ctx, createStmt); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				log.WithField("table", table.URI()).Info("table exists, skipped")
				continue
			}
			return fmt.Errorf("%w: creating %s: %s", ErrWarehouse, table.URI(), err)
		}
		log.WithField("table", table.URI()).Info("created table")
	}
	return nil
}

func saveDDL(table *catalog.Table, ddl string) error {
	var dir = filepath.Join("sql", table.SchemaName())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	var path = filepath.Join(dir, table.Name+".sql")
	if err := os.WriteFile(path, []byte(ddl), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
