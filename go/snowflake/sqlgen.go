// Package snowflake generates and runs the load protocol: the fixed
// statement sequences which materialize staged files into a target table,
// either by overwrite or by upsert through a _stage twin table.
package snowflake

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sluicedata/sluice/go/catalog"
	"github.com/sluicedata/sluice/go/config"
)

var (
	// ErrInvalidSuffix reports a staging suffix other than _stage.
	ErrInvalidSuffix = errors.New("invalid table suffix")
	// ErrLoadPolicyUnresolved reports an upsert without a primary key or
	// timestamp key and without a truncate override.
	ErrLoadPolicyUnresolved = errors.New("cannot resolve load policy")
	// ErrWarehouse reports a failed warehouse statement.
	ErrWarehouse = errors.New("warehouse failure")
)

// StageSuffix names the staging twin of a target table.
const StageSuffix = "_stage"

// Generator builds the load statements of a table. The clock is injectable
// so generated scripts are testable.
type Generator struct {
	Now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{Now: func() time.Time {
		var loc, err = time.LoadLocation(config.DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		return time.Now().In(loc)
	}}
}

func (g *Generator) nowTimestamp() string {
	return g.Now().Format("2006-01-02 15:04:05")
}

func checkSuffix(suffix string) error {
	if suffix != "" && suffix != StageSuffix {
		return fmt.Errorf("%w: %q", ErrInvalidSuffix, suffix)
	}
	return nil
}

// Truncate empties the target table.
func (g *Generator) Truncate(table *catalog.Table) string {
	return fmt.Sprintf("TRUNCATE TABLE IF EXISTS %s", table.URI())
}

// DropStaging removes a previous staging twin.
func (g *Generator) DropStaging(table *catalog.Table) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s%s", table.URI(), StageSuffix)
}

// CreateStaging builds an empty staging twin of the target.
func (g *Generator) CreateStaging(table *catalog.Table) string {
	return fmt.Sprintf("CREATE TABLE %s%s LIKE %s", table.URI(), StageSuffix, table.URI())
}

// Copy loads the table's staged files into the target (or its staging twin
// when suffix is _stage), projecting the catalog's columns in order.
func (g *Generator) Copy(table *catalog.Table, suffix string) (string, error) {
	if err := checkSuffix(suffix); err != nil {
		return "", err
	}
	var columnNames = strings.Join(table.ColumnNames(), ", ")
	var location = fmt.Sprintf("@%s.%s/%s/%s/",
		table.DatabaseName(), config.StageLocation(), table.SchemaName(), table.Name)

	if table.Meta.StageFileFormat != "" {
		return fmt.Sprintf("COPY INTO %s%s (%s) FROM %s FILE_FORMAT=( FORMAT_NAME='%s' )",
			table.URI(), suffix, columnNames, location, table.Meta.StageFileFormat), nil
	}
	if table.Meta.FileFormat == catalog.FormatParquet {
		var exprs = make([]string, 0, len(table.Columns()))
		for _, col := range table.Columns() {
			if col.Dtype == "datetime" {
				exprs = append(exprs, fmt.Sprintf("TO_TIMESTAMP_NTZ($1:%s::int, 6)", col.Name))
			} else {
				exprs = append(exprs, fmt.Sprintf("$1:%s", col.Name))
			}
		}
		return fmt.Sprintf("COPY INTO %s%s (%s) FROM ( SELECT %s FROM %s ) FILE_FORMAT=( TYPE=PARQUET )",
			table.URI(), suffix, columnNames, strings.Join(exprs, ", "), location), nil
	}
	return fmt.Sprintf("COPY INTO %s%s (%s) FROM %s "+
		`FILE_FORMAT=( TYPE=CSV FIELD_DELIMITER=';' SKIP_BLANK_LINES=TRUE TRIM_SPACE=TRUE FIELD_OPTIONALLY_ENCLOSED_BY='"' )`,
		table.URI(), suffix, columnNames, location), nil
}

// UpdateLoadDate stamps the rows just copied.
func (g *Generator) UpdateLoadDate(table *catalog.Table, suffix string) (string, error) {
	if err := checkSuffix(suffix); err != nil {
		return "", err
	}
	return fmt.Sprintf("UPDATE %s%s SET load_date='%s'", table.URI(), suffix, g.nowTimestamp()), nil
}

// DeleteFromTarget removes the target rows the staged data replaces: by key
// equality when a primary key is declared, otherwise by the staged data's
// timestamp range (NULL timestamps are always replaced).
func (g *Generator) DeleteFromTarget(table *catalog.Table) (string, error) {
	var target = table.URI()
	var staging = target + StageSuffix
	var short = table.Name
	var shortStaging = short + StageSuffix

	if keys := table.Meta.PrimaryKeyColumns(); len(keys) > 0 {
		var match = make([]string, len(keys))
		for i, key := range keys {
			match[i] = fmt.Sprintf("%s.%s = %s.%s", short, key, shortStaging, key)
		}
		return fmt.Sprintf("DELETE FROM %s USING %s WHERE %s",
			target, staging, strings.Join(match, " AND ")), nil
	}
	if ts := table.Meta.TimestampKey; ts != "" {
		return fmt.Sprintf(
			"DELETE FROM %s USING ( SELECT MIN(%s) AS min_ts, MAX(%s) AS max_ts FROM %s ) %s "+
				"WHERE %s.%s BETWEEN %s.min_ts AND %s.max_ts OR %s.%s IS NULL",
			target, ts, ts, staging, shortStaging,
			short, ts, shortStaging, shortStaging, short, ts), nil
	}
	return "", fmt.Errorf("%w for %s: no primary_key or timestamp_key", ErrLoadPolicyUnresolved, target)
}

// InsertFromStaging appends the staged rows into the target.
func (g *Generator) InsertFromStaging(table *catalog.Table) string {
	return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s%s", table.URI(), table.URI(), StageSuffix)
}

// SelectMaxTimestamp reads the watermark candidate after a load.
func (g *Generator) SelectMaxTimestamp(table *catalog.Table) string {
	return fmt.Sprintf("SELECT MAX(%s) FROM %s", table.Meta.TimestampField, table.URI())
}

// LoadStatements is the full statement sequence of one load. A truncate
// override forces overwrite mode regardless of the table's keys.
func (g *Generator) LoadStatements(table *catalog.Table, truncate *bool) ([]string, error) {
	var forceTruncate = table.Meta.Truncate
	if truncate != nil {
		forceTruncate = *truncate
	}
	var upsert = !forceTruncate && (table.Meta.PrimaryKey != "" || table.Meta.TimestampKey != "")

	if !upsert {
		copyStmt, err := g.Copy(table, "")
		if err != nil {
			return nil, err
		}
		updateStmt, err := g.UpdateLoadDate(table, "")
		if err != nil {
			return nil, err
		}
		return []string{g.Truncate(table), copyStmt, updateStmt}, nil
	}

	copyStmt, err := g.Copy(table, StageSuffix)
	if err != nil {
		return nil, err
	}
	updateStmt, err := g.UpdateLoadDate(table, StageSuffix)
	if err != nil {
		return nil, err
	}
	deleteStmt, err := g.DeleteFromTarget(table)
	if err != nil {
		return nil, err
	}
	return []string{
		g.DropStaging(table),
		g.CreateStaging(table),
		copyStmt,
		updateStmt,
		deleteStmt,
		g.InsertFromStaging(table),
	}, nil
}

// LoadScript joins the load statements for display and testing.
func (g *Generator) LoadScript(table *catalog.Table, truncate *bool) (string, error) {
	var stmts, err = g.LoadStatements(table, truncate)
	if err != nil {
		return "", err
	}
	return strings.Join(stmts, ";\n"), nil
}

// CreateTable is the DDL of the tables verb: drop plus create with the
// catalog's columns, their comments, and a trailing load_date column.
func (g *Generator) CreateTable(table *catalog.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s;\n", table.URI())
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", table.URI())
	for _, col := range table.Columns() {
		fmt.Fprintf(&b, "    %s %s", col.Name, strings.ToUpper(col.Dtype))
		if col.Description != "" {
			fmt.Fprintf(&b, " COMMENT '%s'", strings.ReplaceAll(col.Description, "'", "''"))
		}
		b.WriteString(",\n")
	}
	b.WriteString("    load_date DATETIME\n)")
	return b.String()
}
