package catalog

import (
	"fmt"
	"strings"

	"github.com/sluicedata/sluice/go/config"
)

// FileFormat names a stage file encoding.
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
)

// TableMeta is the per-table ingestion policy. Zero values mean "default";
// defaults are elided when the catalog is serialized.
type TableMeta struct {
	// Ignore excludes the table from default schedules.
	Ignore bool
	// Batches is the default partitioning of extraction work.
	Batches int
	// TotalRows is a hint used only for progress reporting.
	TotalRows int
	// FileFormat selects the stage encoding, csv or parquet.
	FileFormat FileFormat
	// PrimaryKey enables key-based upsert; semicolon-separated column list.
	PrimaryKey string
	// TimestampKey enables range-based upsert and time batching.
	TimestampKey string
	// BatchKey is a source-side partitioning hint for the extractor.
	BatchKey string
	// Source is an opaque source identifier, e.g. a source-system table URI.
	Source string
	// WhereClause is an extractor filter.
	WhereClause string
	// LookBackDays defaults options.start/end when unset.
	LookBackDays int
	// TimestampField is the column persisted to the watermark store.
	TimestampField string
	// Timezone is the table's named zone.
	Timezone string
	// Truncate overrides upsert with a full truncate-and-reload.
	Truncate bool
	// StageFileFormat names an external file format on the warehouse.
	StageFileFormat string
}

// DefaultTableMeta returns the policy applied when a table declares none.
func DefaultTableMeta() TableMeta {
	return TableMeta{
		Batches:    1,
		FileFormat: FormatCSV,
		Timezone:   config.DefaultTimezone,
	}
}

// PrimaryKeyColumns splits the semicolon-separated primary key list.
func (m TableMeta) PrimaryKeyColumns() []string {
	if m.PrimaryKey == "" {
		return nil
	}
	var cols []string
	for _, col := range strings.Split(m.PrimaryKey, ";") {
		if col = strings.TrimSpace(col); col != "" {
			cols = append(cols, col)
		}
	}
	return cols
}

// Upsert reports whether the table loads by merging rather than overwriting.
func (m TableMeta) Upsert() bool {
	return !m.Truncate && (m.PrimaryKey != "" || m.TimestampKey != "")
}

func (m *TableMeta) setOption(key string, value interface{}) error {
	var err error
	switch key {
	case "ignore":
		m.Ignore, err = asBool(value)
	case "batches":
		m.Batches, err = asInt(value)
		if err == nil && m.Batches < 1 {
			err = fmt.Errorf("batches must be >= 1, got %d", m.Batches)
		}
	case "total_rows":
		m.TotalRows, err = asInt(value)
	case "file_format":
		var s string
		if s, err = asString(value); err == nil {
			switch FileFormat(s) {
			case FormatCSV, FormatParquet:
				m.FileFormat = FileFormat(s)
			default:
				err = fmt.Errorf("file_format must be csv or parquet, got %q", s)
			}
		}
	case "primary_key":
		m.PrimaryKey, err = asString(value)
	case "timestamp_key":
		m.TimestampKey, err = asString(value)
	case "batch_key":
		m.BatchKey, err = asString(value)
	case "source":
		m.Source, err = asString(value)
	case "where_clause":
		m.WhereClause, err = asString(value)
	case "look_back_days":
		m.LookBackDays, err = asInt(value)
	case "timestamp_field":
		m.TimestampField, err = asString(value)
	case "timezone":
		m.Timezone, err = asString(value)
	case "truncate":
		m.Truncate, err = asBool(value)
	case "stage_file_format":
		m.StageFileFormat, err = asString(value)
	default:
		return fmt.Errorf("%w: unknown option key %q", ErrParse, key)
	}
	if err != nil {
		return fmt.Errorf("%w: option %q: %s", ErrParse, key, err)
	}
	return nil
}

// serialized emits only non-default options, in a stable declaration order.
func (m TableMeta) serialized() []keyValue {
	var defaults = DefaultTableMeta()
	var out []keyValue
	var add = func(key string, value interface{}) { out = append(out, keyValue{key, value}) }

	if m.Ignore != defaults.Ignore {
		add("ignore", m.Ignore)
	}
	if m.Batches != defaults.Batches {
		add("batches", m.Batches)
	}
	if m.TotalRows != defaults.TotalRows {
		add("total_rows", m.TotalRows)
	}
	if m.FileFormat != defaults.FileFormat {
		add("file_format", string(m.FileFormat))
	}
	if m.PrimaryKey != "" {
		add("primary_key", m.PrimaryKey)
	}
	if m.TimestampKey != "" {
		add("timestamp_key", m.TimestampKey)
	}
	if m.BatchKey != "" {
		add("batch_key", m.BatchKey)
	}
	if m.Source != "" {
		add("source", m.Source)
	}
	if m.WhereClause != "" {
		add("where_clause", m.WhereClause)
	}
	if m.LookBackDays != 0 {
		add("look_back_days", m.LookBackDays)
	}
	if m.TimestampField != "" {
		add("timestamp_field", m.TimestampField)
	}
	if m.Timezone != defaults.Timezone {
		add("timezone", m.Timezone)
	}
	if m.Truncate != defaults.Truncate {
		add("truncate", m.Truncate)
	}
	if m.StageFileFormat != "" {
		add("stage_file_format", m.StageFileFormat)
	}
	return out
}

type keyValue struct {
	key   string
	value interface{}
}

func asString(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

func asBool(v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("expected bool, got %T", v)
}

func asInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}
