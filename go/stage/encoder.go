// Package stage moves rows into and out of the object-storage stage. The
// encoder streams a lazy row sequence into size-bounded compressed files;
// the client uploads, lists, downloads and deletes them under the table's
// key prefix.
package stage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// Encoder defaults: rotate files at 15 MiB of compressed bytes, pull rows
// in batches of 25000.
const (
	DefaultMaxFileSize = 15 * 1024 * 1024
	DefaultBatchSize   = 25_000
)

// RowSource is a pull-style row sequence; Next returns io.EOF when the
// sequence is exhausted. The encoder pulls one batch at a time, which gives
// slow producers natural backpressure.
type RowSource interface {
	Next() ([]interface{}, error)
}

// File is one encoded stage file. FileNumber starts at 1.
type File struct {
	Body       []byte
	FileNumber int
	RowCount   int
}

// Encoder yields encoded files one at a time; Next returns io.EOF after the
// final file.
type Encoder interface {
	Next() (*File, error)
}

// CSV dialect of staged files: semicolon-delimited, minimally quoted with
// doubled quotes, newline-terminated, no header row. The COPY statement
// projects columns explicitly, so readers never rely on a header.
type csvEncoder struct {
	source      RowSource
	maxFileSize int
	batchSize   int

	buf        bytes.Buffer
	gz         *gzip.Writer
	w          *csv.Writer
	fileNumber int
	rowCount   int
	exhausted  bool
}

// NewCSVEncoder builds a gzip CSV encoder over the source. Zero sizes get
// the defaults.
func NewCSVEncoder(source RowSource, maxFileSize, batchSize int) Encoder {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var e = &csvEncoder{source: source, maxFileSize: maxFileSize, batchSize: batchSize}
	e.reset()
	return e
}

func (e *csvEncoder) reset() {
	e.buf.Reset()
	e.gz = gzip.NewWriter(&e.buf)
	e.w = csv.NewWriter(e.gz)
	e.w.Comma = ';'
	e.rowCount = 0
}

func (e *csvEncoder) Next() (*File, error) {
	for !e.exhausted {
		var written, err = e.writeBatch()
		if err != nil {
			return nil, err
		}
		if written == 0 {
			break
		}
		log.WithFields(log.Fields{"rows": written, "buffer": e.buf.Len()}).
			Debug("wrote row batch to file buffer")
		if e.buf.Len() >= e.maxFileSize {
			log.WithFields(log.Fields{"buffer": e.buf.Len(), "max": e.maxFileSize}).
				Debug("file buffer exceeds maximum size, yielding file")
			return e.rotate()
		}
	}
	if e.rowCount > 0 {
		log.WithField("buffer", e.buf.Len()).Debug("yielding final file")
		return e.rotate()
	}
	return nil, io.EOF
}

// writeBatch pulls up to batchSize rows and writes them through the
// compressor, so the buffer length reflects compressed bytes.
func (e *csvEncoder) writeBatch() (int, error) {
	var written int
	for written < e.batchSize {
		var row, err = e.source.Next()
		if err == io.EOF {
			e.exhausted = true
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading rows: %w", err)
		}
		if err = e.w.Write(formatRow(row)); err != nil {
			return 0, fmt.Errorf("encoding row: %w", err)
		}
		written++
		e.rowCount++
	}
	if written > 0 {
		e.w.Flush()
		if err := e.w.Error(); err != nil {
			return 0, fmt.Errorf("encoding rows: %w", err)
		}
		if err := e.gz.Flush(); err != nil {
			return 0, fmt.Errorf("compressing rows: %w", err)
		}
	}
	return written, nil
}

func (e *csvEncoder) rotate() (*File, error) {
	if err := e.gz.Close(); err != nil {
		return nil, fmt.Errorf("closing file: %w", err)
	}
	e.fileNumber++
	var file = &File{
		Body:       append([]byte(nil), e.buf.Bytes()...),
		FileNumber: e.fileNumber,
		RowCount:   e.rowCount,
	}
	e.reset()
	return file, nil
}

func formatRow(row []interface{}) []string {
	var out = make([]string, len(row))
	for i, v := range row {
		out[i] = formatValue(v)
	}
	return out
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
