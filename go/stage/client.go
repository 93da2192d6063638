package stage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"github.com/sluicedata/sluice/go/catalog"
)

// ErrStageIO reports a failed object-storage operation.
var ErrStageIO = errors.New("stage storage failure")

// Bucket is the object-storage handle the client operates on. Put is
// idempotent by key; Delete accepts at most deleteBatchSize keys.
type Bucket interface {
	Name() string
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, keys []string) error
}

const deleteBatchSize = 1000

// Client stages encoded files under the table's key prefix.
type Client struct {
	bucket Bucket
}

func NewClient(bucket Bucket) *Client {
	return &Client{bucket: bucket}
}

// Clean deletes every staged object of a table.
func (c *Client) Clean(ctx context.Context, schemaName, tableName string) (string, error) {
	var prefix = Prefix(schemaName, tableName)
	var keys, err = c.bucket.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("%w: listing %s: %s", ErrStageIO, prefix, err)
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		var end = start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err = c.bucket.Delete(ctx, keys[start:end]); err != nil {
			return "", fmt.Errorf("%w: deleting under %s: %s", ErrStageIO, prefix, err)
		}
	}
	var message = fmt.Sprintf("Deleted %d file(s) from s3://%s/%s", len(keys), c.bucket.Name(), prefix)
	log.Info(message)
	return message, nil
}

// UploadOptions tune one upload. Zero sizes get the encoder defaults.
type UploadOptions struct {
	MaxFileSize int
	BatchSize   int
	// TotalRows is the progress-reporting hint from table metadata.
	TotalRows int
	// RelativeTime reports the share of the execution budget spent, when
	// the caller runs under a deadline.
	RelativeTime func() float64
}

// UploadResult sums up one extract batch's upload.
type UploadResult struct {
	Files   int
	Rows    int
	Bytes   int
	Message string
}

// Upload encodes the row source and puts each yielded file under the
// table's prefix. Each batch writes a disjoint b<N> key range, so batches
// of the same job can run concurrently.
func (c *Client) Upload(ctx context.Context, table *catalog.Table, batchNumber int, rows RowSource, opts UploadOptions) (*UploadResult, error) {
	var encoder = NewEncoderForTable(table, rows, opts.MaxFileSize, opts.BatchSize)
	var result = &UploadResult{}
	for {
		var file, err = encoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		var key = Key(table.SchemaName(), table.Name, batchNumber, file.FileNumber, table.Meta.FileFormat)
		if err = c.bucket.Put(ctx, key, file.Body); err != nil {
			return nil, fmt.Errorf("%w: putting %s: %s", ErrStageIO, key, err)
		}
		result.Files = file.FileNumber
		result.Rows += file.RowCount
		result.Bytes += len(file.Body)
		log.WithFields(log.Fields{
			"key":  fmt.Sprintf("s3://%s/%s", c.bucket.Name(), key),
			"size": humanBytes(len(file.Body)),
			"rows": file.RowCount,
		}).Info("uploaded stage file")
		if opts.TotalRows > 0 && opts.RelativeTime != nil {
			log.WithFields(log.Fields{
				"rows": fmt.Sprintf("%.2f%%", 100*float64(result.Rows)/float64(opts.TotalRows)),
				"time": fmt.Sprintf("%.2f%%", 100*opts.RelativeTime()),
			}).Info("upload progress")
		}
	}
	var spent = "n/a"
	if opts.RelativeTime != nil {
		spent = fmt.Sprintf("%.2f%%", 100*opts.RelativeTime())
	}
	result.Message = fmt.Sprintf("Task [%d] uploaded %s [%d file(s), %d rows] to s3://%s using %s of available time.",
		batchNumber, humanBytes(result.Bytes), result.Files, result.Rows, c.bucket.Name(), spent)
	log.Info(result.Message)
	return result, nil
}

// Download fetches one staged file, decompressing CSV bodies.
func (c *Client) Download(ctx context.Context, table *catalog.Table, batchNumber, fileNumber int) ([]byte, error) {
	var key = Key(table.SchemaName(), table.Name, batchNumber, fileNumber, table.Meta.FileFormat)
	log.WithField("key", fmt.Sprintf("s3://%s/%s", c.bucket.Name(), key)).Info("downloading stage file")
	var body, err = c.bucket.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: getting %s: %s", ErrStageIO, key, err)
	}
	if strings.HasSuffix(key, ".gz") {
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", key, err)
		}
		defer gz.Close()
		if body, err = io.ReadAll(gz); err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", key, err)
		}
	}
	return body, nil
}

// ReadCSV parses a decompressed stage file with the stage dialect.
func ReadCSV(body []byte) ([][]string, error) {
	var r = csv.NewReader(bytes.NewReader(body))
	r.Comma = ';'
	r.FieldsPerRecord = -1
	var rows, err = r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing stage file: %w", err)
	}
	return rows, nil
}

func humanBytes(n int) string {
	if n < 1024 {
		return fmt.Sprintf("%d bytes", n)
	}
	var value = float64(n)
	for _, unit := range []string{"KB", "MB", "GB", "TB"} {
		value /= 1024
		if value < 1024 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
	}
	return fmt.Sprintf("%.1f PB", value/1024)
}
