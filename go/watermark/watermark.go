// Package watermark persists the latest observed timestamp per table, used
// to resume incremental extraction. Records are keyed by table_uri and
// writes are last-write-wins.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	log "github.com/sirupsen/logrus"

	"github.com/sluicedata/sluice/go/catalog"
	"github.com/sluicedata/sluice/go/config"
)

// ErrTimestampFieldRequired reports a watermark operation on a table whose
// metadata declares no timestamp_field.
var ErrTimestampFieldRequired = errors.New("timestamp_field is not set")

// Store reads and writes per-table watermarks. Latest returns "" when no
// watermark has been stored yet.
type Store interface {
	Latest(ctx context.Context, table *catalog.Table) (string, error)
	SetLatest(ctx context.Context, table *catalog.Table, value string) error
}

// DynamoStore keeps watermarks in a DynamoDB table with hash key table_uri.
// The record carries the value under the table's timestamp_field name plus
// an updated timestamp.
type DynamoStore struct {
	db        dynamodbiface.DynamoDBAPI
	tableName string
}

func NewDynamoStore(db dynamodbiface.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{db: db, tableName: tableName}
}

func (s *DynamoStore) Latest(ctx context.Context, table *catalog.Table) (string, error) {
	if table.Meta.TimestampField == "" {
		return "", fmt.Errorf("%w for %s", ErrTimestampFieldRequired, table.URI())
	}
	var out, err = s.db.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"table_uri": {S: aws.String(table.URI())},
		},
	})
	if err != nil {
		return "", fmt.Errorf("reading watermark for %s: %w", table.URI(), err)
	}
	if out.Item == nil {
		return "", nil
	}
	var record map[string]string
	if err = dynamodbattribute.UnmarshalMap(out.Item, &record); err != nil {
		return "", fmt.Errorf("decoding watermark for %s: %w", table.URI(), err)
	}
	return record[table.Meta.TimestampField], nil
}

func (s *DynamoStore) SetLatest(ctx context.Context, table *catalog.Table, value string) error {
	if table.Meta.TimestampField == "" {
		return fmt.Errorf("%w for %s", ErrTimestampFieldRequired, table.URI())
	}
	var item = map[string]*dynamodb.AttributeValue{
		"table_uri":               {S: aws.String(table.URI())},
		table.Meta.TimestampField: {S: aws.String(value)},
		"updated":                 {S: aws.String(nowTimestamp())},
	}
	var _, err = s.db.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("writing watermark for %s: %w", table.URI(), err)
	}
	log.WithFields(log.Fields{
		"table":                   table.URI(),
		table.Meta.TimestampField: value,
	}).Info("set latest timestamp")
	return nil
}

func nowTimestamp() string {
	var loc, err = time.LoadLocation(config.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format("2006-01-02 15:04:05")
}
