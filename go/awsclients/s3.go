package awsclients

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/sluicedata/sluice/go/stage"
)

// S3Bucket adapts one bucket to the stage's storage interface.
type S3Bucket struct {
	api  s3iface.S3API
	name string
}

func NewS3Bucket(api s3iface.S3API, name string) *S3Bucket {
	return &S3Bucket{api: api, name: name}
}

var _ stage.Bucket = (*S3Bucket)(nil)

func (b *S3Bucket) Name() string { return b.name }

func (b *S3Bucket) Put(ctx context.Context, key string, body []byte) error {
	var _, err = b.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	return err
}

func (b *S3Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	var out, err = b.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *S3Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var err = b.api.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *S3Bucket) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	var objects = make([]*s3.ObjectIdentifier, len(keys))
	for i, key := range keys {
		objects[i] = &s3.ObjectIdentifier{Key: aws.String(key)}
	}
	var out, err = b.api.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(b.name),
		Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return err
	}
	if len(out.Errors) > 0 {
		var first = out.Errors[0]
		return fmt.Errorf("deleting %s: %s (%d failed)",
			aws.StringValue(first.Key), aws.StringValue(first.Message), len(out.Errors))
	}
	return nil
}
