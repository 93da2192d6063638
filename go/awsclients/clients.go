// Package awsclients wires the orchestrator's collaborators to their AWS
// backings: the staging bucket, the job and task tables, the watermark
// table, the workflow engine, and the warehouse secret. Resource names are
// derived from deployment parameters as "<stem>-<env>".
package awsclients

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"github.com/aws/aws-sdk-go/service/sfn"

	"github.com/sluicedata/sluice/go/config"
	"github.com/sluicedata/sluice/go/snowflake"
	"github.com/sluicedata/sluice/go/watermark"
)

// Clients builds AWS-backed collaborators on a shared session.
type Clients struct {
	sess   *session.Session
	params config.Parameters
}

// New opens a session with the deployment's profile. Inside the function
// runtime the profile is empty and the default chain applies.
func New(params config.Parameters) (*Clients, error) {
	var sess, err = session.NewSessionWithOptions(session.Options{
		Profile:           params.Get("profile", ""),
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("opening AWS session: %w", err)
	}
	return &Clients{sess: sess, params: params}, nil
}

// StagingBucket is the warehouse staging bucket.
func (c *Clients) StagingBucket() *S3Bucket {
	return NewS3Bucket(s3.New(c.sess), c.params.ResourceName("SnowflakeStagingBucketStem", "snowflake-staging"))
}

// TaskStore persists jobs and tasks.
func (c *Clients) TaskStore() *TaskStore {
	return NewTaskStore(dynamodb.New(c.sess),
		c.params.ResourceName("TaskTableStem", "task"),
		c.params.ResourceName("JobTableStem", "job"))
}

// Watermarks is the per-table watermark store.
func (c *Clients) Watermarks() *watermark.DynamoStore {
	return watermark.NewDynamoStore(dynamodb.New(c.sess),
		c.params.ResourceName("ExtractTimeTableStem", "extract-time"))
}

// Workflows submits executions to the workflow engine.
func (c *Clients) Workflows() *Workflows {
	return NewWorkflows(sfn.New(c.sess))
}

// SnowflakeSecret fetches and decodes the warehouse credential.
func (c *Clients) SnowflakeSecret(ctx context.Context) (snowflake.Secret, error) {
	var arn = c.params.Get("SnowflakeSecretArn", "")
	if arn == "" {
		return snowflake.Secret{}, fmt.Errorf("deployment parameter SnowflakeSecretArn is not set")
	}
	var payload, err = secretString(ctx, secretsmanager.New(c.sess), arn)
	if err != nil {
		return snowflake.Secret{}, err
	}
	return snowflake.ParseSecret([]byte(payload))
}

func secretString(ctx context.Context, api secretsmanageriface.SecretsManagerAPI, secretID string) (string, error) {
	var out, err = api.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("reading secret %s: %w", secretID, err)
	}
	return aws.StringValue(out.SecretString), nil
}
