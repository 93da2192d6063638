package awsclients

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sfn"
	"github.com/aws/aws-sdk-go/service/sfn/sfniface"
	"github.com/stretchr/testify/require"
)

type fakeSFN struct {
	sfniface.SFNAPI
	started []*sfn.StartExecutionInput
}

func (f *fakeSFN) StartExecutionWithContext(ctx aws.Context, in *sfn.StartExecutionInput, _ ...request.Option) (*sfn.StartExecutionOutput, error) {
	f.started = append(f.started, in)
	return &sfn.StartExecutionOutput{
		ExecutionArn: aws.String(aws.StringValue(in.StateMachineArn) + ":execution:run1"),
	}, nil
}

func TestWorkflowsStart(t *testing.T) {
	t.Setenv("AWS_ACCOUNT_ID", "123456789012")
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("APP_ENV", "dev")

	var api = &fakeSFN{}
	var link, err = NewWorkflows(api).Start(context.Background(), "ExtractLoadJobQueue", []byte(`{"options": {}}`))
	require.NoError(t, err)

	require.Len(t, api.started, 1)
	require.Equal(t,
		"arn:aws:states:eu-central-1:123456789012:stateMachine:ExtractLoadJobQueue-dev",
		aws.StringValue(api.started[0].StateMachineArn))
	require.Equal(t, `{"options": {}}`, aws.StringValue(api.started[0].Input))
	require.Contains(t, link, "executions/details/")
}

func TestWorkflowsStartEmptyPayload(t *testing.T) {
	t.Setenv("AWS_ACCOUNT_ID", "123456789012")
	t.Setenv("AWS_REGION", "eu-central-1")

	var api = &fakeSFN{}
	var _, err = NewWorkflows(api).Start(context.Background(), "Pipeline", nil)
	require.NoError(t, err)
	require.Equal(t, "{}", aws.StringValue(api.started[0].Input))
}

func TestWorkflowsStartRequiresAccount(t *testing.T) {
	t.Setenv("AWS_ACCOUNT_ID", "")

	var _, err = NewWorkflows(&fakeSFN{}).Start(context.Background(), "Pipeline", nil)
	require.Error(t, err)
}
