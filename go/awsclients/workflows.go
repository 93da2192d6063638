package awsclients

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sfn"
	"github.com/aws/aws-sdk-go/service/sfn/sfniface"
	log "github.com/sirupsen/logrus"

	"github.com/sluicedata/sluice/go/config"
)

const defaultRegion = "eu-central-1"

// Workflows starts executions of the deployment's state machines. Machine
// ARNs are derived from the account and region rather than listed, so a
// submit needs no extra permissions.
type Workflows struct {
	api sfniface.SFNAPI
}

func NewWorkflows(api sfniface.SFNAPI) *Workflows {
	return &Workflows{api: api}
}

// Start submits one execution of the named machine and returns the console
// link of the execution.
func (w *Workflows) Start(ctx context.Context, machineName string, payload []byte) (string, error) {
	var accountID = os.Getenv("AWS_ACCOUNT_ID")
	if accountID == "" {
		return "", fmt.Errorf("AWS_ACCOUNT_ID environment variable not set")
	}
	var region = os.Getenv("AWS_REGION")
	if region == "" {
		region = defaultRegion
	}
	var arn = fmt.Sprintf("arn:aws:states:%s:%s:stateMachine:%s-%s",
		region, accountID, machineName, config.ActiveEnv())
	var input = "{}"
	if len(payload) > 0 {
		input = string(payload)
	}
	var out, err = w.api.StartExecutionWithContext(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(arn),
		Input:           aws.String(input),
	})
	if err != nil {
		return "", fmt.Errorf("starting %s: %w", arn, err)
	}
	var link = fmt.Sprintf("https://%s.console.aws.amazon.com/states/home?region=%s#/v2/executions/details/%s",
		region, region, aws.StringValue(out.ExecutionArn))
	log.WithField("execution", aws.StringValue(out.ExecutionArn)).Info("started workflow execution")
	return link, nil
}
