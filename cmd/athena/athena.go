// Package athena submits queries to AWS Athena and waits for their
// results, which land as CSV objects in an S3 output location.
package athena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/athena"
)

// Static errors for query outcomes
var (
	ErrQueryFailed    = errors.New("query failed")
	ErrQueryCancelled = errors.New("query cancelled")
	ErrNoExecutionID  = errors.New("query submission returned no execution id")
)

// defaultPollInterval matches the service's minimum useful poll rate.
const defaultPollInterval = 200 * time.Millisecond

// athenaAPI is the narrow slice of the Athena service used here.
type athenaAPI interface {
	StartQueryExecutionWithContext(ctx aws.Context, input *athena.StartQueryExecutionInput, opts ...request.Option) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecutionWithContext(ctx aws.Context, input *athena.GetQueryExecutionInput, opts ...request.Option) (*athena.GetQueryExecutionOutput, error)
	GetQueryResultsWithContext(ctx aws.Context, input *athena.GetQueryResultsInput, opts ...request.Option) (*athena.GetQueryResultsOutput, error)
}

// Client submits and tracks Athena queries.
type Client struct {
	api          athenaAPI
	logger       *slog.Logger
	PollInterval time.Duration
}

// NewClient builds a client over an Athena service handle.
func NewClient(api athenaAPI, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger, PollInterval: defaultPollInterval}
}

// RunQuery submits query against database, directing results to the
// s3Output prefix, and returns the execution id without waiting.
func (c *Client) RunQuery(ctx context.Context, query, database, s3Output string) (string, error) {
	out, err := c.api.StartQueryExecutionWithContext(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(query),
		QueryExecutionContext: &athena.QueryExecutionContext{
			Database: aws.String(database),
		},
		ResultConfiguration: &athena.ResultConfiguration{
			OutputLocation: aws.String(s3Output),
		},
	})
	if err != nil {
		return "", fmt.Errorf("submitting query: %w", err)
	}
	if out.QueryExecutionId == nil {
		return "", ErrNoExecutionID
	}
	c.logger.Debug(fmt.Sprintf("Submitted query execution %s", *out.QueryExecutionId))
	return *out.QueryExecutionId, nil
}

// WaitQuery polls the execution until it leaves the queued/running
// states. A failed or cancelled query surfaces as ErrQueryFailed or
// ErrQueryCancelled with the service's state change reason attached.
// Returns the final execution record on success.
func (c *Client) WaitQuery(ctx context.Context, executionID string) (*athena.QueryExecution, error) {
	for {
		out, err := c.api.GetQueryExecutionWithContext(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(executionID),
		})
		if err != nil {
			return nil, fmt.Errorf("polling query %s: %w", executionID, err)
		}

		status := out.QueryExecution.Status
		switch aws.StringValue(status.State) {
		case athena.QueryExecutionStateSucceeded:
			return out.QueryExecution, nil
		case athena.QueryExecutionStateFailed:
			return nil, fmt.Errorf("%w: %s: %s", ErrQueryFailed, executionID, aws.StringValue(status.StateChangeReason))
		case athena.QueryExecutionStateCancelled:
			return nil, fmt.Errorf("%w: %s: %s", ErrQueryCancelled, executionID, aws.StringValue(status.StateChangeReason))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}

// ResultLocation returns the S3 path of the execution's result object.
func ResultLocation(execution *athena.QueryExecution) string {
	if execution == nil || execution.ResultConfiguration == nil {
		return ""
	}
	return aws.StringValue(execution.ResultConfiguration.OutputLocation)
}

// QueryColumnTypes fetches the result schema of a finished query as
// column name to Athena type, preserving result order in the returned
// names slice.
func (c *Client) QueryColumnTypes(ctx context.Context, executionID string) ([]string, map[string]string, error) {
	out, err := c.api.GetQueryResultsWithContext(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(executionID),
		MaxResults:       aws.Int64(1),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetching result schema for %s: %w", executionID, err)
	}

	var names []string
	types := make(map[string]string)
	if out.ResultSet != nil && out.ResultSet.ResultSetMetadata != nil {
		for _, info := range out.ResultSet.ResultSetMetadata.ColumnInfo {
			name := aws.StringValue(info.Name)
			names = append(names, name)
			types[name] = aws.StringValue(info.Type)
		}
	}
	return names, types, nil
}

// RepairTable runs MSCK REPAIR TABLE so new partitions under the
// table's location become queryable, and waits for it to finish.
func (c *Client) RepairTable(ctx context.Context, database, table, s3Output string) error {
	id, err := c.RunQuery(ctx, fmt.Sprintf("MSCK REPAIR TABLE `%s`;", table), database, s3Output)
	if err != nil {
		return err
	}
	if _, err := c.WaitQuery(ctx, id); err != nil {
		return err
	}
	c.logger.Info(fmt.Sprintf("Repaired partitions for table %s.%s", database, table))
	return nil
}
