package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	awsathena "github.com/aws/aws-sdk-go/service/athena"

	"github.com/lakeops/csv-shuttle/cmd/athena"
)

// QueryRunner submits SQL to Athena and streams the result object back
// through the same chunked scanner the scan command uses.
type QueryRunner struct {
	config *Config
	logger *slog.Logger
}

func NewQueryRunner(config *Config, logger *slog.Logger) *QueryRunner {
	return &QueryRunner{config: config, logger: logger}
}

// Run executes the query, waits for completion, and scans the result
// CSV from the output location.
func (q *QueryRunner) Run(ctx context.Context) error {
	startTime := time.Now()

	awsSess, err := session.NewSession(&aws.Config{
		Region:      aws.String(q.config.S3.Region),
		Credentials: credentials.NewStaticCredentials(q.config.S3.AccessKey, q.config.S3.SecretKey, ""),
	})
	if err != nil {
		return fmt.Errorf("failed to create AWS session: %w", err)
	}
	client := athena.NewClient(awsathena.New(awsSess), q.logger)

	q.logger.Debug(fmt.Sprintf("🚀 Submitting query to Athena database %s", q.config.Athena.Database))
	executionID, err := client.RunQuery(ctx, q.config.Query, q.config.Athena.Database, q.config.Athena.OutputLocation)
	if err != nil {
		return fmt.Errorf("starting query: %w", err)
	}

	execution, err := client.WaitQuery(ctx, executionID)
	if err != nil {
		return fmt.Errorf("query %s: %w", executionID, err)
	}
	q.logger.Info(fmt.Sprintf("✅ Query %s succeeded in %s", executionID, time.Since(startTime).Round(time.Millisecond)))

	resultPath := athena.ResultLocation(execution)
	if resultPath == "" {
		return athena.ErrNoExecutionID
	}

	// Athena result objects are plain CSV, so the scan pipeline reads
	// them directly from the output location.
	scanConfig := *q.config
	scanConfig.Source = resultPath
	bucket, _, err := ParseS3Path(resultPath)
	if err != nil {
		return err
	}
	scanConfig.S3.Bucket = bucket
	if scanConfig.S3.Endpoint == "" {
		scanConfig.S3.Endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", q.config.S3.Region)
	}

	scanner := NewScanner(&scanConfig, q.logger)
	if _, err := scanner.Run(ctx); err != nil {
		return fmt.Errorf("scanning result object %s: %w", resultPath, err)
	}
	return nil
}
