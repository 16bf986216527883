package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/glue"
)

// Static errors for catalog operations
var (
	ErrTableModeInvalid = errors.New("table mode must be one of: overwrite, append")
)

// Column is one schema entry for a registered table.
type Column struct {
	Name string
	Type string // Athena type name
}

// TableSpec describes a CSV prefix to register in the Glue catalog.
type TableSpec struct {
	Database    string
	Table       string
	Location    string // s3://bucket/prefix/
	Columns     []Column
	Separator   byte
	QuoteAll    bool // quoted CSV uses OpenCSVSerDe, which reads every column as string
	Description string
}

// glueAPI is the narrow slice of the Glue service used here.
type glueAPI interface {
	GetTableWithContext(ctx aws.Context, input *glue.GetTableInput, opts ...request.Option) (*glue.GetTableOutput, error)
	CreateTableWithContext(ctx aws.Context, input *glue.CreateTableInput, opts ...request.Option) (*glue.CreateTableOutput, error)
	DeleteTableWithContext(ctx aws.Context, input *glue.DeleteTableInput, opts ...request.Option) (*glue.DeleteTableOutput, error)
}

// Client wraps the Glue catalog API.
type Client struct {
	api    glueAPI
	logger *slog.Logger
}

// NewClient builds a catalog client over a Glue service handle.
func NewClient(api glueAPI, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}
}

// TableExists reports whether the table is present in the database.
func (c *Client) TableExists(ctx context.Context, database, table string) (bool, error) {
	_, err := c.api.GetTableWithContext(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == glue.ErrCodeEntityNotFoundException {
			return false, nil
		}
		return false, fmt.Errorf("looking up table %s.%s: %w", database, table, err)
	}
	return true, nil
}

// DeleteTableIfExists removes the table, tolerating absence. Returns
// true when a table was actually deleted.
func (c *Client) DeleteTableIfExists(ctx context.Context, database, table string) (bool, error) {
	_, err := c.api.DeleteTableWithContext(ctx, &glue.DeleteTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == glue.ErrCodeEntityNotFoundException {
			return false, nil
		}
		return false, fmt.Errorf("deleting table %s.%s: %w", database, table, err)
	}
	return true, nil
}

// Register creates the table described by spec. Mode "overwrite"
// replaces any existing table; "append" requires the table to exist or
// creates it on first write.
func (c *Client) Register(ctx context.Context, spec TableSpec, mode string) error {
	switch mode {
	case "overwrite":
		deleted, err := c.DeleteTableIfExists(ctx, spec.Database, spec.Table)
		if err != nil {
			return err
		}
		if deleted {
			c.logger.Debug(fmt.Sprintf("Replaced existing catalog table %s.%s", spec.Database, spec.Table))
		}
	case "append":
		exists, err := c.TableExists(ctx, spec.Database, spec.Table)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	default:
		return fmt.Errorf("%w: got '%s'", ErrTableModeInvalid, mode)
	}

	_, err := c.api.CreateTableWithContext(ctx, &glue.CreateTableInput{
		DatabaseName: aws.String(spec.Database),
		TableInput:   CSVTableInput(spec),
	})
	if err != nil {
		return fmt.Errorf("creating table %s.%s: %w", spec.Database, spec.Table, err)
	}
	c.logger.Info(fmt.Sprintf("Registered catalog table %s.%s at %s", spec.Database, spec.Table, spec.Location))
	return nil
}

// CSVTableInput builds the Glue table definition for a CSV prefix.
// Quoted exports use OpenCSVSerDe, which treats every column as
// string; unquoted exports use LazySimpleSerDe and keep numeric types.
func CSVTableInput(spec TableSpec) *glue.TableInput {
	sep := string(spec.Separator)

	columns := make([]*glue.Column, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		colType := col.Type
		if spec.QuoteAll {
			colType = "string"
		}
		columns = append(columns, &glue.Column{
			Name: aws.String(col.Name),
			Type: aws.String(colType),
		})
	}

	serde := &glue.SerDeInfo{
		SerializationLibrary: aws.String("org.apache.hadoop.hive.serde2.lazy.LazySimpleSerDe"),
		Parameters: map[string]*string{
			"field.delim":  aws.String(sep),
			"escape.delim": aws.String("\\"),
		},
	}
	quoted := "false"
	if spec.QuoteAll {
		serde = &glue.SerDeInfo{
			SerializationLibrary: aws.String("org.apache.hadoop.hive.serde2.OpenCSVSerde"),
			Parameters: map[string]*string{
				"separatorChar": aws.String(sep),
				"quoteChar":     aws.String(`"`),
				"escapeChar":    aws.String("\\"),
			},
		}
		quoted = "true"
	}

	input := &glue.TableInput{
		Name:      aws.String(spec.Table),
		TableType: aws.String("EXTERNAL_TABLE"),
		Parameters: map[string]*string{
			"classification":   aws.String("csv"),
			"compressionType":  aws.String("none"),
			"typeOfData":       aws.String("file"),
			"delimiter":        aws.String(sep),
			"columnsOrdered":   aws.String("true"),
			"areColumnsQuoted": aws.String(quoted),
		},
		StorageDescriptor: &glue.StorageDescriptor{
			Columns:                columns,
			Location:               aws.String(spec.Location),
			InputFormat:            aws.String("org.apache.hadoop.mapred.TextInputFormat"),
			OutputFormat:           aws.String("org.apache.hadoop.hive.ql.io.HiveIgnoreKeyTextOutputFormat"),
			Compressed:             aws.Bool(false),
			NumberOfBuckets:        aws.Int64(-1),
			SerdeInfo:              serde,
			StoredAsSubDirectories: aws.Bool(false),
		},
	}
	if spec.Description != "" {
		input.Description = aws.String(spec.Description)
	}
	return input
}
