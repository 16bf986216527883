package cmd

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/lakeops/csv-shuttle/cmd/dialect"
)

// Static errors for configuration validation
var (
	ErrDatabaseUserRequired    = errors.New("database user is required")
	ErrDatabaseNameRequired    = errors.New("database name is required")
	ErrDatabasePortInvalid     = errors.New("database port must be between 1 and 65535")
	ErrS3EndpointRequired      = errors.New("S3 endpoint is required")
	ErrS3BucketRequired        = errors.New("S3 bucket is required")
	ErrS3AccessKeyRequired     = errors.New("S3 access key is required")
	ErrS3SecretKeyRequired     = errors.New("S3 secret key is required")
	ErrS3RegionInvalid         = errors.New("S3 region contains invalid characters or is too long")
	ErrTableNameRequired       = errors.New("table name is required")
	ErrTableNameInvalid        = errors.New("table name is invalid: must be 1-63 characters, start with a letter or underscore, and contain only letters, numbers, and underscores")
	ErrSourceRequired          = errors.New("source object path is required")
	ErrQueryRequired           = errors.New("query SQL is required")
	ErrWorkersMinimum          = errors.New("workers must be at least 1")
	ErrWorkersMaximum          = errors.New("workers must not exceed 1000")
	ErrChunkBudgetMinimum      = errors.New("chunk budget must be at least 4096 bytes")
	ErrChunkBudgetMaximum      = errors.New("chunk budget must not exceed 1GiB")
	ErrWindowGrowthInvalid     = errors.New("window growth limit must be between 0 and 16")
	ErrRowThresholdMinimum     = errors.New("row threshold must be at least 1")
	ErrPathTemplateRequired    = errors.New("path template is required")
	ErrPathTemplateInvalid     = errors.New("path template must contain {table} placeholder")
	ErrSeparatorInvalid        = errors.New("separator must be a single byte")
	ErrQuoteInvalid            = errors.New("quote must be a single byte")
	ErrCompressionInvalid      = errors.New("compression must be one of: zstd, lz4, gzip, none")
	ErrCompressionLevelInvalid = errors.New("compression level must be between 1 and 22 (zstd), 1-9 (lz4/gzip)")
	ErrGlueModeInvalid         = errors.New("glue mode must be one of: overwrite, append")
	ErrAthenaOutputRequired    = errors.New("athena output location is required")
)

const regionAuto = "auto"

type Config struct {
	Debug     bool
	LogFormat string
	DryRun    bool
	Workers   int

	// Chunked reading
	ChunkBudget       int64 // Bytes fetched per window before boundary trimming
	WindowGrowthLimit int   // Doublings allowed while hunting for a boundary
	RowThreshold      int   // Rows below which a table writes as one partition

	Database DatabaseConfig
	S3       S3Config
	Dialect  DialectConfig
	Glue     GlueConfig
	Athena   AthenaConfig

	Table  string // Export source table
	Where  string // Optional export filter expression
	Source string // Scan source: s3://bucket/key
	Output string // Scan destination: local file ("" = stdout)
	Query  string // Athena SQL for the query command

	Compression      string
	CompressionLevel int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type S3Config struct {
	Endpoint     string
	Bucket       string
	AccessKey    string
	SecretKey    string
	Region       string
	PathTemplate string
}

type DialectConfig struct {
	Separator  string
	Quote      string
	Terminator string // Accepts escapes like \n and \r\n
	Quoting    string // minimal or all
}

// Dialect materializes the configured dialect.
func (d DialectConfig) Dialect() (dialect.Dialect, error) {
	out := dialect.Default()
	if d.Separator != "" {
		if len(d.Separator) != 1 {
			return out, fmt.Errorf("%w: got '%s'", ErrSeparatorInvalid, d.Separator)
		}
		out.Separator = d.Separator[0]
	}
	if d.Quote != "" {
		if len(d.Quote) != 1 {
			return out, fmt.Errorf("%w: got '%s'", ErrQuoteInvalid, d.Quote)
		}
		out.Quote = d.Quote[0]
	}
	if d.Terminator != "" {
		out.Terminator = dialect.UnescapeTerminator(d.Terminator)
	}
	quoting, err := dialect.ParseQuoting(d.Quoting)
	if err != nil {
		return out, err
	}
	out.Quoting = quoting
	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

type GlueConfig struct {
	Database string // Empty disables catalog registration
	Table    string // Defaults to the export table name
	Mode     string // overwrite or append
	Repair   bool   // Run MSCK REPAIR TABLE after registration
}

type AthenaConfig struct {
	Database       string
	OutputLocation string // s3://bucket/prefix/ for query results
}

// validPostgreSQLIdentifier checks if a string is a valid PostgreSQL identifier
// to prevent SQL injection attacks
var validPostgreSQLIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidTableName validates that a table name is safe to use in SQL queries
func isValidTableName(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	return validPostgreSQLIdentifier.MatchString(name)
}

// isValidRegion validates that an S3 region is reasonable
func isValidRegion(region string) bool {
	if region == "" || len(region) > 50 {
		return false
	}
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, region)
	return matched
}

// isValidPathTemplate validates that a path template contains required placeholders
func isValidPathTemplate(template string) bool {
	if template == "" {
		return false
	}
	return regexp.MustCompile(`\{table\}`).MatchString(template)
}

// isValidCompression validates the compression type
func isValidCompression(compression string) bool {
	switch compression {
	case "zstd", "lz4", "gzip", "none":
		return true
	}
	return false
}

// isValidCompressionLevel validates compression level based on compression type
func isValidCompressionLevel(compression string, level int) bool {
	switch compression {
	case "zstd":
		return level >= 1 && level <= 22
	case "lz4", "gzip":
		return level >= 1 && level <= 9
	case "none":
		return level == 0
	default:
		return false
	}
}

// validateS3 checks the object storage settings shared by every command.
func (c *Config) validateS3() error {
	if c.S3.Endpoint == "" {
		return ErrS3EndpointRequired
	}
	if c.S3.Bucket == "" {
		return ErrS3BucketRequired
	}
	if c.S3.AccessKey == "" {
		return ErrS3AccessKeyRequired
	}
	if c.S3.SecretKey == "" {
		return ErrS3SecretKeyRequired
	}
	if c.S3.Region != "" && c.S3.Region != regionAuto {
		if !isValidRegion(c.S3.Region) {
			return fmt.Errorf("%w: %s", ErrS3RegionInvalid, c.S3.Region)
		}
	}
	return nil
}

// validateCommon checks the settings every command shares.
func (c *Config) validateCommon() error {
	if c.Workers < 1 {
		return ErrWorkersMinimum
	}
	if c.Workers > 1000 {
		return fmt.Errorf("%w, got %d", ErrWorkersMaximum, c.Workers)
	}

	if c.ChunkBudget != 0 {
		if c.ChunkBudget < 4096 {
			return fmt.Errorf("%w, got %d", ErrChunkBudgetMinimum, c.ChunkBudget)
		}
		if c.ChunkBudget > 1<<30 {
			return fmt.Errorf("%w, got %d", ErrChunkBudgetMaximum, c.ChunkBudget)
		}
	}
	if c.WindowGrowthLimit < 0 || c.WindowGrowthLimit > 16 {
		return fmt.Errorf("%w, got %d", ErrWindowGrowthInvalid, c.WindowGrowthLimit)
	}

	if _, err := c.Dialect.Dialect(); err != nil {
		return err
	}
	return nil
}

// ValidateScan validates configuration for the scan command.
func (c *Config) ValidateScan() error {
	if c.Source == "" {
		return ErrSourceRequired
	}
	if _, _, err := ParseS3Path(c.Source); err != nil {
		return err
	}
	if err := c.validateS3(); err != nil {
		return err
	}
	return c.validateCommon()
}

// ValidateExport validates configuration for the export command.
func (c *Config) ValidateExport() error {
	if c.Database.User == "" {
		return ErrDatabaseUserRequired
	}
	if c.Database.Name == "" {
		return ErrDatabaseNameRequired
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("%w, got %d", ErrDatabasePortInvalid, c.Database.Port)
	}

	if c.Table == "" {
		return ErrTableNameRequired
	}
	if !isValidTableName(c.Table) {
		return fmt.Errorf("%w: '%s'", ErrTableNameInvalid, c.Table)
	}

	if err := c.validateS3(); err != nil {
		return err
	}

	if c.S3.PathTemplate == "" {
		return ErrPathTemplateRequired
	}
	if !isValidPathTemplate(c.S3.PathTemplate) {
		return fmt.Errorf("%w: '%s'", ErrPathTemplateInvalid, c.S3.PathTemplate)
	}

	if c.RowThreshold < 1 {
		return fmt.Errorf("%w, got %d", ErrRowThresholdMinimum, c.RowThreshold)
	}

	if !isValidCompression(c.Compression) {
		return fmt.Errorf("%w: '%s'", ErrCompressionInvalid, c.Compression)
	}
	if !isValidCompressionLevel(c.Compression, c.CompressionLevel) {
		return fmt.Errorf("%w for compression %s: got %d", ErrCompressionLevelInvalid, c.Compression, c.CompressionLevel)
	}

	if c.Glue.Database != "" {
		if c.Glue.Table != "" && !isValidTableName(c.Glue.Table) {
			return fmt.Errorf("%w: '%s'", ErrTableNameInvalid, c.Glue.Table)
		}
		switch c.Glue.Mode {
		case "overwrite", "append":
		default:
			return fmt.Errorf("%w: got '%s'", ErrGlueModeInvalid, c.Glue.Mode)
		}
		if c.Glue.Repair && c.Athena.OutputLocation == "" {
			return ErrAthenaOutputRequired
		}
	}

	return c.validateCommon()
}

// ValidateQuery validates configuration for the query command.
func (c *Config) ValidateQuery() error {
	if c.Query == "" {
		return ErrQueryRequired
	}
	if c.Athena.OutputLocation == "" {
		return ErrAthenaOutputRequired
	}
	if err := c.validateS3(); err != nil {
		return err
	}
	return c.validateCommon()
}
