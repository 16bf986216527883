package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	awsathena "github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/glue"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lib/pq"

	"github.com/lakeops/csv-shuttle/cmd/athena"
	"github.com/lakeops/csv-shuttle/cmd/catalog"
	"github.com/lakeops/csv-shuttle/cmd/compressors"
	"github.com/lakeops/csv-shuttle/cmd/dialect"
	"github.com/lakeops/csv-shuttle/cmd/partwriter"
)

// isConnectionError checks if an error is due to a closed or broken database connection
func isConnectionError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "bad connection") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "sql: database is closed")
}

// ExportSummary is the final accounting of one export run.
type ExportSummary struct {
	Table      string
	Rows       int64
	Partitions int
	Paths      []string
	Bytes      int64
	Skipped    int
	Registered bool
	Duration   time.Duration
}

// Exporter moves one PostgreSQL table into partitioned CSV objects.
type Exporter struct {
	config  *Config
	db      *sql.DB
	store   *objectStore
	catalog *catalog.Client
	athena  *athena.Client
	logger  *slog.Logger
	notify  func(tea.Msg) // nil outside TUI mode
}

func NewExporter(config *Config, logger *slog.Logger) *Exporter {
	return &Exporter{config: config, logger: logger}
}

// SetNotify installs the TUI message sink.
func (e *Exporter) SetNotify(notify func(tea.Msg)) {
	e.notify = notify
}

func (e *Exporter) send(msg tea.Msg) {
	if e.notify != nil {
		e.notify(msg)
	}
}

func (e *Exporter) connect(ctx context.Context) error {
	sslMode := e.config.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		e.config.Database.Host,
		e.config.Database.Port,
		e.config.Database.User,
		e.config.Database.Password,
		e.config.Database.Name,
		sslMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	e.db = db

	sess, err := newS3Session(e.config.S3)
	if err != nil {
		db.Close()
		e.db = nil
		return err
	}
	e.store = newObjectStore(sess, e.config.S3.Bucket, e.logger)

	if e.config.Glue.Database != "" {
		// the catalog and query services live at the real AWS endpoints,
		// not the S3-compatible one
		awsSess, err := session.NewSession(&aws.Config{
			Region:      aws.String(e.config.S3.Region),
			Credentials: credentials.NewStaticCredentials(e.config.S3.AccessKey, e.config.S3.SecretKey, ""),
		})
		if err != nil {
			db.Close()
			e.db = nil
			return fmt.Errorf("failed to create AWS session: %w", err)
		}
		e.catalog = catalog.NewClient(glue.New(awsSess), e.logger)
		e.athena = athena.NewClient(awsathena.New(awsSess), e.logger)
	}

	return nil
}

// Run executes the full export: extract, partition, upload, register.
func (e *Exporter) Run(ctx context.Context) error {
	if err := WritePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() {
		_ = RemovePIDFile()
	}()

	taskInfo := &TaskInfo{
		PID:         os.Getpid(),
		StartTime:   time.Now(),
		Operation:   "export",
		Source:      e.config.Table,
		Destination: e.config.S3.Bucket,
		CurrentTask: "Starting export",
	}
	_ = WriteTaskInfo(taskInfo)
	defer func() {
		_ = RemoveTaskFile()
	}()

	defer func() {
		if e.db != nil {
			e.db.Close()
			e.db = nil
		}
	}()

	startTime := time.Now()

	e.send(exportPhaseMsg{phase: "Connecting"})
	e.logger.Debug("Connecting to database...")
	if err := e.connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if e.config.Debug {
		e.logger.Info("✅ Connected to database")
	}

	e.send(exportPhaseMsg{phase: "Extracting"})
	taskInfo.CurrentStep = "Extracting rows"
	_ = WriteTaskInfo(taskInfo)

	table, columns, err := e.extractTable(ctx)
	if err != nil {
		return err
	}
	e.logger.Info(fmt.Sprintf("✅ Extracted %d rows from %s", len(table.Rows), e.config.Table))

	d, err := e.config.Dialect.Dialect()
	if err != nil {
		return err
	}
	compressor, err := compressors.GetCompressor(e.config.Compression)
	if err != nil {
		return err
	}

	prefix := NewPathTemplate(e.config.S3.PathTemplate).Generate(e.config.Table, startTime)
	sink := &csvPartitionSink{
		store:      e.store,
		d:          d,
		compressor: compressor,
		level:      e.config.CompressionLevel,
		table:      e.config.Table,
		dryRun:     e.config.DryRun,
		logger:     e.logger,
		notify:     e.notify,
	}

	writer, err := partwriter.NewWriter(sink, e.config.Workers, e.logger)
	if err != nil {
		return err
	}
	writer = writer.WithRowThreshold(e.config.RowThreshold)

	e.send(exportPhaseMsg{phase: "Uploading"})
	taskInfo.CurrentStep = "Writing partitions"
	taskInfo.TotalItems = writer.PartitionCount(len(table.Rows))
	_ = WriteTaskInfo(taskInfo)

	result, err := writer.WriteTable(ctx, table, prefix)
	if err != nil {
		return fmt.Errorf("partition write failed: %w", err)
	}

	summary := ExportSummary{
		Table:      e.config.Table,
		Rows:       int64(len(table.Rows)),
		Partitions: writer.PartitionCount(len(table.Rows)),
		Paths:      result.Paths,
		Bytes:      sink.bytes.Load(),
		Skipped:    int(sink.skipped.Load()),
		Duration:   time.Since(startTime),
	}

	if e.config.Glue.Database != "" && !e.config.DryRun {
		e.send(exportPhaseMsg{phase: "Registering"})
		if err := e.registerCatalogTable(ctx, columns, d, prefix); err != nil {
			return err
		}
		summary.Registered = true
	}

	summary.Duration = time.Since(startTime)
	e.send(exportDoneMsg{summary: summary})
	e.printSummary(summary)
	return nil
}

// registerCatalogTable registers the written prefix in the Glue catalog
// and optionally repairs partitions so Athena sees the new objects.
func (e *Exporter) registerCatalogTable(ctx context.Context, columns []catalog.Column, d dialect.Dialect, prefix string) error {
	glueTable := e.config.Glue.Table
	if glueTable == "" {
		glueTable = e.config.Table
	}

	spec := catalog.TableSpec{
		Database:  e.config.Glue.Database,
		Table:     glueTable,
		Location:  fmt.Sprintf("s3://%s/%s/", e.config.S3.Bucket, prefix),
		Columns:   columns,
		Separator: d.Separator,
		QuoteAll:  d.Quoting == dialect.QuoteAll,
	}
	if err := e.catalog.Register(ctx, spec, e.config.Glue.Mode); err != nil {
		return fmt.Errorf("catalog registration failed: %w", err)
	}

	if e.config.Glue.Repair {
		if err := e.athena.RepairTable(ctx, e.config.Glue.Database, glueTable, e.config.Athena.OutputLocation); err != nil {
			return fmt.Errorf("partition repair failed: %w", err)
		}
	}
	return nil
}

// extractTable pulls every row of the configured table as JSON and
// flattens it into cells ordered by sorted column name. The LIMIT 0
// probe supplies driver types for catalog registration.
func (e *Exporter) extractTable(ctx context.Context) (partwriter.Table, []catalog.Column, error) {
	quotedTable := pq.QuoteIdentifier(e.config.Table)

	columns, err := e.probeColumns(ctx, quotedTable)
	if err != nil {
		return partwriter.Table{}, nil, err
	}

	query := fmt.Sprintf("SELECT row_to_json(t) FROM %s t", quotedTable) //nolint:gosec // Table name is quoted with pq.QuoteIdentifier
	if e.config.Where != "" {
		query += " WHERE " + e.config.Where
	}

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || isConnectionError(err) {
			e.logger.Debug("  ⚠️  Query cancelled or connection closed")
			return partwriter.Table{}, nil, context.Canceled
		}
		return partwriter.Table{}, nil, err
	}
	defer rows.Close()

	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.Name
	}

	var out [][]string
	rowCount := int64(0)
	for rows.Next() {
		if rowCount%100 == 0 {
			select {
			case <-ctx.Done():
				e.logger.Debug("  ⚠️  Cancellation detected during row extraction")
				return partwriter.Table{}, nil, ctx.Err()
			default:
			}
		}

		var jsonData json.RawMessage
		if err := rows.Scan(&jsonData); err != nil {
			return partwriter.Table{}, nil, err
		}

		record, err := flattenRow(jsonData, names)
		if err != nil {
			return partwriter.Table{}, nil, err
		}
		out = append(out, record)
		rowCount++

		if rowCount%10000 == 0 {
			e.send(exportPhaseMsg{phase: fmt.Sprintf("Extracting (%d rows)", rowCount)})
		}
	}
	if err := rows.Err(); err != nil {
		return partwriter.Table{}, nil, err
	}

	return partwriter.Table{Columns: names, Rows: out}, columns, nil
}

// probeColumns reads the table's schema without fetching data. Column
// order is sorted by name to match the JSON flattening.
func (e *Exporter) probeColumns(ctx context.Context, quotedTable string) ([]catalog.Column, error) {
	probe := fmt.Sprintf("SELECT * FROM %s LIMIT 0", quotedTable) //nolint:gosec // Table name is quoted with pq.QuoteIdentifier
	rows, err := e.db.QueryContext(ctx, probe)
	if err != nil {
		return nil, fmt.Errorf("probing columns of %s: %w", e.config.Table, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	columns := make([]catalog.Column, 0, len(types))
	for _, ct := range types {
		athenaType, err := catalog.TypeSQLToAthena(ct.DatabaseTypeName())
		if err != nil {
			e.logger.Warn(fmt.Sprintf("⚠️  Column %s has type %s with no catalog mapping, exporting as string", ct.Name(), ct.DatabaseTypeName()))
			athenaType = "string"
		}
		columns = append(columns, catalog.Column{Name: ct.Name(), Type: athenaType})
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].Name < columns[j].Name })

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columns, nil
}

// flattenRow converts one row_to_json document into cells ordered by
// names. UseNumber keeps bigint values exact.
func flattenRow(data json.RawMessage, names []string) ([]string, error) {
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.UseNumber()

	var record map[string]interface{}
	if err := decoder.Decode(&record); err != nil {
		return nil, fmt.Errorf("decoding row: %w", err)
	}

	cells := make([]string, len(names))
	for i, name := range names {
		cells[i] = stringifyValue(record[name])
	}
	return cells, nil
}

func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		// nested arrays and objects round-trip as JSON text
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	}
}

// csvPartitionSink encodes, compresses, and uploads one partition per
// call. Objects whose content already exists are counted as skipped
// but still report their path for reconciliation.
type csvPartitionSink struct {
	store      *objectStore
	d          dialect.Dialect
	compressor compressors.Compressor
	level      int
	table      string
	dryRun     bool
	logger     *slog.Logger
	notify     func(tea.Msg)

	bytes   atomic.Int64
	skipped atomic.Int64
}

func (s *csvPartitionSink) WritePartition(ctx context.Context, columns []string, rows [][]string, job partwriter.PartitionJob) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// every partition object is independently readable, so each
	// carries the header row
	payload := make([][]string, 0, len(rows)+1)
	payload = append(payload, columns)
	payload = append(payload, rows...)

	encoded := dialect.EncodeRows(payload, s.d)
	compressed, err := s.compressor.Compress(encoded, s.level)
	if err != nil {
		return nil, fmt.Errorf("compressing partition: %w", err)
	}

	key := job.Destination + "/" + PartitionFilename(s.table, s.compressor.Extension())

	if s.dryRun {
		s.logger.Debug(fmt.Sprintf("  Dry run: would upload %s (%d bytes)", key, len(compressed)))
		s.notifyDone(key, int64(len(compressed)), true)
		return []string{key}, nil
	}

	if s.store.objectUnchanged(ctx, key, compressed) {
		s.skipped.Add(1)
		s.notifyDone(key, int64(len(compressed)), true)
		return []string{key}, nil
	}

	if err := s.store.upload(ctx, key, compressed, s.compressor.ContentEncoding()); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}
	s.bytes.Add(int64(len(compressed)))
	s.notifyDone(key, int64(len(compressed)), false)
	return []string{key}, nil
}

func (s *csvPartitionSink) notifyDone(path string, bytes int64, skipped bool) {
	if s.notify != nil {
		s.notify(partitionDoneMsg{path: path, bytes: bytes, skipped: skipped})
	}
}

func (e *Exporter) printSummary(summary ExportSummary) {
	e.logger.Info("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	e.logger.Info("📈 Summary")
	e.logger.Info(fmt.Sprintf("✅ Rows exported: %d", summary.Rows))
	e.logger.Info(fmt.Sprintf("📦 Partitions: %d", summary.Partitions))
	if summary.Skipped > 0 {
		e.logger.Info(fmt.Sprintf("⏭️  Unchanged objects: %d", summary.Skipped))
	}
	if summary.Bytes > 0 {
		e.logger.Info(fmt.Sprintf("💾 Total compressed: %.2f MB", float64(summary.Bytes)/(1024*1024)))
	}
	if summary.Registered {
		e.logger.Info(fmt.Sprintf("📚 Catalog: %s.%s", e.config.Glue.Database, e.config.Table))
	}
	e.logger.Info(fmt.Sprintf("⏱️  Duration: %s", summary.Duration.Round(time.Millisecond)))
	for _, path := range summary.Paths {
		e.logger.Debug(fmt.Sprintf("  s3://%s/%s", e.config.S3.Bucket, path))
	}
}
