package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information - set via ldflags during build
	// Example: go build -ldflags "-X github.com/lakeops/csv-shuttle/cmd.Version=1.2.3"
	Version = "dev" // Default to "dev" if not set during build

	// signalContext is set by main() before Cobra initialization
	// This ensures signal handling is set up before any library can interfere
	signalContext context.Context
	stopFilePath  string

	// versionCheckResult stores the result of the background version check
	versionCheckResult *VersionCheckResult

	cfgFile          string
	debug            bool
	logFormat        string
	dryRun           bool
	dbHost           string
	dbPort           int
	dbUser           string
	dbPassword       string
	dbName           string
	dbSSLMode        string
	s3Endpoint       string
	s3Bucket         string
	s3AccessKey      string
	s3SecretKey      string
	s3Region         string
	tableName        string
	whereClause      string
	sourcePath       string
	outputPath       string
	querySQL         string
	workers          int
	chunkBudget      int64
	windowGrowth     int
	rowThreshold     int
	pathTemplate     string
	compression      string
	compressionLevel int
	csvSeparator     string
	csvQuote         string
	csvTerminator    string
	csvQuoting       string
	glueDatabase     string
	glueTable        string
	glueMode         string
	glueRepair       bool
	athenaDatabase   string
	athenaOutput     string

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			Underline(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D9FF"))

	logger *slog.Logger
)

// SetSignalContext stores the signal-aware context created in main()
// This must be called before Execute() to ensure proper signal handling
func SetSignalContext(ctx context.Context, stopFile string) {
	signalContext = ctx
	stopFilePath = stopFile
}

// textOnlyHandler is a custom slog handler that outputs human-readable text
// without key=value pairs, suitable for interactive terminal usage
type textOnlyHandler struct {
	opts   slog.HandlerOptions
	writer io.Writer
}

func newTextOnlyHandler(w io.Writer, opts *slog.HandlerOptions) *textOnlyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &textOnlyHandler{
		opts:   *opts,
		writer: w,
	}
}

func (h *textOnlyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *textOnlyHandler) Handle(_ context.Context, r slog.Record) error {
	// Format: YYYY-MM-DD HH:MM:SS LEVEL message
	timestamp := r.Time.Format("2006-01-02 15:04:05")
	level := r.Level.String()

	_, err := fmt.Fprintf(h.writer, "%s %s %s\n", timestamp, level, r.Message)
	return err
}

func (h *textOnlyHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	// For simplicity, we ignore attributes in text-only mode
	return h
}

func (h *textOnlyHandler) WithGroup(_ string) slog.Handler {
	// For simplicity, we ignore groups in text-only mode
	return h
}

// initLogger initializes the slog logger based on debug flag and log format
func initLogger(isDebug bool, format string) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if isDebug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "logfmt":
		// logfmt uses slog.TextHandler which outputs key=value pairs
		handler = slog.NewTextHandler(os.Stdout, opts)
	default: // "text" or anything else
		handler = newTextOnlyHandler(os.Stdout, opts)
	}

	logger = slog.New(handler)
}

var rootCmd = &cobra.Command{
	Use:     "csv-shuttle",
	Version: Version,
	Short:   "📦 Move CSV data between PostgreSQL, S3, and Athena",
	Long: titleStyle.Render("CSV Shuttle") + `

A CLI tool for CSV data movement through object storage.
Exports PostgreSQL tables to S3 as parallel CSV partitions, scans remote
CSV objects in record-aligned chunks without loading whole files, and runs
Athena queries whose results stream back through the same chunked reader.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// Show help when no subcommand is specified
		cmd.Help()
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Stream a remote CSV object in record-aligned chunks",
	Long: `Scan a CSV object from S3 using ranged reads. Each fetched window is
trimmed to the last record terminator so no chunk ever splits a record,
and the rows are re-encoded to a local file or stdout.`,
	Run: func(_ *cobra.Command, _ []string) {
		runScan()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a PostgreSQL table to partitioned CSV objects",
	Long: `Export a PostgreSQL table to S3 as CSV. Rows are split across parallel
workers, each writing its own compressed object, and the finished prefix
can be registered in the Glue catalog for Athena.`,
	Run: func(_ *cobra.Command, _ []string) {
		runExport()
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run an Athena query and stream the result CSV",
	Long: `Submit SQL to Athena, wait for completion, and scan the result object
from the query output location through the chunked reader.`,
	Run: func(_ *cobra.Command, _ []string) {
		runQuery()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// addS3Flags registers the object storage flags shared by every subcommand.
func addS3Flags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket name")
	cmd.Flags().StringVar(&s3AccessKey, "s3-access-key", "", "S3 access key")
	cmd.Flags().StringVar(&s3SecretKey, "s3-secret-key", "", "S3 secret key")
	cmd.Flags().StringVar(&s3Region, "s3-region", "auto", "S3 region")
}

// addDialectFlags registers the CSV dialect flags shared by every subcommand.
func addDialectFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&csvSeparator, "separator", ",", "CSV field separator (single byte)")
	cmd.Flags().StringVar(&csvQuote, "quote", "\"", "CSV quote character (single byte)")
	cmd.Flags().StringVar(&csvTerminator, "terminator", "\\n", "record terminator, escapes allowed (\\n, \\r\\n)")
	cmd.Flags().StringVar(&csvQuoting, "quoting", "minimal", "quoting discipline: minimal, all")
}

func bindS3Flags(cmd *cobra.Command) {
	_ = viper.BindPFlag("s3.endpoint", cmd.Flags().Lookup("s3-endpoint"))
	_ = viper.BindPFlag("s3.bucket", cmd.Flags().Lookup("s3-bucket"))
	_ = viper.BindPFlag("s3.access_key", cmd.Flags().Lookup("s3-access-key"))
	_ = viper.BindPFlag("s3.secret_key", cmd.Flags().Lookup("s3-secret-key"))
	_ = viper.BindPFlag("s3.region", cmd.Flags().Lookup("s3-region"))
}

func bindDialectFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("csv.separator", cmd.Flags().Lookup("separator"))
	_ = viper.BindPFlag("csv.quote", cmd.Flags().Lookup("quote"))
	_ = viper.BindPFlag("csv.terminator", cmd.Flags().Lookup("terminator"))
	_ = viper.BindPFlag("csv.quoting", cmd.Flags().Lookup("quoting"))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(queryCmd)

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.csv-shuttle.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, logfmt, json)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "perform a dry run without uploading")

	// Scan-specific flags
	scanCmd.Flags().StringVar(&sourcePath, "source", "", "source object path: s3://bucket/key (required)")
	scanCmd.Flags().StringVar(&outputPath, "output", "", "local output file (default is stdout)")
	scanCmd.Flags().Int64Var(&chunkBudget, "chunk-budget", 0, "bytes fetched per window (0 = 8MiB default)")
	scanCmd.Flags().IntVar(&windowGrowth, "window-growth", 5, "doublings allowed while hunting for a record boundary")
	addS3Flags(scanCmd)
	addDialectFlags(scanCmd)

	// Export-specific flags
	exportCmd.Flags().StringVar(&dbHost, "db-host", "localhost", "PostgreSQL host")
	exportCmd.Flags().IntVar(&dbPort, "db-port", 5432, "PostgreSQL port")
	exportCmd.Flags().StringVar(&dbUser, "db-user", "", "PostgreSQL user")
	exportCmd.Flags().StringVar(&dbPassword, "db-password", "", "PostgreSQL password")
	exportCmd.Flags().StringVar(&dbName, "db-name", "", "PostgreSQL database name")
	exportCmd.Flags().StringVar(&dbSSLMode, "db-sslmode", "disable", "PostgreSQL SSL mode (disable, require, verify-ca, verify-full)")
	exportCmd.Flags().StringVar(&tableName, "table", "", "table name to export (required)")
	exportCmd.Flags().StringVar(&whereClause, "where", "", "optional SQL filter expression for the export")
	exportCmd.Flags().IntVar(&workers, "workers", 4, "number of parallel partition writers")
	exportCmd.Flags().IntVar(&rowThreshold, "row-threshold", 1000, "rows below which the table writes as one partition")
	exportCmd.Flags().StringVar(&pathTemplate, "path-template", "", "S3 path template with placeholders: {table}, {YYYY}, {MM}, {DD}, {HH} (required)")
	exportCmd.Flags().StringVar(&compression, "compression", "none", "compression type: zstd, lz4, gzip, none")
	exportCmd.Flags().IntVar(&compressionLevel, "compression-level", 0, "compression level (zstd: 1-22, lz4/gzip: 1-9, none: 0)")
	exportCmd.Flags().StringVar(&glueDatabase, "glue-database", "", "Glue database for catalog registration (empty = skip)")
	exportCmd.Flags().StringVar(&glueTable, "glue-table", "", "Glue table name (default is the export table name)")
	exportCmd.Flags().StringVar(&glueMode, "glue-mode", "overwrite", "catalog registration mode: overwrite, append")
	exportCmd.Flags().BoolVar(&glueRepair, "glue-repair", false, "run MSCK REPAIR TABLE after registration")
	exportCmd.Flags().StringVar(&athenaOutput, "athena-output", "", "Athena query output location: s3://bucket/prefix/")
	addS3Flags(exportCmd)
	addDialectFlags(exportCmd)

	// Query-specific flags
	queryCmd.Flags().StringVar(&querySQL, "sql", "", "SQL to execute (required)")
	queryCmd.Flags().StringVar(&athenaDatabase, "athena-database", "", "Athena database to query against")
	queryCmd.Flags().StringVar(&athenaOutput, "athena-output", "", "Athena query output location: s3://bucket/prefix/ (required)")
	queryCmd.Flags().StringVar(&outputPath, "output", "", "local output file (default is stdout)")
	queryCmd.Flags().Int64Var(&chunkBudget, "chunk-budget", 0, "bytes fetched per window (0 = 8MiB default)")
	queryCmd.Flags().IntVar(&windowGrowth, "window-growth", 5, "doublings allowed while hunting for a record boundary")
	addS3Flags(queryCmd)
	addDialectFlags(queryCmd)

	// Note: We don't use MarkFlagRequired because it checks before viper loads the config file.
	// Instead, validation happens in the per-command Validate methods after all config sources are loaded.

	// Bind persistent flags
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))

	// Bind scan flags
	_ = viper.BindPFlag("source", scanCmd.Flags().Lookup("source"))
	_ = viper.BindPFlag("output", scanCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("chunk_budget", scanCmd.Flags().Lookup("chunk-budget"))
	_ = viper.BindPFlag("window_growth", scanCmd.Flags().Lookup("window-growth"))
	bindS3Flags(scanCmd)
	bindDialectFlags(scanCmd)

	// Bind export flags
	_ = viper.BindPFlag("db.host", exportCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("db.port", exportCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("db.user", exportCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("db.password", exportCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("db.name", exportCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("db.sslmode", exportCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("table", exportCmd.Flags().Lookup("table"))
	_ = viper.BindPFlag("where", exportCmd.Flags().Lookup("where"))
	_ = viper.BindPFlag("workers", exportCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("row_threshold", exportCmd.Flags().Lookup("row-threshold"))
	_ = viper.BindPFlag("s3.path_template", exportCmd.Flags().Lookup("path-template"))
	_ = viper.BindPFlag("compression", exportCmd.Flags().Lookup("compression"))
	_ = viper.BindPFlag("compression_level", exportCmd.Flags().Lookup("compression-level"))
	_ = viper.BindPFlag("glue.database", exportCmd.Flags().Lookup("glue-database"))
	_ = viper.BindPFlag("glue.table", exportCmd.Flags().Lookup("glue-table"))
	_ = viper.BindPFlag("glue.mode", exportCmd.Flags().Lookup("glue-mode"))
	_ = viper.BindPFlag("glue.repair", exportCmd.Flags().Lookup("glue-repair"))
	_ = viper.BindPFlag("athena.output_location", exportCmd.Flags().Lookup("athena-output"))
	bindS3Flags(exportCmd)
	bindDialectFlags(exportCmd)

	// Bind query flags (last binding wins for shared variables)
	_ = viper.BindPFlag("query", queryCmd.Flags().Lookup("sql"))
	_ = viper.BindPFlag("athena.database", queryCmd.Flags().Lookup("athena-database"))
	_ = viper.BindPFlag("athena.output_location", queryCmd.Flags().Lookup("athena-output"))
	_ = viper.BindPFlag("output", queryCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("chunk_budget", queryCmd.Flags().Lookup("chunk-budget"))
	_ = viper.BindPFlag("window_growth", queryCmd.Flags().Lookup("window-growth"))
	bindS3Flags(queryCmd)
	bindDialectFlags(queryCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".csv-shuttle")
	}

	viper.SetEnvPrefix("SHUTTLE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && debug {
		// Initialize logger early if reading config in debug mode
		if logger == nil {
			initLogger(debug, logFormat)
		}
		logger.Debug(fmt.Sprintf("📄 Using config file: %s", viper.ConfigFileUsed()))
	}
}

// buildConfig assembles the effective configuration from all viper sources.
func buildConfig() *Config {
	return &Config{
		Debug:             viper.GetBool("debug"),
		LogFormat:         viper.GetString("log_format"),
		DryRun:            viper.GetBool("dry_run"),
		Workers:           viper.GetInt("workers"),
		ChunkBudget:       viper.GetInt64("chunk_budget"),
		WindowGrowthLimit: viper.GetInt("window_growth"),
		RowThreshold:      viper.GetInt("row_threshold"),
		Database: DatabaseConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetInt("db.port"),
			User:     viper.GetString("db.user"),
			Password: viper.GetString("db.password"),
			Name:     viper.GetString("db.name"),
			SSLMode:  viper.GetString("db.sslmode"),
		},
		S3: S3Config{
			Endpoint:     viper.GetString("s3.endpoint"),
			Bucket:       viper.GetString("s3.bucket"),
			AccessKey:    viper.GetString("s3.access_key"),
			SecretKey:    viper.GetString("s3.secret_key"),
			Region:       viper.GetString("s3.region"),
			PathTemplate: viper.GetString("s3.path_template"),
		},
		Dialect: DialectConfig{
			Separator:  viper.GetString("csv.separator"),
			Quote:      viper.GetString("csv.quote"),
			Terminator: viper.GetString("csv.terminator"),
			Quoting:    viper.GetString("csv.quoting"),
		},
		Glue: GlueConfig{
			Database: viper.GetString("glue.database"),
			Table:    viper.GetString("glue.table"),
			Mode:     viper.GetString("glue.mode"),
			Repair:   viper.GetBool("glue.repair"),
		},
		Athena: AthenaConfig{
			Database:       viper.GetString("athena.database"),
			OutputLocation: viper.GetString("athena.output_location"),
		},
		Table:            viper.GetString("table"),
		Where:            viper.GetString("where"),
		Source:           viper.GetString("source"),
		Output:           viper.GetString("output"),
		Query:            viper.GetString("query"),
		Compression:      viper.GetString("compression"),
		CompressionLevel: viper.GetInt("compression_level"),
	}
}

// commandContext returns the signal-aware context from main(), falling
// back to a locally registered one.
func commandContext() (context.Context, context.CancelFunc) {
	if signalContext != nil {
		return signalContext, func() {}
	}
	logger.Warn("Signal context not set, creating fallback...")
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printBanner(mode string) {
	logger.Info("")
	logger.Info(fmt.Sprintf("🚀 CSV Shuttle v%s - %s", Version, mode))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

func runScan() {
	// Add panic recovery to catch any unexpected crashes
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n❌ PANIC: %v\n", r)
			os.Exit(1)
		}
	}()

	config := buildConfig()
	initLogger(config.Debug, config.LogFormat)
	printBanner("Scan")

	logger.Debug("Validating configuration...")
	if err := config.ValidateScan(); err != nil {
		logger.Error(fmt.Sprintf("❌ Configuration error: %s", err.Error()))
		os.Exit(1)
	}
	logger.Debug("Configuration validated successfully")

	ctx, stop := commandContext()
	defer stop()

	scanner := NewScanner(config, logger)
	if _, err := scanner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("")
			logger.Info("⚠️  Scan cancelled by user")
			os.Exit(130)
		}
		logger.Error(fmt.Sprintf("❌ Scan failed: %s", err.Error()))
		os.Exit(1)
	}

	logger.Info("")
	logger.Info("✅ Scan completed successfully!")
}

func runExport() {
	// Add panic recovery to catch any unexpected crashes
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n❌ PANIC: %v\n", r)
			os.Exit(1)
		}
	}()

	config := buildConfig()
	initLogger(config.Debug, config.LogFormat)
	printBanner("Export")

	// Display stop instructions - only in debug mode, since printing to
	// stderr corrupts the TUI display
	if config.Debug && stopFilePath != "" {
		fmt.Fprintln(os.Stderr, "\n"+infoStyle.Render("💡 To stop the export: Press CTRL-C, or run:"))
		fmt.Fprintf(os.Stderr, "   "+infoStyle.Render("touch %s")+"\n\n", stopFilePath)
	}

	logger.Debug("Validating configuration...")
	if err := config.ValidateExport(); err != nil {
		logger.Error(fmt.Sprintf("❌ Configuration error: %s", err.Error()))
		os.Exit(1)
	}
	logger.Debug("Configuration validated successfully")

	// Check for updates in background (non-blocking)
	updateCheckDone := make(chan struct{})
	go func() {
		defer close(updateCheckDone)
		result := checkForUpdates(context.Background(), Version)
		versionCheckResult = &result

		if result.UpdateAvailable {
			logger.Info("")
			logger.Info(fmt.Sprintf("💡 %s", formatUpdateMessage(result)))
		} else if result.Error != nil && config.Debug {
			logger.Debug(fmt.Sprintf("Version check failed: %v", result.Error))
		}
	}()

	// Give version check a short time to complete, but don't block startup
	select {
	case <-updateCheckDone:
	case <-time.After(2 * time.Second):
		logger.Debug("Version check taking longer than expected, continuing...")
	}

	ctx, stop := commandContext()
	defer stop()

	// Force-exit if graceful shutdown takes too long
	exited := make(chan struct{})
	go func() {
		<-ctx.Done()
		logger.Info("")
		logger.Info("⚠️  Interrupt signal received, shutting down...")

		select {
		case <-exited:
			return
		case <-time.After(2 * time.Second):
			logger.Error("⚠️  Graceful shutdown timed out, forcing exit...")
			os.Exit(130)
		}
	}()

	logger.Debug("Creating exporter...")
	exporter := NewExporter(config, logger)
	logger.Debug("Starting export process...")

	var err error
	if config.Debug {
		// Debug mode skips the TUI so log lines stay readable
		err = exporter.Run(ctx)
	} else {
		err = runExportWithProgress(ctx, config, exporter)
	}
	close(exited)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("")
			logger.Info("⚠️  Export cancelled by user")
			os.Exit(130)
		}
		logger.Error(fmt.Sprintf("❌ Export failed: %s", err.Error()))
		os.Exit(1)
	}

	logger.Info("")
	logger.Info("✅ Export completed successfully!")
}

func runQuery() {
	// Add panic recovery to catch any unexpected crashes
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n❌ PANIC: %v\n", r)
			os.Exit(1)
		}
	}()

	config := buildConfig()
	initLogger(config.Debug, config.LogFormat)
	printBanner("Query")

	logger.Debug("Validating configuration...")
	if err := config.ValidateQuery(); err != nil {
		logger.Error(fmt.Sprintf("❌ Configuration error: %s", err.Error()))
		os.Exit(1)
	}
	logger.Debug("Configuration validated successfully")

	ctx, stop := commandContext()
	defer stop()

	runner := NewQueryRunner(config, logger)
	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("")
			logger.Info("⚠️  Query cancelled by user")
			os.Exit(130)
		}
		logger.Error(fmt.Sprintf("❌ Query failed: %s", err.Error()))
		os.Exit(1)
	}

	logger.Info("")
	logger.Info("✅ Query completed successfully!")
}
