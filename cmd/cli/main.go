package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/statement-converter/internal/config"
	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/dvloznov/statement-converter/internal/export"
	"github.com/dvloznov/statement-converter/internal/gcs"
	infraBQ "github.com/dvloznov/statement-converter/internal/infra/bigquery"
	"github.com/dvloznov/statement-converter/internal/logger"
	"github.com/dvloznov/statement-converter/internal/notionsync"
	"github.com/dvloznov/statement-converter/internal/pdfdoc"
	"github.com/dvloznov/statement-converter/internal/pipeline"
	"github.com/dvloznov/statement-converter/internal/session"
	"github.com/dvloznov/statement-converter/internal/usage"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithOptions(logger.Options{
		Format: logger.FormatConsole,
		Level:  cfg.Log.Level,
		Output: os.Stderr,
	})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "convert":
		runConvert(cfg, log)
	case "probe":
		runProbe(log)
	case "insights":
		runInsights(cfg, log)
	case "goal":
		runGoal(cfg, log)
	case "migrate":
		runMigrate(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Converter CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  convert   Convert PDF statements (local paths or gs:// URIs) into one export")
	fmt.Println("  probe     Report whether PDFs are readable or password protected")
	fmt.Println("  insights  Generate AI insights from an exported CSV")
	fmt.Println("  goal      Generate a savings plan from an exported CSV")
	fmt.Println("  migrate   Apply the BigQuery conversion history schema")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runConvert(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	var passwords passwordFlag
	fs.Var(&passwords, "password", "Password for an encrypted file as name=password (repeatable)")
	format := fs.String("format", string(export.FormatCSV), "Export format: csv, tsv or xlsx")
	out := fs.String("out", "", "Output path, '-' for stdout (defaults to combined_transactions.<format>)")
	showInsights := fs.Bool("insights", false, "Print AI insights after converting")
	upload := fs.Bool("upload", false, "Upload the export to GCS_BUCKET")
	notionDB := fs.String("notion-db", cfg.Notion.DatabaseID, "Notion database ID to push transactions into")
	dryRun := fs.Bool("dry-run", false, "Show what would be pushed to Notion without writing")
	user := fs.String("user", defaultUser(), "User ID recorded in the conversion history")
	timeout := fs.Duration("timeout", 15*time.Minute, "Overall conversion timeout")
	fs.Parse(os.Args[2:])

	if fs.NArg() == 0 {
		log.Fatal().Msg("Usage: cli convert [options] FILE_OR_GS_URI...")
	}
	if err := cfg.RequireGemini(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	exportFormat, err := export.ParseFormat(*format)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid format")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var store gcs.Storage
	if *upload || hasURI(fs.Args()) {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		defer client.Close()
		store = client
	}

	files, err := loadInputs(ctx, store, fs.Args())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read inputs")
	}

	var opts []pipeline.Option
	if cfg.BigQuery.UsesBigQuery() {
		ledger, err := infraBQ.NewLedger(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery ledger")
		}
		defer ledger.Close()
		opts = append(opts, pipeline.WithUsageGate(usage.NewGate(ledger, cfg.Usage.MonthlyLimit)))
	}

	converter, err := newConverter(ctx, cfg, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up converter")
	}

	s := session.New(*user)
	tracked, warning, err := converter.SelectFiles(ctx, s, files)
	if warning != "" {
		log.Warn().Msg(warning)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("No statements to convert")
	}

	if missing := applyPasswords(s.Tracker(), tracked, passwords); len(missing) > 0 {
		log.Fatal().Strs("files", missing).Msg("Password required: pass -password name=password for each encrypted file")
	}

	if err := converter.Convert(ctx, s); err != nil {
		log.Fatal().Err(err).Msg("Conversion refused")
	}

	snap := s.Snapshot()
	for _, f := range snap.Files {
		if f.ErrorMessage != "" {
			log.Warn().Str("file", f.Name()).Str("status", string(f.Status)).Msg(f.ErrorMessage)
		}
	}
	if snap.State != session.StateSuccess {
		fmt.Fprintln(os.Stderr, snap.Error)
		os.Exit(1)
	}

	data, err := export.Render(exportFormat, snap.Transactions)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to render export")
	}

	path := *out
	if path == "" {
		path = exportFormat.Filename()
	}
	if path == "-" {
		os.Stdout.Write(data)
		fmt.Fprintln(os.Stdout)
	} else {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Fatal().Err(err).Msg("Failed to write export")
		}
		log.Info().Str("path", path).Int("transactions", len(snap.Transactions)).Msg("Export written")
	}

	if *upload {
		if cfg.GCS.Bucket == "" {
			log.Fatal().Msg("GCS_BUCKET is required for -upload")
		}
		name := gcs.ObjectName(cfg.GCS.ExportPrefix, filepath.Base(exportFormat.Filename()))
		uri, err := store.Upload(ctx, cfg.GCS.Bucket, name, exportFormat.ContentType(), data)
		if err != nil {
			log.Fatal().Err(err).Msg("Upload failed")
		}
		fmt.Fprintf(os.Stderr, "Uploaded export to %s\n", uri)
	}

	if *notionDB != "" {
		if cfg.Notion.Token == "" {
			log.Fatal().Msg("NOTION_TOKEN is required for -notion-db")
		}
		client := notionsync.NewNotionClient(cfg.Notion.Token)
		res, err := notionsync.ExportTransactions(ctx, client, *notionDB, snap.Transactions, *dryRun)
		if err != nil {
			log.Fatal().Err(err).Msg("Notion export failed")
		}
		fmt.Fprintf(os.Stderr, "Notion: %d created, %d skipped, %d failed\n", res.Created, res.Skipped, res.Failed)
	}

	if *showInsights {
		if snap.Insights == nil {
			fmt.Fprintln(os.Stderr, pipeline.MsgInsightsFailed)
		} else {
			printJSON(snap.Insights)
		}
	}
}

func runProbe(log zerolog.Logger) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	if fs.NArg() == 0 {
		log.Fatal().Msg("Usage: cli probe FILE...")
	}

	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("%s\terror\t%v\n", path, err)
			continue
		}
		res := pdfdoc.Probe(data)
		switch res.Kind {
		case pdfdoc.ProbeReady:
			fmt.Printf("%s\t%s\t%d pages\n", path, res.Kind, res.Pages)
		case pdfdoc.ProbeInvalid:
			fmt.Printf("%s\t%s\t%s\n", path, res.Kind, res.Reason)
		default:
			fmt.Printf("%s\t%s\n", path, res.Kind)
		}
	}
}

func runInsights(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("insights", flag.ExitOnError)
	fromCSV := fs.String("from-csv", "", "Path to a CSV export")
	fs.Parse(os.Args[2:])

	if *fromCSV == "" {
		log.Fatal().Msg("Usage: cli insights -from-csv PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	txs := readExport(log, *fromCSV)
	analyst := newAnalyst(ctx, cfg, log)

	insights, err := analyst.Insights(ctx, txs)
	if err != nil {
		log.Fatal().Err(err).Msg(pipeline.UserMessage(err))
	}
	printJSON(insights)
}

func runGoal(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("goal", flag.ExitOnError)
	fromCSV := fs.String("from-csv", "", "Path to a CSV export")
	name := fs.String("name", "", "Goal name, e.g. \"House deposit\"")
	target := fs.Float64("target", 0, "Target amount")
	years := fs.Int("years", 0, "Years to reach the goal")
	fs.Parse(os.Args[2:])

	if *fromCSV == "" {
		log.Fatal().Msg("Usage: cli goal -from-csv PATH -name NAME -target AMOUNT -years N")
	}

	goal := domain.GoalInput{GoalName: *name, TargetAmount: *target, Years: *years}
	if err := goal.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid goal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	txs := readExport(log, *fromCSV)
	analyst := newAnalyst(ctx, cfg, log)

	plan, err := analyst.GoalPlan(ctx, txs, goal)
	if err != nil {
		log.Fatal().Err(err).Msg(pipeline.UserMessage(err))
	}
	printJSON(plan)
}

func runMigrate(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	project := fs.String("project", cfg.BigQuery.ProjectID, "GCP project ID")
	dataset := fs.String("dataset", cfg.BigQuery.Dataset, "BigQuery dataset ID")
	fs.Parse(os.Args[2:])

	if *project == "" {
		log.Fatal().Msg("Error: -project or GCP_PROJECT_ID is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	ledger, err := infraBQ.NewLedger(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery ledger")
	}
	defer ledger.Close()

	applied, err := ledger.EnsureSchema(ctx, defaultUser())
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	fmt.Printf("Applied %d migration(s) to %s.%s\n", applied, *project, *dataset)
}

// newConverter wires the Gemini-backed pipeline used by convert.
func newConverter(ctx context.Context, cfg *config.Config, opts ...pipeline.Option) (*pipeline.Converter, error) {
	model, err := pipeline.NewGeminiClient(ctx, pipeline.GeminiConfig{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
	})
	if err != nil {
		return nil, err
	}

	rasterizer := pdfdoc.NewRasterizer()
	if !rasterizer.IsAvailable() {
		return nil, pdfdoc.ErrRendererUnavailable
	}

	return pipeline.NewConverter(
		pipeline.ProbeFunc(pdfdoc.Probe),
		pipeline.NewFilePipeline(rasterizer, pipeline.NewExtractor(model)),
		pipeline.NewAnalyst(model),
		opts...,
	), nil
}

func newAnalyst(ctx context.Context, cfg *config.Config, log zerolog.Logger) *pipeline.Analyst {
	if err := cfg.RequireGemini(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	model, err := pipeline.NewGeminiClient(ctx, pipeline.GeminiConfig{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	return pipeline.NewAnalyst(model)
}

func readExport(log zerolog.Logger, path string) []domain.Transaction {
	f, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open export")
	}
	defer f.Close()

	read := export.ReadCSV
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		read = export.ReadTSV
	}
	txs, err := read(f)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse export")
	}
	if len(txs) == 0 {
		log.Fatal().Msg(pipeline.MsgNoTransactionsExtracted)
	}
	return txs
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
