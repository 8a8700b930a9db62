package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/ads-extractor/internal/app"
	"github.com/dvloznov/ads-extractor/internal/config"
	"github.com/dvloznov/ads-extractor/internal/gcsuploader"
	infraBQ "github.com/dvloznov/ads-extractor/internal/infra/bigquery"
	"github.com/dvloznov/ads-extractor/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runExtract(log)
	case "list-accounts":
		runListAccounts(log)
	case "publish":
		runPublish(log)
	case "runs":
		runRuns(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Ads Extractor CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run            Extract customers, campaigns and the configured report")
	fmt.Println("  list-accounts  Print the account hierarchy as JSON")
	fmt.Println("  publish        Upload the tables of a data directory to GCS and BigQuery")
	fmt.Println("  runs           Show recent extraction runs")
	fmt.Println("  help           Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// loadConfig reads config.json from dataDir and applies the log level.
func loadConfig(log zerolog.Logger, dataDir, level string) (*config.Config, zerolog.Logger) {
	log = log.Level(logger.ParseLevel(level))

	cfg, err := config.Load(dataDir, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(app.ExitCode(err))
	}
	for _, w := range cfg.Warnings {
		log.Warn().Str("path", w.Path).Msg(w.Message)
	}
	return cfg, log
}

func runExtract(log zerolog.Logger) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dataDir := fs.String("data-dir", config.DataDirFromEnv(), "Directory containing config.json; tables go to out/tables")
	level := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	noPublish := fs.Bool("no-publish", false, "Skip the configured publish step")
	fs.Parse(os.Args[2:])

	cfg, log := loadConfig(log, *dataDir, *level)

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Hour)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	publishCfg := cfg.Publish
	if *noPublish {
		publishCfg = config.Publish{}
	}
	pub, err := app.NewPublisher(ctx, publishCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up publishing")
	}
	if pub != nil {
		defer pub.Close()
	}

	log.Info().Str("customer_ids", cfg.CustomerIDList()).Str("report", cfg.Name).Msg("Starting extraction")

	summary, err := app.Run(ctx, cfg, app.NewGateway(ctx, cfg), pub)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(app.ExitCode(err))
	}

	fmt.Printf("Run %s: %d account(s) extracted, %d skipped, %d failed report(s).\n",
		summary.RunID, len(summary.Accounts), summary.Skipped, len(summary.FailedReports))
}

func runListAccounts(log zerolog.Logger) {
	fs := flag.NewFlagSet("list-accounts", flag.ExitOnError)
	dataDir := fs.String("data-dir", config.DataDirFromEnv(), "Directory containing config.json")
	level := fs.String("log-level", "warn", "Log level (debug, info, warn, error)")
	fs.Parse(os.Args[2:])

	cfg, log := loadConfig(log, *dataDir, *level)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := app.ListAccounts(ctx, cfg, app.NewGateway(ctx, cfg), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(app.ExitCode(err))
	}
}

func runPublish(log zerolog.Logger) {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	dataDir := fs.String("data-dir", config.DataDirFromEnv(), "Directory whose out/tables should be published")
	dest := fs.String("dest", "", "Destination, e.g. gs://bucket/prefix")
	project := fs.String("project", "", "GCP project ID for BigQuery and Pub/Sub")
	dataset := fs.String("dataset", "", "BigQuery dataset to merge tables into")
	topic := fs.String("topic", "", "Pub/Sub topic for the run completion event")
	runID := fs.String("run-id", "", "Run ID (defaults to a new UUID)")
	fs.Parse(os.Args[2:])

	if *dest == "" {
		log.Fatal().Msg("Usage: cli publish -dest gs://BUCKET[/PREFIX] [-project ID -dataset NAME] [-topic NAME]")
	}
	bucket, prefix, err := gcsuploader.ParseGCSURI(*dest)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid destination")
	}

	ctx := logger.WithContext(context.Background(), log)

	pub, err := app.NewPublisher(ctx, config.Publish{
		Bucket:  bucket,
		Prefix:  prefix,
		Project: *project,
		Dataset: *dataset,
		Topic:   *topic,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up publishing")
	}
	defer pub.Close()

	uploaded, err := app.Publish(ctx, *dataDir, *runID, pub)
	if err != nil {
		log.Fatal().Err(err).Msg("Publish failed")
	}

	for _, u := range uploaded {
		fmt.Printf("%-30s %8d rows  %s\n", u.Name, u.Rows, u.URI)
	}
}

func runRuns(log zerolog.Logger) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	project := fs.String("project", "", "GCP project ID")
	dataset := fs.String("dataset", "", "BigQuery dataset holding extraction_runs")
	limit := fs.Int("limit", 20, "Number of runs to show")
	fs.Parse(os.Args[2:])

	if *project == "" || *dataset == "" {
		log.Fatal().Msg("Usage: cli runs -project ID -dataset NAME [-limit N]")
	}

	ctx := logger.WithContext(context.Background(), log)

	repo, err := infraBQ.NewBigQueryRunRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	runs, err := repo.ListExtractionRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}

	fmt.Println("\n=== Extraction Runs ===")
	for _, r := range runs {
		finished := "-"
		if r.FinishedTS.Valid {
			finished = r.FinishedTS.Timestamp.Format(time.RFC3339)
		}
		accounts := "-"
		if r.Accounts.Valid {
			accounts = fmt.Sprint(r.Accounts.Int64)
		}
		fmt.Printf("%s  %-12s %-8s started=%s finished=%s accounts=%s roots=%s\n",
			r.RunID, r.Action, r.Status, r.StartedTS.Format(time.RFC3339), finished, accounts, strings.Join(r.RootIDs, ","))
		if r.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", r.ErrorMessage)
		}
	}
}
