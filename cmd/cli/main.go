package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/app"
	"github.com/dvloznov/statement-extractor/internal/config"
	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/gcs"
	"github.com/dvloznov/statement-extractor/internal/logger"
	"github.com/dvloznov/statement-extractor/internal/pipeline"
	"github.com/dvloznov/statement-extractor/internal/raster"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	// Logs go to stderr so extract output on stdout stays pipeable.
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Out: os.Stderr})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	switch os.Args[1] {
	case "extract":
		runExtract(cfg, log)
	case "upload":
		runUpload(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Extractor CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract   Extract transactions from a local statement (PDF, PNG or JPEG)")
	fmt.Println("  upload    Upload a statement to GCS for s3Bucket/s3Key requests")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runExtract(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the statement file")
	fileType := fs.String("type", "", "pdf, png or jpeg (defaults to the file extension)")
	card := fs.String("card", pipeline.DefaultCardLabel, "Credit card name shown to the model")
	start := fs.String("start", "", "Billing period start, YYYY-MM-DD")
	end := fs.String("end", "", "Billing period end, YYYY-MM-DD")
	cutDay := fs.String("cut-day", "", "Card cut date")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli extract -file PATH [-start YYYY-MM-DD -end YYYY-MM-DD]")
	}
	if *fileType == "" {
		*fileType = gcs.FileTypeFromKey(*filePath)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build extractor")
	}
	defer a.Close()

	state := &pipeline.PipelineState{
		FileBase64: base64.StdEncoding.EncodeToString(data),
		Kind:       raster.ParseKind(*fileType),
		CardLabel:  *card,
		Period:     periodFromFlags(*start, *end),
		CutDay:     *cutDay,
	}

	log.Info().Str("file", *filePath).Str("file_type", string(state.Kind)).Msg("Starting extraction")

	if err := a.Pipeline.Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state.Result.Transactions); err != nil {
		log.Fatal().Err(err).Msg("Failed to write transactions")
	}

	log.Info().
		Int("transactions", len(state.Result.Transactions)).
		Int("pages_skipped", state.Report.SkippedPages()).
		Int("records_dropped", len(state.Result.Dropped)).
		Int("records_filtered", state.Result.Filtered).
		Msg("Extraction completed")
}

// periodFromFlags builds a billing period from ISO bounds. Month names and
// years are derived so the prompt carries the same context an API client sends.
func periodFromFlags(start, end string) domain.BillingPeriod {
	p := domain.BillingPeriod{Start: strings.TrimSpace(start), End: strings.TrimSpace(end)}
	if t, err := time.Parse("2006-01-02", p.Start); err == nil {
		p.StartMonth, p.StartYear = t.Month().String(), t.Year()
	}
	if t, err := time.Parse("2006-01-02", p.End); err == nil {
		p.EndMonth, p.EndYear = t.Month().String(), t.Year()
	}
	return p
}

func runUpload(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", "", "GCS bucket name")
	prefix := fs.String("prefix", "statements", "Object name prefix")
	objectName := fs.String("object", "", "GCS object name (defaults to prefix/filename)")
	filePath := fs.String("file", "", "Path to local statement file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}
	if *objectName == "" {
		*objectName = gcs.ObjectName(*prefix, *filePath)
	}

	ctx := logger.WithContext(context.Background(), log)

	client, err := gcs.NewClient(ctx, cfg.MaxFileSizeBytes())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer client.Close()

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", filepath.Base(*filePath)).
		Msg("Uploading file to GCS")

	if err := client.UploadFile(ctx, *bucketName, *objectName, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s; request with {\"s3Bucket\":%q,\"s3Key\":%q}\n", *filePath, *bucketName, *objectName)
}
