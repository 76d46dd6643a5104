package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"ksmeta/pkg/config"
	"ksmeta/pkg/extract"
	"ksmeta/pkg/fetch"
	"ksmeta/pkg/models"
	"ksmeta/pkg/pipeline"
	"ksmeta/pkg/report"
	"ksmeta/pkg/resolve"
	"ksmeta/pkg/storage"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "process":
		runProcess(os.Args[2:])
	case "resolve":
		runResolve(os.Args[2:])
	case "fetch":
		runFetch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("ksmeta %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `ksmeta - Kuaishou short-video metadata pipeline

Usage:
  ksmeta <command> [options]

Commands:
  process     Process a batch of share links into a CSV report
  resolve     Resolve a single share link to its video identifier
  fetch       Fetch the metadata record for a resolved identifier
  validate    Validate configuration file
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'ksmeta <command> -h' for command-specific help.`)
}

// loadConfig loads the config file at path, or built-in defaults when path
// is empty. Validation warnings are returned for the caller to surface.
func loadConfig(path string) (*config.AppConfig, []string, error) {
	var cfg *config.AppConfig
	if path == "" {
		cfg = &config.AppConfig{}
	} else {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

// newLogger builds the CLI logger writing to the given stream
func newLogger(level string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
		log.Warnf("Invalid log level '%s', using 'info'", level)
	}
	log.SetLevel(parsed)
	return log
}

// runProcess handles the process subcommand
func runProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to YAML config file (optional, defaults apply)")
	inputFile := fs.String("input", "", "Path to input file, one '[index,]url' per line (required)")
	outputFile := fs.String("output", "", "CSV output path (defaults to input path with .csv suffix)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	resume := fs.Bool("resume", false, "Serve previously successful rows from the result store")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ksmeta process [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ksmeta process -input links.txt\n")
		fmt.Fprintf(os.Stderr, "  ksmeta process -input links.txt -output report.csv -resume\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *inputFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -input flag is required")
		fs.Usage()
		os.Exit(1)
	}

	os.Exit(doProcess(*configFile, *inputFile, *outputFile, *logLevel, *resume, os.Stderr))
}

// doProcess runs a full batch: parse input, process under the concurrency
// bound, write the CSV report. Returns an exit code.
func doProcess(configPath, inputPath, outputPath, logLevel string, resume bool, stderr io.Writer) int {
	log := newLogger(logLevel, stderr)

	cfg, warnings, err := loadConfig(configPath)
	if err != nil {
		log.Errorf("Configuration error: %v", err)
		return 1
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	if outputPath == "" {
		outputPath = strings.TrimSuffix(inputPath, ".txt") + ".csv"
	}

	file, err := os.Open(inputPath)
	if err != nil {
		log.Errorf("Failed to open input file: %v", err)
		return 1
	}
	rows, err := models.ReadRows(file)
	file.Close()
	if err != nil {
		log.Errorf("Failed to parse input file: %v", err)
		return 1
	}
	if len(rows) == 0 {
		log.Error("Input file contains no rows")
		return 1
	}
	log.Infof("Loaded %d rows from %s", len(rows), inputPath)

	// Graceful shutdown on SIGINT/SIGTERM; a second signal forces exit
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Finishing in-flight rows...", sig)
		cancel()
		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded. Forcing exit.")
			os.Exit(1)
		}
	}()

	opts := &pipeline.Options{
		OnProgress: func(pr models.Progress) {
			log.Infof("Progress: %d/%d", pr.Completed, pr.Total)
		},
	}

	// The store is always written so a later -resume run can skip
	// completed rows; -resume additionally serves from it
	store, err := storage.NewBadgerStore(cfg.StateDir, !resume, log.WithField("component", "storage"))
	if err != nil {
		log.Errorf("Failed to open result store: %v", err)
		return 1
	}
	defer store.Close()
	opts.Store = store

	p := pipeline.New(cfg, log, opts)
	results, summary := p.ProcessBatch(ctx, rows)

	out, err := os.Create(outputPath)
	if err != nil {
		log.Errorf("Failed to create output file: %v", err)
		return 1
	}
	writeErr := report.WriteCSV(out, results, p.LongFormURL)
	if closeErr := out.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		log.Errorf("Failed to write CSV report: %v", writeErr)
		return 1
	}
	log.Infof("Wrote %d rows to %s (%d succeeded, %d failed)",
		summary.Total, outputPath, summary.Succeeded, summary.Failed)

	if ctx.Err() != nil {
		log.Warn("Batch cancelled; partial report written")
		return 1
	}
	return 0
}

// runResolve handles the resolve subcommand
func runResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to YAML config file (optional)")
	rawURL := fs.String("url", "", "Share link to resolve (required)")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ksmeta resolve -url <share link>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *rawURL == "" {
		fmt.Fprintln(os.Stderr, "Error: -url flag is required")
		fs.Usage()
		os.Exit(1)
	}

	os.Exit(doResolve(*configFile, *rawURL, *logLevel, os.Stdout, os.Stderr))
}

// doResolve resolves a single URL and prints the identifier as JSON
func doResolve(configPath, rawURL, logLevel string, stdout, stderr io.Writer) int {
	log := newLogger(logLevel, stderr)

	cfg, warnings, err := loadConfig(configPath)
	if err != nil {
		log.Errorf("Configuration error: %v", err)
		return 1
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	client := fetch.NewClient(cfg.HTTPClientSettings, log)
	agents := fetch.NewAgentPool(cfg.UserAgents, time.Now().UnixNano())
	resolver := resolve.NewResolver(client, cfg, agents, log.WithField("component", "resolve"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	videoID, err := resolver.Resolve(ctx, rawURL)
	if err != nil {
		log.Errorf("Resolve failed: %v", err)
		return 1
	}

	printJSON(stdout, map[string]interface{}{
		"url":           rawURL,
		"video_id":      videoID,
		"long_form_url": fmt.Sprintf(cfg.LongFormURL, videoID),
	})
	return 0
}

// runFetch handles the fetch subcommand
func runFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to YAML config file (optional)")
	videoID := fs.String("id", "", "Resolved video identifier (required)")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ksmeta fetch -id <video identifier>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *videoID == "" {
		fmt.Fprintln(os.Stderr, "Error: -id flag is required")
		fs.Usage()
		os.Exit(1)
	}

	os.Exit(doFetch(*configFile, *videoID, *logLevel, os.Stdout, os.Stderr))
}

// doFetch fetches one metadata page, extracts the embedded state and prints
// the mapped record as JSON
func doFetch(configPath, videoID, logLevel string, stdout, stderr io.Writer) int {
	log := newLogger(logLevel, stderr)

	cfg, warnings, err := loadConfig(configPath)
	if err != nil {
		log.Errorf("Configuration error: %v", err)
		return 1
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	client := fetch.NewClient(cfg.HTTPClientSettings, log)
	agents := fetch.NewAgentPool(cfg.UserAgents, time.Now().UnixNano())
	limiter := fetch.NewRateLimiter(cfg.DelayPerHost, log.WithField("component", "fetch"))
	fetcher := fetch.NewFetcher(client, cfg, agents, limiter, log.WithField("component", "fetch"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body, err := fetcher.FetchPhoto(ctx, videoID)
	if err != nil {
		log.Errorf("Fetch failed: %v", err)
		return 1
	}

	state, err := extract.Extract(body)
	if err != nil {
		log.Errorf("State extraction failed: %v", err)
		return 1
	}

	mapper := extract.NewMapper(cfg.MinNumericIDLen, log.WithField("component", "extract"))
	record, err := mapper.Map(state)
	if err != nil {
		log.Errorf("No video detail found: %v", err)
		return 1
	}

	printJSON(stdout, record)
	return 0
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ksmeta validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "OK: configuration is valid (concurrency=%d, attempts=%d)\n",
		cfg.Concurrency, cfg.MaxAttempts)
	return 0
}

// printJSON writes v as indented JSON to w
func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}
