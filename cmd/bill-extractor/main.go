package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombor/bill-extractor/internal/bill"
	"github.com/zombor/bill-extractor/internal/reconcile"
	"github.com/zombor/bill-extractor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// retryConfigurable is implemented by extractors whose transport retries can be tuned
type retryConfigurable interface {
	SetRetryPolicy(scanning.RetryPolicy)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine; the environment and flags still apply
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("bill-extractor")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "bill-extractor.db", "Database file path")
		storagePath  = fs.StringLong("storage", "./documents", "Storage directory path")
		scannerType  = fs.StringLong("scanner", "gemini", "Extractor type: 'gemini' or 'ollama'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.0-flash", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2.5vl)")
		rulesPath    = fs.StringLong("rules", "", "YAML file overriding reconciliation thresholds and keywords")
		workers      = fs.IntLong("workers", 16, "Pages processed in parallel")
		callTimeout  = fs.DurationLong("call-timeout", 60*time.Second, "Timeout for each model call")
		maxAttempts  = fs.IntLong("max-attempts", 3, "Attempts per model call for transient failures")
		maxRetries   = fs.IntLong("max-corrections", -1, "Correction rounds per page (overrides the rules file when >= 0)")
		maxDimension = fs.IntLong("max-image-dimension", 2048, "Longest side of page images sent to the model")
		documentPath = fs.StringLong("file", "", "Extract a single document, print the result as JSON and exit")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILL_EXTRACTOR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg, err := reconcile.LoadConfig(*rulesPath)
	if err != nil {
		slog.Error("Failed to load reconciliation rules", "error", err)
		os.Exit(1)
	}
	if *maxRetries >= 0 {
		cfg.MaxRetryAttempts = *maxRetries
	}

	slog.Info("Initializing database...")
	db, err := bill.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var extractor scanning.Extractor
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	if rc, ok := extractor.(retryConfigurable); ok {
		policy := scanning.DefaultRetryPolicy
		policy.MaxAttempts = *maxAttempts
		rc.SetRetryPolicy(policy)
	}

	slog.Info("Initializing storage...")
	store, err := bill.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := bill.DefaultOptions()
	opts.Workers = *workers
	opts.CallTimeout = *callTimeout
	opts.Metrics = bill.NewMetrics(registry)

	service := bill.NewService(db, extractor, store, scanning.NewConverter(*maxDimension), cfg, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *documentPath != "" {
		if err := extractFile(ctx, service, *documentPath); err != nil {
			slog.Error("Failed to extract document", "file", *documentPath, "error", err)
			os.Exit(1)
		}
		return
	}

	basicAuth := bill.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := bill.NewServer(service, basicAuth, registry)

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shut down")
}

// extractFile runs one local document through the service and prints the result
func extractFile(ctx context.Context, service *bill.Service, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	contentType := http.DetectContentType(data)
	if strings.EqualFold(filepath.Ext(path), ".heic") || strings.EqualFold(filepath.Ext(path), ".heif") {
		contentType = "image/heic"
	}

	extraction, err := service.Extract(ctx, filepath.Base(path), data, contentType)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(extraction)
}
