// Package main is the kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists; when neither exists the built-in defaults are used.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			if err := cfg.Validate(); err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "ingest":
		runIngest(args)
	case "ask":
		runAsk(args)
	case "clear":
		runClear(args)
	case "status":
		runStatus(args)
	case "documents":
		runDocuments(args)
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// commonFlags are shared by every subcommand that talks to a collection.
type commonFlags struct {
	configPath *string
	serverURL  *string
	output     *string
	debug      *bool
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return fs, commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		serverURL:  fs.String("server", "", "server URL (empty = open the collection directly)"),
		output:     fs.String("output", "text", "output format: text or json"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

func (c commonFlags) format() cli.OutputFormat {
	f, err := cli.ParseOutputFormat(*c.output)
	if err != nil {
		fatalf("%v", err)
	}
	return f
}

// openPipeline loads the config and builds a pipeline over the configured services.
func (c commonFlags) openPipeline() (*rag.Pipeline, *config.Config, *zap.Logger) {
	cfg, _, err := loadConfig(*c.configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger := newLogger(cfg.Debug || *c.debug)
	p, err := rag.NewFromConfig(cfg, rag.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to initialize pipeline", zap.Error(err))
	}
	return p, cfg, logger
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (uploads, batches, retrieval, etc.)")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger := newLogger(debugMode)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	metrics := server.NewMetrics()
	pipeline, err := rag.NewFromConfig(cfg, rag.WithLogger(logger), rag.WithObserver(metrics))
	if err != nil {
		logger.Fatal("Failed to initialize pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		watchSvc := watcher.NewWatcher(cfg.Storage.UploadDir, cfg.Watch.Extensions,
			func(ctx context.Context, paths []string) {
				if _, err := pipeline.Ingest(ctx, paths...); err != nil {
					logger.Warn("watch ingest failed", zap.Strings("paths", paths), zap.Error(err))
				}
			},
			watcher.WithLogger(logger))
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		watchSvc.SyncExisting()
	}

	srv := server.NewServer(pipeline, cfg, metrics, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest(args []string) {
	fs, common := newFlagSet("ingest")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}
	format := common.format()

	var cfgExts []string
	if cfg, _, err := loadConfig(*common.configPath); err == nil {
		cfgExts = cfg.Watch.Extensions
	}
	paths, err := expandPaths(fs.Args(), cfgExts)
	if err != nil {
		fatalf("Ingest failed: %v", err)
	}

	var res models.IngestResult
	if *common.serverURL != "" {
		err = callAPI(http.MethodPost, *common.serverURL+"/api/v1/ingest", map[string][]string{"paths": paths}, &res)
	} else {
		p, _, logger := common.openPipeline()
		defer logger.Sync()
		defer p.Close()
		var r *models.IngestResult
		if r, err = p.Ingest(context.Background(), paths...); r != nil {
			res = *r
		}
	}
	if err != nil {
		fatalf("Ingest failed: %v", err)
	}
	if err := cli.WriteIngestResult(os.Stdout, &res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runAsk(args []string) {
	fs, common := newFlagSet("ask")
	topK := fs.Int("top-k", 0, "chunks retrieved per query variant (0 = config value)")
	noExpand := fs.Bool("no-expand", false, "search with the question only, without alternative phrasings")
	verbose := fs.Bool("verbose", false, "print the retrieved context and query variants")
	_ = fs.Parse(argsReorder(args))

	req := models.AskRequest{Question: buildQuestion(fs.Args()), TopK: *topK, NoExpand: *noExpand}
	if req.Question == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	format := common.format()

	var answer models.Answer
	var err error
	if *common.serverURL != "" {
		err = callAPI(http.MethodPost, *common.serverURL+"/api/v1/ask", req, &answer)
	} else {
		p, _, logger := common.openPipeline()
		defer logger.Sync()
		defer p.Close()
		var a *models.Answer
		if a, err = p.Ask(context.Background(), req); a != nil {
			answer = *a
		}
	}
	if errors.Is(err, models.ErrNoCollection) {
		fatalf("No documents ingested yet. Run \"kotae ingest <path>\" first.")
	}
	if err != nil {
		fatalf("Ask failed: %v", err)
	}
	if err := cli.WriteAnswer(os.Stdout, &answer, format, *verbose); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runClear(args []string) {
	fs, common := newFlagSet("clear")
	_ = fs.Parse(args)

	var err error
	if *common.serverURL != "" {
		err = callAPI(http.MethodDelete, *common.serverURL+"/api/v1/collection", nil, nil)
	} else {
		p, _, logger := common.openPipeline()
		defer logger.Sync()
		defer p.Close()
		err = p.Clear(context.Background())
	}
	if err != nil {
		fatalf("Clear failed: %v", err)
	}
	fmt.Println("Collection cleared.")
}

func runStatus(args []string) {
	fs, common := newFlagSet("status")
	_ = fs.Parse(args)
	format := common.format()

	var stats models.CollectionStats
	var err error
	if *common.serverURL != "" {
		var body struct {
			Collection models.CollectionStats `json:"collection"`
		}
		err = callAPI(http.MethodGet, *common.serverURL+"/api/v1/status", nil, &body)
		stats = body.Collection
	} else {
		p, _, logger := common.openPipeline()
		defer logger.Sync()
		defer p.Close()
		var s *models.CollectionStats
		if s, err = p.Status(context.Background()); s != nil {
			stats = *s
		}
	}
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, &stats, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runDocuments(args []string) {
	fs, common := newFlagSet("documents")
	offset := fs.Int("offset", 0, "number of documents to skip")
	limit := fs.Int("limit", 50, "maximum documents to list")
	id := fs.String("id", "", "show one document and its chunks")
	_ = fs.Parse(args)
	format := common.format()

	if *id != "" {
		showDocument(common, *id, format)
		return
	}

	var docs []*models.Document
	var err error
	if *common.serverURL != "" {
		var body struct {
			Documents []*models.Document `json:"documents"`
		}
		q := url.Values{"offset": {fmt.Sprint(*offset)}, "limit": {fmt.Sprint(*limit)}}
		err = callAPI(http.MethodGet, *common.serverURL+"/api/v1/documents?"+q.Encode(), nil, &body)
		docs = body.Documents
	} else {
		p, _, logger := common.openPipeline()
		defer logger.Sync()
		defer p.Close()
		docs, err = p.Documents(context.Background(), *offset, *limit)
	}
	if err != nil {
		fatalf("Listing documents failed: %v", err)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func showDocument(common commonFlags, id string, format cli.OutputFormat) {
	var detail *models.DocumentDetail
	var err error
	if *common.serverURL != "" {
		detail = &models.DocumentDetail{}
		err = callAPI(http.MethodGet, *common.serverURL+"/api/v1/documents/"+url.PathEscape(id), nil, detail)
	} else {
		p, _, logger := common.openPipeline()
		defer logger.Sync()
		defer p.Close()
		detail, err = p.Document(context.Background(), id)
	}
	if err != nil {
		fatalf("Showing document failed: %v", err)
	}
	if err := cli.WriteDocument(os.Stdout, detail, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// buildQuestion joins the remaining arguments so multi-word questions work without quotes.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops at
// the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// expandPaths resolves args to absolute file paths. Directories contribute every file
// below them with one of exts, in lexical order.
func expandPaths(args []string, exts []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, abs)
			continue
		}
		files, err := indexer.CollectFiles(abs, exts)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no supported files in %s", abs)
		}
		paths = append(paths, files...)
	}
	return paths, nil
}

// callAPI sends body as JSON and decodes a 2xx response into out. Error responses carry
// the server's message.
func callAPI(method, target string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			switch resp.StatusCode {
			case http.StatusConflict:
				return fmt.Errorf("%w (server returned %d)", models.ErrNoCollection, resp.StatusCode)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s", models.ErrNotFound, apiErr.Error)
			}
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newLogger(debug bool) *zap.Logger {
	logger, err := utils.NewLogger(debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	return logger
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`kotae - answer questions from your documents

Usage:
  kotae server [flags]                 Start the HTTP API (and the upload watcher if enabled)
  kotae ingest [flags] <path>...       Build the collection from files or directories
  kotae ask [flags] <question>         Answer a question from the collection
  kotae clear [flags]                  Delete the collection
  kotae status [flags]                 Show collection statistics
  kotae documents [flags]              List ingested documents
  kotae version                        Print the version

Common Flags:
  --config <path>    Config file (default: ./config.yaml, then /usr/local/etc/kotae/config.yaml)
  --server <url>     Use a running server instead of opening the collection directly
  --output <format>  text or json
  --debug            Enable debug logging

Ask Flags:
  --top-k <n>        Chunks retrieved per query variant
  --no-expand        Skip query expansion
  --verbose          Print the retrieved context

Documents Flags:
  --offset <n>       Documents to skip
  --limit <n>        Maximum documents to list
  --id <doc-id>      Show one document and its chunks

A collection is created once. Ingesting again while it exists leaves it unchanged;
run "kotae clear" first to rebuild it.

Examples:
  kotae ingest ./docs
  kotae ask What is the capital of France?
  kotae ask --server http://localhost:8080 --verbose "Who wrote the report?"`)
}
