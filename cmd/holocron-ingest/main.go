// Command holocron-ingest runs the Holocron ingest pipeline: normalize,
// filter, chunk, embed and upsert content from either a MediaWiki XML
// dump or a CSV list of URLs fetched live, per spec §6 ("Input
// sources") and §4.10 (Ingest Orchestrator).
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"holocron/internal/config"
	"holocron/internal/crawler"
	"holocron/internal/embeddings"
	"holocron/internal/logging"
	"holocron/internal/model"
	"holocron/internal/orchestrator"
	"holocron/internal/progress"
	"holocron/internal/ratelimit"
	"holocron/internal/vectorstore"
	"holocron/internal/workqueue"
	"holocron/internal/xmldump"
)

// Exit codes per spec §6: 0 success, 1 interrupted or non-fatal
// failure with checkpoint saved, 2 configuration error.
const (
	exitOK            = 0
	exitInterrupted   = 1
	exitConfiguration = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFile  = flag.String("config", "", "Path to an optional YAML config overlay")
		dumpPath    = flag.String("dump", "", "Path to a MediaWiki XML export dump")
		csvPath     = flag.String("csv", "", "Path to a CSV URL list (columns: id,url,priority)")
		statusPath  = flag.String("status", "progress.csv", "Path to the progress status CSV")
		stagingPath = flag.String("staging", "staged_vectors.ndjson", "Path to stage vector records on upsert failure")
		limit       = flag.Int("limit", 0, "Maximum unprocessed items to process this run (0 = no limit)")
		priority    = flag.String("priority", "", "Only process items at this priority")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfiguration
	}
	if *dumpPath == "" && *csvPath == "" {
		fmt.Fprintln(os.Stderr, "configuration error: one of -dump or -csv is required")
		return exitConfiguration
	}

	logging.SetDefaultLogger(logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level)))
	log := logging.WithComponent("holocron-ingest")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder := embeddings.NewOpenAIService(embeddings.OpenAIConfig{
		APIKey:              cfg.OpenAI.APIKey,
		Model:               cfg.OpenAI.EmbeddingModel,
		Dimensions:          cfg.Pipeline.EmbeddingDimension,
		BatchTokenLimit:     cfg.Pipeline.BatchTokenLimit,
		MaxParallelRequests: cfg.Pipeline.MaxParallelRequests,
	})

	backend, err := vectorstore.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfiguration
	}

	interrupted := false

	if *dumpPath != "" {
		interrupted = runDump(ctx, cfg, *dumpPath, *stagingPath, embedder, backend, log)
	} else {
		interrupted = runCrawl(ctx, cfg, *csvPath, *statusPath, *stagingPath, *limit, model.Priority(*priority), embedder, backend, log)
	}

	if interrupted {
		return exitInterrupted
	}
	return exitOK
}

// runDump streams the XML dump sequentially through the orchestrator.
// A dump run has no separate progress store: the dump itself is the
// unit of work, and resuming a partial dump run is out of scope (the
// CSV/crawl path is what spec §4.7's Progress Store exists for).
func runDump(ctx context.Context, cfg *config.Config, dumpPath, stagingPath string, embedder embeddings.Service, backend vectorstore.Backend, log logging.Logger) bool {
	f, err := os.Open(dumpPath)
	if err != nil {
		log.Error("failed to open dump file", "path", dumpPath, "error", err)
		return true
	}
	defer f.Close()

	// A dump run has no Progress Store of its own, but the orchestrator
	// needs one to mark items done; a process-local, non-persisted store
	// seeded empty is enough since nothing reads it back across runs.
	tmpStatus, err := os.CreateTemp("", "holocron-dump-status-*.csv")
	if err != nil {
		log.Error("failed to create transient status file", "error", err)
		return true
	}
	tmpStatus.Close()
	defer os.Remove(tmpStatus.Name())

	store, err := progress.Open(tmpStatus.Name(), nil)
	if err != nil {
		log.Error("failed to open transient progress store", "error", err)
		return true
	}

	orch := orchestrator.New(embedder, backend, store, cfg.Pipeline, 10*time.Second, stagingPath)
	processor := xmldump.New()

	_, err = processor.Process(ctx, f, func(ctx context.Context, raw model.RawArticle) error {
		item := model.WorkItem{URL: dumpArticleURL(raw.Title), Priority: model.PriorityLow}
		store.Track(item)
		if err := orch.ProcessItem(ctx, item, raw); err != nil {
			return orch.Fail(item, err)
		}
		return nil
	})

	flushErr := orch.Flush(ctx)

	counts := orch.Counts()
	log.Info("dump ingest complete", "processed", counts.Processed, "filtered", counts.Filtered, "failed", counts.Failed)
	for _, fi := range orch.FailedItems() {
		log.Error("item failed", "url", fi.URL, "error", fi.Error)
	}

	if err != nil || flushErr != nil || ctx.Err() != nil {
		return true
	}
	return false
}

func dumpArticleURL(title string) string {
	return "https://starwars.fandom.com/wiki/" + strings.ReplaceAll(title, " ", "_")
}

// runCrawl drives the CSV-seeded Progress Store through a bounded
// worker pool, fetching each unprocessed URL live.
func runCrawl(ctx context.Context, cfg *config.Config, csvPath, statusPath, stagingPath string, limit int, priority model.Priority, embedder embeddings.Service, backend vectorstore.Backend, log logging.Logger) bool {
	seed, err := loadSeedCSV(csvPath)
	if err != nil {
		log.Error("failed to load URL list", "path", csvPath, "error", err)
		return true
	}

	store, err := progress.Open(statusPath, seed)
	if err != nil {
		log.Error("failed to open progress store", "path", statusPath, "error", err)
		return true
	}
	store.SetCheckpointBatchSize(cfg.Pipeline.CheckpointBatchSize)

	orch := orchestrator.New(embedder, backend, store, cfg.Pipeline, 10*time.Second, stagingPath)
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute)
	fetcher := crawler.New(limiter, cfg.Crawler)

	unprocessed := store.Unprocessed(priority, limit)
	if len(unprocessed) == 0 {
		log.Info("no unprocessed URLs found")
		return false
	}
	log.Info("starting crawl ingest", "items", len(unprocessed), "workers", cfg.Pipeline.NumWorkers)

	pool := workqueue.New(cfg.Pipeline.NumWorkers, func(ctx context.Context, item model.WorkItem) error {
		title := titleFromURL(item.URL)
		raw, err := fetcher.Fetch(ctx, title)
		if err != nil {
			return orch.Fail(item, err)
		}
		if err := orch.ProcessItem(ctx, item, raw); err != nil {
			return orch.Fail(item, err)
		}
		return nil
	})

	items := make(chan model.WorkItem, len(unprocessed))
	for _, item := range unprocessed {
		items <- item
	}
	close(items)

	pool.Run(ctx, items)
	flushErr := orch.Flush(ctx)
	if err := store.Checkpoint(); err != nil {
		log.Error("failed to checkpoint progress store", "error", err)
		flushErr = err
	}

	counts := orch.Counts()
	log.Info("crawl ingest complete", "processed", counts.Processed, "filtered", counts.Filtered, "failed", counts.Failed)
	for _, fi := range orch.FailedItems() {
		log.Error("item failed", "url", fi.URL, "error", fi.Error)
	}

	if flushErr != nil || ctx.Err() != nil {
		return true
	}
	return false
}

func titleFromURL(rawURL string) string {
	const marker = "/wiki/"
	idx := strings.LastIndex(rawURL, marker)
	if idx < 0 {
		return rawURL
	}
	return strings.ReplaceAll(rawURL[idx+len(marker):], "_", " ")
}

func loadSeedCSV(path string) ([]model.WorkItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[strings.TrimSpace(name)] = i
	}

	items := make([]model.WorkItem, 0, len(rows)-1)
	for _, row := range rows[1:] {
		url := cellAt(row, cols, "url")
		if url == "" {
			continue
		}
		priority := model.Priority(cellAt(row, cols, "priority"))
		if priority == "" {
			priority = model.PriorityLow
		}
		items = append(items, model.WorkItem{
			ID:       cellAt(row, cols, "id"),
			URL:      url,
			Priority: priority,
		})
	}
	return items, nil
}

func cellAt(row []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}
