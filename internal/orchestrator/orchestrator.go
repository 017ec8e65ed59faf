// Package orchestrator binds the normalizer, content filter, chunker,
// embedding service and vector backend into the per-item ingest
// pipeline, grounded on
// original_source/src/holocron/wiki_processing/process_wiki_dump.py's
// process_page (fetch -> filter -> chunk gate) and
// original_source/scripts/holocron_local_processor.py's run_pipeline
// (batch accumulation, worker pool, checkpointing) — spec §4.10.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"holocron/internal/chunk"
	"holocron/internal/config"
	"holocron/internal/contentfilter"
	"holocron/internal/embeddings"
	"holocron/internal/logging"
	"holocron/internal/markup"
	"holocron/internal/model"
	"holocron/internal/progress"
	"holocron/internal/vectorstore"
)

// Counts summarizes one ingest run for the terminal/log summary spec
// §7 requires.
type Counts struct {
	Processed int
	Filtered  int
	Failed    int
}

// FailedItem records a single item's terminal failure for the run
// summary's failed-item list.
type FailedItem struct {
	URL   string
	Error string
}

// Orchestrator drives one work item through C1-C5 and accumulates
// vector records into upload-sized batches.
type Orchestrator struct {
	embedder embeddings.Service
	backend  vectorstore.Backend
	store    *progress.Store
	cfg      config.PipelineConfig
	log      logging.Logger

	flushInterval time.Duration
	stagingPath   string

	bufMu     sync.Mutex
	buffer    []model.VectorRecord
	lastFlush time.Time

	countMu    sync.Mutex
	counts     Counts
	failedURLs []FailedItem
}

// New builds an Orchestrator. flushInterval bounds how long chunks can
// sit in the buffer before an upsert fires even if the batch isn't
// full yet (spec §4.10's "periodic time-based flush to bound
// latency"). stagingPath is where records go if an upsert batch fails
// outright, per spec §7's staged-to-disk fallback.
func New(embedder embeddings.Service, backend vectorstore.Backend, store *progress.Store, cfg config.PipelineConfig, flushInterval time.Duration, stagingPath string) *Orchestrator {
	return &Orchestrator{
		embedder:      embedder,
		backend:       backend,
		store:         store,
		cfg:           cfg,
		log:           logging.WithComponent("orchestrator"),
		flushInterval: flushInterval,
		stagingPath:   stagingPath,
		lastFlush:     time.Now(),
	}
}

// ProcessItem runs the filter -> normalize -> chunk -> embed pipeline
// for one item's raw article and enqueues any resulting vector
// records. The item is always marked done in the Progress Store on
// success, whether or not it produced chunks, so a legitimately empty
// page is never retried (spec §4.10 step 7).
func (o *Orchestrator) ProcessItem(ctx context.Context, item model.WorkItem, raw model.RawArticle) error {
	class := contentfilter.Classify(raw.Title, raw.Markup, raw.Categories)
	if class != model.ContentClassContent && class != model.ContentClassStub {
		o.countFiltered()
		return o.store.MarkProcessed([]string{item.URL})
	}

	plainText := markup.Normalize(raw.Markup)
	canonicity := contentfilter.Canonicity(raw.Markup, raw.Categories)

	normalized := model.NormalizedArticle{
		ArticleID:    articleID(raw.Title),
		Title:        raw.Title,
		SourceURL:    item.URL,
		PlainText:    plainText,
		Categories:   raw.Categories,
		Canonicity:   canonicity,
		ContentClass: class,
		Priority:     item.Priority,
	}

	chunks := chunk.Chunk(normalized, chunk.Config{
		MaxChunkTokens:       o.cfg.MaxChunkTokens,
		DedupeSectionHeaders: o.cfg.DedupeSectionHeaders,
	})
	if len(chunks) == 0 {
		o.countProcessed()
		return o.store.MarkProcessed([]string{item.URL})
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	results, err := o.embedder.GenerateBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("orchestrator: embed %q: %w", item.URL, err)
	}

	// Every chunk gets a record, flagged or not: spec §4.4/§7 require a
	// failed embedding to be substituted with a zero vector and flagged
	// for re-embedding, never dropped from the upsert batch entirely.
	records := make([]model.VectorRecord, 0, len(chunks))
	for i, c := range chunks {
		vec := make([]float32, o.embedder.Dimensions())
		flagged := true
		if i < len(results) {
			vec = results[i].Vector
			flagged = results[i].Flagged
		}
		meta := c.Metadata
		if flagged {
			meta.FlaggedForReembed = true
			o.log.Error("chunk embedding flagged for reembed", "chunk_id", c.ID, "url", item.URL)
		}
		records = append(records, model.VectorRecord{
			ID:                c.ID,
			Vector:            vec,
			Text:              c.Text,
			Metadata:          meta,
			FlaggedForReembed: flagged,
		})
	}

	if err := o.enqueue(ctx, records); err != nil {
		return fmt.Errorf("orchestrator: upsert %q: %w", item.URL, err)
	}

	o.countProcessed()
	return o.store.MarkProcessed([]string{item.URL})
}

// Fail records a terminal or transient item failure. Once the item's
// attempt count reaches maxRetries, it is marked done anyway so the
// pipeline never retries the same item forever (spec §4.10's state
// machine: in-flight --error, attempts>=max--> done (failed, error
// recorded)).
func (o *Orchestrator) Fail(item model.WorkItem, cause error) error {
	attempts, err := o.store.MarkFailed(item.URL, cause)
	if err != nil {
		return err
	}

	o.countMu.Lock()
	o.counts.Failed++
	o.failedURLs = append(o.failedURLs, FailedItem{URL: item.URL, Error: cause.Error()})
	o.countMu.Unlock()

	if o.cfg.MaxRetries > 0 && attempts >= o.cfg.MaxRetries {
		return o.store.MarkProcessed([]string{item.URL})
	}
	return nil
}

func (o *Orchestrator) countProcessed() {
	o.countMu.Lock()
	o.counts.Processed++
	o.countMu.Unlock()
}

func (o *Orchestrator) countFiltered() {
	o.countMu.Lock()
	o.counts.Filtered++
	o.countMu.Unlock()
}

// Counts returns a snapshot of the run's totals so far.
func (o *Orchestrator) Counts() Counts {
	o.countMu.Lock()
	defer o.countMu.Unlock()
	return o.counts
}

// FailedItems returns the run's accumulated failed-item list.
func (o *Orchestrator) FailedItems() []FailedItem {
	o.countMu.Lock()
	defer o.countMu.Unlock()
	out := make([]FailedItem, len(o.failedURLs))
	copy(out, o.failedURLs)
	return out
}

// enqueue appends records to the upload buffer, flushing when the
// configured batch size is reached or the flush interval has elapsed
// since the last flush, whichever comes first.
func (o *Orchestrator) enqueue(ctx context.Context, records []model.VectorRecord) error {
	o.bufMu.Lock()
	o.buffer = append(o.buffer, records...)
	shouldFlush := len(o.buffer) >= o.cfg.UploadBatchSize || time.Since(o.lastFlush) >= o.flushInterval
	o.bufMu.Unlock()

	if shouldFlush {
		return o.Flush(ctx)
	}
	return nil
}

// Flush upserts whatever is currently buffered. Call it once more
// after the run's last item to drain any partial batch.
func (o *Orchestrator) Flush(ctx context.Context) error {
	o.bufMu.Lock()
	batch := o.buffer
	o.buffer = nil
	o.lastFlush = time.Now()
	o.bufMu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := o.backend.Upsert(ctx, batch); err != nil {
		o.log.Error("upsert batch failed, staging to disk", "count", len(batch), "error", err)
		if stageErr := o.stage(batch); stageErr != nil {
			return fmt.Errorf("upsert failed (%v) and staging failed: %w", err, stageErr)
		}
		return nil
	}
	return nil
}

// stage appends records as newline-delimited JSON to stagingPath for
// out-of-band import, a minimal substitute for the Parquet staging
// format named in spec §7 (no Parquet library is available in the
// retrieved pack to build a real column-chunked writer on).
func (o *Orchestrator) stage(records []model.VectorRecord) error {
	if o.stagingPath == "" {
		return fmt.Errorf("no staging path configured")
	}

	f, err := os.OpenFile(o.stagingPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func articleID(title string) string {
	id := make([]byte, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			id = append(id, byte(r))
		default:
			id = append(id, '_')
		}
	}
	return string(id)
}
