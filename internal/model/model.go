// Package model holds the data types shared across the ingest and
// retrieval pipelines: work items, articles at each stage of
// normalization, chunks, vector records and search results.
package model

import "time"

// Priority is the work-item priority a caller can assign when importing
// a URL list or dump title list.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ContentClass is the hard-gate classification produced by the content
// filter (C2). Only Content and Stub items proceed to chunking and
// embedding.
type ContentClass string

const (
	ContentClassContent        ContentClass = "content"
	ContentClassRedirect       ContentClass = "redirect"
	ContentClassDisambiguation ContentClass = "disambiguation"
	ContentClassMetaUtility    ContentClass = "meta_utility"
	// ContentClassStub is processed like Content, never filtered; it
	// only carries the stub tag through to chunk/vector metadata.
	ContentClassStub ContentClass = "stub"
)

// Canonicity is soft metadata, never a processing gate.
type Canonicity string

const (
	CanonicityCanon   Canonicity = "canon"
	CanonicityLegends Canonicity = "legends"
	CanonicityUnknown Canonicity = "unknown"
)

// WorkItem is the unit of ingest work: one article or URL, tracked by the
// Progress Store across the item's lifecycle (unprocessed -> in-flight ->
// done/failed).
type WorkItem struct {
	ID          string
	URL         string
	Title       string
	Priority    Priority
	Processed   bool
	ProcessedAt time.Time
	Attempts    int
	LastError   string
}

// RawArticle is the output of the fetch stage (XML stream or crawler),
// transient: it lives only inside one pipeline run and is never
// persisted directly.
type RawArticle struct {
	Title      string
	Namespace  int
	RevisionID string
	Markup     string
	Categories []string
}

// NormalizedArticle is produced by the Markup Normalizer (C1) and the
// Content Filter (C2), and consumed by the Chunker (C3).
type NormalizedArticle struct {
	ArticleID    string
	Title        string
	SourceURL    string
	PlainText    string
	Categories   []string
	Canonicity   Canonicity
	ContentClass ContentClass
	Priority     Priority
}

// ChunkMetadata is attached to every chunk and carried through to the
// vector record so it can be returned unmodified by search.
type ChunkMetadata struct {
	Title             string       `json:"title"`
	SourceURL         string       `json:"source_url"`
	Section           string       `json:"section"`
	Categories        []string     `json:"categories"`
	Priority          Priority     `json:"priority"`
	Canonicity        Canonicity   `json:"canonicity"`
	ContentClass      ContentClass `json:"content_class,omitempty"`
	Oversize          bool         `json:"oversize,omitempty"`
	FlaggedForReembed bool         `json:"flagged_for_reembed,omitempty"`
}

// Chunk is a text segment sized for embedding, with article-level
// metadata attached. Invariant: TokenCount <= MAX_CHUNK_TOKENS unless
// the chunk is a single indivisible paragraph (then Metadata.Oversize is
// set).
type Chunk struct {
	ID         string
	Text       string
	TokenCount int
	Metadata   ChunkMetadata
}

// VectorRecord is what gets upserted into a Vector Backend: a dense
// vector of fixed dimension plus the chunk metadata and content text
// needed for retrieval display. Vectors are L2-normalized before
// indexing. FlaggedForReembed mirrors Metadata.FlaggedForReembed for
// callers that only need the flag, without digging into Metadata (the
// Orchestrator sets both from the same embeddings.Result.Flagged bit).
type VectorRecord struct {
	ID                string
	Vector            []float32
	Text              string
	Metadata          ChunkMetadata
	FlaggedForReembed bool
}

// SearchResult is returned from a Vector Backend search. Ordering
// invariant: descending similarity, stable on ties by id.
type SearchResult struct {
	ID         string
	Text       string
	Metadata   ChunkMetadata
	Similarity float64
}

// MetadataFilters is a map of field -> value (or []value), combined with
// AND semantics by the Vector Backend.
type MetadataFilters map[string]interface{}
