// Command holocron-query answers a single knowledge-base query from
// the command line: embed, search the configured vector backend,
// print results. Grounded on
// original_source/holocron/knowledge/retriever.py's HolocronRetriever
// (spec §4.11).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"holocron/internal/config"
	"holocron/internal/embeddings"
	"holocron/internal/logging"
	"holocron/internal/model"
	"holocron/internal/retriever"
	"holocron/internal/vectorstore"
)

const (
	exitOK            = 0
	exitQueryFailed   = 1
	exitConfiguration = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFile = flag.String("config", "", "Path to an optional YAML config overlay")
		limit      = flag.Int("limit", 0, "Maximum results to return (0 = config default)")
		threshold  = flag.Float64("threshold", -1, "Minimum similarity (negative = config similarity_threshold, the same for every backend)")
		filterFlag = flag.String("filter", "", "Comma-separated metadata filters, e.g. canonicity=canon,priority=high")
	)
	flag.Parse()

	query := strings.Join(flag.Args(), " ")
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: holocron-query [flags] <query text>")
		return exitConfiguration
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfiguration
	}

	logging.SetDefaultLogger(logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level)))
	log := logging.WithComponent("holocron-query")

	ctx := context.Background()

	embedder := embeddings.NewOpenAIService(embeddings.OpenAIConfig{
		APIKey:     cfg.OpenAI.APIKey,
		Model:      cfg.OpenAI.EmbeddingModel,
		Dimensions: cfg.Pipeline.EmbeddingDimension,
	})

	backend, err := vectorstore.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfiguration
	}

	topK := *limit
	if topK <= 0 {
		topK = cfg.Pipeline.MaxResults
	}
	minSimilarity := *threshold
	if minSimilarity < 0 {
		minSimilarity = cfg.Pipeline.SimilarityThreshold
	}

	r := retriever.New(embedder, backend, minSimilarity)

	results, err := r.Search(ctx, query, topK, parseFilters(*filterFlag))
	if err != nil {
		log.Error("query failed", "error", err)
		return exitQueryFailed
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		log.Error("failed to encode results", "error", err)
		return exitQueryFailed
	}
	return exitOK
}

// parseFilters turns "key=value,key2=value2" into MetadataFilters. An
// empty spec returns a nil filter set (no filtering).
func parseFilters(spec string) model.MetadataFilters {
	if spec == "" {
		return nil
	}
	filters := make(model.MetadataFilters)
	for _, pair := range strings.Split(spec, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		filters[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return filters
}
