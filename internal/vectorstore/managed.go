package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"holocron/internal/circuitbreaker"
	"holocron/internal/logging"
	"holocron/internal/model"
	"holocron/internal/retry"
)

// ManagedConfig configures the managed-index backend, adapted from the
// teacher's config.QdrantConfig.
type ManagedConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
}

// Managed is the Qdrant-backed Backend, adapted from the teacher's
// internal/storage/qdrant.go: same client wiring, payload conversion and
// health check, narrowed to the four-method Backend contract and backed
// by circuit breaker + retry instead of the teacher's metrics tracker.
type Managed struct {
	client     *qdrant.Client
	collection string
	dimensions int
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	log        logging.Logger
}

// NewManaged connects to Qdrant and ensures the target collection
// exists, creating it with cosine distance if missing.
func NewManaged(ctx context.Context, cfg ManagedConfig) (*Managed, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect to qdrant: %w", err)
	}

	m := &Managed{
		client:     client,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retrier:    retry.New(retry.EmbeddingBackoff()),
		log:        logging.WithComponent("vectorstore.managed"),
	}

	if err := m.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Managed) ensureCollection(ctx context.Context) error {
	collections, err := m.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("vectorstore: list collections: %w", err)
	}
	for _, c := range collections {
		if c == m.collection {
			return nil
		}
	}

	err = m.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: m.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(m.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection %s: %w", m.collection, err)
	}
	m.log.Info("created collection", "collection", m.collection)
	return nil
}

func (m *Managed) Dimensions() int { return m.dimensions }

func (m *Managed) HealthCheck(ctx context.Context) error {
	if !m.breaker.IsHealthy() {
		return fmt.Errorf("vectorstore: circuit breaker open")
	}
	_, err := m.client.GetCollectionInfo(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("vectorstore: health check: %w", err)
	}
	return nil
}

// Upsert writes vector records, retrying transient failures per the
// spec's "upsert batch" retry policy (§4.4).
func (m *Managed) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = recordToPoint(r)
	}

	return m.breaker.Execute(ctx, func(ctx context.Context) error {
		result := m.retrier.Do(ctx, func(ctx context.Context) error {
			_, err := m.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: m.collection,
				Points:         points,
			})
			return err
		})
		return result.Err
	})
}

// Search performs a cosine similarity search filtered by metadata.
func (m *Managed) Search(ctx context.Context, vector []float32, topK int, filters model.MetadataFilters) ([]model.SearchResult, error) {
	var points []*qdrant.ScoredPoint
	err := m.breaker.Execute(ctx, func(ctx context.Context) error {
		result := m.retrier.Do(ctx, func(ctx context.Context) error {
			resp, err := m.client.Query(ctx, &qdrant.QueryPoints{
				CollectionName: m.collection,
				Query:          qdrant.NewQuery(vector...),
				Limit:          qdrant.PtrOf(uint64(topK)),
				WithPayload:    qdrant.NewWithPayload(true),
				Filter:         buildFilter(filters),
			})
			if err != nil {
				return err
			}
			points = resp
			return nil
		})
		return result.Err
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}

	results := make([]model.SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, pointToResult(p))
	}
	return results, nil
}

func (m *Managed) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
	}

	_, err := m.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: m.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: delete: %w", err)
	}
	return nil
}

func recordToPoint(r model.VectorRecord) *qdrant.PointStruct {
	payload := map[string]*qdrant.Value{
		"text":                strValue(r.Text),
		"title":               strValue(r.Metadata.Title),
		"source_url":          strValue(r.Metadata.SourceURL),
		"section":             strValue(r.Metadata.Section),
		"priority":            strValue(string(r.Metadata.Priority)),
		"canonicity":          strValue(string(r.Metadata.Canonicity)),
		"content_class":       strValue(string(r.Metadata.ContentClass)),
		"flagged_for_reembed": boolValue(r.Metadata.FlaggedForReembed),
	}
	if len(r.Metadata.Categories) > 0 {
		payload["categories"] = strListValue(r.Metadata.Categories)
	}

	return &qdrant.PointStruct{
		Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: r.ID}},
		Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: r.Vector}}},
		Payload: payload,
	}
}

func pointToResult(p *qdrant.ScoredPoint) model.SearchResult {
	payload := p.GetPayload()
	return model.SearchResult{
		ID:         pointIDString(p.GetId()),
		Text:       payloadString(payload, "text"),
		Similarity: float64(p.GetScore()),
		Metadata: model.ChunkMetadata{
			Title:             payloadString(payload, "title"),
			SourceURL:         payloadString(payload, "source_url"),
			Section:           payloadString(payload, "section"),
			Categories:        payloadStringSlice(payload, "categories"),
			Priority:          model.Priority(payloadString(payload, "priority")),
			Canonicity:        model.Canonicity(payloadString(payload, "canonicity")),
			ContentClass:      model.ContentClass(payloadString(payload, "content_class")),
			FlaggedForReembed: payloadBool(payload, "flagged_for_reembed"),
		},
	}
}

// buildFilter converts metadata filters into an AND-combined Qdrant
// filter. Supported value shapes are string (exact match) and []string
// (match any).
func buildFilter(filters model.MetadataFilters) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}
	var conditions []*qdrant.Condition
	for key, value := range filters {
		switch v := value.(type) {
		case string:
			conditions = append(conditions, fieldMatch(key, v))
		case []string:
			conditions = append(conditions, fieldMatchAny(key, v))
		}
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

func fieldMatch(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func fieldMatchAny(key string, values []string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keywords{Keywords: &qdrant.RepeatedStrings{Strings: values}},
				},
			},
		},
	}
}

func strValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func boolValue(b bool) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: b}}
}

func payloadBool(payload map[string]*qdrant.Value, key string) bool {
	if v, ok := payload[key]; ok {
		return v.GetBoolValue()
	}
	return false
}

func strListValue(values []string) *qdrant.Value {
	vals := make([]*qdrant.Value, len(values))
	for i, s := range values {
		vals[i] = strValue(s)
	}
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: vals}}}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadStringSlice(payload map[string]*qdrant.Value, key string) []string {
	v, ok := payload[key]
	if !ok || v.GetListValue() == nil {
		return nil
	}
	values := v.GetListValue().GetValues()
	out := make([]string, len(values))
	for i, val := range values {
		out[i] = val.GetStringValue()
	}
	return out
}

func pointIDString(id *qdrant.PointId) string {
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}
