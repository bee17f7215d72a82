package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/store/embedded"
	"github.com/brianvoe/gofakeit/v6"
)

const (
	// PerfCollection holds query performance result documents
	PerfCollection = "perf"
	// RunIDCollection holds run records
	RunIDCollection = querylens.DefaultRunIDCollection
)

// Field is an ordered document field
type Field struct {
	Key   string
	Value any
}

// NewDocument builds a document with the fields in the given order
func NewDocument(fields ...Field) *querylens.Document {
	doc := querylens.NewDocument()
	for _, f := range fields {
		if err := doc.Set(querylens.EscapeField(f.Key), f.Value); err != nil {
			panic(err)
		}
	}
	return doc
}

// NewRunRecord returns a run record. A nil timestamp omits the field.
func NewRunRecord(runID string, ts *time.Time) *querylens.Document {
	fields := []Field{{Key: "run_id", Value: runID}}
	if ts != nil {
		fields = append(fields, Field{Key: "timestamp", Value: ts.UTC().Format(time.RFC3339)})
	}
	return NewDocument(fields...)
}

// NewResultDoc returns a fake query performance result of the run. A nil runID omits the field.
func NewResultDoc(runID any) *querylens.Document {
	fields := []Field{{Key: "doc_type", Value: "result"}}
	if runID != nil {
		fields = append(fields, Field{Key: "run_id", Value: runID})
	}
	execCount := gofakeit.IntRange(1, 500)
	fields = append(fields,
		Field{Key: "namespace", Value: map[string]any{
			"db":   gofakeit.Word(),
			"coll": gofakeit.Noun(),
		}},
		Field{Key: "client", Value: map[string]any{
			"application": map[string]any{"name": gofakeit.AppName()},
			"driver":      map[string]any{"name": "nodejs", "version": gofakeit.AppVersion()},
		}},
		Field{Key: "query", Value: map[string]any{
			"find":   gofakeit.Noun(),
			"filter": map[string]any{"status": "?string"},
		}},
		Field{Key: "metrics", Value: map[string]any{
			"execCount": execCount,
			"totalExecMicros": map[string]any{
				"sum": gofakeit.IntRange(execCount, execCount*50000),
				"max": gofakeit.IntRange(1, 50000),
				"min": 1,
			},
			"lastExecutionMicros": gofakeit.IntRange(1, 50000),
		}},
	)
	return NewDocument(fields...)
}

// NewQueryStatsDoc returns a fake $queryStats output document
func NewQueryStatsDoc() *querylens.Document {
	return NewDocument(
		Field{Key: "key", Value: map[string]any{
			"queryShape": map[string]any{
				"cmdNs":   map[string]any{"db": gofakeit.Word(), "coll": gofakeit.Noun()},
				"command": "find",
			},
		}},
		Field{Key: "keyHash", Value: gofakeit.UUID()},
		Field{Key: "metrics", Value: map[string]any{
			"execCount":       gofakeit.IntRange(1, 100),
			"totalExecMicros": map[string]any{"sum": gofakeit.IntRange(1, 100000)},
		}},
		Field{Key: "asOf", Value: time.Now().UTC().Format(time.RFC3339)},
	)
}

// SeedOpts configures Seed
type SeedOpts struct {
	Runs          int `json:"runs"`
	ResultsPerRun int `json:"results_per_run"`
	QueryStats    int `json:"query_stats"`
}

// SeedResult reports what Seed inserted
type SeedResult struct {
	RunIDs     []string `json:"run_ids"`
	Results    int      `json:"results"`
	QueryStats int      `json:"query_stats"`
}

// Seed fills the store with fake run records, performance results and query stats
func Seed(ctx context.Context, store *embedded.Store, opts SeedOpts) (*SeedResult, error) {
	result := &SeedResult{}
	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < opts.Runs; i++ {
		runID := fmt.Sprintf("run-%s", gofakeit.LetterN(8))
		var records []*querylens.Document
		for j := 0; j < gofakeit.IntRange(1, 3); j++ {
			ts := now.Add(-time.Duration(gofakeit.IntRange(1, 72*60)) * time.Minute)
			records = append(records, NewRunRecord(runID, &ts))
		}
		if _, err := store.Insert(ctx, RunIDCollection, records...); err != nil {
			return nil, err
		}
		var results []*querylens.Document
		for j := 0; j < opts.ResultsPerRun; j++ {
			results = append(results, NewResultDoc(runID))
		}
		if len(results) > 0 {
			if _, err := store.Insert(ctx, PerfCollection, results...); err != nil {
				return nil, err
			}
		}
		result.RunIDs = append(result.RunIDs, runID)
		result.Results += len(results)
	}
	var stats []*querylens.Document
	for i := 0; i < opts.QueryStats; i++ {
		stats = append(stats, NewQueryStatsDoc())
	}
	if len(stats) > 0 {
		if _, err := store.Insert(ctx, embedded.QueryStatsCollection, stats...); err != nil {
			return nil, err
		}
	}
	result.QueryStats = len(stats)
	return result, nil
}

// TestStore runs the function against a fresh in memory embedded store
func TestStore(fn func(ctx context.Context, store *embedded.Store)) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := embedded.NewInMemory(ctx)
	if err != nil {
		return err
	}
	defer store.Close(ctx)
	fn(ctx, store)
	return nil
}
