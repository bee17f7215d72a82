package querylens_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/errors"
	"github.com/autom8ter/querylens/store/embedded"
	"github.com/autom8ter/querylens/testutil"
	"github.com/stretchr/testify/assert"
)

// fakeStore fails every call with err
type fakeStore struct {
	err         error
	collections []string
}

func (f *fakeStore) Collections(ctx context.Context) ([]string, error) {
	return f.collections, f.err
}

func (f *fakeStore) HasCollection(ctx context.Context, collection string) (bool, error) {
	return true, f.err
}

func (f *fakeStore) Count(ctx context.Context, collection string, filter querylens.Filter) (int64, error) {
	return 0, f.err
}

func (f *fakeStore) Aggregate(ctx context.Context, collection string, pipeline querylens.Pipeline) (querylens.Documents, error) {
	return nil, f.err
}

func (f *fakeStore) QueryStats(ctx context.Context, transformIdentifiers map[string]any) (querylens.Documents, error) {
	return nil, f.err
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.err
}

func (f *fakeStore) Close(ctx context.Context) error {
	return nil
}

func seedPerf(ctx context.Context, t *testing.T, store *embedded.Store) {
	var docs []*querylens.Document
	for i := 0; i < 25; i++ {
		docs = append(docs, testutil.NewDocument(
			testutil.Field{Key: "_id", Value: fmt.Sprintf("doc-%02d", i)},
			testutil.Field{Key: "doc_type", Value: "result"},
			testutil.Field{Key: "run_id", Value: "r1"},
			testutil.Field{Key: "metrics", Value: map[string]any{
				"execCount":       i + 1,
				"totalExecMicros": map[string]any{"sum": (i + 1) * 1000},
			}},
		))
	}
	docs = append(docs,
		testutil.NewDocument(
			testutil.Field{Key: "_id", Value: "other-run"},
			testutil.Field{Key: "doc_type", Value: "result"},
			testutil.Field{Key: "run_id", Value: "r2"},
			testutil.Field{Key: "metrics", Value: map[string]any{
				"execCount":       1,
				"totalExecMicros": map[string]any{"sum": 999999},
			}},
		),
		testutil.NewDocument(
			testutil.Field{Key: "_id", Value: "no-run"},
			testutil.Field{Key: "doc_type", Value: "result"},
			testutil.Field{Key: "metrics", Value: map[string]any{
				"execCount":       1,
				"totalExecMicros": map[string]any{"sum": 5000},
			}},
		),
	)
	_, err := store.Insert(ctx, testutil.PerfCollection, docs...)
	assert.NoError(t, err)
}

func TestService(t *testing.T) {
	assert.NoError(t, testutil.TestStore(func(ctx context.Context, store *embedded.Store) {
		seedPerf(ctx, t, store)
		ts := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
		_, err := store.Insert(ctx, testutil.RunIDCollection,
			testutil.NewRunRecord("r1", &ts),
			testutil.NewRunRecord("r2", nil),
		)
		assert.NoError(t, err)
		svc := querylens.New(store, querylens.WithLogger(querylens.NewNopLogger()))

		t.Run("collections", func(t *testing.T) {
			collections, err := svc.Collections(ctx)
			assert.NoError(t, err)
			assert.Equal(t, []string{testutil.PerfCollection, testutil.RunIDCollection}, collections)
		})
		t.Run("run ids", func(t *testing.T) {
			result, err := svc.RunIDs(ctx)
			assert.NoError(t, err)
			assert.Equal(t, []string{"r1 | 2024-01-15 11:00:00", "r2"}, result.RunIDs)
			assert.Equal(t, 2, result.Count)
		})
		t.Run("run ids from another collection", func(t *testing.T) {
			result, err := querylens.New(store, querylens.WithRunIDCollection("missing")).RunIDs(ctx)
			assert.NoError(t, err)
			assert.Empty(t, result.RunIDs)
			assert.Equal(t, 0, result.Count)
		})
		t.Run("browse defaults", func(t *testing.T) {
			page, err := svc.Browse(ctx, querylens.QueryRequest{Collection: testutil.PerfCollection})
			assert.NoError(t, err)
			assert.Equal(t, querylens.PageMeta{
				CurrentPage: 1,
				TotalPages:  3,
				TotalCount:  27,
				Limit:       querylens.DefaultBrowseLimit,
			}, page.PageMeta)
			assert.Len(t, page.Data, 10)
			assert.Equal(t, "other-run", page.Data[0].GetString("_id"))
			assert.Equal(t, []string{"_id", "doc_type", "run_id", "metrics"}, page.Headers)
			assert.Nil(t, page.Query)
		})
		t.Run("browse paging", func(t *testing.T) {
			page, err := svc.Browse(ctx, querylens.QueryRequest{
				Collection: testutil.PerfCollection,
				SortOrder:  querylens.ASC,
				Skip:       20,
				Limit:      10,
			})
			assert.NoError(t, err)
			assert.Equal(t, 3, page.CurrentPage)
			assert.Equal(t, 3, page.TotalPages)
			assert.Len(t, page.Data, 7)
			assert.Equal(t, "doc-20", page.Data[0].GetString("_id"))
		})
		t.Run("browse past the end", func(t *testing.T) {
			page, err := svc.Browse(ctx, querylens.QueryRequest{
				Collection: testutil.PerfCollection,
				Skip:       100,
				Limit:      10,
			})
			assert.NoError(t, err)
			assert.Equal(t, 11, page.CurrentPage)
			assert.Equal(t, 3, page.TotalPages)
			assert.NotNil(t, page.Data)
			assert.Len(t, page.Data, 0)
			assert.Equal(t, []string{}, page.Headers)
		})
		t.Run("browse unknown collection", func(t *testing.T) {
			_, err := svc.Browse(ctx, querylens.QueryRequest{Collection: "missing"})
			assert.True(t, stderrors.Is(err, errors.ErrInvalidCollection))
			assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
		})
		t.Run("browse bad limit", func(t *testing.T) {
			_, err := svc.Browse(ctx, querylens.QueryRequest{Collection: testutil.PerfCollection, Limit: -1})
			assert.True(t, stderrors.Is(err, errors.ErrInvalidLimit))
		})
		t.Run("search", func(t *testing.T) {
			page, err := svc.Search(ctx, querylens.QueryRequest{
				Collection: testutil.PerfCollection,
				Filter:     querylens.Filter{"run_id": "r1"},
				Limit:      5,
			})
			assert.NoError(t, err)
			assert.Equal(t, int64(25), page.TotalCount)
			assert.Equal(t, 5, page.TotalPages)
			assert.Equal(t, querylens.Filter{"run_id": "r1"}, page.Query)
			if assert.Len(t, page.Data, 5) {
				assert.Equal(t, "doc-24", page.Data[0].GetString("_id"))
				assert.InDelta(t, 25.0, page.Data[0].GetFloat("exec_time"), 0.0001)
				assert.Equal(t, float64(25), page.Data[0].GetFloat("num"))
			}
			assert.Equal(t, []string{"_id", "exec_time", "num"}, page.Headers)
		})
		t.Run("search default limit", func(t *testing.T) {
			page, err := svc.Search(ctx, querylens.QueryRequest{
				Collection: testutil.PerfCollection,
				Filter:     querylens.Filter{"run_id": "r1"},
			})
			assert.NoError(t, err)
			assert.Equal(t, querylens.DefaultSearchLimit, page.Limit)
			assert.Len(t, page.Data, 25)
		})
		t.Run("search without run id matches null run ids", func(t *testing.T) {
			page, err := svc.Search(ctx, querylens.QueryRequest{Collection: testutil.PerfCollection})
			assert.NoError(t, err)
			if assert.Len(t, page.Data, 1) {
				assert.Equal(t, "no-run", page.Data[0].GetString("_id"))
			}
		})
		t.Run("search without run id browses", func(t *testing.T) {
			browsing := querylens.New(store, querylens.WithUnscopedSearch(querylens.UnscopedBrowse))
			page, err := browsing.Search(ctx, querylens.QueryRequest{
				Collection: testutil.PerfCollection,
				Filter:     querylens.Filter{"metrics.execCount": map[string]any{"$gte": 20}},
				SortOrder:  querylens.ASC,
				SortField:  "metrics.execCount",
			})
			assert.NoError(t, err)
			assert.Equal(t, int64(6), page.TotalCount)
			if assert.Len(t, page.Data, 6) {
				assert.Equal(t, "doc-19", page.Data[0].GetString("_id"))
				assert.True(t, page.Data[0].Exists("doc_type"))
			}
		})
		t.Run("search malformed filter", func(t *testing.T) {
			_, err := svc.Search(ctx, querylens.QueryRequest{
				Collection: testutil.PerfCollection,
				Filter:     querylens.Filter{"$where": "1"},
			})
			assert.True(t, stderrors.Is(err, errors.ErrMalformedFilter))
		})
		t.Run("search unknown collection", func(t *testing.T) {
			_, err := svc.Search(ctx, querylens.QueryRequest{
				Collection: "missing",
				Filter:     querylens.Filter{"run_id": "r1"},
			})
			assert.True(t, stderrors.Is(err, errors.ErrInvalidCollection))
		})
		t.Run("query stats", func(t *testing.T) {
			_, err := store.Insert(ctx, embedded.QueryStatsCollection, testutil.NewQueryStatsDoc(), testutil.NewQueryStatsDoc())
			assert.NoError(t, err)
			result, err := svc.QueryStats(ctx, nil)
			assert.NoError(t, err)
			assert.Equal(t, 2, result.TotalQueries)
			assert.Len(t, result.QueryStats, 2)
			assert.GreaterOrEqual(t, result.ExecutionTimeMs, int64(0))
			_, err = time.Parse(time.RFC3339, result.Timestamp)
			assert.NoError(t, err)
		})
	}))
}

func TestServiceStoreFailure(t *testing.T) {
	ctx := context.Background()
	svc := querylens.New(&fakeStore{err: errors.Newf(errors.ErrStoreUnavailable, "connection refused")})
	isUnavailable := func(t *testing.T, err error) {
		assert.True(t, stderrors.Is(err, errors.ErrStoreUnavailable))
		assert.Equal(t, errors.Unavailable, errors.Extract(err).Code)
	}
	t.Run("collections", func(t *testing.T) {
		_, err := svc.Collections(ctx)
		isUnavailable(t, err)
	})
	t.Run("run ids", func(t *testing.T) {
		_, err := svc.RunIDs(ctx)
		isUnavailable(t, err)
	})
	t.Run("browse", func(t *testing.T) {
		_, err := svc.Browse(ctx, querylens.QueryRequest{Collection: "perf"})
		isUnavailable(t, err)
	})
	t.Run("search", func(t *testing.T) {
		_, err := svc.Search(ctx, querylens.QueryRequest{Collection: "perf", Filter: querylens.Filter{"run_id": "r1"}})
		isUnavailable(t, err)
	})
	t.Run("query stats", func(t *testing.T) {
		_, err := svc.QueryStats(ctx, map[string]any{"algorithm": "hmac-sha-256"})
		isUnavailable(t, err)
	})
}

func TestServiceCollectionsSorted(t *testing.T) {
	store := &fakeStore{collections: []string{"zeta", "alpha", "mid"}}
	collections, err := querylens.New(store).Collections(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, collections)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, store.collections)
}

func TestOpenStore(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		_, err := querylens.OpenStore(context.Background(), "nope", nil)
		assert.Error(t, err)
		assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
	})
	t.Run("registered providers", func(t *testing.T) {
		assert.Contains(t, querylens.StoreProviders(), "embedded")
	})
	t.Run("register", func(t *testing.T) {
		querylens.RegisterStore("fake", func(ctx context.Context, params map[string]any) (querylens.Store, error) {
			return &fakeStore{}, nil
		})
		store, err := querylens.OpenStore(context.Background(), "fake", nil)
		assert.NoError(t, err)
		assert.NoError(t, store.Ping(context.Background()))
	})
}
