package querylens

import (
	"context"
	"sort"
	"time"

	"github.com/autom8ter/querylens/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Service assembles paginated collection pages, run ids and query statistics from a Store
type Service struct {
	store           Store
	logger          Logger
	runIDCollection string
	maxRunIDs       int
	unscoped        UnscopedSearchMode
	now             func() time.Time
}

// RunIDsResult is the list of run id display labels, newest first
type RunIDsResult struct {
	RunIDs []string `json:"runIds"`
	Count  int      `json:"count"`
}

// QueryStatsResult is a timed snapshot of the store's query statistics
type QueryStatsResult struct {
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	Timestamp       string    `json:"timestamp"`
	TotalQueries    int       `json:"totalQueries"`
	QueryStats      Documents `json:"queryStats"`
}

// New creates a new Service backed by the store
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		logger:          NewNopLogger(),
		runIDCollection: DefaultRunIDCollection,
		maxRunIDs:       DefaultMaxRunIDs,
		unscoped:        UnscopedMatchNull,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the store backing the service
func (s *Service) Store() Store {
	return s.store
}

// RunIDCollection returns the collection run records are read from
func (s *Service) RunIDCollection() string {
	return s.runIDCollection
}

// MaxRunIDs returns the maximum number of run ids returned by RunIDs
func (s *Service) MaxRunIDs() int {
	return s.maxRunIDs
}

// Collections lists the store's collection names in ascending order
func (s *Service) Collections(ctx context.Context) ([]string, error) {
	collections, err := s.store.Collections(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to list collections", map[string]any{"error": err})
		return nil, err
	}
	collections = append([]string{}, collections...)
	sort.Strings(collections)
	return collections, nil
}

// RunIDs resolves the most recent run ids
func (s *Service) RunIDs(ctx context.Context) (RunIDsResult, error) {
	resolver := &RunIDResolver{
		Store:      s.store,
		Collection: s.runIDCollection,
		MaxResults: s.maxRunIDs,
		Logger:     s.logger,
	}
	entries, err := resolver.Resolve(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to resolve run ids", map[string]any{
			"collection": s.runIDCollection,
			"error":      err,
		})
		return RunIDsResult{}, err
	}
	labels := Labels(entries)
	s.logger.Debug(ctx, "resolved run ids", map[string]any{
		"collection": s.runIDCollection,
		"count":      len(labels),
	})
	return RunIDsResult{RunIDs: labels, Count: len(labels)}, nil
}

// Browse returns a page of the collection using the request's sort, skip and limit.
// The total count covers the whole collection.
func (s *Service) Browse(ctx context.Context, req QueryRequest) (*Page, error) {
	req = req.WithDefaults(DefaultBrowseLimit)
	pipeline, err := BrowsePipeline(req)
	if err != nil {
		return nil, err
	}
	if err := s.checkCollection(ctx, req.Collection); err != nil {
		return nil, err
	}
	return s.page(ctx, req, Filter{}, pipeline)
}

// Search returns a page of the performance view of the collection for the filter's run_id.
// The total count covers the documents matching the caller's filter.
func (s *Service) Search(ctx context.Context, req QueryRequest) (*Page, error) {
	req = req.WithDefaults(DefaultSearchLimit)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := req.Filter.Conditions(); err != nil {
		return nil, err
	}
	if err := s.checkCollection(ctx, req.Collection); err != nil {
		return nil, err
	}
	var (
		pipeline Pipeline
		err      error
	)
	runID, _ := req.Filter.Get(runIDField)
	if runID == nil && s.unscoped == UnscopedBrowse {
		pipeline, err = BrowsePipeline(req)
	} else {
		pipeline, err = PerformancePipeline(req.Collection, runID, req.Limit)
	}
	if err != nil {
		return nil, err
	}
	page, err := s.page(ctx, req, req.Filter, pipeline)
	if err != nil {
		return nil, err
	}
	page.Query = req.Filter
	return page, nil
}

// QueryStats returns a timed snapshot of the store's query statistics
func (s *Service) QueryStats(ctx context.Context, transformIdentifiers map[string]any) (*QueryStatsResult, error) {
	start := s.now()
	stats, err := s.store.QueryStats(ctx, transformIdentifiers)
	if err != nil {
		s.logger.Error(ctx, "failed to get query stats", map[string]any{"error": err})
		return nil, err
	}
	elapsed := s.now().Sub(start)
	s.logger.Debug(ctx, "fetched query stats", map[string]any{
		"count":    len(stats),
		"duration": elapsed.String(),
	})
	return &QueryStatsResult{
		ExecutionTimeMs: elapsed.Milliseconds(),
		Timestamp:       s.now().UTC().Format(time.RFC3339),
		TotalQueries:    len(stats),
		QueryStats:      lo.Ternary(stats == nil, Documents{}, stats),
	}, nil
}

func (s *Service) checkCollection(ctx context.Context, collection string) error {
	exists, err := s.store.HasCollection(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Newf(errors.ErrInvalidCollection, "collection does not exist: %s", collection)
	}
	return nil
}

func (s *Service) page(ctx context.Context, req QueryRequest, countFilter Filter, pipeline Pipeline) (*Page, error) {
	var (
		total int64
		docs  Documents
	)
	egp, ctx := errgroup.WithContext(ctx)
	egp.Go(func() error {
		var err error
		total, err = s.store.Count(ctx, req.Collection, countFilter)
		return err
	})
	egp.Go(func() error {
		var err error
		docs, err = s.store.Aggregate(ctx, req.Collection, pipeline)
		return err
	})
	if err := egp.Wait(); err != nil {
		s.logger.Error(ctx, "failed to query collection", map[string]any{
			"collection": req.Collection,
			"error":      err,
		})
		return nil, err
	}
	meta, err := ComputePage(req.Skip, req.Limit, total)
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "queried collection", map[string]any{
		"collection": req.Collection,
		"stages":     len(pipeline),
		"count":      len(docs),
		"total":      total,
	})
	return &Page{
		PageMeta:   meta,
		Collection: req.Collection,
		Headers:    ShapeHeaders(docs, nil),
		Data:       lo.Ternary(docs == nil, Documents{}, docs),
	}, nil
}
