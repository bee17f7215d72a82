package querylens

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/autom8ter/querylens/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

const (
	// DefaultRunIDCollection is the collection run records are read from
	DefaultRunIDCollection = "run_ids"
	// DefaultMaxRunIDs caps the number of run ids returned by the resolver
	DefaultMaxRunIDs = 100

	labelSeparator    = " | "
	labelTimeLayout   = "2006-01-02 15:04:05"
	latestTimestamp   = "latest_timestamp"
	runIDField        = "run_id"
	runTimestampField = "timestamp"
)

// RunIDEntry is a distinct run identifier with the most recent timestamp of its records
type RunIDEntry struct {
	OriginalID      string     `json:"originalId"`
	LatestTimestamp *time.Time `json:"latestTimestamp,omitempty"`
	DisplayLabel    string     `json:"displayLabel"`
}

// FormatLabel formats a run id display label: the id alone, or the id and its UTC timestamp
func FormatLabel(id string, ts *time.Time) string {
	if ts == nil {
		return id
	}
	return id + labelSeparator + ts.UTC().Format(labelTimeLayout)
}

// ExtractOriginalID returns the run id a display label was formatted from
func ExtractOriginalID(label string) string {
	if idx := strings.Index(label, labelSeparator); idx >= 0 {
		return label[:idx]
	}
	return label
}

// RunIDResolver discovers the distinct run ids of a run tracking collection, newest first
type RunIDResolver struct {
	Store      Store
	Collection string
	MaxResults int
	Logger     Logger
}

// NewRunIDResolver returns a resolver over the default run tracking collection
func NewRunIDResolver(store Store, logger Logger) *RunIDResolver {
	return &RunIDResolver{
		Store:      store,
		Collection: DefaultRunIDCollection,
		MaxResults: DefaultMaxRunIDs,
		Logger:     logger,
	}
}

// Pipeline returns the grouping pipeline sent to the store
func (r *RunIDResolver) Pipeline() Pipeline {
	return Pipeline{
		{
			Kind: StageGroup,
			Group: &Group{
				Field: runIDField,
				Accumulators: []Accumulator{
					{As: latestTimestamp, Function: AggregateMax, Field: runTimestampField},
				},
			},
		},
		{
			Kind: StageSort,
			Sort: []OrderBy{
				{Field: latestTimestamp, Direction: DESC},
				{Field: "_id", Direction: ASC},
			},
		},
		{
			Kind:  StageLimit,
			Limit: r.maxResults(),
		},
	}
}

// Resolve returns the run id entries ordered newest first. Entries without a timestamp come last.
// An empty or unknown collection yields an empty result.
func (r *RunIDResolver) Resolve(ctx context.Context) ([]RunIDEntry, error) {
	if r.Store == nil {
		return nil, errors.Newf(errors.ErrStoreUnavailable, "no store configured")
	}
	collection := lo.Ternary(r.Collection == "", DefaultRunIDCollection, r.Collection)
	groups, err := r.Store.Aggregate(ctx, collection, r.Pipeline())
	if err != nil {
		return nil, err
	}
	var entries []RunIDEntry
	for _, group := range groups {
		id := group.Get("_id")
		if id == nil {
			continue
		}
		entry := RunIDEntry{
			OriginalID:      cast.ToString(id),
			LatestTimestamp: r.parseTimestamp(ctx, group),
		}
		entry.DisplayLabel = FormatLabel(entry.OriginalID, entry.LatestTimestamp)
		entries = append(entries, entry)
	}
	SortRunIDEntries(entries)
	if limit := r.maxResults(); len(entries) > limit {
		entries = entries[:limit]
	}
	return lo.Filter(entries, func(e RunIDEntry, _ int) bool {
		return strings.TrimSpace(e.DisplayLabel) != ""
	}), nil
}

func (r *RunIDResolver) maxResults() int {
	if r.MaxResults <= 0 {
		return DefaultMaxRunIDs
	}
	return r.MaxResults
}

func (r *RunIDResolver) parseTimestamp(ctx context.Context, group *Document) *time.Time {
	raw := group.Get(latestTimestamp)
	if raw == nil {
		return nil
	}
	ts, err := cast.ToTimeE(raw)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn(ctx, "ignoring unparseable run timestamp", map[string]any{
				"run_id":    group.Get("_id"),
				"timestamp": raw,
			})
		}
		return nil
	}
	return lo.ToPtr(ts.UTC())
}

// SortRunIDEntries sorts entries by latest timestamp descending with untimestamped entries last.
// Ties break on the original id ascending.
func SortRunIDEntries(entries []RunIDEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.LatestTimestamp != nil && b.LatestTimestamp == nil:
			return true
		case a.LatestTimestamp == nil && b.LatestTimestamp != nil:
			return false
		case a.LatestTimestamp != nil && !a.LatestTimestamp.Equal(*b.LatestTimestamp):
			return a.LatestTimestamp.After(*b.LatestTimestamp)
		default:
			return a.OriginalID < b.OriginalID
		}
	})
}

// Labels returns the display labels of the entries
func Labels(entries []RunIDEntry) []string {
	return lo.Map(entries, func(e RunIDEntry, _ int) string {
		return e.DisplayLabel
	})
}
