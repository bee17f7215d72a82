package querylens

import (
	"strings"

	"github.com/autom8ter/querylens/errors"
)

const (
	// DefaultSortField is the field browse results are sorted on when none is given
	DefaultSortField = "_id"
	// DefaultBrowseLimit is the page size of the browse path
	DefaultBrowseLimit = 10
	// DefaultSearchLimit is the page size of the search path
	DefaultSearchLimit = 50

	// execTimeScale converts microseconds to milliseconds
	execTimeScale = 0.001
)

// StageKind is the kind of an aggregation stage
type StageKind string

const (
	StageMatch   StageKind = "$match"
	StageProject StageKind = "$project"
	StageSort    StageKind = "$sort"
	StageSkip    StageKind = "$skip"
	StageLimit   StageKind = "$limit"
	StageGroup   StageKind = "$group"
)

// OrderByDirection indicates whether results should be sorted in ascending or descending order
type OrderByDirection string

const (
	// ASC indicates ascending order
	ASC OrderByDirection = "asc"
	// DESC indicates descending order
	DESC OrderByDirection = "desc"
)

// ParseDirection parses a sort direction. An empty direction is descending.
func ParseDirection(dir string) (OrderByDirection, error) {
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "desc", "-1", "descending":
		return DESC, nil
	case "asc", "1", "ascending":
		return ASC, nil
	default:
		return "", errors.Newf(errors.ErrInvalidArgument, "invalid sort order: %q", dir)
	}
}

// Sign returns 1 for ascending and -1 for descending
func (o OrderByDirection) Sign() int {
	if o == ASC {
		return 1
	}
	return -1
}

// OrderBy orders the result set by a given field in a given direction
type OrderBy struct {
	// Field is the field to sort on
	Field string `json:"field"`
	// Direction is the sort direction
	Direction OrderByDirection `json:"direction"`
}

// Projection is a single output field of a $project stage.
// As == Field with a zero scale passes the field through. A non-zero Scale multiplies the source value.
type Projection struct {
	As    string  `json:"as"`
	Field string  `json:"field"`
	Scale float64 `json:"scale,omitempty"`
}

// IsPassthrough returns true if the projection copies a field under its own name
func (p Projection) IsPassthrough() bool {
	return p.As == p.Field && p.Scale == 0
}

// AggregateFunction is an accumulator used within a $group stage
type AggregateFunction string

const (
	// AggregateSum calculates the sum
	AggregateSum AggregateFunction = "sum"
	// AggregateMin calculates the min
	AggregateMin AggregateFunction = "min"
	// AggregateMax calculates the max
	AggregateMax AggregateFunction = "max"
	// AggregateAvg calculates the avg
	AggregateAvg AggregateFunction = "avg"
	// AggregateCount calculates the count
	AggregateCount AggregateFunction = "count"
)

// Accumulator computes an output field of a group
type Accumulator struct {
	As       string            `json:"as"`
	Function AggregateFunction `json:"function"`
	Field    string            `json:"field"`
}

// Group groups documents by the value of a field. The group key is emitted as _id.
type Group struct {
	Field        string        `json:"field"`
	Accumulators []Accumulator `json:"accumulators"`
}

// Stage is a single step of an aggregation pipeline. Only the member matching Kind is set.
type Stage struct {
	Kind    StageKind    `json:"kind"`
	Match   Filter       `json:"match,omitempty"`
	Project []Projection `json:"project,omitempty"`
	Sort    []OrderBy    `json:"sort,omitempty"`
	Skip    int          `json:"skip,omitempty"`
	Limit   int          `json:"limit,omitempty"`
	Group   *Group       `json:"group,omitempty"`
}

// Pipeline is an ordered sequence of stages executed by a Store
type Pipeline []Stage

// Validate checks the structural integrity of every stage
func (p Pipeline) Validate() error {
	for i, stage := range p {
		switch stage.Kind {
		case StageMatch:
			if _, err := stage.Match.Conditions(); err != nil {
				return err
			}
		case StageProject:
			if len(stage.Project) == 0 {
				return errors.Newf(errors.ErrInvalidArgument, "stage %d: empty projection", i)
			}
		case StageSort:
			if len(stage.Sort) == 0 {
				return errors.Newf(errors.ErrInvalidArgument, "stage %d: empty sort", i)
			}
		case StageSkip:
			if stage.Skip < 0 {
				return errors.Newf(errors.ErrInvalidArgument, "stage %d: negative skip", i)
			}
		case StageLimit:
			if stage.Limit <= 0 {
				return errors.Newf(errors.ErrInvalidLimit, "stage %d: limit must be positive", i)
			}
		case StageGroup:
			if stage.Group == nil {
				return errors.Newf(errors.ErrInvalidArgument, "stage %d: empty group", i)
			}
		default:
			return errors.Newf(errors.ErrInvalidArgument, "stage %d: unsupported stage %q", i, stage.Kind)
		}
	}
	return nil
}

// QueryRequest is a paginated request against a single collection
type QueryRequest struct {
	Collection string           `json:"collection"`
	Filter     Filter           `json:"filter,omitempty"`
	SortField  string           `json:"sort"`
	SortOrder  OrderByDirection `json:"order"`
	Skip       int              `json:"skip"`
	Limit      int              `json:"limit"`
}

// WithDefaults fills in the default sort and the given default limit when unset
func (r QueryRequest) WithDefaults(defaultLimit int) QueryRequest {
	if r.SortField == "" {
		r.SortField = DefaultSortField
	}
	if r.SortOrder == "" {
		r.SortOrder = DESC
	}
	if r.Limit == 0 {
		r.Limit = defaultLimit
	}
	if r.Filter == nil {
		r.Filter = Filter{}
	}
	return r
}

// Validate validates the request
func (r QueryRequest) Validate() error {
	if strings.TrimSpace(r.Collection) == "" {
		return errors.Newf(errors.ErrInvalidCollection, "empty collection name")
	}
	if r.Limit <= 0 {
		return errors.Newf(errors.ErrInvalidLimit, "limit must be positive: %d", r.Limit)
	}
	if r.Skip < 0 {
		return errors.Newf(errors.ErrInvalidArgument, "skip must not be negative: %d", r.Skip)
	}
	if r.SortOrder != ASC && r.SortOrder != DESC {
		return errors.Newf(errors.ErrInvalidArgument, "invalid sort order: %q", r.SortOrder)
	}
	return nil
}

// PerformancePipeline builds the fixed query performance pipeline:
// match result documents of the run, project the reporting fields, sort by execution time
// descending and limit. A nil runID matches documents whose run_id is null or missing.
func PerformancePipeline(collection string, runID any, limit int) (Pipeline, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, errors.Newf(errors.ErrInvalidCollection, "empty collection name")
	}
	if limit <= 0 {
		return nil, errors.Newf(errors.ErrInvalidLimit, "limit must be positive: %d", limit)
	}
	return Pipeline{
		{
			Kind: StageMatch,
			Match: Filter{
				"doc_type": "result",
				"run_id":   runID,
			},
		},
		{
			Kind: StageProject,
			Project: []Projection{
				{As: "exec_time", Field: "metrics.totalExecMicros.sum", Scale: execTimeScale},
				{As: "num", Field: "metrics.execCount"},
				{As: "namespace", Field: "namespace"},
				{As: "client", Field: "client"},
				{As: "query", Field: "query"},
			},
		},
		{
			Kind: StageSort,
			Sort: []OrderBy{{Field: "exec_time", Direction: DESC}},
		},
		{
			Kind:  StageLimit,
			Limit: limit,
		},
	}, nil
}

// BrowsePipeline builds the generic browse pipeline: match, sort, skip and limit
func BrowsePipeline(req QueryRequest) (Pipeline, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	match := req.Filter
	if match == nil {
		match = Filter{}
	}
	sortField := req.SortField
	if sortField == "" {
		sortField = DefaultSortField
	}
	pipeline := Pipeline{
		{Kind: StageMatch, Match: match},
		{Kind: StageSort, Sort: []OrderBy{{Field: sortField, Direction: req.SortOrder}}},
	}
	if req.Skip > 0 {
		pipeline = append(pipeline, Stage{Kind: StageSkip, Skip: req.Skip})
	}
	return append(pipeline, Stage{Kind: StageLimit, Limit: req.Limit}), nil
}
