package mongodb

import (
	"sort"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ToPipeline translates a querylens pipeline into an aggregation pipeline
func ToPipeline(pipeline querylens.Pipeline) (mongo.Pipeline, error) {
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	out := mongo.Pipeline{}
	for _, stage := range pipeline {
		var value any
		switch stage.Kind {
		case querylens.StageMatch:
			value = ToFilter(stage.Match)
		case querylens.StageProject:
			value = projection(stage.Project)
		case querylens.StageSort:
			value = sortSpec(stage.Sort)
		case querylens.StageSkip:
			value = int64(stage.Skip)
		case querylens.StageLimit:
			value = int64(stage.Limit)
		case querylens.StageGroup:
			value = group(stage.Group)
		default:
			return nil, errors.Newf(errors.ErrInvalidArgument, "unsupported stage: %s", stage.Kind)
		}
		out = append(out, bson.D{{Key: string(stage.Kind), Value: value}})
	}
	return out, nil
}

// ToFilter translates a filter into a bson document with keys in ascending order.
// Nested objects are translated recursively.
func ToFilter(filter querylens.Filter) bson.D {
	return toD(filter)
}

func toD(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := bson.D{}
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: toBSON(m[k])})
	}
	return d
}

func toBSON(v any) any {
	switch v := v.(type) {
	case querylens.Filter:
		return toD(v)
	case map[string]any:
		return toD(v)
	case []any:
		a := bson.A{}
		for _, e := range v {
			a = append(a, toBSON(e))
		}
		return a
	default:
		return v
	}
}

// projection keeps passthrough fields with 1, renames with a field path and scales with $multiply
func projection(projections []querylens.Projection) bson.D {
	d := bson.D{}
	for _, p := range projections {
		switch {
		case p.IsPassthrough():
			d = append(d, bson.E{Key: p.As, Value: 1})
		case p.Scale != 0:
			d = append(d, bson.E{Key: p.As, Value: bson.D{
				{Key: "$multiply", Value: bson.A{fieldPath(p.Field), p.Scale}},
			}})
		default:
			d = append(d, bson.E{Key: p.As, Value: fieldPath(p.Field)})
		}
	}
	return d
}

func sortSpec(orderBys []querylens.OrderBy) bson.D {
	d := bson.D{}
	for _, o := range orderBys {
		d = append(d, bson.E{Key: o.Field, Value: o.Direction.Sign()})
	}
	return d
}

func group(g *querylens.Group) bson.D {
	d := bson.D{{Key: "_id", Value: fieldPath(g.Field)}}
	for _, acc := range g.Accumulators {
		d = append(d, bson.E{Key: acc.As, Value: accumulator(acc)})
	}
	return d
}

func accumulator(acc querylens.Accumulator) bson.D {
	switch acc.Function {
	case querylens.AggregateSum:
		return bson.D{{Key: "$sum", Value: fieldPath(acc.Field)}}
	case querylens.AggregateAvg:
		return bson.D{{Key: "$avg", Value: fieldPath(acc.Field)}}
	case querylens.AggregateMax:
		return bson.D{{Key: "$max", Value: fieldPath(acc.Field)}}
	case querylens.AggregateMin:
		return bson.D{{Key: "$min", Value: fieldPath(acc.Field)}}
	default:
		if acc.Field == "" {
			return bson.D{{Key: "$sum", Value: 1}}
		}
		// count documents where the field is present and not null
		return bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{fieldPath(acc.Field), nil}}},
				nil,
			}}},
			0,
			1,
		}}}}}
	}
}

func fieldPath(field string) string {
	return "$" + field
}
