package embedded

import (
	"context"
	"sort"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/errors"
	"github.com/samber/lo"
)

// Evaluate runs the pipeline stages in order against the documents.
// The input documents are never modified.
func Evaluate(ctx context.Context, docs querylens.Documents, pipeline querylens.Pipeline) (querylens.Documents, error) {
	var err error
	for _, stage := range pipeline {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch stage.Kind {
		case querylens.StageMatch:
			docs, err = match(docs, stage.Match)
		case querylens.StageProject:
			docs, err = project(docs, stage.Project)
		case querylens.StageSort:
			docs = orderBy(docs, stage.Sort)
		case querylens.StageSkip:
			docs = lo.Slice(docs, stage.Skip, len(docs))
		case querylens.StageLimit:
			if stage.Limit < len(docs) {
				docs = docs[:stage.Limit]
			}
		case querylens.StageGroup:
			docs, err = group(docs, stage.Group)
		default:
			err = errors.Newf(errors.ErrInvalidArgument, "unsupported stage: %s", stage.Kind)
		}
		if err != nil {
			return nil, err
		}
	}
	if docs == nil {
		docs = querylens.Documents{}
	}
	return docs, nil
}

func match(docs querylens.Documents, filter querylens.Filter) (querylens.Documents, error) {
	if _, err := filter.Conditions(); err != nil {
		return nil, err
	}
	return docs.Filter(func(doc *querylens.Document, _ int) bool {
		pass, _ := filter.Matches(doc)
		return pass
	}), nil
}

// project keeps _id and the projected fields. A scaled field that is missing becomes null.
// Other missing fields are omitted.
func project(docs querylens.Documents, projections []querylens.Projection) (querylens.Documents, error) {
	var out querylens.Documents
	for _, doc := range docs {
		projected := querylens.NewDocument()
		if raw, ok := doc.Raw("_id"); ok {
			if err := projected.SetRaw("_id", raw); err != nil {
				return nil, err
			}
		}
		for _, p := range projections {
			as := querylens.EscapeField(p.As)
			switch {
			case p.Scale != 0:
				value := doc.Get(p.Field)
				if value == nil {
					if err := projected.Set(as, nil); err != nil {
						return nil, err
					}
					continue
				}
				if err := projected.Set(as, doc.GetFloat(p.Field)*p.Scale); err != nil {
					return nil, err
				}
			default:
				raw, ok := doc.Raw(p.Field)
				if !ok {
					continue
				}
				if err := projected.SetRaw(as, raw); err != nil {
					return nil, err
				}
			}
		}
		out = append(out, projected)
	}
	return out, nil
}

func orderBy(docs querylens.Documents, orderBys []querylens.OrderBy) querylens.Documents {
	sorted := append(querylens.Documents{}, docs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		for _, o := range orderBys {
			cmp := querylens.CompareValues(sorted[i].Get(o.Field), sorted[j].Get(o.Field))
			if cmp != 0 {
				return cmp*o.Direction.Sign() < 0
			}
		}
		return false
	})
	return sorted
}

// group groups the documents by the value of the group field in order of first appearance.
// Missing and null values share a group.
func group(docs querylens.Documents, g *querylens.Group) (querylens.Documents, error) {
	partitions := lo.PartitionBy(docs, func(doc *querylens.Document) string {
		raw, ok := doc.Raw(g.Field)
		if !ok {
			return "null"
		}
		return string(raw)
	})
	var out querylens.Documents
	for _, partition := range partitions {
		grouped := querylens.NewDocument()
		if err := grouped.Set("_id", partition[0].Get(g.Field)); err != nil {
			return nil, err
		}
		for _, acc := range g.Accumulators {
			if err := grouped.Set(querylens.EscapeField(acc.As), getReducer(acc.Function)(acc.Field, partition)); err != nil {
				return nil, err
			}
		}
		out = append(out, grouped)
	}
	return out, nil
}
