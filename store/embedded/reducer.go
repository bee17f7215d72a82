package embedded

import (
	"github.com/autom8ter/querylens"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

type reducer func(field string, docs querylens.Documents) any

func getReducer(function querylens.AggregateFunction) reducer {
	switch function {
	case querylens.AggregateSum:
		return sumReducer
	case querylens.AggregateMax:
		return maxReducer
	case querylens.AggregateMin:
		return minReducer
	case querylens.AggregateAvg:
		return avgReducer
	default:
		return countReducer
	}
}

func present(field string, docs querylens.Documents) querylens.Documents {
	return docs.Filter(func(doc *querylens.Document, _ int) bool {
		return doc.Get(field) != nil
	})
}

func numeric(field string, docs querylens.Documents) querylens.Documents {
	return docs.Filter(func(doc *querylens.Document, _ int) bool {
		_, err := cast.ToFloat64E(doc.Get(field))
		return doc.Get(field) != nil && err == nil
	})
}

func sumReducer(field string, docs querylens.Documents) any {
	return lo.SumBy(numeric(field, docs), func(doc *querylens.Document) float64 {
		return doc.GetFloat(field)
	})
}

func avgReducer(field string, docs querylens.Documents) any {
	values := numeric(field, docs)
	if len(values) == 0 {
		return nil
	}
	return sumReducer(field, values).(float64) / float64(len(values))
}

// maxReducer returns the largest present value. Missing and null values are ignored.
func maxReducer(field string, docs querylens.Documents) any {
	values := present(field, docs)
	if len(values) == 0 {
		return nil
	}
	return lo.MaxBy(values, func(a, b *querylens.Document) bool {
		return querylens.CompareValues(a.Get(field), b.Get(field)) > 0
	}).Get(field)
}

// minReducer returns the smallest present value. Missing and null values are ignored.
func minReducer(field string, docs querylens.Documents) any {
	values := present(field, docs)
	if len(values) == 0 {
		return nil
	}
	return lo.MinBy(values, func(a, b *querylens.Document) bool {
		return querylens.CompareValues(a.Get(field), b.Get(field)) < 0
	}).Get(field)
}

// countReducer counts the documents of the group, or the documents where the field is present
func countReducer(field string, docs querylens.Documents) any {
	if field == "" {
		return len(docs)
	}
	return lo.CountBy(docs, func(doc *querylens.Document) bool {
		return doc.Get(field) != nil
	})
}
