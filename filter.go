package querylens

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/autom8ter/querylens/errors"
	"github.com/autom8ter/querylens/util"
	"github.com/nqd/flat"
	"github.com/spf13/cast"
)

// FilterOp is a comparison operator in a filter expression
type FilterOp string

const (
	OpEq     FilterOp = "$eq"
	OpNe     FilterOp = "$ne"
	OpGt     FilterOp = "$gt"
	OpGte    FilterOp = "$gte"
	OpLt     FilterOp = "$lt"
	OpLte    FilterOp = "$lte"
	OpIn     FilterOp = "$in"
	OpNin    FilterOp = "$nin"
	OpExists FilterOp = "$exists"
)

var supportedOps = map[FilterOp]struct{}{
	OpEq: {}, OpNe: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {}, OpIn: {}, OpNin: {}, OpExists: {},
}

// Filter is a caller supplied predicate in store native (MongoDB query) form.
// A null value matches documents where the field is null or missing.
type Filter map[string]any

// Condition is a single flattened filter predicate
type Condition struct {
	Field string   `json:"field"`
	Op    FilterOp `json:"op"`
	Value any      `json:"value"`
}

// ParseFilter parses a json or yaml object into a Filter. Empty input is an empty filter.
func ParseFilter(raw []byte) (Filter, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Filter{}, nil
	}
	jsonContent, err := util.YAMLToJSON(raw)
	if err != nil {
		return nil, errors.WrapKind(err, errors.ErrMalformedFilter, "failed to parse filter")
	}
	var f Filter
	if err := json.Unmarshal(jsonContent, &f); err != nil {
		return nil, errors.WrapKind(err, errors.ErrMalformedFilter, "filter must be an object")
	}
	if f == nil {
		return Filter{}, nil
	}
	if _, err := f.Conditions(); err != nil {
		return nil, err
	}
	return f, nil
}

// Get returns the value of the field and whether it was set
func (f Filter) Get(field string) (any, bool) {
	v, ok := f[field]
	return v, ok
}

// Without returns a copy of the filter without the given fields
func (f Filter) Without(fields ...string) Filter {
	out := Filter{}
	for k, v := range f {
		out[k] = v
	}
	for _, field := range fields {
		delete(out, field)
	}
	return out
}

// Conditions flattens the filter into a list of conditions sorted by field.
// Nested plain objects become dot paths. Operator objects apply to the path that holds them.
func (f Filter) Conditions() ([]Condition, error) {
	if len(f) == 0 {
		return nil, nil
	}
	flattened, err := flat.Flatten(map[string]any(f), &flat.Options{
		Delimiter: ".",
		Safe:      true,
	})
	if err != nil {
		return nil, errors.WrapKind(err, errors.ErrMalformedFilter, "failed to flatten filter")
	}
	var conditions []Condition
	for key, value := range flattened {
		field, op := key, OpEq
		if idx := strings.LastIndex(key, "."); idx >= 0 && strings.HasPrefix(key[idx+1:], "$") {
			field, op = key[:idx], FilterOp(key[idx+1:])
		} else if strings.HasPrefix(key, "$") {
			return nil, errors.Newf(errors.ErrMalformedFilter, "unsupported top level operator: %s", key)
		}
		if _, ok := supportedOps[op]; !ok {
			return nil, errors.Newf(errors.ErrMalformedFilter, "unsupported operator %s on field %s", op, field)
		}
		if (op == OpIn || op == OpNin) && value != nil {
			if _, ok := value.([]any); !ok {
				return nil, errors.Newf(errors.ErrMalformedFilter, "%s requires an array on field %s", op, field)
			}
		}
		conditions = append(conditions, Condition{Field: field, Op: op, Value: value})
	}
	sort.Slice(conditions, func(i, j int) bool {
		if conditions[i].Field == conditions[j].Field {
			return conditions[i].Op < conditions[j].Op
		}
		return conditions[i].Field < conditions[j].Field
	})
	return conditions, nil
}

// Matches evaluates the filter against the document
func (f Filter) Matches(doc *Document) (bool, error) {
	conditions, err := f.Conditions()
	if err != nil {
		return false, err
	}
	for _, c := range conditions {
		if !c.matches(doc) {
			return false, nil
		}
	}
	return true, nil
}

func (c Condition) matches(doc *Document) bool {
	exists := doc.Exists(c.Field)
	value := doc.Get(c.Field)
	switch c.Op {
	case OpExists:
		return exists == cast.ToBool(c.Value)
	case OpEq:
		return eqMatch(value, c.Value)
	case OpNe:
		return !eqMatch(value, c.Value)
	case OpIn:
		for _, candidate := range cast.ToSlice(c.Value) {
			if eqMatch(value, candidate) {
				return true
			}
		}
		return false
	case OpNin:
		for _, candidate := range cast.ToSlice(c.Value) {
			if eqMatch(value, candidate) {
				return false
			}
		}
		return true
	case OpGt, OpGte, OpLt, OpLte:
		if value == nil || c.Value == nil {
			return false
		}
		cmp, ok := compareComparable(value, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	}
	return false
}

// eqMatch reports whether a document value equals the filter value.
// nil matches null or missing. Array fields match if any element is equal.
func eqMatch(value, want any) bool {
	if want == nil {
		return value == nil
	}
	if equalValues(value, want) {
		return true
	}
	if arr, ok := value.([]any); ok {
		if _, wantArr := want.([]any); !wantArr {
			for _, element := range arr {
				if equalValues(element, want) {
					return true
				}
			}
		}
	}
	return false
}
