package mongodb

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const dateTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ToDocument converts a decoded bson document into an ordered JSON document
func ToDocument(d bson.D) (*querylens.Document, error) {
	raw, err := toJSON(d)
	if err != nil {
		return nil, err
	}
	return querylens.NewDocumentFromBytes(raw)
}

func toJSON(v any) (json.RawMessage, error) {
	switch v := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return json.RawMessage("null"), nil
	case bson.D:
		doc := querylens.NewDocument()
		for _, e := range v {
			raw, err := toJSON(e.Value)
			if err != nil {
				return nil, err
			}
			if err := doc.SetRaw(querylens.EscapeField(e.Key), raw); err != nil {
				return nil, err
			}
		}
		return doc.Bytes(), nil
	case bson.M:
		return toJSON(toD(v))
	case bson.A:
		return arrayJSON(v)
	case []any:
		return arrayJSON(v)
	case primitive.ObjectID:
		return json.Marshal(v.Hex())
	case primitive.DateTime:
		return json.Marshal(v.Time().UTC().Format(dateTimeLayout))
	case time.Time:
		return json.Marshal(v.UTC().Format(dateTimeLayout))
	case primitive.Decimal128:
		return json.Marshal(v.String())
	case primitive.Timestamp:
		return json.Marshal(time.Unix(int64(v.T), 0).UTC().Format(dateTimeLayout))
	case primitive.Binary:
		return json.Marshal(v.Data)
	case primitive.Regex:
		return json.Marshal(v.Pattern)
	case primitive.Symbol:
		return json.Marshal(string(v))
	case primitive.JavaScript:
		return json.Marshal(string(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return json.Marshal(strconv.FormatFloat(v, 'g', -1, 64))
		}
		return json.Marshal(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, errors.Internal, "failed to convert %T", v)
		}
		return raw, nil
	}
}

func arrayJSON(values []any) (json.RawMessage, error) {
	out := []byte{'['}
	for i, value := range values {
		if i > 0 {
			out = append(out, ',')
		}
		raw, err := toJSON(value)
		if err != nil {
			return nil, err
		}
		out = append(out, raw...)
	}
	return append(out, ']'), nil
}
