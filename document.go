package querylens

import (
	"encoding/json"
	"strings"

	"github.com/autom8ter/querylens/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Document is an ordered JSON object. Field order is the order the store returned.
type Document struct {
	result gjson.Result
}

// UnmarshalJSON satisfies the json Unmarshaler interface
func (d *Document) UnmarshalJSON(bytes []byte) error {
	doc, err := NewDocumentFromBytes(bytes)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

// MarshalJSON satisfies the json Marshaler interface
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Bytes(), nil
}

// NewDocument creates a new empty json document
func NewDocument() *Document {
	return &Document{
		result: gjson.Parse("{}"),
	}
}

// NewDocumentFromBytes creates a new document from the given json bytes
func NewDocumentFromBytes(json []byte) (*Document, error) {
	if !gjson.ValidBytes(json) {
		return nil, errors.New(errors.Validation, "invalid json: %s", string(json))
	}
	d := &Document{
		result: gjson.ParseBytes(json),
	}
	if !d.result.IsObject() {
		return nil, errors.New(errors.Validation, "invalid document: not a json object")
	}
	return d, nil
}

// NewDocumentFrom creates a new document from the given value - the value must be json compatible
func NewDocumentFrom(value any) (*Document, error) {
	bits, err := json.Marshal(value)
	if err != nil {
		return nil, errors.New(errors.Validation, "failed to json encode value: %#v", value)
	}
	return NewDocumentFromBytes(bits)
}

// String returns the document as a json string
func (d *Document) String() string {
	return d.result.Raw
}

// Bytes returns the document as json bytes
func (d *Document) Bytes() []byte {
	return []byte(d.result.Raw)
}

// Value returns the document as a map
func (d *Document) Value() map[string]any {
	return cast.ToStringMap(d.result.Value())
}

// Clone allocates a new document with identical values
func (d *Document) Clone() *Document {
	return &Document{result: gjson.Parse(d.result.Raw)}
}

// Keys returns the top level field names in insertion order
func (d *Document) Keys() []string {
	keys := []string{}
	d.result.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}

// Exists returns true if the field is present on the document. A null field is present.
func (d *Document) Exists(field string) bool {
	return d.result.Get(field).Exists()
}

// Get gets a field on the document. Get has GJSON syntax support and supports dot notation
func (d *Document) Get(field string) any {
	return d.result.Get(field).Value()
}

// Raw returns the raw json value of the field and whether it exists
func (d *Document) Raw(field string) ([]byte, bool) {
	r := d.result.Get(field)
	return []byte(r.Raw), r.Exists()
}

// GetString gets a string field value on the document
func (d *Document) GetString(field string) string {
	return d.result.Get(field).String()
}

// GetFloat gets a float field value on the document
func (d *Document) GetFloat(field string) float64 {
	return cast.ToFloat64(d.Get(field))
}

// Set sets a field on the document. Dot notation is supported.
// New fields are appended after existing ones.
func (d *Document) Set(field string, val any) error {
	var (
		result string
		err    error
	)
	switch val := val.(type) {
	case gjson.Result:
		result, err = sjson.SetRaw(d.result.Raw, field, val.Raw)
	case *Document:
		result, err = sjson.SetRaw(d.result.Raw, field, val.String())
	case json.RawMessage:
		result, err = sjson.SetRaw(d.result.Raw, field, string(val))
	default:
		result, err = sjson.Set(d.result.Raw, field, val)
	}
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to set field %s", field)
	}
	if !gjson.Valid(result) {
		return errors.New(errors.Validation, "invalid document")
	}
	d.result = gjson.Parse(result)
	return nil
}

// SetRaw sets a field on the document to the given raw json
func (d *Document) SetRaw(field string, raw []byte) error {
	return d.Set(field, json.RawMessage(raw))
}

// EscapeField escapes a literal field name so it can be used as a path
func EscapeField(field string) string {
	return pathEscaper.Replace(field)
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	".", `\.`,
	"*", `\*`,
	"?", `\?`,
)

// Documents is an array of documents
type Documents []*Document

// MarshalJSON encodes the documents as a json array. An empty or nil set encodes as []
func (documents Documents) MarshalJSON() ([]byte, error) {
	if len(documents) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal([]*Document(documents))
}

// Filter applies the filter function against the documents
func (documents Documents) Filter(predicate func(document *Document, i int) bool) Documents {
	return lo.Filter[*Document](documents, predicate)
}

// Map applies the mapper function against the documents
func (documents Documents) Map(mapper func(t *Document, i int) *Document) Documents {
	return lo.Map[*Document, *Document](documents, mapper)
}
