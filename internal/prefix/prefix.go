package prefix

import (
	"bytes"
	"encoding/json"

	"github.com/spf13/cast"
)

const separator = "/"

var (
	documentsRoot = []byte("docs")
	catalogRoot   = []byte("catalog")
)

// Ref is a reference to a keyspace
type Ref interface {
	// Prefix returns the prefix shared by every key of the keyspace, including the trailing separator
	Prefix() []byte
	// Seek returns the key of the id within the keyspace
	Seek(id any) []byte
}

type ref struct {
	path [][]byte
}

func (r ref) Prefix() []byte {
	return append(bytes.Join(r.path, []byte(separator)), separator...)
}

func (r ref) Seek(id any) []byte {
	return append(r.Prefix(), encodeValue(id)...)
}

// Collection returns the keyspace holding the documents of the collection
func Collection(collection string) Ref {
	return ref{path: [][]byte{documentsRoot, []byte(collection)}}
}

// Catalog returns the keyspace holding the names of the known collections
func Catalog() Ref {
	return ref{path: [][]byte{catalogRoot}}
}

// TrimRef returns the portion of the key after the keyspace prefix
func TrimRef(r Ref, key []byte) string {
	return string(bytes.TrimPrefix(key, r.Prefix()))
}

func encodeValue(value any) []byte {
	if value == nil {
		return []byte("")
	}
	switch value := value.(type) {
	case []byte:
		return value
	case string:
		return []byte(value)
	case bool, int, int64, int32, float64, float32, uint64, uint32, uint16:
		return []byte(cast.ToString(value))
	default:
		bits, _ := json.Marshal(value)
		if len(bits) == 0 {
			bits = []byte(cast.ToString(value))
		}
		return bits
	}
}

// PrefixNextKey returns the smallest key that is larger than every key with the given prefix
func PrefixNextKey(k []byte) []byte {
	buf := make([]byte, len(k))
	copy(buf, k)
	var i int
	for i = len(k) - 1; i >= 0; i-- {
		buf[i]++
		if buf[i] != 0 {
			break
		}
	}
	if i == -1 {
		buf = make([]byte, 0)
	}
	return buf
}
