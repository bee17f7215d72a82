package badger

import (
	"github.com/autom8ter/querylens/kv"
	"github.com/dgraph-io/badger/v3"
)

// iterator walks a badger transaction, stopping at the end of the prefix if one is set
type iterator struct {
	prefix []byte
	iter   *badger.Iterator
}

func (i *iterator) Seek(key []byte) { i.iter.Seek(key) }

func (i *iterator) Close() { i.iter.Close() }

func (i *iterator) Next() { i.iter.Next() }

func (i *iterator) Valid() bool {
	if len(i.prefix) > 0 {
		return i.iter.ValidForPrefix(i.prefix)
	}
	return i.iter.Valid()
}

func (i *iterator) Item() kv.Item {
	return entry{i.iter.Item()}
}

// entry copies keys and values out of the transaction so they outlive the iterator position
type entry struct {
	*badger.Item
}

func (e entry) Key() []byte {
	return e.KeyCopy(nil)
}

func (e entry) Value() ([]byte, error) {
	return e.ValueCopy(nil)
}

type writeBatch struct {
	wb *badger.WriteBatch
}

func (w writeBatch) Set(key, value []byte) error {
	return w.wb.Set(key, value)
}

func (w writeBatch) Delete(key []byte) error {
	return w.wb.Delete(key)
}

func (w writeBatch) Flush() error {
	return w.wb.Flush()
}

func (w writeBatch) Cancel() {
	w.wb.Cancel()
}
