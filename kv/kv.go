package kv

// DB is a transactional key value database
type DB interface {
	// Tx executes the function within a transaction. Writes are only allowed if isUpdate is true.
	Tx(isUpdate bool, fn func(Tx) error) error
	// NewBatch returns a write batch
	NewBatch() Batch
	// DropPrefix deletes every key with one of the given prefixes
	DropPrefix(prefix ...[]byte) error
	// Close closes the database
	Close() error
}

// IterOpts are options for iterating over keys
type IterOpts struct {
	Prefix  []byte `json:"prefix"`
	Seek    []byte `json:"seek"`
	Reverse bool   `json:"reverse"`
}

// Tx is a database transaction
type Tx interface {
	// Get returns the value of the key. A missing key returns nil and no error.
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(opts IterOpts) Iterator
}

// Iterator iterates over keys in order
type Iterator interface {
	Seek(key []byte)
	Close()
	Valid() bool
	Item() Item
	Next()
}

// Item is a key value pair
type Item interface {
	Key() []byte
	Value() ([]byte, error)
}

// Batch is a batch of writes flushed together
type Batch interface {
	Set(key, value []byte) error
	Delete(key []byte) error
	// Flush commits the pending writes
	Flush() error
	// Cancel discards the pending writes. It must be called if Flush is not.
	Cancel()
}
