// Package embedded is a querylens.Store on top of an embedded key value database.
// Every pipeline stage is evaluated in process.
package embedded

import (
	"context"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/errors"
	"github.com/autom8ter/querylens/internal/prefix"
	"github.com/autom8ter/querylens/internal/safe"
	"github.com/autom8ter/querylens/kv"
	_ "github.com/autom8ter/querylens/kv/badger"
	"github.com/autom8ter/querylens/kv/registry"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cast"
)

const (
	// QueryStatsCollection holds the documents returned by QueryStats
	QueryStatsCollection = "system.querystats"
	// DefaultProvider is the key value provider used when none is given
	DefaultProvider = "badger"
)

func init() {
	querylens.RegisterStore("embedded", func(ctx context.Context, params map[string]any) (querylens.Store, error) {
		provider := cast.ToString(params["kv_provider"])
		if provider == "" {
			provider = DefaultProvider
		}
		return Open(ctx, provider, params)
	})
}

// Store is an embedded document store
type Store struct {
	db      kv.DB
	catalog *safe.Map[struct{}]
}

// Open opens an embedded store on the registered key value provider.
// The badger provider runs in memory when params["storage_path"] is empty.
func Open(ctx context.Context, provider string, params map[string]any) (*Store, error) {
	db, err := registry.Open(provider, params)
	if err != nil {
		return nil, errors.WrapKind(err, errors.ErrStoreUnavailable, "failed to open %s database", provider)
	}
	s := &Store{
		db:      db,
		catalog: safe.NewMap[struct{}](nil),
	}
	if err := s.loadCatalog(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewInMemory opens an in memory embedded store
func NewInMemory(ctx context.Context) (*Store, error) {
	return Open(ctx, DefaultProvider, map[string]any{"storage_path": ""})
}

func (s *Store) loadCatalog() error {
	catalog := prefix.Catalog()
	return s.db.Tx(false, func(tx kv.Tx) error {
		iter := tx.NewIterator(kv.IterOpts{Prefix: catalog.Prefix()})
		defer iter.Close()
		for iter.Valid() {
			s.catalog.Set(prefix.TrimRef(catalog, iter.Item().Key()), struct{}{})
			iter.Next()
		}
		return nil
	})
}

// Collections lists the collections that hold at least one inserted document
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	return s.catalog.Keys(), nil
}

// HasCollection returns true if the collection exists
func (s *Store) HasCollection(ctx context.Context, collection string) (bool, error) {
	return s.catalog.Exists(collection), nil
}

// Count counts the documents of the collection matching the filter
func (s *Store) Count(ctx context.Context, collection string, filter querylens.Filter) (int64, error) {
	if _, err := filter.Conditions(); err != nil {
		return 0, err
	}
	var count int64
	err := s.scan(ctx, collection, func(doc *querylens.Document) error {
		match, err := filter.Matches(doc)
		if err != nil {
			return err
		}
		if match {
			count++
		}
		return nil
	})
	return count, err
}

// Aggregate evaluates the pipeline against every document of the collection
func (s *Store) Aggregate(ctx context.Context, collection string, pipeline querylens.Pipeline) (querylens.Documents, error) {
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	var docs querylens.Documents
	if err := s.scan(ctx, collection, func(doc *querylens.Document) error {
		docs = append(docs, doc)
		return nil
	}); err != nil {
		return nil, err
	}
	return Evaluate(ctx, docs, pipeline)
}

// QueryStats returns the documents of the system.querystats collection
func (s *Store) QueryStats(ctx context.Context, transformIdentifiers map[string]any) (querylens.Documents, error) {
	var docs querylens.Documents
	err := s.scan(ctx, QueryStatsCollection, func(doc *querylens.Document) error {
		docs = append(docs, doc)
		return nil
	})
	return docs, err
}

// Ping checks that the database can be read
func (s *Store) Ping(ctx context.Context) error {
	err := s.db.Tx(false, func(tx kv.Tx) error {
		_, err := tx.Get(prefix.Catalog().Prefix())
		return err
	})
	return errors.WrapKind(err, errors.ErrStoreUnavailable, "failed to ping embedded store")
}

// Close closes the database
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// Insert writes the documents to the collection in a single batch, creating the collection if needed,
// and returns their ids. Documents without an _id get a generated one.
func (s *Store) Insert(ctx context.Context, collection string, docs ...*querylens.Document) ([]string, error) {
	if collection == "" {
		return nil, errors.Newf(errors.ErrInvalidCollection, "empty collection name")
	}
	ref := prefix.Collection(collection)
	batch := s.db.NewBatch()
	var ids []string
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			batch.Cancel()
			return nil, err
		}
		id := doc.Get("_id")
		if id == nil {
			id = ksuid.New().String()
		}
		withID, err := withID(doc, id)
		if err != nil {
			batch.Cancel()
			return nil, err
		}
		if err := batch.Set(ref.Seek(id), withID.Bytes()); err != nil {
			batch.Cancel()
			return nil, errors.Wrap(err, 0, "failed to insert into %s", collection)
		}
		ids = append(ids, cast.ToString(id))
	}
	if err := batch.Set(prefix.Catalog().Seek(collection), []byte(collection)); err != nil {
		batch.Cancel()
		return nil, errors.Wrap(err, 0, "failed to insert into %s", collection)
	}
	if err := batch.Flush(); err != nil {
		return nil, errors.Wrap(err, 0, "failed to insert into %s", collection)
	}
	s.catalog.SetIfAbsent(collection, struct{}{})
	return ids, nil
}

// Drop deletes the collection and its documents
func (s *Store) Drop(ctx context.Context, collection string) error {
	if err := s.db.DropPrefix(prefix.Collection(collection).Prefix()); err != nil {
		return errors.Wrap(err, 0, "failed to drop %s", collection)
	}
	if err := s.db.Tx(true, func(tx kv.Tx) error {
		return tx.Delete(prefix.Catalog().Seek(collection))
	}); err != nil {
		return errors.Wrap(err, 0, "failed to drop %s", collection)
	}
	s.catalog.Del(collection)
	return nil
}

func (s *Store) scan(ctx context.Context, collection string, fn func(doc *querylens.Document) error) error {
	if !s.catalog.Exists(collection) {
		return nil
	}
	ref := prefix.Collection(collection)
	return s.db.Tx(false, func(tx kv.Tx) error {
		iter := tx.NewIterator(kv.IterOpts{Prefix: ref.Prefix()})
		defer iter.Close()
		for iter.Valid() {
			if err := ctx.Err(); err != nil {
				return err
			}
			bits, err := iter.Item().Value()
			if err != nil {
				return errors.WrapKind(err, errors.ErrStoreUnavailable, "failed to read %s", collection)
			}
			doc, err := querylens.NewDocumentFromBytes(bits)
			if err != nil {
				return err
			}
			if err := fn(doc); err != nil {
				return err
			}
			iter.Next()
		}
		return nil
	})
}

// withID returns a copy of the document with _id as its first field
func withID(doc *querylens.Document, id any) (*querylens.Document, error) {
	out := querylens.NewDocument()
	if err := out.Set("_id", id); err != nil {
		return nil, err
	}
	for _, key := range doc.Keys() {
		if key == "_id" {
			continue
		}
		path := querylens.EscapeField(key)
		raw, _ := doc.Raw(path)
		if err := out.SetRaw(path, raw); err != nil {
			return nil, err
		}
	}
	return out, nil
}
