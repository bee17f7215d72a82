// Package mongodb is a querylens.Store backed by a MongoDB database
package mongodb

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/errors"
	"github.com/autom8ter/querylens/util"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	// DefaultMaxPoolSize is the connection pool size used when none is given
	DefaultMaxPoolSize = 20
	// DefaultTimeout is the connect and server selection timeout used when none is given
	DefaultTimeout = 10 * time.Second

	adminDatabase = "admin"
	appName       = "querylens"
)

func init() {
	querylens.RegisterStore("mongodb", func(ctx context.Context, params map[string]any) (querylens.Store, error) {
		opts, err := OptionsFromParams(params)
		if err != nil {
			return nil, err
		}
		return Open(ctx, opts)
	})
}

// Options configures the client
type Options struct {
	URI                    string        `json:"uri" validate:"required"`
	Database               string        `json:"database" validate:"required"`
	MaxPoolSize            uint64        `json:"max_pool_size"`
	ConnectTimeout         time.Duration `json:"-"`
	ServerSelectionTimeout time.Duration `json:"-"`
}

// OptionsFromParams decodes and validates store params. Timeouts accept duration strings such as "10s".
func OptionsFromParams(params map[string]any) (Options, error) {
	var opts Options
	if err := util.Decode(params, &opts); err != nil {
		return opts, errors.Wrap(err, errors.Validation, "invalid mongodb params")
	}
	var err error
	if v, ok := params["connect_timeout"]; ok {
		if opts.ConnectTimeout, err = cast.ToDurationE(v); err != nil {
			return opts, errors.Wrap(err, errors.Validation, "invalid connect_timeout")
		}
	}
	if v, ok := params["server_selection_timeout"]; ok {
		if opts.ServerSelectionTimeout, err = cast.ToDurationE(v); err != nil {
			return opts, errors.Wrap(err, errors.Validation, "invalid server_selection_timeout")
		}
	}
	if err := util.ValidateStruct(opts); err != nil {
		return opts, err
	}
	return opts.withDefaults(), nil
}

func (o Options) withDefaults() Options {
	if o.MaxPoolSize == 0 {
		o.MaxPoolSize = DefaultMaxPoolSize
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultTimeout
	}
	if o.ServerSelectionTimeout <= 0 {
		o.ServerSelectionTimeout = DefaultTimeout
	}
	return o
}

// ClientOptions returns the driver options of the pooled client
func (o Options) ClientOptions() *options.ClientOptions {
	o = o.withDefaults()
	return options.Client().
		ApplyURI(o.URI).
		SetAppName(appName).
		SetMaxPoolSize(o.MaxPoolSize).
		SetConnectTimeout(o.ConnectTimeout).
		SetServerSelectionTimeout(o.ServerSelectionTimeout)
}

// Store is a read only MongoDB gateway sharing one pooled client
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to the database and pings it
func Open(ctx context.Context, opts Options) (*Store, error) {
	client, err := mongo.Connect(ctx, opts.ClientOptions())
	if err != nil {
		return nil, errors.WrapKind(err, errors.ErrStoreUnavailable, "failed to connect to %s", util.MaskSecret(opts.URI))
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.WrapKind(err, errors.ErrStoreUnavailable, "failed to ping %s", util.MaskSecret(opts.URI))
	}
	return &Store{
		client: client,
		db:     client.Database(opts.Database),
	}, nil
}

// Collections lists the collection names of the database
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, wrapErr(err, "failed to list collections")
	}
	return names, nil
}

// HasCollection returns true if the collection exists
func (s *Store) HasCollection(ctx context.Context, collection string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return false, wrapErr(err, "failed to look up collection %s", collection)
	}
	return len(names) > 0, nil
}

// Count counts the documents of the collection matching the filter
func (s *Store) Count(ctx context.Context, collection string, filter querylens.Filter) (int64, error) {
	if _, err := filter.Conditions(); err != nil {
		return 0, err
	}
	total, err := s.db.Collection(collection).CountDocuments(ctx, ToFilter(filter))
	if err != nil {
		return 0, wrapErr(err, "failed to count %s", collection)
	}
	return total, nil
}

// Aggregate runs the translated pipeline against the collection
func (s *Store) Aggregate(ctx context.Context, collection string, pipeline querylens.Pipeline) (querylens.Documents, error) {
	stages, err := ToPipeline(pipeline)
	if err != nil {
		return nil, err
	}
	cursor, err := s.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, wrapErr(err, "failed to aggregate %s", collection)
	}
	return readAll(ctx, cursor)
}

// QueryStats runs the $queryStats stage against the admin database
func (s *Store) QueryStats(ctx context.Context, transformIdentifiers map[string]any) (querylens.Documents, error) {
	cursor, err := s.client.Database(adminDatabase).Aggregate(ctx, QueryStatsPipeline(transformIdentifiers))
	if err != nil {
		return nil, wrapErr(err, "failed to get query stats")
	}
	return readAll(ctx, cursor)
}

// QueryStatsPipeline returns the $queryStats pipeline. Empty transform identifiers are omitted.
func QueryStatsPipeline(transformIdentifiers map[string]any) mongo.Pipeline {
	spec := bson.D{}
	if len(transformIdentifiers) > 0 {
		spec = append(spec, bson.E{Key: "transformIdentifiers", Value: toD(transformIdentifiers)})
	}
	return mongo.Pipeline{{{Key: "$queryStats", Value: spec}}}
}

// Ping pings the primary
func (s *Store) Ping(ctx context.Context) error {
	return wrapErr(s.client.Ping(ctx, readpref.Primary()), "failed to ping")
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return wrapErr(s.client.Disconnect(ctx), "failed to disconnect")
}

func readAll(ctx context.Context, cursor *mongo.Cursor) (querylens.Documents, error) {
	defer cursor.Close(ctx)
	docs := querylens.Documents{}
	for cursor.Next(ctx) {
		var d bson.D
		if err := cursor.Decode(&d); err != nil {
			return nil, errors.Wrap(err, errors.Internal, "failed to decode document")
		}
		doc, err := ToDocument(d)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, wrapErr(err, "failed to read cursor")
	}
	return docs, nil
}

// wrapErr wraps connection class errors as store unavailable and everything else as internal
func wrapErr(err error, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return errors.WrapKind(err, errors.ErrStoreUnavailable, msg, args...)
	}
	return errors.Wrap(err, errors.Internal, msg, args...)
}

func isUnavailable(err error) bool {
	return mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) ||
		stderrors.Is(err, mongo.ErrClientDisconnected)
}
