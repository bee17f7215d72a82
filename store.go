package querylens

import (
	"context"
	"sort"
	"sync"

	"github.com/autom8ter/querylens/errors"
)

// Store is a read only gateway to a document store
type Store interface {
	// Collections lists the names of the collections known to the store
	Collections(ctx context.Context) ([]string, error)
	// HasCollection returns true if the collection exists
	HasCollection(ctx context.Context, collection string) (bool, error)
	// Count returns the number of documents in the collection matching the filter
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
	// Aggregate executes the pipeline against the collection. An unknown collection yields no documents.
	Aggregate(ctx context.Context, collection string, pipeline Pipeline) (Documents, error)
	// QueryStats returns the store's query statistics
	QueryStats(ctx context.Context, transformIdentifiers map[string]any) (Documents, error)
	// Ping checks connectivity to the store
	Ping(ctx context.Context) error
	// Close closes the store
	Close(ctx context.Context) error
}

// StoreOpener opens a Store from provider specific params
type StoreOpener func(ctx context.Context, params map[string]any) (Store, error)

var (
	openersMu sync.RWMutex
	openers   = map[string]StoreOpener{}
)

// RegisterStore registers a StoreOpener by provider name
func RegisterStore(name string, opener StoreOpener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[name] = opener
}

// StoreProviders returns the names of the registered store providers
func StoreProviders() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	var names []string
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenStore opens a registered store provider
func OpenStore(ctx context.Context, name string, params map[string]any) (Store, error) {
	openersMu.RLock()
	opener, ok := openers[name]
	openersMu.RUnlock()
	if !ok {
		return nil, errors.New(errors.NotFound, "store provider %s is not registered", name)
	}
	return opener(ctx, params)
}
