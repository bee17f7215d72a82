package registry

import (
	"sync"

	"github.com/autom8ter/querylens/errors"
	"github.com/autom8ter/querylens/kv"
)

// KVDBOpener opens a key value database
type KVDBOpener func(params map[string]interface{}) (kv.DB, error)

var (
	mu                sync.RWMutex
	registeredOpeners = map[string]KVDBOpener{}
)

// Register registers a KVDBOpener opener by name
func Register(name string, opener KVDBOpener) {
	mu.Lock()
	defer mu.Unlock()
	registeredOpeners[name] = opener
}

// Open opens a registered key value database
func Open(name string, params map[string]interface{}) (kv.DB, error) {
	mu.RLock()
	opener, ok := registeredOpeners[name]
	mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.NotFound, "%s is not registered", name)
	}
	return opener(params)
}
