package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix    = "whitelistd"
	errorOperationStore = "store"
	errorCodeLoad       = "hgetall"
	errorCodeSave       = "multi"
)

// Store keeps each collection in one Redis hash keyed by record key.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces every hash key.
func WithKeyPrefix(prefix string) Option {
	return func(store *Store) {
		store.prefix = strings.Trim(prefix, ":")
	}
}

// New returns a Store over rdb.
func New(rdb *redis.Client, opts ...Option) *Store {
	store := &Store{rdb: rdb, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Collection returns the RecordStore for name.
func (store *Store) Collection(name string) (whitelist.RecordStore, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("redisstore: collection name is required")
	}
	key := name
	if store.prefix != "" {
		key = store.prefix + ":" + name
	}
	return &Collection{rdb: store.rdb, name: name, key: key}, nil
}

// Collection is one Redis hash.
type Collection struct {
	rdb  *redis.Client
	name string
	key  string
}

// Key reports the hash key backing the collection.
func (collection *Collection) Key() string {
	return collection.key
}

// Load returns every field of the hash.
func (collection *Collection) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	fields, err := collection.rdb.HGetAll(ctx, collection.key).Result()
	if err != nil {
		return nil, wrapStoreError(collection.name, errorCodeLoad, err)
	}
	records := make(map[string]json.RawMessage, len(fields))
	for field, payload := range fields {
		records[field] = json.RawMessage(payload)
	}
	return records, nil
}

// Save replaces the hash in a MULTI/EXEC block.
func (collection *Collection) Save(ctx context.Context, records map[string]json.RawMessage) error {
	values := make(map[string]any, len(records))
	for field, payload := range records {
		values[field] = string(payload)
	}
	_, err := collection.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, collection.key)
		if len(values) > 0 {
			pipe.HSet(ctx, collection.key, values)
		}
		return nil
	})
	if err != nil {
		return wrapStoreError(collection.name, errorCodeSave, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return whitelist.WrapError(errorOperationStore, subject, code, err)
}
