package whitelist

import (
	"context"
	"encoding/json"
)

// RecordStore persists one keyed collection of JSON records as a whole.
//
// Load returns an empty map when the collection has never been saved. Save
// replaces the collection atomically: a failed Save leaves the previous state
// readable. Load followed by Save is not isolated; callers serialize it.
type RecordStore interface {
	Load(ctx context.Context) (map[string]json.RawMessage, error)
	Save(ctx context.Context, records map[string]json.RawMessage) error
}

// StoreProvider resolves the RecordStore backing a named collection.
type StoreProvider interface {
	Collection(name string) (RecordStore, error)
}

// recordCodec converts between typed records and their stored payloads.
type recordCodec[R any] struct {
	decode func(payload json.RawMessage) (R, error)
	encode func(record R) (json.RawMessage, error)
}

// durableMap is a typed view over a RecordStore.
type durableMap[R any] struct {
	store   RecordStore
	codec   recordCodec[R]
	subject string
}

func (typed durableMap[R]) load(ctx context.Context) (map[string]R, error) {
	payloads, err := typed.store.Load(ctx)
	if err != nil {
		return nil, StorageError(typed.subject, errorCodeLoad, err)
	}
	records := make(map[string]R, len(payloads))
	for key, payload := range payloads {
		record, decodeErr := typed.codec.decode(payload)
		if decodeErr != nil {
			return nil, StorageError(typed.subject, errorCodeDecode, decodeErr)
		}
		records[key] = record
	}
	return records, nil
}

func (typed durableMap[R]) save(ctx context.Context, records map[string]R) error {
	payloads := make(map[string]json.RawMessage, len(records))
	for key, record := range records {
		payload, err := typed.codec.encode(record)
		if err != nil {
			return StorageError(typed.subject, errorCodeEncode, err)
		}
		payloads[key] = payload
	}
	if err := typed.store.Save(ctx, payloads); err != nil {
		return StorageError(typed.subject, errorCodeSave, err)
	}
	return nil
}
