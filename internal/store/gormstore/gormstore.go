package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	constraintCollectionKey = "idx_records_collection_key"
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	insertBatchSize         = 500
	errorOperationStore     = "store"
	errorCodeConflict       = "conflict"
	errorCodeDelete         = "delete"
	errorCodeInsert         = "insert"
	errorCodeList           = "list"
	errorCodeMigrate        = "migrate"
	errorCodeTransaction    = "transaction"
)

// Store resolves collections backed by the whitelist_records table.
type Store struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db, nowFn: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates or updates the whitelist_records table.
func (store *Store) Migrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return wrapStoreError("schema", errorCodeMigrate, err)
	}
	return nil
}

// Collection returns the RecordStore for name.
func (store *Store) Collection(name string) (whitelist.RecordStore, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("gormstore: collection name is required")
	}
	return &Collection{store: store, name: name}, nil
}

// Collection is one named set of rows.
type Collection struct {
	store *Store
	name  string
}

// Load returns every record of the collection.
func (collection *Collection) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	var rows []Record
	err := collection.store.db.WithContext(ctx).
		Where("collection = ?", collection.name).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(collection.name, errorCodeList, err)
	}
	records := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		records[row.RecordKey] = json.RawMessage(row.Payload)
	}
	return records, nil
}

// Save replaces the collection's rows within a single transaction.
func (collection *Collection) Save(ctx context.Context, records map[string]json.RawMessage) error {
	updatedAt := collection.store.nowFn()
	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([]Record, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, Record{
			Collection: collection.name,
			RecordKey:  key,
			Payload:    datatypes.JSON(records[key]),
			UpdatedAt:  updatedAt,
		})
	}
	err := collection.store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := transaction.Where("collection = ?", collection.name).Delete(&Record{}).Error; err != nil {
			return wrapStoreError(collection.name, errorCodeDelete, err)
		}
		if len(rows) == 0 {
			return nil
		}
		err := transaction.CreateInBatches(&rows, insertBatchSize).Error
		if isUniqueViolation(err) {
			return wrapStoreError(collection.name, errorCodeConflict, err)
		}
		if err != nil {
			return wrapStoreError(collection.name, errorCodeInsert, err)
		}
		return nil
	})
	if err != nil {
		var operationError whitelist.OperationError
		if errors.As(err, &operationError) {
			return err
		}
		return wrapStoreError(collection.name, errorCodeTransaction, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return whitelist.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintCollectionKey
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
