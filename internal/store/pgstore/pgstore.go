package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore = "store"
	errorSubjectSchema  = "schema"
	errorCodeBegin      = "begin"
	errorCodeCommit     = "commit"
	errorCodeCopy       = "copy"
	errorCodeCreate     = "create"
	errorCodeDelete     = "delete"
	errorCodeList       = "list"
	errorCodeScan       = "scan"
	recordsTable        = "whitelist_records"
	columnCollection    = "collection"
	columnRecordKey     = "record_key"
	columnPayload       = "payload"

	sqlCreateRecordsTable = `
		create table if not exists whitelist_records (
			collection text not null,
			record_key text not null,
			payload jsonb not null,
			updated_at timestamptz not null default now(),
			primary key (collection, record_key)
		)
	`

	sqlSelectRecords = `
		select record_key, payload::text
		from whitelist_records
		where collection = $1
	`

	sqlDeleteRecords = `
		delete from whitelist_records where collection = $1
	`
)

// Store resolves collections backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the records table when missing.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, sqlCreateRecordsTable); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeCreate, err)
	}
	return nil
}

// Collection returns the RecordStore for name.
func (store *Store) Collection(name string) (whitelist.RecordStore, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("pgstore: collection name is required")
	}
	return &Collection{pool: store.pool, name: name}, nil
}

// Collection is one named set of rows.
type Collection struct {
	pool *pgxpool.Pool
	name string
}

// Load returns every record of the collection.
func (collection *Collection) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := collection.pool.Query(ctx, sqlSelectRecords, collection.name)
	if err != nil {
		return nil, wrapStoreError(collection.name, errorCodeList, err)
	}
	defer rows.Close()
	records := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			key     string
			payload string
		)
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, wrapStoreError(collection.name, errorCodeScan, err)
		}
		records[key] = json.RawMessage(payload)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(collection.name, errorCodeList, err)
	}
	return records, nil
}

// Save replaces the collection's rows within a single transaction.
func (collection *Collection) Save(ctx context.Context, records map[string]json.RawMessage) error {
	tx, err := collection.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(collection.name, errorCodeBegin, err)
	}
	if err := replaceRecords(ctx, tx, collection.name, records); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(collection.name, errorCodeCommit, err)
	}
	return nil
}

func replaceRecords(ctx context.Context, tx pgx.Tx, name string, records map[string]json.RawMessage) error {
	if _, err := tx.Exec(ctx, sqlDeleteRecords, name); err != nil {
		return wrapStoreError(name, errorCodeDelete, err)
	}
	if len(records) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{recordsTable},
		[]string{columnCollection, columnRecordKey, columnPayload},
		pgx.CopyFromRows(recordRows(name, records)),
	)
	if err != nil {
		return wrapStoreError(name, errorCodeCopy, err)
	}
	return nil
}

func recordRows(name string, records map[string]json.RawMessage) [][]any {
	rows := make([][]any, 0, len(records))
	for key, payload := range records {
		rows = append(rows, []any{name, key, []byte(payload)})
	}
	return rows
}

func wrapStoreError(subject string, code string, err error) error {
	return whitelist.WrapError(errorOperationStore, subject, code, err)
}
