package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(test *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	test.Helper()
	server := miniredis.RunT(test)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	test.Cleanup(func() { _ = client.Close() })
	return New(client, opts...), server
}

func TestSaveAndLoadUseOneHashPerCollection(test *testing.T) {
	test.Parallel()
	store, server := newTestStore(test)
	collection, err := store.Collection("whitelists/whitelist_th")
	if err != nil {
		test.Fatalf("collection: %v", err)
	}
	ctx := context.Background()
	if err := collection.Save(ctx, map[string]json.RawMessage{"1": json.RawMessage("10"), "2": json.RawMessage("20")}); err != nil {
		test.Fatalf("save: %v", err)
	}
	if got := server.HGet("whitelistd:whitelists/whitelist_th", "2"); got != "20" {
		test.Fatalf("expected hash field 2=20, got %q", got)
	}
	if err := collection.Save(ctx, map[string]json.RawMessage{"2": json.RawMessage("25")}); err != nil {
		test.Fatalf("second save: %v", err)
	}
	loaded, err := collection.Load(ctx)
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 || string(loaded["2"]) != "25" {
		test.Fatalf("unexpected records %v", loaded)
	}
}

func TestEmptySaveRemovesHash(test *testing.T) {
	test.Parallel()
	store, server := newTestStore(test, WithKeyPrefix("tenant:"))
	collection, err := store.Collection("users")
	if err != nil {
		test.Fatalf("collection: %v", err)
	}
	ctx := context.Background()
	if err := collection.Save(ctx, map[string]json.RawMessage{"a": json.RawMessage(`{"coins":1}`)}); err != nil {
		test.Fatalf("save: %v", err)
	}
	if err := collection.Save(ctx, nil); err != nil {
		test.Fatalf("empty save: %v", err)
	}
	if server.Exists("tenant:users") {
		test.Fatalf("expected hash to be removed")
	}
	loaded, err := collection.Load(ctx)
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		test.Fatalf("expected empty collection, got %v", loaded)
	}
}

func TestUnavailableServerIsStoreError(test *testing.T) {
	test.Parallel()
	store, server := newTestStore(test)
	collection, err := store.Collection("users")
	if err != nil {
		test.Fatalf("collection: %v", err)
	}
	server.Close()
	_, err = collection.Load(context.Background())
	var operationError whitelist.OperationError
	if !errors.As(err, &operationError) || operationError.Code() != errorCodeLoad {
		test.Fatalf("expected load operation error, got %v", err)
	}
}

func TestLedgerOverRedis(test *testing.T) {
	test.Parallel()
	store, _ := newTestStore(test)
	ledger, err := whitelist.NewCoinLedger(store, func() int64 { return 1 })
	if err != nil {
		test.Fatalf("ledger: %v", err)
	}
	userID, err := whitelist.NewUserID("viewer")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	reason, err := whitelist.NewReason("ad_view")
	if err != nil {
		test.Fatalf("reason: %v", err)
	}
	ctx := context.Background()
	for index := 0; index < 3; index++ {
		if _, err := ledger.Credit(ctx, userID, 10, reason); err != nil {
			test.Fatalf("credit: %v", err)
		}
	}
	balance, err := ledger.Balance(ctx, userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 30 {
		test.Fatalf("expected 30, got %d", balance)
	}
}
