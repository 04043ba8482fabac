package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
)

func mustProvider(test *testing.T) (*Provider, string) {
	test.Helper()
	dir := test.TempDir()
	provider, err := New(dir)
	if err != nil {
		test.Fatalf("new provider: %v", err)
	}
	return provider, dir
}

func mustCollection(test *testing.T, provider *Provider, name string) whitelist.RecordStore {
	test.Helper()
	store, err := provider.Collection(name)
	if err != nil {
		test.Fatalf("collection %s: %v", name, err)
	}
	return store
}

func TestLoadMissingCollectionIsEmpty(test *testing.T) {
	test.Parallel()
	provider, _ := mustProvider(test)
	records, err := mustCollection(test, provider, "users").Load(context.Background())
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if len(records) != 0 {
		test.Fatalf("expected empty collection, got %v", records)
	}
}

func TestSaveThenLoadRoundTrip(test *testing.T) {
	test.Parallel()
	provider, dir := mustProvider(test)
	store := mustCollection(test, provider, "whitelists/whitelist_ind")
	records := map[string]json.RawMessage{
		"12345": json.RawMessage("1700003600"),
		"777":   json.RawMessage("1700007200"),
	}
	if err := store.Save(context.Background(), records); err != nil {
		test.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "whitelists", "whitelist_ind.json")); err != nil {
		test.Fatalf("expected partition file on disk: %v", err)
	}
	loaded, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 || string(loaded["12345"]) != "1700003600" || string(loaded["777"]) != "1700007200" {
		test.Fatalf("unexpected records %v", loaded)
	}
}

func TestAccountDocumentRoundTripsByteForByte(test *testing.T) {
	test.Parallel()
	provider, dir := mustProvider(test)
	store := mustCollection(test, provider, "users")
	payload := `{"coins":5,"history":[{"action":"coins_add","amount":5,"reason":"ad_view","timestamp":1700000000}]}`
	if err := store.Save(context.Background(), map[string]json.RawMessage{"player": json.RawMessage(payload)}); err != nil {
		test.Fatalf("save: %v", err)
	}
	loaded, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if string(loaded["player"]) != payload {
		test.Fatalf("expected %s, got %s", payload, loaded["player"])
	}
	contents, err := os.ReadFile(filepath.Join(dir, "users.json"))
	if err != nil {
		test.Fatalf("read: %v", err)
	}
	if want := `{"player":` + payload + "}\n"; string(contents) != want {
		test.Fatalf("expected compact document %q, got %q", want, contents)
	}
}

func TestFailedSaveKeepsPreviousDocument(test *testing.T) {
	test.Parallel()
	provider, _ := mustProvider(test)
	store := mustCollection(test, provider, "users")
	original := map[string]json.RawMessage{"player": json.RawMessage(`{"coins":5,"history":[]}`)}
	if err := store.Save(context.Background(), original); err != nil {
		test.Fatalf("save: %v", err)
	}
	err := store.Save(context.Background(), map[string]json.RawMessage{"player": json.RawMessage(`{"coins":`)})
	if err == nil {
		test.Fatalf("expected malformed payload to fail")
	}
	var operationError whitelist.OperationError
	if !errors.As(err, &operationError) || operationError.Code() != errorCodeMarshal {
		test.Fatalf("expected marshal operation error, got %v", err)
	}
	loaded, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if string(loaded["player"]) != `{"coins":5,"history":[]}` {
		test.Fatalf("expected previous document, got %s", loaded["player"])
	}
}

func TestCorruptDocumentFailsToLoad(test *testing.T) {
	test.Parallel()
	provider, dir := mustProvider(test)
	if err := os.WriteFile(filepath.Join(dir, "users.json"), []byte("not json"), fileMode); err != nil {
		test.Fatalf("write: %v", err)
	}
	_, err := mustCollection(test, provider, "users").Load(context.Background())
	var operationError whitelist.OperationError
	if !errors.As(err, &operationError) || operationError.Code() != errorCodeParse {
		test.Fatalf("expected parse error, got %v", err)
	}
}

func TestCollectionRejectsTraversal(test *testing.T) {
	test.Parallel()
	provider, _ := mustProvider(test)
	for _, name := range []string{"", "/", "../users"} {
		if _, err := provider.Collection(name); !errors.Is(err, errInvalidCollection) {
			test.Fatalf("expected invalid collection for %q, got %v", name, err)
		}
	}
}

func TestServiceStatePersistsAcrossRestarts(test *testing.T) {
	test.Parallel()
	provider, dir := mustProvider(test)
	now := func() int64 { return 1_700_000_000 }
	service, err := whitelist.NewService(provider, now)
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	ctx := context.Background()
	userID, _ := whitelist.NewUserID("player")
	region, _ := whitelist.ParseRegion("IND")
	uid, _ := whitelist.NewUID("12345")
	ttl, _ := whitelist.NewTTLHours(1)
	if _, err := service.CreditCoins(ctx, userID, 100, whitelist.Reason{}); !errors.Is(err, whitelist.ErrInvalidReason) {
		test.Fatalf("expected zero reason to be rejected, got %v", err)
	}
	reason, _ := whitelist.NewReason("")
	if _, err := service.CreditCoins(ctx, userID, 100, reason); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if _, err := service.AddToWhitelist(ctx, userID, region, uid, ttl); err != nil {
		test.Fatalf("add: %v", err)
	}

	reopened, err := New(dir)
	if err != nil {
		test.Fatalf("reopen: %v", err)
	}
	restarted, err := whitelist.NewService(reopened, now)
	if err != nil {
		test.Fatalf("restarted service: %v", err)
	}
	result, err := restarted.CheckWhitelist(ctx, uid, region)
	if err != nil {
		test.Fatalf("check: %v", err)
	}
	if !result.Whitelisted || result.ExpiresAtUnixUTC != 1_700_003_600 {
		test.Fatalf("unexpected check result %+v", result)
	}
	balance, err := restarted.Balance(ctx, userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		test.Fatalf("expected balance 0, got %d", balance)
	}
}
