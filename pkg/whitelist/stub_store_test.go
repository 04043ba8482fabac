package whitelist

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
)

type stubRecordStore struct {
	mutex     sync.Mutex
	records   map[string]json.RawMessage
	loadError error
	saveError error
	loads     int
	saves     int
}

func (store *stubRecordStore) Load(_ context.Context) (map[string]json.RawMessage, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.loads++
	if store.loadError != nil {
		return nil, store.loadError
	}
	copied := make(map[string]json.RawMessage, len(store.records))
	for key, payload := range store.records {
		copied[key] = payload
	}
	return copied, nil
}

func (store *stubRecordStore) Save(_ context.Context, records map[string]json.RawMessage) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.saves++
	if store.saveError != nil {
		return store.saveError
	}
	store.records = make(map[string]json.RawMessage, len(records))
	for key, payload := range records {
		store.records[key] = payload
	}
	return nil
}

func (store *stubRecordStore) counts() (int, int) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.loads, store.saves
}

type stubProvider struct {
	collections map[string]*stubRecordStore
}

func newStubProvider(test *testing.T) *stubProvider {
	test.Helper()
	provider := &stubProvider{collections: make(map[string]*stubRecordStore)}
	for _, region := range AllRegions() {
		provider.collections[PartitionCollection(region)] = &stubRecordStore{}
	}
	provider.collections[AccountsCollection()] = &stubRecordStore{}
	return provider
}

func (provider *stubProvider) Collection(name string) (RecordStore, error) {
	return provider.collections[name], nil
}

func (provider *stubProvider) partition(region Region) *stubRecordStore {
	return provider.collections[PartitionCollection(region)]
}

func (provider *stubProvider) accounts() *stubRecordStore {
	return provider.collections[AccountsCollection()]
}

type fakeClock struct {
	mutex sync.Mutex
	now   int64
}

func newFakeClock(start int64) *fakeClock {
	return &fakeClock{now: start}
}

func (clock *fakeClock) Now() int64 {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func (clock *fakeClock) Advance(seconds int64) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.now += seconds
}

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) operations(name string) []OperationLog {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	matched := make([]OperationLog, 0)
	for _, entry := range logger.entries {
		if entry.Operation == name {
			matched = append(matched, entry)
		}
	}
	return matched
}

func mustWhitelistService(test *testing.T, provider StoreProvider, clock *fakeClock, optionList ...Option) *WhitelistService {
	test.Helper()
	service, err := NewWhitelistService(provider, clock.Now, optionList...)
	if err != nil {
		test.Fatalf("whitelist service: %v", err)
	}
	return service
}

func mustCoinLedger(test *testing.T, provider StoreProvider, clock *fakeClock, optionList ...Option) *CoinLedger {
	test.Helper()
	ledger, err := NewCoinLedger(provider, clock.Now, optionList...)
	if err != nil {
		test.Fatalf("coin ledger: %v", err)
	}
	return ledger
}

func mustNewService(test *testing.T, provider StoreProvider, clock *fakeClock, optionList ...Option) *Service {
	test.Helper()
	service, err := NewService(provider, clock.Now, optionList...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustRegion(test *testing.T, raw string) Region {
	test.Helper()
	region, err := ParseRegion(raw)
	if err != nil {
		test.Fatalf("region: %v", err)
	}
	return region
}

func mustUID(test *testing.T, raw string) UID {
	test.Helper()
	uid, err := NewUID(raw)
	if err != nil {
		test.Fatalf("uid: %v", err)
	}
	return uid
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustTTLSeconds(test *testing.T, seconds int64) TTL {
	test.Helper()
	ttl, err := NewTTLSeconds(seconds)
	if err != nil {
		test.Fatalf("ttl: %v", err)
	}
	return ttl
}

func mustCoinAmount(test *testing.T, raw int64) CoinAmount {
	test.Helper()
	amount, err := NewCoinAmount(raw)
	if err != nil {
		test.Fatalf("coin amount: %v", err)
	}
	return amount
}

func mustReason(test *testing.T, raw string) Reason {
	test.Helper()
	reason, err := NewReason(raw)
	if err != nil {
		test.Fatalf("reason: %v", err)
	}
	return reason
}

func mustCredit(test *testing.T, ledger *CoinLedger, userID UserID, amount int64) Coins {
	test.Helper()
	balance, err := ledger.Credit(context.Background(), userID, mustCoinAmount(test, amount), mustReason(test, "test"))
	if err != nil {
		test.Fatalf("credit: %v", err)
	}
	return balance
}
