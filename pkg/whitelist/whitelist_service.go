package whitelist

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// WhitelistService owns the per-region TTL partitions.
type WhitelistService struct {
	partitions map[Region]*partition
	nowFn      func() int64
	logger     OperationLogger
}

// partition serializes load-mutate-save cycles on one region.
type partition struct {
	region  Region
	mutex   sync.Mutex
	records durableMap[int64]
}

// NewWhitelistService wires one partition per registered region.
func NewWhitelistService(provider StoreProvider, now func() int64, optionList ...Option) (*WhitelistService, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: store provider is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	resolved := applyOptions(optionList)
	service := &WhitelistService{
		partitions: make(map[Region]*partition, len(regionRegistry)),
		nowFn:      now,
		logger:     resolved.logger,
	}
	for _, region := range AllRegions() {
		store, err := provider.Collection(PartitionCollection(region))
		if err != nil {
			return nil, fmt.Errorf("%w: partition %s: %v", ErrInvalidServiceConfig, region, err)
		}
		if store == nil {
			return nil, fmt.Errorf("%w: partition %s store is nil", ErrInvalidServiceConfig, region)
		}
		service.partitions[region] = &partition{
			region: region,
			records: durableMap[int64]{
				store:   store,
				codec:   expiryCodec,
				subject: errorSubjectPartition,
			},
		}
	}
	return service, nil
}

// Add whitelists uid in region until now+ttl, replacing any existing entry.
func (service *WhitelistService) Add(ctx context.Context, region Region, uid UID, ttl TTL) (Entry, error) {
	var entry Entry
	operationError := func() error {
		target, err := service.partition(region)
		if err != nil {
			return err
		}
		if uid.String() == "" {
			return fmt.Errorf("%w: empty value", ErrInvalidUID)
		}
		if ttl.Seconds() <= 0 {
			return fmt.Errorf("%w: zero lifetime", ErrInvalidTTL)
		}
		target.mutex.Lock()
		defer target.mutex.Unlock()
		records, err := target.records.load(ctx)
		if err != nil {
			return err
		}
		expiresAt := service.nowFn() + ttl.Seconds()
		records[uid.String()] = expiresAt
		if err := target.records.save(ctx, records); err != nil {
			return err
		}
		entry = Entry{Region: region, UID: uid, ExpiresAtUnixUTC: expiresAt}
		return nil
	}()
	logOperation(ctx, service.logger, OperationLog{
		Operation: operationAdd,
		Region:    region,
		UID:       uid,
		Error:     operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return entry, nil
}

// Remove deletes uid from region.
func (service *WhitelistService) Remove(ctx context.Context, region Region, uid UID) error {
	operationError := func() error {
		target, err := service.partition(region)
		if err != nil {
			return err
		}
		if uid.String() == "" {
			return fmt.Errorf("%w: empty value", ErrInvalidUID)
		}
		target.mutex.Lock()
		defer target.mutex.Unlock()
		records, err := target.records.load(ctx)
		if err != nil {
			return err
		}
		if _, ok := records[uid.String()]; !ok {
			return fmt.Errorf("%w: uid %s in %s", ErrUIDNotFound, uid, region)
		}
		delete(records, uid.String())
		return target.records.save(ctx, records)
	}()
	logOperation(ctx, service.logger, OperationLog{
		Operation: operationRemove,
		Region:    region,
		UID:       uid,
		Error:     operationError,
	})
	return operationError
}

// Check reports whether uid is active in region, or in the first region of the
// registry that holds an active entry when region is AnyRegion. Expired entries
// are reported as not whitelisted and left in place.
func (service *WhitelistService) Check(ctx context.Context, uid UID, region Region) (CheckResult, error) {
	if uid.String() == "" {
		return CheckResult{}, fmt.Errorf("%w: empty value", ErrInvalidUID)
	}
	regions, err := service.selectRegions(region)
	if err != nil {
		return CheckResult{}, err
	}
	nowUnixUTC := service.nowFn()
	for _, candidate := range regions {
		records, err := service.partitions[candidate].records.load(ctx)
		if err != nil {
			return CheckResult{}, err
		}
		expiresAt, ok := records[uid.String()]
		if !ok || expiresAt <= nowUnixUTC {
			continue
		}
		return CheckResult{
			Whitelisted:      true,
			Region:           candidate,
			ExpiresAtUnixUTC: expiresAt,
			RemainingSeconds: expiresAt - nowUnixUTC,
		}, nil
	}
	return CheckResult{Whitelisted: false}, nil
}

// List returns entries of region (or all regions) sorted by expiry, soonest first.
func (service *WhitelistService) List(ctx context.Context, region Region) ([]EntryView, error) {
	regions, err := service.selectRegions(region)
	if err != nil {
		return nil, err
	}
	nowUnixUTC := service.nowFn()
	views := make([]EntryView, 0)
	for _, candidate := range regions {
		records, err := service.partitions[candidate].records.load(ctx)
		if err != nil {
			return nil, err
		}
		for rawUID, expiresAt := range records {
			views = append(views, newEntryView(candidate, UID{value: rawUID}, expiresAt, nowUnixUTC))
		}
	}
	sort.Slice(views, func(left, right int) bool {
		if views[left].ExpiresAtUnixUTC != views[right].ExpiresAtUnixUTC {
			return views[left].ExpiresAtUnixUTC < views[right].ExpiresAtUnixUTC
		}
		if views[left].Region != views[right].Region {
			return views[left].Region.order() < views[right].Region.order()
		}
		return views[left].UID.String() < views[right].UID.String()
	})
	return views, nil
}

// Sweep removes every entry of region whose expiry is at or before now.
func (service *WhitelistService) Sweep(ctx context.Context, region Region) (int, error) {
	removed := 0
	operationError := func() error {
		target, err := service.partition(region)
		if err != nil {
			return err
		}
		target.mutex.Lock()
		defer target.mutex.Unlock()
		records, err := target.records.load(ctx)
		if err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		expired := 0
		for rawUID, expiresAt := range records {
			if expiresAt <= nowUnixUTC {
				delete(records, rawUID)
				expired++
			}
		}
		if expired == 0 {
			return nil
		}
		if err := target.records.save(ctx, records); err != nil {
			return err
		}
		removed = expired
		return nil
	}()
	logOperation(ctx, service.logger, OperationLog{
		Operation: operationSweep,
		Region:    region,
		Count:     removed,
		Error:     operationError,
	})
	return removed, operationError
}

// Bootstrap rewrites every partition through a load-save cycle so missing
// collections come into existence empty.
func (service *WhitelistService) Bootstrap(ctx context.Context) error {
	for _, region := range AllRegions() {
		target := service.partitions[region]
		if err := func() error {
			target.mutex.Lock()
			defer target.mutex.Unlock()
			records, err := target.records.load(ctx)
			if err != nil {
				return err
			}
			return target.records.save(ctx, records)
		}(); err != nil {
			return fmt.Errorf("bootstrap %s: %w", region, err)
		}
	}
	return nil
}

func (service *WhitelistService) partition(region Region) (*partition, error) {
	target, ok := service.partitions[region]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRegion, region.String())
	}
	return target, nil
}

func (service *WhitelistService) selectRegions(region Region) ([]Region, error) {
	if region.IsAny() {
		return AllRegions(), nil
	}
	if _, err := service.partition(region); err != nil {
		return nil, err
	}
	return []Region{region}, nil
}

func newEntryView(region Region, uid UID, expiresAt int64, nowUnixUTC int64) EntryView {
	view := EntryView{
		Entry:  Entry{Region: region, UID: uid, ExpiresAtUnixUTC: expiresAt},
		Status: EntryStatusExpired,
	}
	if expiresAt > nowUnixUTC {
		view.Status = EntryStatusActive
		view.RemainingSeconds = expiresAt - nowUnixUTC
	}
	return view
}
