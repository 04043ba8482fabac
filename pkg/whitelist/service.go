package whitelist

import (
	"context"
	"errors"
	"fmt"
)

// Service is the core surface consumed by transport shells. It composes the
// whitelist partitions with the coin ledger for paid adds.
type Service struct {
	whitelist *WhitelistService
	ledger    *CoinLedger
	coinCost  CoinAmount
	logger    OperationLogger
}

// NewService wires the whitelist partitions and the coin ledger over provider.
func NewService(provider StoreProvider, now func() int64, optionList ...Option) (*Service, error) {
	whitelistService, err := NewWhitelistService(provider, now, optionList...)
	if err != nil {
		return nil, err
	}
	coinLedger, err := NewCoinLedger(provider, now, optionList...)
	if err != nil {
		return nil, err
	}
	return NewServiceFrom(whitelistService, coinLedger, optionList...)
}

// NewServiceFrom composes already constructed services.
func NewServiceFrom(whitelistService *WhitelistService, coinLedger *CoinLedger, optionList ...Option) (*Service, error) {
	if whitelistService == nil {
		return nil, fmt.Errorf("%w: whitelist service is nil", ErrInvalidServiceConfig)
	}
	if coinLedger == nil {
		return nil, fmt.Errorf("%w: coin ledger is nil", ErrInvalidServiceConfig)
	}
	resolved := applyOptions(optionList)
	if resolved.coinCost <= 0 {
		return nil, fmt.Errorf("%w: coin cost must be positive", ErrInvalidServiceConfig)
	}
	return &Service{
		whitelist: whitelistService,
		ledger:    coinLedger,
		coinCost:  resolved.coinCost,
		logger:    resolved.logger,
	}, nil
}

// CoinCost returns the configured price of one paid add.
func (service *Service) CoinCost() CoinAmount {
	return service.coinCost
}

// PayAndWhitelist checks the balance, whitelists uid, then debits cost.
//
// When the debit fails after the whitelist write landed, the entry stays active
// and a *PartialSuccessError is returned. The two resources are persisted
// independently and no lock spans both.
func (service *Service) PayAndWhitelist(ctx context.Context, userID UserID, region Region, uid UID, ttl TTL, cost CoinAmount) (PaidEntry, error) {
	var paid PaidEntry
	operationError := func() error {
		if cost <= 0 {
			return fmt.Errorf("%w: cost must be greater than zero", ErrInvalidCoinAmount)
		}
		if _, err := service.whitelist.partition(region); err != nil {
			return err
		}
		balance, err := service.ledger.Balance(ctx, userID)
		if err != nil {
			return err
		}
		if balance.Int64() < cost.Int64() {
			return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, cost.Int64(), balance.Int64())
		}
		entry, err := service.whitelist.Add(ctx, region, uid, ttl)
		if err != nil {
			return err
		}
		remaining, err := service.ledger.Debit(ctx, userID, cost, Purchase{Region: region, UID: uid, TTL: ttl})
		if err != nil {
			return &PartialSuccessError{
				Entry:       entry,
				Whitelisted: true,
				Charged:     false,
				Cause:       err,
			}
		}
		paid = PaidEntry{Entry: entry, Cost: cost, CoinsRemaining: remaining}
		return nil
	}()
	logEntry := OperationLog{
		Operation: operationPayAdd,
		UserID:    userID,
		Region:    region,
		UID:       uid,
		Amount:    cost,
		Error:     operationError,
	}
	if errors.Is(operationError, ErrPartialSuccess) {
		logEntry.Status = operationStatusPartial
	}
	logOperation(ctx, service.logger, logEntry)
	if operationError != nil {
		return PaidEntry{}, operationError
	}
	return paid, nil
}

// AddToWhitelist is PayAndWhitelist at the configured coin cost.
func (service *Service) AddToWhitelist(ctx context.Context, userID UserID, region Region, uid UID, ttl TTL) (PaidEntry, error) {
	return service.PayAndWhitelist(ctx, userID, region, uid, ttl, service.coinCost)
}

// RemoveFromWhitelist deletes uid from region.
func (service *Service) RemoveFromWhitelist(ctx context.Context, region Region, uid UID) error {
	return service.whitelist.Remove(ctx, region, uid)
}

// ListWhitelist lists entries of region, or of every region for AnyRegion.
func (service *Service) ListWhitelist(ctx context.Context, region Region) ([]EntryView, error) {
	return service.whitelist.List(ctx, region)
}

// CheckWhitelist reports whether uid is currently whitelisted.
func (service *Service) CheckWhitelist(ctx context.Context, uid UID, region Region) (CheckResult, error) {
	return service.whitelist.Check(ctx, uid, region)
}

// Balance returns the user's coins.
func (service *Service) Balance(ctx context.Context, userID UserID) (Coins, error) {
	return service.ledger.Balance(ctx, userID)
}

// CreditCoins adds coins to the user's balance.
func (service *Service) CreditCoins(ctx context.Context, userID UserID, amount CoinAmount, reason Reason) (Coins, error) {
	return service.ledger.Credit(ctx, userID, amount, reason)
}

// History returns the user's ledger entries, oldest first.
func (service *Service) History(ctx context.Context, userID UserID) ([]LedgerEntry, error) {
	return service.ledger.History(ctx, userID)
}

// CleanupExpired sweeps every partition in registry order. A failing partition
// does not stop the remaining ones; failures are joined in the returned error.
func (service *Service) CleanupExpired(ctx context.Context) (int, error) {
	total := 0
	var failures []error
	for _, region := range AllRegions() {
		removed, err := service.whitelist.Sweep(ctx, region)
		if err != nil {
			failures = append(failures, fmt.Errorf("sweep %s: %w", region, err))
			continue
		}
		total += removed
	}
	operationError := errors.Join(failures...)
	logOperation(ctx, service.logger, OperationLog{
		Operation: operationCleanup,
		Count:     total,
		Error:     operationError,
	})
	return total, operationError
}

// Stats aggregates every partition and account.
func (service *Service) Stats(ctx context.Context) (Stats, error) {
	views, err := service.whitelist.List(ctx, AnyRegion)
	if err != nil {
		return Stats{}, err
	}
	summary, err := service.ledger.Summary(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		TotalWhitelisted: len(views),
		TotalUsers:       summary.TotalUsers,
		TotalCoins:       summary.TotalCoins,
	}
	for _, view := range views {
		if view.Status == EntryStatusActive {
			stats.ActiveWhitelisted++
		}
	}
	stats.ExpiredWhitelisted = stats.TotalWhitelisted - stats.ActiveWhitelisted
	return stats, nil
}

// Bootstrap creates empty partitions and the accounts collection where missing.
func (service *Service) Bootstrap(ctx context.Context) error {
	if err := service.whitelist.Bootstrap(ctx); err != nil {
		return err
	}
	return service.ledger.Bootstrap(ctx)
}
