package whitelist

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// CoinLedger keeps per-user balances and their append-only history.
type CoinLedger struct {
	mutex    sync.Mutex
	accounts durableMap[account]
	nowFn    func() int64
	logger   OperationLogger
}

// NewCoinLedger wires a CoinLedger over the accounts collection of provider.
func NewCoinLedger(provider StoreProvider, now func() int64, optionList ...Option) (*CoinLedger, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: store provider is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	store, err := provider.Collection(AccountsCollection())
	if err != nil {
		return nil, fmt.Errorf("%w: accounts: %v", ErrInvalidServiceConfig, err)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: accounts store is nil", ErrInvalidServiceConfig)
	}
	resolved := applyOptions(optionList)
	return &CoinLedger{
		accounts: durableMap[account]{
			store:   store,
			codec:   accountCodec,
			subject: errorSubjectAccounts,
		},
		nowFn:  now,
		logger: resolved.logger,
	}, nil
}

// Balance returns the user's coins, zero for users never seen.
func (ledger *CoinLedger) Balance(ctx context.Context, userID UserID) (Coins, error) {
	if userID.String() == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	accounts, err := ledger.accounts.load(ctx)
	if err != nil {
		return 0, err
	}
	return Coins(accounts[userID.String()].coins), nil
}

// Credit adds amount coins to the user's balance.
func (ledger *CoinLedger) Credit(ctx context.Context, userID UserID, amount CoinAmount, reason Reason) (Coins, error) {
	var balance Coins
	operationError := func() error {
		if userID.String() == "" {
			return fmt.Errorf("%w: empty value", ErrInvalidUserID)
		}
		if amount <= 0 || amount.Int64() > MaxCreditCoins {
			return fmt.Errorf("%w: must be between 1 and %d", ErrInvalidCoinAmount, MaxCreditCoins)
		}
		if reason.String() == "" {
			return fmt.Errorf("%w: empty value", ErrInvalidReason)
		}
		ledger.mutex.Lock()
		defer ledger.mutex.Unlock()
		accounts, err := ledger.accounts.load(ctx)
		if err != nil {
			return err
		}
		current := accounts[userID.String()]
		current.coins += amount.Int64()
		current.history = append(current.history, LedgerEntry{
			EntryID:          uuid.NewString(),
			Action:           ActionCoinsCredit,
			Amount:           amount.Int64(),
			Reason:           reason.String(),
			TimestampUnixUTC: ledger.nowFn(),
		})
		accounts[userID.String()] = current
		if err := ledger.accounts.save(ctx, accounts); err != nil {
			return err
		}
		balance = Coins(current.coins)
		return nil
	}()
	logOperation(ctx, ledger.logger, OperationLog{
		Operation: operationCredit,
		UserID:    userID,
		Amount:    amount,
		Error:     operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return balance, nil
}

// Debit charges amount coins for purchase. The balance never goes negative.
func (ledger *CoinLedger) Debit(ctx context.Context, userID UserID, amount CoinAmount, purchase Purchase) (Coins, error) {
	var balance Coins
	operationError := func() error {
		if userID.String() == "" {
			return fmt.Errorf("%w: empty value", ErrInvalidUserID)
		}
		if amount <= 0 {
			return fmt.Errorf("%w: must be greater than zero", ErrInvalidCoinAmount)
		}
		ledger.mutex.Lock()
		defer ledger.mutex.Unlock()
		accounts, err := ledger.accounts.load(ctx)
		if err != nil {
			return err
		}
		current := accounts[userID.String()]
		if current.coins < amount.Int64() {
			return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, amount.Int64(), current.coins)
		}
		current.coins -= amount.Int64()
		current.history = append(current.history, LedgerEntry{
			EntryID:          uuid.NewString(),
			Action:           ActionWhitelistAdd,
			Amount:           amount.Int64(),
			Region:           purchase.Region.String(),
			UID:              purchase.UID.String(),
			Hours:            purchase.TTL.Hours(),
			TimestampUnixUTC: ledger.nowFn(),
		})
		accounts[userID.String()] = current
		if err := ledger.accounts.save(ctx, accounts); err != nil {
			return err
		}
		balance = Coins(current.coins)
		return nil
	}()
	logOperation(ctx, ledger.logger, OperationLog{
		Operation: operationDebit,
		UserID:    userID,
		Region:    purchase.Region,
		UID:       purchase.UID,
		Amount:    amount,
		Error:     operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return balance, nil
}

// History returns the user's ledger entries, oldest first.
func (ledger *CoinLedger) History(ctx context.Context, userID UserID) ([]LedgerEntry, error) {
	if userID.String() == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	accounts, err := ledger.accounts.load(ctx)
	if err != nil {
		return nil, err
	}
	stored := accounts[userID.String()].history
	history := make([]LedgerEntry, len(stored))
	copy(history, stored)
	return history, nil
}

// Summary counts accounts and the coins they hold.
func (ledger *CoinLedger) Summary(ctx context.Context) (LedgerSummary, error) {
	accounts, err := ledger.accounts.load(ctx)
	if err != nil {
		return LedgerSummary{}, err
	}
	summary := LedgerSummary{TotalUsers: len(accounts)}
	for _, stored := range accounts {
		summary.TotalCoins += stored.coins
	}
	return summary, nil
}

// Bootstrap makes sure the accounts collection exists.
func (ledger *CoinLedger) Bootstrap(ctx context.Context) error {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()
	accounts, err := ledger.accounts.load(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap accounts: %w", err)
	}
	if err := ledger.accounts.save(ctx, accounts); err != nil {
		return fmt.Errorf("bootstrap accounts: %w", err)
	}
	return nil
}
