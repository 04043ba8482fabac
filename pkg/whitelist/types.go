package whitelist

import (
	"fmt"
	"strings"
)

// UID is a numeric player identifier.
type UID struct {
	value string
}

// UserID identifies a coin account owner. It is opaque to the core.
type UserID struct {
	value string
}

// TTL is a bounded entry lifetime in seconds.
type TTL struct {
	seconds int64
}

// CoinAmount is a strictly positive number of coins.
type CoinAmount int64

// Coins is a non-negative coin balance.
type Coins int64

// Reason annotates a credit.
type Reason struct {
	value string
}

// NewUID validates a numeric uid.
func NewUID(raw string) (UID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UID{}, fmt.Errorf("%w: empty value", ErrInvalidUID)
	}
	for _, character := range trimmed {
		if character < '0' || character > '9' {
			return UID{}, fmt.Errorf("%w: must contain digits only", ErrInvalidUID)
		}
	}
	return UID{value: trimmed}, nil
}

// String returns the normalized uid.
func (uid UID) String() string {
	return uid.value
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewTTLSeconds validates a lifetime expressed in seconds.
func NewTTLSeconds(seconds int64) (TTL, error) {
	if seconds < 1 || seconds > MaxTTLHours*secondsPerHour {
		return TTL{}, fmt.Errorf("%w: seconds must be between 1 and %d", ErrInvalidTTL, MaxTTLHours*secondsPerHour)
	}
	return TTL{seconds: seconds}, nil
}

// NewTTLHours validates a lifetime expressed in whole hours.
func NewTTLHours(hours int64) (TTL, error) {
	if hours < 1 || hours > MaxTTLHours {
		return TTL{}, fmt.Errorf("%w: hours must be between 1 and %d", ErrInvalidTTL, MaxTTLHours)
	}
	return TTL{seconds: hours * secondsPerHour}, nil
}

// Seconds returns the lifetime in seconds.
func (ttl TTL) Seconds() int64 {
	return ttl.seconds
}

// Hours returns the lifetime in whole hours, rounded down.
func (ttl TTL) Hours() int64 {
	return ttl.seconds / secondsPerHour
}

// NewCoinAmount validates an amount and ensures it is strictly positive.
func NewCoinAmount(raw int64) (CoinAmount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidCoinAmount)
	}
	return CoinAmount(raw), nil
}

// NewCreditAmount validates an amount for a single credit call.
func NewCreditAmount(raw int64) (CoinAmount, error) {
	amount, err := NewCoinAmount(raw)
	if err != nil {
		return 0, err
	}
	if raw > MaxCreditCoins {
		return 0, fmt.Errorf("%w: must not exceed %d", ErrInvalidCoinAmount, MaxCreditCoins)
	}
	return amount, nil
}

// Int64 returns the raw amount.
func (amount CoinAmount) Int64() int64 {
	return int64(amount)
}

// Int64 returns the raw balance.
func (coins Coins) Int64() int64 {
	return int64(coins)
}

// NewReason normalizes a credit reason, falling back to DefaultCreditReason.
func NewReason(raw string) (Reason, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = DefaultCreditReason
	}
	if len(trimmed) > 128 {
		return Reason{}, fmt.Errorf("%w: longer than 128 bytes", ErrInvalidReason)
	}
	return Reason{value: trimmed}, nil
}

// String returns the normalized reason.
func (reason Reason) String() string {
	return reason.value
}

// Entry is one whitelisted uid in one partition.
type Entry struct {
	Region           Region
	UID              UID
	ExpiresAtUnixUTC int64
}

// EntryStatus is derived from the expiry at read time.
type EntryStatus string

const (
	EntryStatusActive  EntryStatus = "active"
	EntryStatusExpired EntryStatus = "expired"
)

// EntryView is a listed entry with its derived status.
type EntryView struct {
	Entry
	Status           EntryStatus
	RemainingSeconds int64
}

// CheckResult answers whether a uid is currently whitelisted.
type CheckResult struct {
	Whitelisted      bool
	Region           Region
	ExpiresAtUnixUTC int64
	RemainingSeconds int64
}

// Action enumerates ledger entry kinds.
type Action string

const (
	ActionWhitelistAdd Action = "whitelist_add"
	ActionCoinsCredit  Action = "coins_add"
)

// LedgerEntry is a single immutable line in a user's history.
type LedgerEntry struct {
	EntryID          string
	Action           Action
	Amount           int64
	Region           string
	UID              string
	Hours            int64
	Reason           string
	TimestampUnixUTC int64
}

// Purchase describes what a debit paid for.
type Purchase struct {
	Region Region
	UID    UID
	TTL    TTL
}

// PaidEntry is the result of a successful paid whitelist add.
type PaidEntry struct {
	Entry
	Cost           CoinAmount
	CoinsRemaining Coins
}

// LedgerSummary aggregates every account.
type LedgerSummary struct {
	TotalUsers int
	TotalCoins int64
}

// Stats aggregates partitions and accounts.
type Stats struct {
	TotalWhitelisted   int
	ActiveWhitelisted  int
	ExpiredWhitelisted int
	TotalUsers         int
	TotalCoins         int64
}
