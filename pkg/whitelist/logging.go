package whitelist

import "context"

// Option configures the services in this package.
type Option func(*options)

type options struct {
	logger   OperationLogger
	coinCost CoinAmount
}

func applyOptions(optionList []Option) options {
	resolved := options{coinCost: CoinAmount(DefaultCoinCost)}
	for _, option := range optionList {
		if option != nil {
			option(&resolved)
		}
	}
	return resolved
}

// OperationLogger records domain-level events emitted by state-changing operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing operation.
type OperationLog struct {
	Operation string
	UserID    UserID
	Region    Region
	UID       UID
	Amount    CoinAmount
	Count     int
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) Option {
	return func(resolved *options) {
		resolved.logger = logger
	}
}

// WithCoinCost overrides the price of a paid whitelist add.
func WithCoinCost(cost CoinAmount) Option {
	return func(resolved *options) {
		resolved.coinCost = cost
	}
}

func logOperation(ctx context.Context, logger OperationLogger, entry OperationLog) {
	if logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	logger.LogOperation(ctx, entry)
}
