package whitelist

const (
	operationAdd     = "add"
	operationRemove  = "remove"
	operationSweep   = "sweep"
	operationCredit  = "credit"
	operationDebit   = "debit"
	operationPayAdd  = "pay_and_whitelist"
	operationCleanup = "cleanup"

	operationStatusOK      = "ok"
	operationStatusError   = "error"
	operationStatusPartial = "partial"

	errorOperationStore   = "store"
	errorSubjectPartition = "partition"
	errorSubjectAccounts  = "accounts"
	errorCodeLoad         = "load"
	errorCodeSave         = "save"
	errorCodeDecode       = "decode"
	errorCodeEncode       = "encode"

	// MaxTTLHours bounds how far into the future an entry may expire.
	MaxTTLHours int64 = 720
	// DefaultTTLHours is applied by shells when the caller omits a duration.
	DefaultTTLHours int64 = 24
	// DefaultCoinCost is the price of one paid whitelist add.
	DefaultCoinCost int64 = 100
	// MaxCreditCoins bounds a single credit call.
	MaxCreditCoins int64 = 1000
	// DefaultCreditReason is recorded when a credit carries no reason.
	DefaultCreditReason = "ad_view"

	secondsPerHour int64 = 3600

	accountsCollection        = "users"
	partitionCollectionPrefix = "whitelists/whitelist_"
)
