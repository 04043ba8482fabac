package whitelist

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var jsonNull = []byte("null")

// accountRecord is the stored shape of one user account.
type accountRecord struct {
	Coins   *int64              `json:"coins"`
	History []ledgerEntryRecord `json:"history"`
}

type ledgerEntryRecord struct {
	EntryID   string `json:"entry_id,omitempty"`
	Action    string `json:"action"`
	Amount    int64  `json:"amount,omitempty"`
	Cost      int64  `json:"cost,omitempty"`
	Region    string `json:"region,omitempty"`
	UID       string `json:"uid,omitempty"`
	Hours     int64  `json:"hours,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

var expiryCodec = recordCodec[int64]{
	decode: decodeExpiry,
	encode: func(expiresAt int64) (json.RawMessage, error) {
		return json.Marshal(expiresAt)
	},
}

var accountCodec = recordCodec[account]{
	decode: decodeAccount,
	encode: encodeAccount,
}

func decodeExpiry(payload json.RawMessage) (int64, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		return 0, fmt.Errorf("%w: missing expiry", ErrMalformedRecord)
	}
	var expiresAt int64
	if err := json.Unmarshal(trimmed, &expiresAt); err != nil {
		return 0, fmt.Errorf("%w: expiry must be an integer: %v", ErrMalformedRecord, err)
	}
	if expiresAt <= 0 {
		return 0, fmt.Errorf("%w: expiry must be positive", ErrMalformedRecord)
	}
	return expiresAt, nil
}

// account is the in-memory form of one user account.
type account struct {
	coins   int64
	history []LedgerEntry
}

func decodeAccount(payload json.RawMessage) (account, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		return account{}, fmt.Errorf("%w: missing account", ErrMalformedRecord)
	}
	var record accountRecord
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return account{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if record.Coins == nil {
		return account{}, fmt.Errorf("%w: missing coins", ErrMalformedRecord)
	}
	if *record.Coins < 0 {
		return account{}, fmt.Errorf("%w: negative coins", ErrMalformedRecord)
	}
	history := make([]LedgerEntry, 0, len(record.History))
	for position, entryRecord := range record.History {
		action := Action(entryRecord.Action)
		if action != ActionWhitelistAdd && action != ActionCoinsCredit {
			return account{}, fmt.Errorf("%w: history[%d] has unknown action %q", ErrMalformedRecord, position, entryRecord.Action)
		}
		amount := entryRecord.Amount
		if amount == 0 {
			amount = entryRecord.Cost
		}
		history = append(history, LedgerEntry{
			EntryID:          entryRecord.EntryID,
			Action:           action,
			Amount:           amount,
			Region:           entryRecord.Region,
			UID:              entryRecord.UID,
			Hours:            entryRecord.Hours,
			Reason:           entryRecord.Reason,
			TimestampUnixUTC: entryRecord.Timestamp,
		})
	}
	return account{coins: *record.Coins, history: history}, nil
}

func encodeAccount(value account) (json.RawMessage, error) {
	coins := value.coins
	record := accountRecord{
		Coins:   &coins,
		History: make([]ledgerEntryRecord, 0, len(value.history)),
	}
	for _, entry := range value.history {
		record.History = append(record.History, ledgerEntryRecord{
			EntryID:   entry.EntryID,
			Action:    string(entry.Action),
			Amount:    entry.Amount,
			Region:    entry.Region,
			UID:       entry.UID,
			Hours:     entry.Hours,
			Reason:    entry.Reason,
			Timestamp: entry.TimestampUnixUTC,
		})
	}
	return json.Marshal(record)
}
