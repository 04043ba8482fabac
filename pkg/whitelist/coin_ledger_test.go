package whitelist

import (
	"context"
	"errors"
	"testing"
)

func TestCreditThenDebitConservesBalance(test *testing.T) {
	test.Parallel()
	provider := newStubProvider(test)
	clock := newFakeClock(startUnixUTC)
	ledger := mustCoinLedger(test, provider, clock)
	userID := mustUserID(test, "player-1")
	ctx := context.Background()

	original := mustCredit(test, ledger, userID, 40)
	afterCredit := mustCredit(test, ledger, userID, 60)
	if afterCredit != original+60 {
		test.Fatalf("expected %d, got %d", original+60, afterCredit)
	}
	afterDebit, err := ledger.Debit(ctx, userID, mustCoinAmount(test, 60), Purchase{})
	if err != nil {
		test.Fatalf("debit: %v", err)
	}
	if afterDebit != original {
		test.Fatalf("expected balance to return to %d, got %d", original, afterDebit)
	}
}

func TestDebitRejectsInsufficientFunds(test *testing.T) {
	test.Parallel()
	provider := newStubProvider(test)
	clock := newFakeClock(startUnixUTC)
	ledger := mustCoinLedger(test, provider, clock)
	userID := mustUserID(test, "player-2")
	ctx := context.Background()

	mustCredit(test, ledger, userID, 99)
	_, savesBefore := provider.accounts().counts()
	_, err := ledger.Debit(ctx, userID, mustCoinAmount(test, 100), Purchase{})
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	_, savesAfter := provider.accounts().counts()
	if savesAfter != savesBefore {
		test.Fatalf("rejected debit must not persist")
	}
	balance, err := ledger.Balance(ctx, userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 99 {
		test.Fatalf("expected unchanged balance 99, got %d", balance)
	}
}

func TestBalanceOfUnknownUserIsZeroWithoutCreation(test *testing.T) {
	test.Parallel()
	provider := newStubProvider(test)
	clock := newFakeClock(startUnixUTC)
	ledger := mustCoinLedger(test, provider, clock)

	balance, err := ledger.Balance(context.Background(), mustUserID(test, "ghost"))
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		test.Fatalf("expected 0, got %d", balance)
	}
	history, err := ledger.History(context.Background(), mustUserID(test, "ghost"))
	if err != nil {
		test.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		test.Fatalf("expected empty history, got %+v", history)
	}
	if _, saves := provider.accounts().counts(); saves != 0 {
		test.Fatalf("reads must not persist, got %d saves", saves)
	}
}

func TestHistoryKeepsInsertionOrder(test *testing.T) {
	test.Parallel()
	provider := newStubProvider(test)
	clock := newFakeClock(startUnixUTC)
	ledger := mustCoinLedger(test, provider, clock)
	userID := mustUserID(test, "player-3")
	ctx := context.Background()
	purchase := Purchase{Region: mustRegion(test, "BD"), UID: mustUID(test, "55"), TTL: TTL{seconds: 48 * 3600}}

	mustCredit(test, ledger, userID, 500)
	clock.Advance(-100)
	if _, err := ledger.Debit(ctx, userID, mustCoinAmount(test, 100), purchase); err != nil {
		test.Fatalf("debit: %v", err)
	}
	clock.Advance(50)
	mustCredit(test, ledger, userID, 5)

	history, err := ledger.History(ctx, userID)
	if err != nil {
		test.Fatalf("history: %v", err)
	}
	expectedActions := []Action{ActionCoinsCredit, ActionWhitelistAdd, ActionCoinsCredit}
	if len(history) != len(expectedActions) {
		test.Fatalf("expected %d entries, got %d", len(expectedActions), len(history))
	}
	for index, entry := range history {
		if entry.Action != expectedActions[index] {
			test.Fatalf("position %d: expected %s, got %s", index, expectedActions[index], entry.Action)
		}
		if entry.EntryID == "" {
			test.Fatalf("position %d: missing entry id", index)
		}
	}
	debit := history[1]
	if debit.Region != "BD" || debit.UID != "55" || debit.Hours != 48 || debit.Amount != 100 {
		test.Fatalf("unexpected debit entry %+v", debit)
	}
	if history[0].Reason != "test" {
		test.Fatalf("unexpected credit reason %q", history[0].Reason)
	}
}

func TestCreditValidatesAmount(test *testing.T) {
	test.Parallel()
	provider := newStubProvider(test)
	clock := newFakeClock(startUnixUTC)
	ledger := mustCoinLedger(test, provider, clock)
	userID := mustUserID(test, "player-4")

	for _, amount := range []CoinAmount{0, -1, CoinAmount(MaxCreditCoins + 1)} {
		if _, err := ledger.Credit(context.Background(), userID, amount, mustReason(test, "")); !errors.Is(err, ErrInvalidCoinAmount) {
			test.Fatalf("expected ErrInvalidCoinAmount for %d, got %v", amount, err)
		}
	}
	if _, err := ledger.Credit(context.Background(), UserID{}, 5, mustReason(test, "")); !errors.Is(err, ErrInvalidUserID) {
		test.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestLedgerSaveFailureDiscardsMutation(test *testing.T) {
	test.Parallel()
	provider := newStubProvider(test)
	clock := newFakeClock(startUnixUTC)
	ledger := mustCoinLedger(test, provider, clock)
	userID := mustUserID(test, "player-5")
	mustCredit(test, ledger, userID, 10)

	errDisk := errors.New("disk failure")
	provider.accounts().saveError = errDisk
	if _, err := ledger.Credit(context.Background(), userID, 10, mustReason(test, "")); !errors.Is(err, ErrStorage) || !errors.Is(err, errDisk) {
		test.Fatalf("expected storage error, got %v", err)
	}
	balance, err := ledger.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 10 {
		test.Fatalf("expected balance 10 after failed credit, got %d", balance)
	}
}

func TestSummaryAggregatesAccounts(test *testing.T) {
	test.Parallel()
	provider := newStubProvider(test)
	clock := newFakeClock(startUnixUTC)
	ledger := mustCoinLedger(test, provider, clock)
	mustCredit(test, ledger, mustUserID(test, "a"), 10)
	mustCredit(test, ledger, mustUserID(test, "b"), 15)

	summary, err := ledger.Summary(context.Background())
	if err != nil {
		test.Fatalf("summary: %v", err)
	}
	if summary.TotalUsers != 2 || summary.TotalCoins != 25 {
		test.Fatalf("unexpected summary %+v", summary)
	}
}
