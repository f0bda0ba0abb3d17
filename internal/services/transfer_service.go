package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kramwallet/backend/internal/money"
)

// TransferService validates and executes balance-to-balance transfers.
type TransferService struct {
	ledger *LedgerService
}

func NewTransferService(ledger *LedgerService) *TransferService {
	return &TransferService{ledger: ledger}
}

// Transfer moves amount from one user to another and returns the
// sender's new balance. The balance check, both balance writes and the
// log row share one atomic unit: either everything applies or nothing
// does, and a concurrent transfer from the same sender cannot observe
// the balance mid-debit.
func (ts *TransferService) Transfer(ctx context.Context, fromUser, toUser int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if fromUser == toUser {
		return decimal.Decimal{}, ErrSelfTransfer
	}
	if amount.Sign() <= 0 {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	amount = money.Quantize(amount)

	if err := ts.ledger.EnsureUser(ctx, fromUser); err != nil {
		return decimal.Decimal{}, err
	}
	if err := ts.ledger.EnsureUser(ctx, toUser); err != nil {
		return decimal.Decimal{}, err
	}

	var newBalance decimal.Decimal
	err := ts.ledger.RunAtomic(ctx, func(tx *sql.Tx) error {
		balance, err := ts.ledger.BalanceForUpdate(tx, fromUser)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		if err := ts.ledger.Debit(tx, fromUser, amount); err != nil {
			return err
		}
		if err := ts.ledger.Credit(tx, toUser, amount); err != nil {
			return err
		}
		if err := ts.ledger.AppendTransaction(tx, fromUser, toUser, amount, time.Now().UTC()); err != nil {
			return err
		}

		newBalance = balance.Sub(amount)
		return nil
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	ts.ledger.InvalidateCache(ctx, fromUser, toUser)
	return newBalance, nil
}
