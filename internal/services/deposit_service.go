package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kramwallet/backend/internal/models"
	"github.com/kramwallet/backend/internal/money"
	"github.com/kramwallet/backend/internal/provider"
)

// DepositService creates deposit requests and drives them through the
// pending → done/failed state machine. The done transition is always
// paired, atomically, with exactly one credited transaction and one
// balance increment.
type DepositService struct {
	db       *sql.DB
	ledger   *LedgerService
	provider provider.PaymentProvider
}

func NewDepositService(db *sql.DB, ledger *LedgerService, p provider.PaymentProvider) *DepositService {
	return &DepositService{db: db, ledger: ledger, provider: p}
}

// newLabel generates the deposit's idempotency key. The uuid component
// guarantees no collision across deposits; the user id keeps labels
// traceable in provider statements.
func newLabel(userID int64) string {
	return fmt.Sprintf("dep:%d:%s", userID, uuid.NewString())
}

// CreateDeposit registers a request to credit a user from outside.
// Without a live provider the credit happens immediately in one atomic
// unit; with one, the deposit stays pending until the reconciler sees
// the provider confirm the label.
func (ds *DepositService) CreateDeposit(ctx context.Context, userID int64, amount decimal.Decimal) (*models.DepositReceipt, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	amount = money.Quantize(amount)

	if err := ds.ledger.EnsureUser(ctx, userID); err != nil {
		return nil, err
	}

	label := newLabel(userID)
	now := time.Now().UTC()

	if !ds.provider.Live() {
		err := ds.ledger.RunAtomic(ctx, func(tx *sql.Tx) error {
			if err := ds.ledger.Credit(tx, userID, amount); err != nil {
				return err
			}
			if err := ds.ledger.AppendTransaction(tx, models.ExternalSource, userID, amount, now); err != nil {
				return err
			}
			if _, err := tx.Exec(`
				INSERT INTO deposits (user_id, amount, label, status, created_at, done_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				userID, amount, label, models.DepositDone, now, now); err != nil {
				return fmt.Errorf("insert deposit: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		ds.ledger.InvalidateCache(ctx, userID)
		return &models.DepositReceipt{Mode: "test", Label: label}, nil
	}

	if _, err := ds.db.ExecContext(ctx, `
		INSERT INTO deposits (user_id, amount, label, status, created_at, done_at)
		VALUES ($1, $2, $3, $4, $5, NULL)`,
		userID, amount, label, models.DepositPending, now); err != nil {
		return nil, fmt.Errorf("insert pending deposit: %w", err)
	}

	return &models.DepositReceipt{
		Mode:        "provider",
		Label:       label,
		RedirectURL: ds.provider.PaymentURL(userID, amount, label),
	}, nil
}

// ConfirmDeposit performs the pending → done transition. The status
// re-check, the balance credit, the log row and the completion
// timestamp share one atomic unit; a deposit already out of pending
// (stale or duplicate confirmation) yields ErrDuplicateConfirmation and
// zero writes.
func (ds *DepositService) ConfirmDeposit(ctx context.Context, dep models.Deposit) error {
	now := time.Now().UTC()
	err := ds.ledger.RunAtomic(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE deposits SET status = $1, done_at = $2
			WHERE id = $3 AND status = $4`,
			models.DepositDone, now, dep.ID, models.DepositPending)
		if err != nil {
			return fmt.Errorf("mark deposit done: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark deposit done: %w", err)
		}
		if affected == 0 {
			return ErrDuplicateConfirmation
		}

		if err := ds.ledger.Credit(tx, dep.UserID, dep.Amount); err != nil {
			return err
		}
		return ds.ledger.AppendTransaction(tx, models.ExternalSource, dep.UserID, dep.Amount, now)
	})
	if err != nil {
		return err
	}

	ds.ledger.InvalidateCache(ctx, dep.UserID)
	return nil
}

// FailDeposit performs the administrative pending → failed transition.
// Terminal like done: confirming or failing the deposit again is
// rejected.
func (ds *DepositService) FailDeposit(ctx context.Context, label string) error {
	return ds.ledger.RunAtomic(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE deposits SET status = $1, done_at = $2
			WHERE label = $3 AND status = $4`,
			models.DepositFailed, time.Now().UTC(), label, models.DepositPending)
		if err != nil {
			return fmt.Errorf("mark deposit failed: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark deposit failed: %w", err)
		}
		if affected == 0 {
			return ErrDuplicateConfirmation
		}
		return nil
	})
}

// ListPending returns up to limit pending deposits, oldest first, for
// the reconciliation worker.
func (ds *DepositService) ListPending(ctx context.Context, limit int) ([]models.Deposit, error) {
	rows, err := ds.db.QueryContext(ctx, `
		SELECT id, user_id, amount::text, label, created_at
		FROM deposits
		WHERE status = $1
		ORDER BY id ASC
		LIMIT $2`,
		models.DepositPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending deposits: %w", err)
	}
	defer rows.Close()

	deposits := []models.Deposit{}
	for rows.Next() {
		var (
			dep models.Deposit
			raw string
		)
		if err := rows.Scan(&dep.ID, &dep.UserID, &raw, &dep.Label, &dep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending deposit: %w", err)
		}
		dep.Amount, err = money.FromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse deposit amount: %w", err)
		}
		dep.Status = models.DepositPending
		deposits = append(deposits, dep)
	}
	return deposits, rows.Err()
}

// FindByLabel looks a deposit up by its label.
func (ds *DepositService) FindByLabel(ctx context.Context, label string) (*models.Deposit, error) {
	var (
		dep    models.Deposit
		raw    string
		status string
	)
	err := ds.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount::text, label, status, created_at, done_at
		FROM deposits WHERE label = $1`,
		label).Scan(&dep.ID, &dep.UserID, &raw, &dep.Label, &status, &dep.CreatedAt, &dep.DoneAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find deposit %q: %w", label, err)
	}
	dep.Amount, err = money.FromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse deposit amount: %w", err)
	}
	dep.Status = models.DepositStatus(status)
	return &dep, nil
}

// Provider exposes the configured provider to the HTTP layer (payment
// URL rebuilding for QR rendering).
func (ds *DepositService) Provider() provider.PaymentProvider {
	return ds.provider
}
