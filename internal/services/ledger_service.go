package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kramwallet/backend/internal/models"
	"github.com/kramwallet/backend/internal/money"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// LedgerService owns all persisted wallet state and is the sole writer
// of balances and the transaction log. It wraps the single process-wide
// *sql.DB handle; other services mutate state only through RunAtomic.
type LedgerService struct {
	db    *sql.DB
	cache *WalletCache

	// writeMu keeps at most one write transaction in flight per
	// process; units queue here instead of interleaving.
	writeMu sync.Mutex
}

func NewLedgerService(db *sql.DB, cache *WalletCache) *LedgerService {
	return &LedgerService{db: db, cache: cache}
}

// EnsureUser idempotently creates the user row, its zero balance and
// the non-admin flag. One statement, so the user and its balance row
// always appear together. No side effects on existing rows.
func (s *LedgerService) EnsureUser(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		WITH new_user AS (
			INSERT INTO users (user_id, is_admin, created_at)
			VALUES ($1, FALSE, $2)
			ON CONFLICT (user_id) DO NOTHING
		)
		INSERT INTO balances (user_id, amount)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("ensure user %d: %w", userID, err)
	}
	return nil
}

// GetBalance returns the quantized balance, zero for an unknown user.
// Pure read: it never creates the user as a side effect.
func (s *LedgerService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	if cached, ok := s.cache.Balance(ctx, userID); ok {
		return cached, nil
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT amount::text FROM balances WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("get balance %d: %w", userID, err)
	}

	d, err := money.FromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse balance %d: %w", userID, err)
	}
	// A fill racing a concurrent invalidation can pin a stale value
	// for one TTL. Balance checks that gate writes never read here;
	// they re-read inside the atomic unit.
	s.cache.SetBalance(ctx, userID, d)
	return d, nil
}

// ListUsers returns all known user ids, ascending.
func (s *LedgerService) ListUsers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsAdmin reports the admin flag; false for unknown users.
func (s *LedgerService) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var isAdmin bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_admin FROM users WHERE user_id = $1`, userID).Scan(&isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is admin %d: %w", userID, err)
	}
	return isAdmin, nil
}

// SetAdmin grants the admin flag, creating the user first if needed.
// The flag is recorded here but enforced by callers outside the core.
func (s *LedgerService) SetAdmin(ctx context.Context, userID int64) error {
	if err := s.EnsureUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_admin = TRUE WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("set admin %d: %w", userID, err)
	}
	return nil
}

// RunAtomic executes fn inside one database transaction: all of fn's
// writes commit together, or none of them apply. Rollback is the
// contract of this primitive: a non-nil return (or a panic in fn)
// guarantees nothing was applied. Writers queue on the store-wide
// mutex, and the row locks taken by BalanceForUpdate additionally
// serialize units touching the same balances.
func (s *LedgerService) RunAtomic(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin atomic unit: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit atomic unit: %w", err)
	}
	return nil
}

// BalanceForUpdate reads a balance inside an atomic unit, locking the
// row so a concurrent unit debiting the same user blocks until this one
// commits or rolls back. Zero for unknown users.
func (s *LedgerService) BalanceForUpdate(tx *sql.Tx, userID int64) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRow(
		`SELECT amount::text FROM balances WHERE user_id = $1 FOR UPDATE`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("lock balance %d: %w", userID, err)
	}
	return money.FromString(raw)
}

// Credit increases a balance inside an atomic unit. The balance row
// must already exist (EnsureUser precedes every mutating operation).
func (s *LedgerService) Credit(tx *sql.Tx, userID int64, amount decimal.Decimal) error {
	return s.adjustBalance(tx,
		`UPDATE balances SET amount = amount + $1 WHERE user_id = $2`, userID, amount)
}

// Debit decreases a balance inside an atomic unit.
func (s *LedgerService) Debit(tx *sql.Tx, userID int64, amount decimal.Decimal) error {
	return s.adjustBalance(tx,
		`UPDATE balances SET amount = amount - $1 WHERE user_id = $2`, userID, amount)
}

func (s *LedgerService) adjustBalance(tx *sql.Tx, query string, userID int64, amount decimal.Decimal) error {
	res, err := tx.Exec(query, amount, userID)
	if err != nil {
		return fmt.Errorf("update balance %d: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update balance %d: %w", userID, err)
	}
	if affected == 0 {
		return fmt.Errorf("no balance row for user %d", userID)
	}
	return nil
}

// AppendTransaction inserts one immutable log row. Must only be called
// inside an atomic unit, paired with the balance writes it records.
func (s *LedgerService) AppendTransaction(tx *sql.Tx, fromUser, toUser int64, amount decimal.Decimal, ts time.Time) error {
	if _, err := tx.Exec(`
		INSERT INTO transactions (from_user, to_user, amount, ts)
		VALUES ($1, $2, $3, $4)`,
		fromUser, toUser, amount, ts); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// ListHistory returns the most recent transactions involving the user,
// newest first, signed from that user's perspective and titled by
// counterparty.
func (s *LedgerService) ListHistory(ctx context.Context, userID int64, limit int) ([]models.HistoryItem, error) {
	cacheable := limit <= 0 || limit == defaultHistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	if cacheable {
		if items, ok := s.cache.History(ctx, userID); ok {
			return items, nil
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT from_user, to_user, amount::text, ts
		FROM transactions
		WHERE from_user = $1 OR to_user = $1
		ORDER BY ts DESC, id DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history %d: %w", userID, err)
	}
	defer rows.Close()

	items := []models.HistoryItem{}
	for rows.Next() {
		var (
			fromUser, toUser int64
			raw              string
			ts               time.Time
		)
		if err := rows.Scan(&fromUser, &toUser, &raw, &ts); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		amount, err := money.FromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse history amount: %w", err)
		}

		item := models.HistoryItem{Timestamp: ts.UnixMilli()}
		if toUser == userID {
			item.Title = fmt.Sprintf("From %d", fromUser)
			item.Amount = money.Format(amount)
		} else {
			item.Title = fmt.Sprintf("To %d", toUser)
			item.Amount = money.Format(amount.Neg())
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history %d: %w", userID, err)
	}

	if cacheable {
		s.cache.SetHistory(ctx, userID, items)
	}
	return items, nil
}

// InvalidateCache drops cached reads for users touched by a committed
// unit. No-op without redis.
func (s *LedgerService) InvalidateCache(ctx context.Context, userIDs ...int64) {
	s.cache.Invalidate(ctx, userIDs...)
}
