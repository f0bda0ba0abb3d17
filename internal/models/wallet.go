package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExternalSource is the reserved from_user value marking credits that
// originate outside the user-to-user ledger (external deposits).
const ExternalSource int64 = 0

// User is a wallet account holder, keyed by an externally assigned id
// (e.g. a chat-platform account id). Users are created lazily on first
// reference and never deleted.
type User struct {
	UserID    int64     `json:"user_id" db:"user_id"`
	IsAdmin   bool      `json:"is_admin" db:"is_admin"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Balance is the single-column balance row for one user. It is mutated
// only inside an atomic ledger unit and never goes negative.
type Balance struct {
	UserID int64           `json:"user_id" db:"user_id"`
	Amount decimal.Decimal `json:"amount" db:"amount"`
}

// Transaction is one immutable ledger log row. Rows are append-only;
// ordering by (ts, id) defines history order.
type Transaction struct {
	ID        int64           `json:"id" db:"id"`
	FromUser  int64           `json:"from_user" db:"from_user"`
	ToUser    int64           `json:"to_user" db:"to_user"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Timestamp time.Time       `json:"ts" db:"ts"`
}

type DepositStatus string

const (
	DepositPending DepositStatus = "pending"
	DepositDone    DepositStatus = "done"
	DepositFailed  DepositStatus = "failed"
)

// Deposit is a request to credit a user from the external payment
// provider. The label is the idempotency key: generated once per
// creation, unique across all deposits (DB constraint). done and failed
// are terminal states.
type Deposit struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Label     string          `json:"label" db:"label"`
	Status    DepositStatus   `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	DoneAt    *time.Time      `json:"done_at,omitempty" db:"done_at"`
}

// DepositReceipt is what deposit creation hands back to the caller.
// RedirectURL is empty in direct-credit mode.
type DepositReceipt struct {
	Mode        string `json:"mode"`
	Label       string `json:"label"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// HistoryItem is one transaction rendered from the reading user's
// perspective: positive amount = credit, negative = debit.
type HistoryItem struct {
	Title     string `json:"title"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"ts"` // unix milliseconds
}
