package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/kramwallet/backend/internal/models"
	"github.com/kramwallet/backend/internal/provider"
)

// fakeProvider is a controllable PaymentProvider for service tests.
type fakeProvider struct {
	live     bool
	findFunc func(ctx context.Context, label string) (bool, error)
}

var _ provider.PaymentProvider = (*fakeProvider)(nil)

func (p *fakeProvider) Live() bool { return p.live }

func (p *fakeProvider) PaymentURL(userID int64, amount decimal.Decimal, label string) string {
	return fmt.Sprintf("https://pay.example/checkout?label=%s", label)
}

func (p *fakeProvider) FindSuccessfulOperation(ctx context.Context, label string) (bool, error) {
	if p.findFunc == nil {
		return false, nil
	}
	return p.findFunc(ctx, label)
}

func TestDepositService_CreateDeposit_DirectCredit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db, nil)
	service := NewDepositService(db, ledger, provider.DirectProvider{})

	t.Run("credits balance, log row and done deposit in one unit", func(t *testing.T) {
		expectEnsureUser(mock, 42)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE balances SET amount = amount \\+ \\$1 WHERE user_id = \\$2").
			WithArgs(sqlmock.AnyArg(), int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(models.ExternalSource, int64(42), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO deposits").
			WithArgs(int64(42), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		receipt, err := service.CreateDeposit(context.Background(), 42, decimal.NewFromInt(10))
		assert.NoError(t, err)
		assert.Equal(t, "test", receipt.Mode)
		assert.True(t, strings.HasPrefix(receipt.Label, "dep:42:"))
		assert.Empty(t, receipt.RedirectURL)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amount before storage", func(t *testing.T) {
		_, err := service.CreateDeposit(context.Background(), 42, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDepositService_CreateDeposit_ProviderPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db, nil)
	service := NewDepositService(db, ledger, &fakeProvider{live: true})

	expectEnsureUser(mock, 42)
	mock.ExpectExec("INSERT INTO deposits").
		WithArgs(int64(42), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	receipt, err := service.CreateDeposit(context.Background(), 42, decimal.NewFromInt(10))
	assert.NoError(t, err)
	assert.Equal(t, "provider", receipt.Mode)
	assert.Contains(t, receipt.RedirectURL, receipt.Label)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositService_ConfirmDeposit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db, nil)
	service := NewDepositService(db, ledger, &fakeProvider{live: true})

	dep := models.Deposit{
		ID:     5,
		UserID: 42,
		Amount: decimal.NewFromInt(10),
		Label:  "dep:42:abc",
		Status: models.DepositPending,
	}

	t.Run("pending deposit credits exactly once", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE deposits SET status = \\$1, done_at = \\$2 WHERE id = \\$3 AND status = \\$4").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(5), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE balances SET amount = amount \\+ \\$1 WHERE user_id = \\$2").
			WithArgs(sqlmock.AnyArg(), int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(models.ExternalSource, int64(42), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := service.ConfirmDeposit(context.Background(), dep)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate confirmation rolls back without a credit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE deposits SET status = \\$1, done_at = \\$2 WHERE id = \\$3 AND status = \\$4").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(5), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := service.ConfirmDeposit(context.Background(), dep)
		assert.ErrorIs(t, err, ErrDuplicateConfirmation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDepositService_FailDeposit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db, nil)
	service := NewDepositService(db, ledger, provider.DirectProvider{})

	t.Run("pending deposit can be failed", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE deposits SET status = \\$1, done_at = \\$2 WHERE label = \\$3 AND status = \\$4").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "dep:42:abc", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.FailDeposit(context.Background(), "dep:42:abc")
		assert.NoError(t, err)
	})

	t.Run("terminal deposit cannot be failed again", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE deposits SET status = \\$1, done_at = \\$2 WHERE label = \\$3 AND status = \\$4").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "dep:42:abc", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := service.FailDeposit(context.Background(), "dep:42:abc")
		assert.ErrorIs(t, err, ErrDuplicateConfirmation)
	})
}

func TestDepositService_ListPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db, nil)
	service := NewDepositService(db, ledger, &fakeProvider{live: true})

	mock.ExpectQuery("SELECT id, user_id, amount::text, label, created_at FROM deposits WHERE status = \\$1").
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "label", "created_at"}).
			AddRow(int64(1), int64(42), "10.00", "dep:42:a", time.Now()).
			AddRow(int64(2), int64(99), "2.50", "dep:99:b", time.Now()))

	deposits, err := service.ListPending(context.Background(), 50)
	assert.NoError(t, err)
	assert.Len(t, deposits, 2)
	assert.Equal(t, "dep:42:a", deposits[0].Label)
	assert.Equal(t, models.DepositPending, deposits[0].Status)
}
