package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/kramwallet/backend/internal/models"
)

func expectListPending(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT id, user_id, amount::text, label, created_at FROM deposits WHERE status = \\$1").
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(rows)
}

func expectConfirm(mock sqlmock.Sqlmock, depID, userID int64) {
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE deposits SET status = \\$1, done_at = \\$2 WHERE id = \\$3 AND status = \\$4").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), depID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE balances SET amount = amount \\+ \\$1 WHERE user_id = \\$2").
		WithArgs(sqlmock.AnyArg(), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(models.ExternalSource, userID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func newTestReconciler(t *testing.T, p *fakeProvider) (*Reconciler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	ledger := NewLedgerService(db, nil)
	deposits := NewDepositService(db, ledger, p)
	rec := NewReconciler(deposits, p, time.Second, 50)
	return rec, mock, func() { db.Close() }
}

func TestReconciler_RunCycle(t *testing.T) {
	t.Run("confirmed payment credits the deposit", func(t *testing.T) {
		p := &fakeProvider{live: true, findFunc: func(ctx context.Context, label string) (bool, error) {
			return label == "dep:42:a", nil
		}}
		rec, mock, closeDB := newTestReconciler(t, p)
		defer closeDB()

		expectListPending(mock, sqlmock.NewRows([]string{"id", "user_id", "amount", "label", "created_at"}).
			AddRow(int64(1), int64(42), "10.00", "dep:42:a", time.Now()))
		expectConfirm(mock, 1, 42)

		rec.runCycle(context.Background())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unpaid deposits stay pending", func(t *testing.T) {
		p := &fakeProvider{live: true}
		rec, mock, closeDB := newTestReconciler(t, p)
		defer closeDB()

		expectListPending(mock, sqlmock.NewRows([]string{"id", "user_id", "amount", "label", "created_at"}).
			AddRow(int64(1), int64(42), "10.00", "dep:42:a", time.Now()))

		rec.runCycle(context.Background())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("provider failure for one deposit does not abort the batch", func(t *testing.T) {
		p := &fakeProvider{live: true, findFunc: func(ctx context.Context, label string) (bool, error) {
			if label == "dep:42:a" {
				return false, errors.New("provider timeout")
			}
			return true, nil
		}}
		rec, mock, closeDB := newTestReconciler(t, p)
		defer closeDB()

		expectListPending(mock, sqlmock.NewRows([]string{"id", "user_id", "amount", "label", "created_at"}).
			AddRow(int64(1), int64(42), "10.00", "dep:42:a", time.Now()).
			AddRow(int64(2), int64(99), "2.50", "dep:99:b", time.Now()))
		expectConfirm(mock, 2, 99)

		rec.runCycle(context.Background())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate confirmation is swallowed and logged", func(t *testing.T) {
		p := &fakeProvider{live: true, findFunc: func(ctx context.Context, label string) (bool, error) {
			return true, nil
		}}
		rec, mock, closeDB := newTestReconciler(t, p)
		defer closeDB()

		expectListPending(mock, sqlmock.NewRows([]string{"id", "user_id", "amount", "label", "created_at"}).
			AddRow(int64(1), int64(42), "10.00", "dep:42:a", time.Now()))
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE deposits SET status = \\$1, done_at = \\$2 WHERE id = \\$3 AND status = \\$4").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		rec.runCycle(context.Background())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReconciler_Cancellation(t *testing.T) {
	p := &fakeProvider{live: true}
	rec, mock, closeDB := newTestReconciler(t, p)
	defer closeDB()

	expectListPending(mock, sqlmock.NewRows([]string{"id", "user_id", "amount", "label", "created_at"}))

	ctx, cancel := context.WithCancel(context.Background())
	go rec.Run(ctx)
	cancel()

	select {
	case <-rec.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not acknowledge cancellation")
	}
}
