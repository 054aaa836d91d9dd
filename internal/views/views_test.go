package views

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}

	return New(gdb), mock, func() { db.Close() }
}

func TestMarkSeen_Upserts(t *testing.T) {
	l, mock, closeFn := newTestLedger(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "views"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := l.MarkSeen(context.Background(), "u1", "7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReset_ReturnsCount(t *testing.T) {
	l, mock, closeFn := newTestLedger(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "views"`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	count, err := l.Reset(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows deleted, got %d", count)
	}
}

func TestBulkCheck_EmptyInputShortCircuits(t *testing.T) {
	l, _, closeFn := newTestLedger(t)
	defer closeFn()

	result, err := l.BulkCheck(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected empty map, got %v", result)
	}
}
