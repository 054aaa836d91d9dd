package catalog

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newTestCatalog(t *testing.T) (*Catalog, sqlmock.Sqlmock, func()) {
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

func TestReadyStatusByID_EmptyShortCircuits(t *testing.T) {
	c, _, closeFn := newTestCatalog(t)
	defer closeFn()

	result, err := c.ReadyStatusByID(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected empty map, got %v", result)
	}
}

func TestExists_UsesReadyStatusFilter(t *testing.T) {
	c, mock, closeFn := newTestCatalog(t)
	defer closeFn()

	rows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(`SELECT count`).WillReturnRows(rows)

	ok, err := c.Exists(context.Background(), "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected video to exist")
	}
}
