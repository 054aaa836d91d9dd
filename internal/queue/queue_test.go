package queue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"jobreel-server/internal/apperrors"
	"jobreel-server/internal/models"
)

func TestEnqueue_UserAtLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	q := New(db, 2)
	_, err = q.Enqueue(context.Background(), EnqueueInput{JobID: "7", UserID: "u1", TemplateID: "family_guy", QueryFingerprint: "fp"})
	if !errors.Is(err, apperrors.ErrUserAtLimit) {
		t.Fatalf("expected ErrUserAtLimit, got %v", err)
	}
}

func TestEnqueue_DuplicateMapsToErrDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO generation_jobs").WillReturnError(&pq.Error{Code: pqUniqueViolation})

	q := New(db, 2)
	_, err = q.Enqueue(context.Background(), EnqueueInput{JobID: "7", UserID: "u1", TemplateID: "family_guy", QueryFingerprint: "fp"})
	if !errors.Is(err, apperrors.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestEnqueue_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO generation_jobs").WillReturnResult(sqlmock.NewResult(1, 1))

	q := New(db, 2)
	id, err := q.Enqueue(context.Background(), EnqueueInput{JobID: "7", UserID: "u1", TemplateID: "family_guy", QueryFingerprint: "fp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty job uuid")
	}
}

func TestClaim_NoJobAvailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("UPDATE generation_jobs").WillReturnError(sql.ErrNoRows)

	q := New(db, 2)
	_, err = q.Claim(context.Background(), "worker-1", 10*time.Minute)
	if !errors.Is(err, apperrors.ErrNoJobAvailable) {
		t.Fatalf("expected ErrNoJobAvailable, got %v", err)
	}
}

func TestTransition_CompareAndSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE generation_jobs").WillReturnResult(sqlmock.NewResult(0, 1))

	q := New(db, 2)
	ok, err := q.Transition(context.Background(), "uuid-1", models.StatusRunning, models.StatusReady, TransitionPatch{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected transition to apply")
	}
}

func TestTransition_MismatchIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE generation_jobs").WillReturnResult(sqlmock.NewResult(0, 0))

	q := New(db, 2)
	ok, err := q.Transition(context.Background(), "uuid-1", models.StatusRunning, models.StatusReady, TransitionPatch{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no-op transition to report false")
	}
}

func TestResetStale_ReturnsCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE generation_jobs").WillReturnResult(sqlmock.NewResult(0, 2))

	q := New(db, 2)
	n, err := q.ResetStale(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 reset, got %d", n)
	}
}
