package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

func TestUpsertUserOnStart(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO telegram_users").
		WithArgs(int64(100), "alice").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := &Store{pool: mock}
	if err := s.UpsertUser(context.Background(), 100, "alice"); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeactivateUserMissingID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("UPDATE telegram_users SET is_active").
		WithArgs(int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	s := &Store{pool: mock}
	if err := s.DeactivateUser(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT user_id, username, is_admin, is_active FROM telegram_users").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "username", "is_admin", "is_active"}))

	s := &Store{pool: mock}
	if _, err := s.UserByID(context.Background(), 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
