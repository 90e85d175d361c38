package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

func TestPickBatchClaimsPendingRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"id", "user_id", "property_id", "attempts"}).
		AddRow(int64(1), int64(100), int64(7), 1).
		AddRow(int64(2), int64(101), int64(8), 1)
	mock.ExpectQuery("WITH claimed AS").WithArgs(25).WillReturnRows(rows)

	s := &Store{pool: mock}
	items, err := s.PickBatch(context.Background(), 25)
	if err != nil {
		t.Fatalf("pick batch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != 1 || items[0].UserID != 100 || items[0].PropertyID != 7 {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkStatusUpdatesRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("UPDATE notification_queue SET status").
		WithArgs(int64(1), StatusRateLimited).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	s := &Store{pool: mock}
	if err := s.MarkStatus(context.Background(), 1, StatusRateLimited); err != nil {
		t.Fatalf("mark status: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordSentCommitsQueueAndHistoryTogether(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE notification_queue SET status = 'sent'").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO notification_history").
		WithArgs(int64(100), int64(7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	s := &Store{pool: mock}
	if err := s.RecordSent(context.Background(), 1, 100, 7); err != nil {
		t.Fatalf("record sent: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSentTodayCountsRollingWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"count"}).AddRow(5)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM notification_history").
		WithArgs(int64(100)).
		WillReturnRows(rows)

	s := &Store{pool: mock}
	n, err := s.SentToday(context.Background(), 100)
	if err != nil {
		t.Fatalf("sent today: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5, got %d", n)
	}
}

func TestGCTerminalRowsReportsDeletedCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("DELETE FROM notification_queue").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	s := &Store{pool: mock}
	n, err := s.GCTerminalRows(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if n != 12 {
		t.Fatalf("expected 12 deleted rows, got %d", n)
	}
}
