package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

func TestUpdateScanHistoryOverwritesOnConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	// Two writes for the same (source, key) hit the same ON CONFLICT
	// upsert: last write wins, no second row.
	mock.ExpectExec("INSERT INTO scan_history").
		WithArgs("funda", "AMSTERDAM", "https://x/1", int64(3000), 2, 10, "ok", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO scan_history").
		WithArgs("funda", "AMSTERDAM", "https://x/1", int64(2000), 0, 10, "exhausted", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	s := &Store{pool: mock}
	if err := s.UpdateScanHistory(context.Background(), "funda", "AMSTERDAM", "https://x/1", 2, 10, 3*time.Second, "ok", ""); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := s.UpdateScanHistory(context.Background(), "funda", "AMSTERDAM", "https://x/1", 0, 10, 2*time.Second, "exhausted", ""); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLastScanTimeReportsMissingPair(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT last_scan FROM scan_history").
		WithArgs("funda", "never-scanned").
		WillReturnRows(pgxmock.NewRows([]string{"last_scan"}))

	s := &Store{pool: mock}
	_, ok, err := s.LastScanTime(context.Background(), "funda", "never-scanned")
	if err != nil {
		t.Fatalf("last scan time: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a never-scanned pair")
	}
}

func TestLastScanTimeReturnsStoredTimestamp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	want := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT last_scan FROM scan_history").
		WithArgs("pararius", "query_url_3").
		WillReturnRows(pgxmock.NewRows([]string{"last_scan"}).AddRow(want))

	s := &Store{pool: mock}
	got, ok, err := s.LastScanTime(context.Background(), "pararius", "query_url_3")
	if err != nil {
		t.Fatalf("last scan time: %v", err)
	}
	if !ok || !got.Equal(want) {
		t.Fatalf("got (%v, %v), want (%v, true)", got, ok, want)
	}
}
