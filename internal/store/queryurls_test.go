package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

func TestAddQueryURLDefaultsMethodToGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO query_urls").
		WithArgs("pararius", "https://www.pararius.com/apartments/utrecht", "GET", "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	s := &Store{pool: mock}
	id, err := s.AddQueryURL(context.Background(), "pararius", "https://www.pararius.com/apartments/utrecht", "", "", nil)
	if err != nil {
		t.Fatalf("add query url: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddQueryURLConflictOnRepeat(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	// ON CONFLICT DO NOTHING returns no row for the duplicate insert.
	mock.ExpectQuery("INSERT INTO query_urls").
		WithArgs("pararius", "https://x", "GET", "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	s := &Store{pool: mock}
	_, err = s.AddQueryURL(context.Background(), "pararius", "https://x", "GET", "", nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestToggleQueryURLMissingID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("UPDATE query_urls SET enabled").
		WithArgs(int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	s := &Store{pool: mock}
	if err := s.ToggleQueryURL(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnabledQueryURLsScansAllColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"id", "source", "queryurl", "method", "enabled", "last_scan_time", "description", "extra_options"}).
		AddRow(int64(1), "funda", "https://x/a", "GET", true, nil, "city search", nil).
		AddRow(int64(2), "funda", "https://x/b", "POST", true, nil, "", []byte(`{"body":"{}"}`))
	mock.ExpectQuery("SELECT id, source, queryurl, method, enabled").
		WithArgs("funda").
		WillReturnRows(rows)

	s := &Store{pool: mock}
	urls, err := s.EnabledQueryURLs(context.Background(), "funda")
	if err != nil {
		t.Fatalf("enabled query urls: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(urls))
	}
	if urls[1].Method != "POST" || len(urls[1].ExtraOptions) == 0 {
		t.Fatalf("unexpected second url: %+v", urls[1])
	}
}

func TestMarkQueryURLScannedStampsRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("UPDATE query_urls SET last_scan_time").
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	s := &Store{pool: mock}
	if err := s.MarkQueryURLScanned(context.Background(), 3); err != nil {
		t.Fatalf("mark scanned: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
