package workers

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// captureArg matches any argument and keeps its driver value.
type captureArg struct{ got *string }

func (c captureArg) Match(v driver.Value) bool {
	switch x := v.(type) {
	case string:
		*c.got = x
	case []byte:
		*c.got = string(x)
	}
	return true
}

var dueCols = []string{"id", "uploads_reset_date"}

func TestRunOnce_ResetsDueProfiles(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM public\.profiles\s+WHERE uploads_reset_date IS NULL OR uploads_reset_date <= \$1\s+FOR UPDATE SKIP LOCKED`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(dueCols).
			AddRow("u1", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)).
			AddRow("u2", nil).
			AddRow("u3", time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)))
	mock.ExpectExec(`UPDATE public\.profiles AS p\s+SET uploads_used = 0`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	w := &UsageResetWorker{DB: db, Now: func() time.Time { return now }}
	if n := w.RunOnce(context.Background()); n != 3 {
		t.Fatalf("expected 3 resets got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestRunOnce_StaleDateJumpsPastNow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	var ids, dates string
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(dueCols).AddRow("u1", time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC)))
	mock.ExpectExec(`UPDATE public\.profiles AS p`).
		WithArgs(captureArg{&ids}, captureArg{&dates}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := &UsageResetWorker{DB: db, Now: func() time.Time { return now }}
	if n := w.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected 1 reset got %d", n)
	}
	if !strings.Contains(ids, "u1") {
		t.Fatalf("expected u1 in ids, got %q", ids)
	}
	if !strings.Contains(dates, "2024-06-20T08:00:00Z") {
		t.Fatalf("expected next reset 2024-06-20T08:00:00Z, got %q", dates)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}

	// A second pass right after finds nothing due.
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).WithArgs(now).WillReturnRows(sqlmock.NewRows(dueCols))
	mock.ExpectRollback()
	if n := w.RunOnce(context.Background()); n != 0 {
		t.Fatalf("expected no resets on second pass got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestNextResetDate(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	at := func(y int, m time.Month, d, h int) *time.Time {
		v := time.Date(y, m, d, h, 0, 0, 0, time.UTC)
		return &v
	}
	cases := []struct {
		name string
		prev *time.Time
		want time.Time
	}{
		{"no previous date", nil, time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)},
		{"due this month", at(2024, 6, 1, 0), time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
		{"anniversary later this month", at(2024, 5, 15, 0), time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"five months stale", at(2024, 1, 20, 8), time.Date(2024, 6, 20, 8, 0, 0, 0, time.UTC)},
		{"years stale", at(2021, 3, 5, 0), time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC)},
		{"exactly now moves a month", at(2024, 6, 10, 12), time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)},
		{"month end clamps", at(2024, 1, 31, 0), time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got := NextResetDate(tc.prev, now)
		if !got.Equal(tc.want) {
			t.Fatalf("%s: expected %s got %s", tc.name, tc.want, got)
		}
		if !got.After(now) {
			t.Fatalf("%s: next reset %s is not after now", tc.name, got)
		}
	}
}

func TestRunOnce_ErrorIsSwallowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM public\.profiles`).WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	w := &UsageResetWorker{DB: db}
	if n := w.RunOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0 on error got %d", n)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM public\.profiles`).WillReturnRows(sqlmock.NewRows(dueCols))
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		(&UsageResetWorker{DB: db, Interval: time.Hour}).Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
}
