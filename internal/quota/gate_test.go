package quota

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
)

func expectLock(mock sqlmock.Sqlmock, userID, plan string, used, limit int) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, plan_type, uploads_used, monthly_upload_limit\s+FROM public\.profiles\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "plan_type", "uploads_used", "monthly_upload_limit"}).
			AddRow(userID, plan, used, limit))
}

func TestCheck(t *testing.T) {
	cases := []struct {
		used, limit int
		want        Kind
	}{
		{0, 10, Permitted},
		{9, 10, Permitted},
		{10, 10, LimitReached},
		{11, 10, LimitReached},
		{5, models.UnlimitedUploads, Permitted},
	}
	for _, c := range cases {
		got := Check(models.Profile{PlanType: models.PlanFree, UploadsUsed: c.used, MonthlyUploadLimit: c.limit})
		if got.Kind != c.want {
			t.Fatalf("used=%d limit=%d: expected %s got %s", c.used, c.limit, c.want, got.Kind)
		}
	}
}

func TestAdmit_AtLimitNeverInserts(t *testing.T) {
	for _, limit := range []int{1, 5, 10, 50} {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New: %v", err)
		}

		expectLock(mock, "u1", "free", limit, limit)
		mock.ExpectRollback()

		called := 0
		out, err := NewGate(db).Admit(context.Background(), "u1", func(context.Context, *sql.Tx) error {
			called++
			return nil
		})
		if err != nil {
			t.Fatalf("limit=%d: Admit: %v", limit, err)
		}
		if out.Kind != LimitReached || out.PlanType != models.PlanFree {
			t.Fatalf("limit=%d: expected limit_reached/free got %#v", limit, out)
		}
		if called != 0 {
			t.Fatalf("limit=%d: insert called %d times", limit, called)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("limit=%d: unmet sql expectations: %v", limit, err)
		}
		db.Close()
	}
}

func TestAdmit_BelowLimitInsertsOnceThenIncrements(t *testing.T) {
	for used := 0; used < 10; used++ {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New: %v", err)
		}

		expectLock(mock, "u1", "basic", used, 10)
		mock.ExpectExec(`INSERT INTO public\.videos`).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`SET uploads_used = uploads_used \+ 1`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		called := 0
		out, err := NewGate(db).Admit(context.Background(), "u1", func(ctx context.Context, tx *sql.Tx) error {
			called++
			_, err := tx.ExecContext(ctx, `INSERT INTO public.videos (user_id) VALUES ($1)`, "u1")
			return err
		})
		if err != nil {
			t.Fatalf("used=%d: Admit: %v", used, err)
		}
		if called != 1 {
			t.Fatalf("used=%d: expected insert once got %d", used, called)
		}
		if !out.Permitted() || out.UploadsUsed != used+1 {
			t.Fatalf("used=%d: unexpected outcome %#v", used, out)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("used=%d: unmet sql expectations: %v", used, err)
		}
		db.Close()
	}
}

func TestAdmit_InsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	expectLock(mock, "u1", "free", 2, 10)
	mock.ExpectRollback()

	boom := errors.New("insert failed")
	_, err = NewGate(db).Admit(context.Background(), "u1", func(context.Context, *sql.Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected insert error got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestAdmit_NoProfile(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "plan_type", "uploads_used", "monthly_upload_limit"}))
	mock.ExpectRollback()

	_, err = NewGate(db).Admit(context.Background(), "ghost", func(context.Context, *sql.Tx) error {
		t.Fatalf("insert must not run")
		return nil
	})
	if !errors.Is(err, ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile got %v", err)
	}
}
