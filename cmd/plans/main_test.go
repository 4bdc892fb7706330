package main

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tierCols = []string{"id", "name", "monthly_upload_limit", "price_cents", "currency", "stripe_price_id"}

func testDeps(t *testing.T, db *sql.DB, out *bytes.Buffer, created *[]string) deps {
	t.Helper()
	return deps{
		getenv: func(k string) string {
			switch k {
			case "DATABASE_URL":
				return "postgres://example"
			case "STRIPE_SECRET_KEY":
				return "sk_test"
			}
			return ""
		},
		openDB: func(string, string) (*sql.DB, error) { return db, nil },
		newPrice: func(string) PriceCreator {
			return func(_ context.Context, tier models.PlanTier) (string, error) {
				*created = append(*created, string(tier.ID))
				return "price_" + string(tier.ID), nil
			}
		},
		out: out,
	}
}

func execute(t *testing.T, d deps, args ...string) error {
	t.Helper()
	cmd := newRootCmd(d)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestList_PrintsTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	var out bytes.Buffer
	var created []string

	mock.ExpectQuery(`FROM public\.plan_tiers`).
		WillReturnRows(sqlmock.NewRows(tierCols).
			AddRow("free", "Free", 10, 0, "eur", nil).
			AddRow("premium", "Premium", models.UnlimitedUploads, 700, "eur", "price_p"))
	mock.ExpectClose()

	require.NoError(t, execute(t, testDeps(t, db, &out, &created), "list"))
	assert.Contains(t, out.String(), "unlimited")
	assert.Contains(t, out.String(), "7.00 EUR")
	assert.Contains(t, out.String(), "price_p")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncPrices_OnlyPaidTiersWithoutPrice(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	var out bytes.Buffer
	var created []string

	mock.ExpectQuery(`FROM public\.plan_tiers`).
		WillReturnRows(sqlmock.NewRows(tierCols).
			AddRow("free", "Free", 10, 0, "eur", nil).
			AddRow("basic", "Basic", 50, 500, "eur", nil).
			AddRow("premium", "Premium", models.UnlimitedUploads, 700, "eur", "price_existing"))
	mock.ExpectExec(`UPDATE public\.plan_tiers`).
		WithArgs("basic", "price_basic").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	require.NoError(t, execute(t, testDeps(t, db, &out, &created), "sync-prices"))
	assert.Equal(t, []string{"basic"}, created)
	assert.True(t, strings.Contains(out.String(), "Created price_basic for basic"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPrice_UnknownTier(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	var out bytes.Buffer
	var created []string

	err = execute(t, testDeps(t, db, &out, &created), "set-price", "gold", "price_x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier")
}

func TestSeed_ReportsExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	var out bytes.Buffer
	var created []string

	for range 3 {
		mock.ExpectExec(`INSERT INTO public\.plan_tiers`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectClose()

	require.NoError(t, execute(t, testDeps(t, db, &out, &created), "seed"))
	assert.Contains(t, out.String(), "already exist")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMissingDatabaseURL(t *testing.T) {
	d := deps{getenv: func(string) string { return "" }, out: &bytes.Buffer{}}
	err := execute(t, d, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
