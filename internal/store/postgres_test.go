package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monlabs/monwatch/internal/models"
)

func mockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(sqlx.NewDb(db, "sqlmock")), mock
}

func TestPostgresSaveSnapshot(t *testing.T) {
	pg, mock := mockStore(t)

	mock.ExpectQuery(`INSERT INTO metrics_snapshot`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := pg.SaveSnapshot(context.Background(), sampleSnapshot())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetCounterMissingIsZero(t *testing.T) {
	pg, mock := mockStore(t)

	mock.ExpectQuery(`SELECT consecutive_count FROM alert_counters`).
		WithArgs("depth_shrink:binance:MONUSDT").
		WillReturnRows(sqlmock.NewRows([]string{"consecutive_count"}))

	n, err := pg.GetCounter(context.Background(), "depth_shrink:binance:MONUSDT")
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetCounterUpserts(t *testing.T) {
	pg, mock := mockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO alert_counters`).
		WithArgs("k", 2, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, pg.SetCounter(context.Background(), "k", 2, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIsDuplicateAlert(t *testing.T) {
	pg, mock := mockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts`).
		WithArgs("depth_shrink:binance:MONUSDT", 3600).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	dup, err := pg.IsDuplicateAlert(context.Background(), "depth_shrink:binance:MONUSDT", time.Hour)
	require.NoError(t, err)
	assert.True(t, dup)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveAlert(t *testing.T) {
	pg, mock := mockStore(t)

	mock.ExpectExec(`INSERT INTO alerts`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	a := models.Alert{
		Rule: models.RuleSpreadWiden, Venue: "okx", Symbol: "MON-USDT-SWAP",
		Severity: models.SeverityWarn, Message: "spread widen",
		Timestamp: time.Now().UTC(), DedupeKey: "spread_widen:okx:MON-USDT-SWAP",
	}
	require.NoError(t, pg.SaveAlert(context.Background(), a, 7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRuntimeStateUpsert(t *testing.T) {
	pg, mock := mockStore(t)

	mock.ExpectExec(`INSERT INTO runtime_state`).
		WithArgs("cycle_count", "5").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, pg.SetRuntimeState(context.Background(), map[string]string{"cycle_count": "5"}))
	require.NoError(t, mock.ExpectationsWereMet())
}
