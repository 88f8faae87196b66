package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

type execCall struct {
	sql  string
	args []any
}

// recordingDB captures Exec calls; reads fail.
type recordingDB struct {
	execs   []execCall
	execErr error
}

func (d *recordingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), d.execErr
}

func (d *recordingDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (d *recordingDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://bot:pw@db:5432/wolfbot?sslmode=disable", DSN(ClientConfig{
		Host:     "db",
		Database: "wolfbot",
		User:     "bot",
		Password: "pw",
	}))
	assert.Equal(t, "postgres://u:p@h:6543/d?sslmode=require", DSN(ClientConfig{
		Host:     "h",
		Port:     6543,
		Database: "d",
		User:     "u",
		Password: "p",
		SSLMode:  "require",
	}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationFiles(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
	assert.IsNonDecreasing(t, names)
}

func TestAuditStoreLog(t *testing.T) {
	db := &recordingDB{}
	s := NewAuditStore(db)

	require.NoError(t, s.Log(context.Background(), domain.AuditFill, map[string]any{"symbol": "AAPL"}))
	require.NoError(t, s.Log(context.Background(), domain.AuditDaySummary, nil))

	require.Len(t, db.execs, 2)
	assert.Equal(t, domain.AuditFill, db.execs[0].args[0])
	assert.JSONEq(t, `{"symbol":"AAPL"}`, string(db.execs[0].args[1].([]byte)))
	assert.JSONEq(t, `{}`, string(db.execs[1].args[1].([]byte)))

	db.execErr = errors.New("conn reset")
	err := s.Log(context.Background(), domain.AuditFill, nil)
	assert.ErrorContains(t, err, "postgres: log audit event fill")
}

func TestEquityStoreRecord(t *testing.T) {
	db := &recordingDB{}
	s := NewEquityStore(db)

	snap := domain.EquitySnapshot{
		SessionDate: time.Date(2026, 3, 2, 20, 58, 0, 0, time.UTC),
		Current:     decimal.RequireFromString("10250.50"),
		Last:        decimal.RequireFromString("10000"),
		Positions:   3,
		RecordedAt:  time.Date(2026, 3, 2, 20, 58, 30, 0, time.UTC),
	}
	require.NoError(t, s.Record(context.Background(), snap))

	require.Len(t, db.execs, 1)
	args := db.execs[0].args
	assert.Equal(t, "2026-03-02", args[0])
	assert.Equal(t, "10250.5", args[1])
	assert.Equal(t, "10000", args[2])
	assert.Equal(t, 3, args[3])
}

// TestStoresAgainstPostgres runs when WOLFBOT_TEST_POSTGRES_DSN points at a
// disposable database.
func TestStoresAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("WOLFBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WOLFBOT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.RunMigrations(ctx))
	require.NoError(t, c.RunMigrations(ctx))

	audit := NewAuditStore(c.Pool())
	require.NoError(t, audit.Log(ctx, domain.AuditOrderSubmitted, map[string]any{"symbol": "MSFT", "side": "buy"}))
	entries, err := audit.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditOrderSubmitted, entries[0].Event)
	detail, err := json.Marshal(entries[0].Detail)
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"MSFT","side":"buy"}`, string(detail))

	equity := NewEquityStore(c.Pool())
	day := time.Date(2031, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, cur := range []string{"100", "101.5"} {
		require.NoError(t, equity.Record(ctx, domain.EquitySnapshot{
			SessionDate: day,
			Current:     decimal.RequireFromString(cur),
			Last:        decimal.NewFromInt(99),
			Positions:   1,
			RecordedAt:  time.Now().UTC(),
		}))
	}
	snaps, err := equity.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Current.Equal(decimal.RequireFromString("101.5")))
	assert.True(t, snaps[0].SessionDate.Equal(day))
}
