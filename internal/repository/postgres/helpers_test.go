package postgres_test

import (
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

var (
	listingCols = []string{"id", "seller_id", "title", "description", "price", "category", "condition", "images", "status", "created_at", "updated_at"}
	offerCols   = []string{"o_id", "listing_id", "buyer_id", "amount", "message", "o_status", "o_created_at", "o_updated_at"}
	userCols    = []string{"u_id", "u_name", "u_email"}
	txCols      = []string{"t_id", "offer_id", "t_buyer_id", "seller_id", "t_status", "t_created_at", "t_updated_at"}
)

func cols(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func listingValues(id, status string) []any {
	return []any{id, "s1", "Road bike", "Carbon frame", int64(120000), "bikes", "GOOD", "{a.jpg,b.jpg}", status, now, now}
}

func offerValues(id, status string) []any {
	return []any{id, "l1", "b1", int64(95000), "cash today", status, now, now}
}

func userValues(id, name string) []any {
	return []any{id, name, name + "@example.com"}
}

func row(groups ...[]any) []any {
	var out []any
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func toDriver(vals []any) []driver.Value {
	out := make([]driver.Value, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}
