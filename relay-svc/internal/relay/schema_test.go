package relay

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS service_requests").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS service_requests_location_status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS orders_location_status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE OR REPLACE FUNCTION notify_staff_change.*pg_notify\\('staff_changes', body\\)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP TRIGGER IF EXISTS service_requests_notify").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TRIGGER service_requests_notify").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP TRIGGER IF EXISTS orders_notify").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TRIGGER orders_notify").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, EnsureSchema(context.Background(), db, "staff_changes"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS service_requests").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	assert.Error(t, EnsureSchema(context.Background(), db, "staff_changes"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyFunction_OversizedRowsStayUnderLimit(t *testing.T) {
	var fn string
	for _, stmt := range schemaStatements("staff_changes") {
		if strings.Contains(stmt, "FUNCTION notify_staff_change") {
			fn = regexp.MustCompile(`\s+`).ReplaceAllString(stmt, " ")
		}
	}
	require.NotEmpty(t, fn)

	guard := "IF octet_length(body) > " + strconv.Itoa(notifyLimit) + " THEN"
	require.Equal(t, 2, strings.Count(fn, guard))

	first := strings.Index(fn, guard)
	fallback := fn[first : first+strings.Index(fn[first:], "END IF")]
	assert.Contains(t, fallback, "'truncated', true")
	assert.NotContains(t, fallback, "row_to_json")
	assert.NotContains(t, fallback, "to_jsonb(rec) -")

	second := strings.LastIndex(fn, guard)
	assert.Contains(t, fn[second:], "RAISE WARNING")
	assert.Less(t, second, strings.Index(fn, "PERFORM pg_notify"))

	// the reference only carries identifiers and a timestamp
	id := strings.Repeat("x", 256)
	body, err := json.Marshal(map[string]any{
		"entity_type": "request",
		"op":          "update",
		"location_id": id,
		"truncated":   true,
		"payload": map[string]any{
			"id":          id,
			"location_id": id,
			"updated_at":  "2026-03-01T18:00:00.123456+00:00",
		},
	})
	require.NoError(t, err)
	assert.Less(t, len(body), notifyLimit)
}
