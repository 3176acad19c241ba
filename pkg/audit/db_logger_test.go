package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestNewDBLogger(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

		logger, err := NewDBLogger(db)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		logger, err := NewDBLogger(nil)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "database connection is required")
	})

	t.Run("table creation error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnError(errors.New("table creation failed"))

		logger, err := NewDBLogger(db)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "failed to ensure audit_logs table")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_Log(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		event := NewEvent(EventTypePermissionGrant, EventStatusSuccess).
			WithActor(7, 1).
			WithResource("file", "42").
			WithMessage("Granted editor to team 3")

		mock.ExpectExec("INSERT INTO audit_logs").
			WithArgs(
				event.Timestamp,
				event.EventType,
				event.Status,
				event.UserID,
				event.OrganizationID,
				"file",
				"42",
				nil,
				"Granted editor to team 3",
				nil,
				nil,
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := logger.Log(ctx, event)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}

		mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("insert failed"))

		err := logger.Log(context.Background(), NewEvent(EventTypeAccessDenied, EventStatusDenied))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit event")
	})
}

func TestDBLogger_LogTx(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	logger := &DBLogger{db: db}
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	event := NewEvent(EventTypePermissionRevoke, EventStatusSuccess).WithActor(7, 1)
	require.NoError(t, logger.LogTx(ctx, tx, event))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger{}
	assert.NoError(t, logger.Log(context.Background(), NewEvent(EventTypeLinkCreate, EventStatusSuccess)))
	assert.NoError(t, logger.LogTx(context.Background(), nil, nil))
	assert.NoError(t, logger.Close())
}
