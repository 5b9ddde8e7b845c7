package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

var noticeColumns = []string{"id", "violation_id", "qr_token", "payload", "issued_by", "issued_at"}

func newNoticeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestNoticeRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newNoticeRepoMock(t)
	defer cleanup()

	repo := NewNoticeRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notices")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	notice := &models.Notice{
		ViolationID: "vio-1",
		QRToken:     "qr-token-1",
		Payload:     json.RawMessage(`{"site":"cedar-terrace"}`),
		IssuedBy:    "enf-1",
	}
	require.NoError(t, repo.CreateTx(context.Background(), tx, notice))
	require.NotEmpty(t, notice.ID)
	require.False(t, notice.IssuedAt.IsZero())
	require.NoError(t, tx.Commit())

	rows := sqlmock.NewRows(noticeColumns).
		AddRow(notice.ID, "vio-1", "qr-token-1", []byte(`{"site":"cedar-terrace"}`), "enf-1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM notices WHERE id = $1")).
		WithArgs(notice.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), notice.ID)
	require.NoError(t, err)
	require.Equal(t, "vio-1", found.ViolationID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeRepositoryGetByQRToken(t *testing.T) {
	db, mock, cleanup := newNoticeRepoMock(t)
	defer cleanup()

	repo := NewNoticeRepository(db)
	rows := sqlmock.NewRows(noticeColumns).
		AddRow("not-1", "vio-1", "qr-token-1", []byte(`{}`), "enf-1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM notices WHERE qr_token = $1")).
		WithArgs("qr-token-1").
		WillReturnRows(rows)

	found, err := repo.GetByQRToken(context.Background(), "qr-token-1")
	require.NoError(t, err)
	require.Equal(t, "not-1", found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
