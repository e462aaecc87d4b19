package harvester

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStaging(t *testing.T) (*StagingWriter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStagingWriter(sqlx.NewDb(db, "sqlmock")), mock
}

func TestUpsertItemsWritesEachItem(t *testing.T) {
	w, mock := newMockStaging(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO staging.items").
		WithArgs("acme", "SKU-1", "Item 1", 100.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO staging.items").
		WithArgs("default", "SKU-2", "Item 2", 50.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	count, err := w.UpsertItems(context.Background(), []Item{
		{SKU: "SKU-1", Name: "Item 1", Price: 100.0, TenantID: "acme"},
		{SKU: "SKU-2", Name: "Item 2", Price: 50.0}, // no tenant → default
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertItemsEmptyIsNoop(t *testing.T) {
	w, mock := newMockStaging(t)

	count, err := w.UpsertItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NoError(t, mock.ExpectationsWereMet(), "no statements for an empty batch")
}

func TestUpsertItemsRollsBackOnFailure(t *testing.T) {
	w, mock := newMockStaging(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO staging.items").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := w.UpsertItems(context.Background(), []Item{{SKU: "SKU-1", TenantID: "acme"}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSuppliers(t *testing.T) {
	w, mock := newMockStaging(t)

	rows := sqlmock.NewRows([]string{"code", "feed_url", "enabled"}).
		AddRow("vendor-a", "https://a.example/feed.json", true).
		AddRow("vendor-b", "https://b.example/feed.json", false)
	mock.ExpectQuery("SELECT code, feed_url, enabled FROM staging.suppliers").
		WithArgs("acme").
		WillReturnRows(rows)

	suppliers, err := w.ListSuppliers(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, suppliers, 2)
	assert.Equal(t, "vendor-a", suppliers[0].Code)
	assert.False(t, suppliers[1].Enabled)
}

func TestPutAndGetRaw(t *testing.T) {
	w, mock := newMockStaging(t)

	mock.ExpectExec("INSERT INTO staging.raw_feeds").
		WithArgs("buffer/feed.json", []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT payload FROM staging.raw_feeds").
		WithArgs("buffer/feed.json").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte(`[]`)))

	ctx := context.Background()
	require.NoError(t, w.PutRaw(ctx, "buffer/feed.json", []byte(`[]`)))

	data, err := w.GetRaw(ctx, "buffer/feed.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), data)
}
