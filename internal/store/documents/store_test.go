package documents

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	changes []Change
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, c Change) error {
	p.changes = append(p.changes, c)
	return p.err
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	pub := &recordingPublisher{}
	return NewStore(db, pub, logger.NewTestLogger(t)), mock, pub
}

// ==========================
// Writes
// ==========================

func TestSet_UpsertsAndPublishes(t *testing.T) {
	store, mock, pub := newTestStore(t)

	mock.ExpectExec("INSERT INTO documents").
		WithArgs("users", "u-1", []byte(`{"email":"a@b.com"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Set(context.Background(), "users", "u-1", map[string]interface{}{"email": "a@b.com"})
	require.NoError(t, err)
	require.Len(t, pub.changes, 1)
	assert.Equal(t, OpSet, pub.changes[0].Op)
	assert.Equal(t, "users", pub.changes[0].Collection)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSet_DatabaseErrorIsPersistenceError(t *testing.T) {
	store, mock, pub := newTestStore(t)

	mock.ExpectExec("INSERT INTO documents").
		WillReturnError(stderrors.New("connection refused"))

	err := store.Set(context.Background(), "users", "u-1", map[string]interface{}{"a": 1})
	assert.True(t, stderrors.Is(err, errors.ErrPersistence))
	assert.Empty(t, pub.changes)
}

func TestSet_PublishFailureIsNotReturned(t *testing.T) {
	store, mock, pub := newTestStore(t)
	pub.err = stderrors.New("redis down")

	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, store.Set(context.Background(), "users", "u-1", map[string]interface{}{}))
}

func TestMerge(t *testing.T) {
	store, mock, pub := newTestStore(t)

	mock.ExpectExec("UPDATE documents SET data = data").
		WithArgs("orders", "o-1", []byte(`{"status":"Shipped"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Merge(context.Background(), "orders", "o-1", map[string]interface{}{"status": "Shipped"})
	require.NoError(t, err)
	require.Len(t, pub.changes, 1)
	assert.Equal(t, OpMerge, pub.changes[0].Op)
}

func TestMerge_MissingDocument(t *testing.T) {
	store, mock, pub := newTestStore(t)

	mock.ExpectExec("UPDATE documents SET data = data").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Merge(context.Background(), "orders", "nope", map[string]interface{}{"status": "Shipped"})
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	assert.Empty(t, pub.changes)
}

func TestDelete(t *testing.T) {
	store, mock, pub := newTestStore(t)

	mock.ExpectExec("DELETE FROM documents").
		WithArgs("users", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), "users", "u-1"))
	assert.Equal(t, OpDelete, pub.changes[0].Op)
}

func TestAppendAudit_FailureIsSwallowed(t *testing.T) {
	store, mock, _ := newTestStore(t)

	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs("application_created", "application", "u-1", sqlmock.AnyArg()).
		WillReturnError(stderrors.New("table missing"))

	store.AppendAudit(context.Background(), "application_created", "application", "u-1", map[string]interface{}{"collection": "x"})
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Reads
// ==========================

func TestGet(t *testing.T) {
	store, mock, _ := newTestStore(t)

	mock.ExpectQuery("SELECT data FROM documents").
		WithArgs("users", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"email":"a@b.com","status":"Active"}`)))

	var out map[string]interface{}
	require.NoError(t, store.Get(context.Background(), "users", "u-1", &out))
	assert.Equal(t, "Active", out["status"])
}

func TestGet_NotFound(t *testing.T) {
	store, mock, _ := newTestStore(t)

	mock.ExpectQuery("SELECT data FROM documents").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	var out map[string]interface{}
	err := store.Get(context.Background(), "users", "missing", &out)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
}

func TestQuery_BuildsFiltersOrderAndLimit(t *testing.T) {
	store, mock, _ := newTestStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = \$1 `+
		`AND data->'status' = \$2::jsonb AND data->'featured' = \$3::jsonb `+
		`ORDER BY data->>'createdAt' DESC NULLS LAST LIMIT \$4`).
		WithArgs("products", `"Active"`, `true`, 8).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "created_at", "updated_at"}).
			AddRow("p-1", []byte(`{"name":"Rice"}`), now, now).
			AddRow("p-2", []byte(`{"name":"Dal"}`), now, now))

	docs, err := store.Query(context.Background(), Query{
		Collection: "products",
		Where: []Filter{
			{Field: "status", Op: OpEqual, Value: "Active"},
			{Field: "featured", Op: OpEqual, Value: true},
		},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   8,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "p-1", docs[0].ID)

	m, err := docs[1].Map()
	require.NoError(t, err)
	assert.Equal(t, "Dal", m["name"])
	assert.Equal(t, "p-2", m["id"])
}

func TestQuery_ArrayContainsAndTimeOrdering(t *testing.T) {
	store, mock, _ := newTestStore(t)

	mock.ExpectQuery(`data->'roles' @> \$2::jsonb ORDER BY \(data->>'submittedAt'\)::timestamptz ASC`).
		WithArgs("users", `["stockist"]`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "created_at", "updated_at"}))

	docs, err := store.Query(context.Background(), Query{
		Collection:  "users",
		Where:       []Filter{{Field: "roles", Op: OpArrayContains, Value: "stockist"}},
		OrderBy:     "submittedAt",
		OrderByTime: true,
	})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestQuery_RejectsUnsafeFieldNames(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.Query(context.Background(), Query{
		Collection: "users",
		Where:      []Filter{{Field: "x'; DROP TABLE documents; --", Value: 1}},
	})
	assert.True(t, stderrors.Is(err, errors.ErrValidation))

	_, err = store.Query(context.Background(), Query{Collection: "users", OrderBy: "a b"})
	assert.True(t, stderrors.Is(err, errors.ErrValidation))
}

func TestDecodeAll(t *testing.T) {
	type item struct {
		ID   string `json:"-"`
		Name string `json:"name"`
	}
	docs := []Document{{ID: "1", Data: []byte(`{"name":"a"}`)}, {ID: "2", Data: []byte(`{"name":"b"}`)}}

	items, err := DecodeAll(docs, func(i *item, id string) { i.ID = id })
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}, items)
}
