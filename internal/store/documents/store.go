// Package documents is a collection/id keyed JSON document store on
// PostgreSQL. Every write is announced to a change publisher so that
// subscribers can refresh their snapshots.
package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_data_gin ON documents USING GIN (data);
CREATE TABLE IF NOT EXISTS audit_log (
	id            BIGSERIAL PRIMARY KEY,
	event_type    TEXT        NOT NULL,
	resource_type TEXT        NOT NULL,
	resource_id   TEXT        NOT NULL,
	details       JSONB       NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Change operations
const (
	OpSet    = "set"
	OpMerge  = "merge"
	OpDelete = "delete"
)

// Change describes one write.
type Change struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Op         string    `json:"op"`
	At         time.Time `json:"at"`
}

// Publisher fans changes out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Document is one stored row.
type Document struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Decode unmarshals the document body into out.
func (d Document) Decode(out interface{}) error {
	return json.Unmarshal(d.Data, out)
}

// Map returns the body as a map with "id" set.
func (d Document) Map() (map[string]interface{}, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(d.Data, &m); err != nil {
		return nil, err
	}
	m["id"] = d.ID
	return m, nil
}

type Store struct {
	db        *sql.DB
	publisher Publisher
	logger    logger.Logger
}

// NewStore builds a store; publisher may be nil.
func NewStore(db *sql.DB, publisher Publisher, log logger.Logger) *Store {
	return &Store{
		db:        db,
		publisher: publisher,
		logger:    log.WithFields(map[string]interface{}{"component": "document-store"}),
	}
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.NewQueryExecutionFailedError("ensure-schema", err)
	}
	return nil
}

// Set writes data as the full body of collection/id, replacing any previous body.
func (s *Store) Set(ctx context.Context, collection, id string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return errors.NewPersistenceError(collection, fmt.Errorf("marshal document: %w", err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, body)
	if err != nil {
		return errors.NewPersistenceError(collection, err)
	}

	s.publish(ctx, collection, id, OpSet)
	return nil
}

// Merge shallow-merges fields into an existing document.
func (s *Store) Merge(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return errors.NewPersistenceError(collection, fmt.Errorf("marshal fields: %w", err))
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2`,
		collection, id, body)
	if err != nil {
		return errors.NewPersistenceError(collection, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError(collection, id)
	}

	s.publish(ctx, collection, id, OpMerge)
	return nil
}

// Get loads collection/id into out.
func (s *Store) Get(ctx context.Context, collection, id string, out interface{}) error {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&body)
	if err == sql.ErrNoRows {
		return errors.NewNotFoundError(collection, id)
	}
	if err != nil {
		return errors.NewQueryExecutionFailedError("get "+collection, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewQueryExecutionFailedError("decode "+collection, err)
	}
	return nil
}

// Delete removes collection/id. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return errors.NewPersistenceError(collection, err)
	}
	s.publish(ctx, collection, id, OpDelete)
	return nil
}

// AppendAudit records an audit event. Failures are logged, not returned.
func (s *Store) AppendAudit(ctx context.Context, eventType, resourceType, resourceID string, details map[string]interface{}) {
	body, err := json.Marshal(details)
	if err != nil {
		body = []byte("{}")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		eventType, resourceType, resourceID, body); err != nil {
		s.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":      err,
			"eventType":  eventType,
			"resourceId": resourceID,
		})
	}
}

func (s *Store) publish(ctx context.Context, collection, id, op string) {
	if s.publisher == nil {
		return
	}
	change := Change{Collection: collection, ID: id, Op: op, At: time.Now().UTC()}
	if err := s.publisher.Publish(ctx, change); err != nil {
		s.logger.Warn("change publish failed", map[string]interface{}{
			"error":      err,
			"collection": collection,
			"id":         id,
		})
	}
}

// ==========================
// Queries
// ==========================

// Filter operators
const (
	OpEqual         = "=="
	OpArrayContains = "array-contains"
)

type Filter struct {
	Field string
	Op    string
	Value interface{}
}

// Query selects documents of one collection. OrderBy names a body field;
// OrderByTime casts it to a timestamp so RFC 3339 values sort by instant.
type Query struct {
	Collection  string
	Where       []Filter
	OrderBy     string
	OrderByTime bool
	Desc        bool
	Limit       int
}

var fieldName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func (q Query) build() (string, []interface{}, error) {
	var sb strings.Builder
	args := []interface{}{q.Collection}
	sb.WriteString(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1`)

	for _, f := range q.Where {
		if !fieldName.MatchString(f.Field) {
			return "", nil, fmt.Errorf("invalid field name %q", f.Field)
		}
		var operand interface{} = f.Value
		var op string
		switch f.Op {
		case OpEqual, "":
			op = "="
		case OpArrayContains:
			op = "@>"
			operand = []interface{}{f.Value}
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
		raw, err := json.Marshal(operand)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		args = append(args, string(raw))
		fmt.Fprintf(&sb, ` AND data->'%s' %s $%d::jsonb`, f.Field, op, len(args))
	}

	if q.OrderBy != "" {
		if !fieldName.MatchString(q.OrderBy) {
			return "", nil, fmt.Errorf("invalid order field %q", q.OrderBy)
		}
		expr := fmt.Sprintf(`data->>'%s'`, q.OrderBy)
		if q.OrderByTime {
			expr = fmt.Sprintf(`(%s)::timestamptz`, expr)
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, ` ORDER BY %s %s NULLS LAST`, expr, dir)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}
	return sb.String(), args, nil
}

// Query runs q and returns the matching documents.
func (s *Store) Query(ctx context.Context, q Query) ([]Document, error) {
	stmt, args, err := q.build()
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("query "+q.Collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var body []byte
		if err := rows.Scan(&d.ID, &body, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan "+q.Collection, err)
		}
		d.Data = body
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("iterate "+q.Collection, err)
	}
	return docs, nil
}

// DecodeAll decodes docs into a slice of T, setting each value's id through setID.
func DecodeAll[T any](docs []Document, setID func(*T, string)) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.ID, err)
		}
		if setID != nil {
			setID(&v, d.ID)
		}
		out = append(out, v)
	}
	return out, nil
}
