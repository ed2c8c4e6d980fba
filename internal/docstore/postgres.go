package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps every collection in one `documents` table with a JSONB body
// and a bigint version column (see internal/db/migrations).
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const docCols = `collection, id, version, body, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var body []byte

	err := row.Scan(
		&d.Collection,
		&d.ID,
		&d.Version,
		&body,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	d.Body = json.RawMessage(body)
	return &d, nil
}

func (s *PgStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+docCols+`
		FROM documents
		WHERE collection = $1 AND id = $2
	`, collection, id)
	return scanDocument(row)
}

func (s *PgStore) Create(ctx context.Context, collection, id string, body json.RawMessage) (*Document, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO documents (collection, id, version, body, created_at, updated_at)
		VALUES ($1, $2, 1, $3::jsonb, now(), now())
		ON CONFLICT (collection, id) DO NOTHING
		RETURNING `+docCols+`
	`, collection, id, string(body))

	doc, err := scanDocument(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

// ConditionalUpdate runs transform on the body it read and writes the result
// only while the row still carries expectedVersion. Zero affected rows on an
// existing row means another writer got there first.
func (s *PgStore) ConditionalUpdate(ctx context.Context, collection, id string, expectedVersion int64, transform TransformFunc) (*Document, error) {
	current, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	body, err := transform(current.Body)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE documents
		SET body = $4::jsonb,
		    version = version + 1,
		    updated_at = now()
		WHERE collection = $1
		  AND id = $2
		  AND version = $3
		RETURNING `+docCols+`
	`, collection, id, expectedVersion, string(body))

	doc, err := scanDocument(row)
	if errors.Is(err, ErrNotFound) {
		// Row vanished or moved on between our read and write.
		if _, getErr := s.Get(ctx, collection, id); errors.Is(getErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	return doc, nil
}

func (s *PgStore) Append(ctx context.Context, collection, id, arrayField string, item json.RawMessage) (*Document, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE documents
		SET body = jsonb_set(
		        body,
		        ARRAY[$3::text],
		        CASE WHEN jsonb_typeof(body->$3::text) = 'array' THEN body->$3::text ELSE '[]'::jsonb END
		            || jsonb_build_array($4::jsonb),
		        true),
		    version = version + 1,
		    updated_at = now()
		WHERE collection = $1
		  AND id = $2
		RETURNING `+docCols+`
	`, collection, id, arrayField, string(item))

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("append to document: %w", err)
	}
	return doc, nil
}

func (s *PgStore) Query(ctx context.Context, collection string, pred Predicate) ([]*Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+docCols+`
		FROM documents
		WHERE collection = $1
		ORDER BY id
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var result []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(d) {
			result = append(result, d)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
