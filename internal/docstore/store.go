// Package docstore is the document-store abstraction the booking core runs on.
// A document is a JSON body addressed by (collection, id) and carrying a
// version that every successful write increments; ConditionalUpdate is the
// compare-and-swap primitive built on that version.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrAlreadyExists   = errors.New("document already exists")
	ErrVersionConflict = errors.New("document version conflict")
	ErrNotArray        = errors.New("document field is not an array")
)

type Document struct {
	Collection string
	ID         string
	Version    int64
	Body       json.RawMessage
	UpdatedAt  time.Time
}

// Decode unmarshals the document body into v.
func (d *Document) Decode(v any) error {
	if err := json.Unmarshal(d.Body, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// TransformFunc receives the stored body at the expected version and returns
// the replacement body. An error aborts the write and is returned unchanged
// by ConditionalUpdate.
type TransformFunc func(body json.RawMessage) (json.RawMessage, error)

// Predicate selects documents in Query. A nil predicate matches everything.
type Predicate func(doc *Document) bool

type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Create(ctx context.Context, collection, id string, body json.RawMessage) (*Document, error)
	// ConditionalUpdate applies transform only if the stored version equals
	// expectedVersion, otherwise it fails with ErrVersionConflict.
	ConditionalUpdate(ctx context.Context, collection, id string, expectedVersion int64, transform TransformFunc) (*Document, error)
	// Append atomically adds item to the array held in arrayField, creating
	// the array when the field is absent or null.
	Append(ctx context.Context, collection, id, arrayField string, item json.RawMessage) (*Document, error)
	Query(ctx context.Context, collection string, pred Predicate) ([]*Document, error)
	Ping(ctx context.Context) error
}

// appendToField is the Go-side append used by backends without a native
// array-append primitive.
func appendToField(body json.RawMessage, field string, item json.RawMessage) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
	}

	var items []json.RawMessage
	if raw, ok := fields[field]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotArray, field)
		}
	}
	items = append(items, item)

	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", field, err)
	}
	fields[field] = encoded

	return json.Marshal(fields)
}

func cloneBody(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
