package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps documents in process. It backs tests and the
// STORE_BACKEND=memory development mode; its version checks behave exactly
// like the networked backends.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]*Document
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]*Document),
		now:  time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *MemoryStore) Create(ctx context.Context, collection, id string, body json.RawMessage) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string]*Document)
		s.docs[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return nil, ErrAlreadyExists
	}

	doc := &Document{
		Collection: collection,
		ID:         id,
		Version:    1,
		Body:       cloneBody(body),
		UpdatedAt:  s.now(),
	}
	coll[id] = doc
	return copyDoc(doc), nil
}

func (s *MemoryStore) ConditionalUpdate(ctx context.Context, collection, id string, expectedVersion int64, transform TransformFunc) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	if doc.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	body, err := transform(cloneBody(doc.Body))
	if err != nil {
		return nil, err
	}

	doc.Body = cloneBody(body)
	doc.Version++
	doc.UpdatedAt = s.now()
	return copyDoc(doc), nil
}

func (s *MemoryStore) Append(ctx context.Context, collection, id, arrayField string, item json.RawMessage) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}

	body, err := appendToField(doc.Body, arrayField, item)
	if err != nil {
		return nil, err
	}

	doc.Body = body
	doc.Version++
	doc.UpdatedAt = s.now()
	return copyDoc(doc), nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, pred Predicate) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*Document
	for _, doc := range s.docs[collection] {
		c := copyDoc(doc)
		if pred == nil || pred(c) {
			result = append(result, c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func copyDoc(d *Document) *Document {
	c := *d
	c.Body = cloneBody(d.Body)
	return &c
}
