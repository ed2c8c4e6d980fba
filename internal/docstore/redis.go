package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxAppendAttempts = 5

// RedisStore keeps each document in a hash (version, body, updated_at) under
// doc:{collection}:{id}, with a set of ids per collection for Query.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
	}
}

func docKey(collection, id string) string {
	return fmt.Sprintf("doc:%s:%s", collection, id)
}

func indexKey(collection string) string {
	return fmt.Sprintf("docs:%s", collection)
}

var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "version", "1", "body", ARGV[1], "updated_at", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
return 1
`)

// casScript swaps the body only when the stored version matches ARGV[1].
// Returns -1 when missing, 0 on version mismatch, else the new version.
var casScript = redis.NewScript(`
local v = redis.call("HGET", KEYS[1], "version")
if not v then
  return -1
end
if v ~= ARGV[1] then
  return 0
end
local nextVersion = tonumber(v) + 1
redis.call("HSET", KEYS[1], "version", tostring(nextVersion), "body", ARGV[2], "updated_at", ARGV[3])
return nextVersion
`)

func (s *RedisStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	vals, err := s.client.HMGet(ctx, docKey(collection, id), "version", "body", "updated_at").Result()
	if err != nil {
		return nil, fmt.Errorf("hmget document: %w", err)
	}
	return parseDocument(collection, id, vals)
}

func parseDocument(collection, id string, vals []any) (*Document, error) {
	if len(vals) < 3 || vals[0] == nil || vals[1] == nil {
		return nil, ErrNotFound
	}

	version, err := strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse version of %s/%s: %w", collection, id, err)
	}

	doc := &Document{
		Collection: collection,
		ID:         id,
		Version:    version,
		Body:       json.RawMessage(fmt.Sprint(vals[1])),
	}
	if vals[2] != nil {
		if ts, err := time.Parse(time.RFC3339Nano, fmt.Sprint(vals[2])); err == nil {
			doc.UpdatedAt = ts
		}
	}
	return doc, nil
}

func (s *RedisStore) Create(ctx context.Context, collection, id string, body json.RawMessage) (*Document, error) {
	now := s.now().UTC()
	ok, err := createScript.Run(ctx, s.client,
		[]string{docKey(collection, id), indexKey(collection)},
		string(body), now.Format(time.RFC3339Nano), id,
	).Int()
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	if ok == 0 {
		return nil, ErrAlreadyExists
	}

	return &Document{
		Collection: collection,
		ID:         id,
		Version:    1,
		Body:       cloneBody(body),
		UpdatedAt:  now,
	}, nil
}

func (s *RedisStore) ConditionalUpdate(ctx context.Context, collection, id string, expectedVersion int64, transform TransformFunc) (*Document, error) {
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

	now := s.now().UTC()
	next, err := casScript.Run(ctx, s.client,
		[]string{docKey(collection, id)},
		strconv.FormatInt(expectedVersion, 10), string(body), now.Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("compare and set document: %w", err)
	}

	switch {
	case next < 0:
		return nil, ErrNotFound
	case next == 0:
		return nil, ErrVersionConflict
	}

	return &Document{
		Collection: collection,
		ID:         id,
		Version:    next,
		Body:       cloneBody(body),
		UpdatedAt:  now,
	}, nil
}

// Append runs inside WATCH/MULTI. A failed EXEC wrote nothing, so the
// attempt is repeated against the fresh body.
func (s *RedisStore) Append(ctx context.Context, collection, id, arrayField string, item json.RawMessage) (*Document, error) {
	key := docKey(collection, id)

	var result *Document
	txf := func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, key, "version", "body", "updated_at").Result()
		if err != nil {
			return err
		}
		current, err := parseDocument(collection, id, vals)
		if err != nil {
			return err
		}

		body, err := appendToField(current.Body, arrayField, item)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		next := current.Version + 1
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"version", strconv.FormatInt(next, 10),
				"body", string(body),
				"updated_at", now.Format(time.RFC3339Nano),
			)
			return nil
		})
		if err != nil {
			return err
		}

		result = &Document{Collection: collection, ID: id, Version: next, Body: body, UpdatedAt: now}
		return nil
	}

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotArray) {
			return nil, err
		}
		return nil, fmt.Errorf("append to document: %w", err)
	}

	return nil, fmt.Errorf("append to document: %w", ErrVersionConflict)
}

func (s *RedisStore) Query(ctx context.Context, collection string, pred Predicate) ([]*Document, error) {
	ids, err := s.client.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list collection ids: %w", err)
	}
	sort.Strings(ids)

	cmds, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.HMGet(ctx, docKey(collection, id), "version", "body", "updated_at")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}

	var result []*Document
	for i, cmd := range cmds {
		doc, err := parseDocument(collection, ids[i], cmd.(*redis.SliceCmd).Val())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(doc) {
			result = append(result, doc)
		}
	}
	return result, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
