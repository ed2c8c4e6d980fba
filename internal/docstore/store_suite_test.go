package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type counterBody struct {
	Count int               `json:"count"`
	Items []json.RawMessage `json:"items"`
	Note  string            `json:"note,omitempty"`
}

func bump(body json.RawMessage) (json.RawMessage, error) {
	var c counterBody
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, err
	}
	c.Count++
	return json.Marshal(c)
}

// runStoreSuite exercises the Store contract; every backend must pass it.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "things", "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create then get", func(t *testing.T) {
		s := newStore(t)
		doc, err := s.Create(ctx, "things", "a", json.RawMessage(`{"count":1}`))
		require.NoError(t, err)
		assert.Equal(t, int64(1), doc.Version)

		got, err := s.Get(ctx, "things", "a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)

		var c counterBody
		require.NoError(t, got.Decode(&c))
		assert.Equal(t, 1, c.Count)
	})

	t.Run("create duplicate", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, "things", "a", json.RawMessage(`{}`))
		require.NoError(t, err)
		_, err = s.Create(ctx, "things", "a", json.RawMessage(`{}`))
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("conditional update bumps version", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, "things", "a", json.RawMessage(`{"count":0}`))
		require.NoError(t, err)

		doc, err := s.ConditionalUpdate(ctx, "things", "a", 1, bump)
		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.Version)

		got, err := s.Get(ctx, "things", "a")
		require.NoError(t, err)
		var c counterBody
		require.NoError(t, got.Decode(&c))
		assert.Equal(t, 1, c.Count)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("conditional update stale version", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, "things", "a", json.RawMessage(`{"count":0}`))
		require.NoError(t, err)
		_, err = s.ConditionalUpdate(ctx, "things", "a", 1, bump)
		require.NoError(t, err)

		_, err = s.ConditionalUpdate(ctx, "things", "a", 1, bump)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("conditional update missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ConditionalUpdate(ctx, "things", "ghost", 1, bump)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("transform error aborts write", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, "things", "a", json.RawMessage(`{"count":0}`))
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = s.ConditionalUpdate(ctx, "things", "a", 1, func(json.RawMessage) (json.RawMessage, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.Get(ctx, "things", "a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("concurrent conditional updates admit one winner", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, "things", "a", json.RawMessage(`{"count":0}`))
		require.NoError(t, err)

		const writers = 8
		var (
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		var g errgroup.Group
		for i := 0; i < writers; i++ {
			g.Go(func() error {
				_, err := s.ConditionalUpdate(ctx, "things", "a", 1, bump)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrVersionConflict):
					conflicts++
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, 1, wins)
		assert.Equal(t, writers-1, conflicts)
	})

	t.Run("append creates and extends array", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, "things", "a", json.RawMessage(`{"count":0,"note":"keep"}`))
		require.NoError(t, err)

		_, err = s.Append(ctx, "things", "a", "items", json.RawMessage(`{"n":1}`))
		require.NoError(t, err)
		doc, err := s.Append(ctx, "things", "a", "items", json.RawMessage(`{"n":2}`))
		require.NoError(t, err)
		assert.Equal(t, int64(3), doc.Version)

		got, err := s.Get(ctx, "things", "a")
		require.NoError(t, err)
		var c counterBody
		require.NoError(t, got.Decode(&c))
		assert.Len(t, c.Items, 2)
		assert.Equal(t, "keep", c.Note)
	})

	t.Run("append to null field", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, "things", "a", json.RawMessage(`{"items":null}`))
		require.NoError(t, err)

		_, err = s.Append(ctx, "things", "a", "items", json.RawMessage(`1`))
		require.NoError(t, err)

		got, err := s.Get(ctx, "things", "a")
		require.NoError(t, err)
		var c counterBody
		require.NoError(t, got.Decode(&c))
		assert.Len(t, c.Items, 1)
	})

	t.Run("append missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Append(ctx, "things", "ghost", "items", json.RawMessage(`1`))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("query with predicate", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"c", "a", "b"} {
			_, err := s.Create(ctx, "things", id, json.RawMessage(`{"count":0}`))
			require.NoError(t, err)
		}
		_, err := s.Create(ctx, "others", "z", json.RawMessage(`{}`))
		require.NoError(t, err)

		all, err := s.Query(ctx, "things", nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "a", all[0].ID)
		assert.Equal(t, "c", all[2].ID)

		some, err := s.Query(ctx, "things", func(d *Document) bool { return d.ID != "b" })
		require.NoError(t, err)
		assert.Len(t, some, 2)
	})
}
