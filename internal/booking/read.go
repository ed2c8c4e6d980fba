package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Rawan10101/Carevo/internal/docstore"
)

const readRetryDelay = 50 * time.Millisecond

// withReadRetry runs an idempotent read and repeats it once on a transient
// store error. Not-found and context errors are final.
func withReadRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(readRetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || errors.Is(err, docstore.ErrNotFound) || ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})
}

func readDocument(ctx context.Context, store docstore.Store, collection, id string) (*docstore.Document, error) {
	var doc *docstore.Document
	err := withReadRetry(ctx, func(ctx context.Context) error {
		d, err := store.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	return doc, err
}

func queryDocuments(ctx context.Context, store docstore.Store, collection string) ([]*docstore.Document, error) {
	var docs []*docstore.Document
	err := withReadRetry(ctx, func(ctx context.Context) error {
		d, err := store.Query(ctx, collection, nil)
		if err != nil {
			return err
		}
		docs = d
		return nil
	})
	return docs, err
}

// patchField replaces one top-level field of a JSON object and keeps every
// other field byte for byte, so fields this package does not model survive.
func patchField(body json.RawMessage, field string, v any) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", field, err)
	}
	fields[field] = encoded
	return json.Marshal(fields)
}

// decodeField reads one top-level field; absent or null leaves v untouched.
func decodeField(body json.RawMessage, field string, v any) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	raw, ok := fields[field]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", field, err)
	}
	return nil
}
