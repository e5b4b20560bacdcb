// Package storage persists rules, scripts, cron jobs, and settings as
// JSON documents in NATS JetStream key-value buckets. In-memory variants
// back tests and ephemeral setups.
package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/natsclient"
)

// Bucket names created by the runtime at startup.
const (
	RulesBucket    = "topicflow-rules"
	ScriptsBucket  = "topicflow-scripts"
	CronJobsBucket = "topicflow-cronjobs"
	SettingsBucket = "topicflow-settings"
)

// seqKey holds the per-bucket ID counter for numbered documents.
const seqKey = "seq"

// kvBucket is the subset of natsclient.KVStore the repositories use.
// Narrowed for testability.
type kvBucket interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	UpdateWithRetry(ctx context.Context, key string, updateFn func(current []byte) ([]byte, error)) error
}

// nextID atomically increments and returns the bucket's ID counter.
func nextID(ctx context.Context, bucket kvBucket) (int64, error) {
	var id int64
	err := bucket.UpdateWithRetry(ctx, seqKey, func(current []byte) ([]byte, error) {
		var last int64
		if len(current) > 0 {
			parsed, err := strconv.ParseInt(string(current), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("corrupt sequence value %q: %w", current, err)
			}
			last = parsed
		}
		id = last + 1
		return []byte(strconv.FormatInt(id, 10)), nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// getJSON loads and decodes one document. Missing keys map to
// errors.ErrKeyNotFound.
func getJSON(ctx context.Context, bucket kvBucket, key string, out any) error {
	entry, err := bucket.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return errors.ErrKeyNotFound
		}
		return err
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// putJSON encodes and stores one document, last writer wins.
func putJSON(ctx context.Context, bucket kvBucket, key string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := bucket.Put(ctx, key, data); err != nil {
		return err
	}
	return nil
}

// listJSON decodes every document in the bucket except the sequence
// counter.
func listJSON[T any](ctx context.Context, bucket kvBucket) ([]T, error) {
	keys, err := bucket.Keys(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]T, 0, len(keys))
	for _, key := range keys {
		if key == seqKey {
			continue
		}
		var doc T
		if err := getJSON(ctx, bucket, key, &doc); err != nil {
			// A key deleted between Keys and Get is not an error.
			if stderrors.Is(err, errors.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
